package detections

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"runtime"
	"sync"

	"github.com/disintegration/imaging"
)

// ErrDecode is matched by every DecodeError.
var ErrDecode = errors.New("invalid image")

// DecodeError is returned when the uploaded bytes are not a decodable image.
type DecodeError struct {
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("decode image: %v", e.Cause)
	}
	return "decode image"
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Decode turns raw JPEG/PNG/GIF/BMP/TIFF bytes into an image.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Cause: errors.New("empty payload")}
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return img, nil
}

// Resize scales img to exactly InputWidth x InputHeight. The aspect ratio is
// not preserved, the weights were trained on images stretched the same way.
func Resize(img image.Image) *image.NRGBA {
	return imaging.Resize(img, InputWidth, InputHeight, imaging.Linear)
}

// Preprocessor writes a resized image into a CHW float32 tensor in RGB order,
// scaled to [0,1].
type Preprocessor struct {
	width, height int
	numWorkers    int
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{
		width:      InputWidth,
		height:     InputHeight,
		numWorkers: runtime.GOMAXPROCS(0),
	}
}

// Process fills dst, which must hold 3*width*height values.
func (p *Preprocessor) Process(img image.Image, dst []float32) error {
	want := 3 * p.width * p.height
	if len(dst) < want {
		return fmt.Errorf("input buffer too small: got %d, want %d", len(dst), want)
	}
	b := img.Bounds()
	if b.Dx() != p.width || b.Dy() != p.height {
		return fmt.Errorf("unexpected image size %dx%d, want %dx%d", b.Dx(), b.Dy(), p.width, p.height)
	}

	if nrgba, ok := img.(*image.NRGBA); ok {
		p.processParallel(func(start, end int) { p.processRowsNRGBA(nrgba, dst, start, end) })
	} else {
		p.processParallel(func(start, end int) { p.processRowsGeneric(img, dst, start, end) })
	}
	return nil
}

func (p *Preprocessor) processParallel(rows func(start, end int)) {
	workers := p.numWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > p.height {
		workers = p.height
	}
	rowsPerWorker := p.height / workers

	var wg sync.WaitGroup
	wg.Add(workers)

	for w := 0; w < workers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == workers-1 {
			endRow = p.height
		}

		go func(start, end int) {
			defer wg.Done()
			rows(start, end)
		}(startRow, endRow)
	}

	wg.Wait()
}

func (p *Preprocessor) processRowsNRGBA(img *image.NRGBA, buffer []float32, start, end int) {
	channelSize := p.width * p.height
	for y := start; y < end; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+p.width*4]
		offset := y * p.width
		for x := 0; x < p.width; x++ {
			i := offset + x
			buffer[i] = float32(src[x*4]) / 255.0
			buffer[channelSize+i] = float32(src[x*4+1]) / 255.0
			buffer[channelSize*2+i] = float32(src[x*4+2]) / 255.0
		}
	}
}

func (p *Preprocessor) processRowsGeneric(img image.Image, buffer []float32, start, end int) {
	channelSize := p.width * p.height
	origin := img.Bounds().Min
	for y := start; y < end; y++ {
		offset := y * p.width
		for x := 0; x < p.width; x++ {
			i := offset + x
			r, g, b, _ := img.At(origin.X+x, origin.Y+y).RGBA()
			buffer[i] = float32(r>>8) / 255.0
			buffer[channelSize+i] = float32(g>>8) / 255.0
			buffer[channelSize*2+i] = float32(b>>8) / 255.0
		}
	}
}
