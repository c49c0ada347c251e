package detections

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("definitely not an image"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrDecode))

			var decodeErr *DecodeError
			assert.True(t, errors.As(err, &decodeErr))
		})
	}
}

func TestResizeIgnoresAspectRatio(t *testing.T) {
	img, err := Decode(solidJPEG(t, 300, 120, color.RGBA{R: 10, G: 200, B: 30, A: 255}))
	require.NoError(t, err)

	resized := Resize(img)
	assert.Equal(t, InputWidth, resized.Bounds().Dx())
	assert.Equal(t, InputHeight, resized.Bounds().Dy())
}

func TestPreprocessorWritesRGBPlanes(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, InputWidth, InputHeight))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255   // R
		img.Pix[i+1] = 0   // G
		img.Pix[i+2] = 51  // B
		img.Pix[i+3] = 255 // A
	}

	buf := make([]float32, 3*InputWidth*InputHeight)
	require.NoError(t, NewPreprocessor().Process(img, buf))

	channelSize := InputWidth * InputHeight
	for _, i := range []int{0, channelSize / 2, channelSize - 1} {
		assert.InDelta(t, 1.0, buf[i], 1e-6)
		assert.InDelta(t, 0.0, buf[channelSize+i], 1e-6)
		assert.InDelta(t, 0.2, buf[2*channelSize+i], 1e-6)
	}
}

func TestPreprocessorGenericMatchesNRGBA(t *testing.T) {
	rgba := image.NewRGBA(image.Rect(0, 0, InputWidth, InputHeight))
	for y := 0; y < InputHeight; y++ {
		for x := 0; x < InputWidth; x++ {
			rgba.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}

	p := NewPreprocessor()
	generic := make([]float32, 3*InputWidth*InputHeight)
	require.NoError(t, p.Process(rgba, generic))

	nrgba := Resize(rgba)
	fast := make([]float32, 3*InputWidth*InputHeight)
	require.NoError(t, p.Process(nrgba, fast))

	assert.InDeltaSlice(t, generic, fast, 1.0/255)
}

func TestPreprocessorRejectsWrongInput(t *testing.T) {
	p := NewPreprocessor()

	small := image.NewNRGBA(image.Rect(0, 0, 10, 10))
	err := p.Process(small, make([]float32, 3*InputWidth*InputHeight))
	assert.ErrorContains(t, err, "unexpected image size")

	full := image.NewNRGBA(image.Rect(0, 0, InputWidth, InputHeight))
	err = p.Process(full, make([]float32, 10))
	assert.ErrorContains(t, err, "input buffer too small")
}
