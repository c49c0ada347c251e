package detections

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSession returns a fixed output tensor instead of running a model.
type fakeSession struct {
	input     []float32
	output    []float32
	err       error
	runs      atomic.Int32
	destroyed atomic.Bool
}

func newFakeSession(output []float32) *fakeSession {
	return &fakeSession{
		input:  make([]float32, 3*InputWidth*InputHeight),
		output: output,
	}
}

func (f *fakeSession) Input() []float32 { return f.input }

func (f *fakeSession) Run() ([]float32, error) {
	f.runs.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.output, nil
}

func (f *fakeSession) Destroy() { f.destroyed.Store(true) }

var errFakeInference = errors.New("fake inference failure")

// predictionTensor builds an empty YOLOv8 head for numClasses classes.
func predictionTensor(numClasses, numAnchors int) []float32 {
	return make([]float32, (4+numClasses)*numAnchors)
}

// setAnchor writes one center-format box (input pixels) and class scores.
func setAnchor(t []float32, numAnchors, i int, cx, cy, w, h float32, scores ...float32) {
	t[i] = cx
	t[numAnchors+i] = cy
	t[2*numAnchors+i] = w
	t[3*numAnchors+i] = h
	for c, s := range scores {
		t[(4+c)*numAnchors+i] = s
	}
}

func solidJPEG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}
