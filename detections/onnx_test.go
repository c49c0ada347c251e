package detections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	ort "github.com/yalue/onnxruntime_go"
)

func TestCheckInputShape(t *testing.T) {
	tests := []struct {
		name    string
		dims    ort.Shape
		wantErr string
	}{
		{"static 512", ort.NewShape(1, 3, 512, 512), ""},
		{"dynamic batch", ort.NewShape(-1, 3, 512, 512), ""},
		{"dynamic spatial", ort.NewShape(-1, 3, -1, -1), ""},
		{"default 640 export", ort.NewShape(1, 3, 640, 640), "does not match"},
		{"grayscale", ort.NewShape(1, 1, 512, 512), "does not match"},
		{"rank 3", ort.NewShape(3, 512, 512), "rank 3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkInputShape(tt.dims)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestResolveOutputShape(t *testing.T) {
	assert.Equal(t, ort.NewShape(1, 14, NumAnchors), resolveOutputShape(ort.NewShape(1, 14, -1), 10))
	assert.Equal(t, ort.NewShape(1, 6, NumAnchors), resolveOutputShape(nil, 2))
}
