package detections

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tomato-leaves/disease-detection-api/models"
)

type ProcessingError struct {
	Message string
	Cause   error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ProcessingError) Unwrap() error { return e.Cause }

// Detector runs the tomato leaf model over pooled sessions. It is built once
// per process and is safe for concurrent use.
type Detector struct {
	pool         *SessionPool
	labels       Labels
	numClasses   int
	numAnchors   int
	preprocessor *Preprocessor
	logger       *zap.Logger
}

func NewDetector(pool *SessionPool, labels Labels, numAnchors int, logger *zap.Logger) *Detector {
	return &Detector{
		pool:         pool,
		labels:       labels,
		numClasses:   labels.NumClasses(),
		numAnchors:   numAnchors,
		preprocessor: NewPreprocessor(),
		logger:       logger.Named("detector"),
	}
}

// Labels returns the class vocabulary bundled with the weights.
func (d *Detector) Labels() Labels {
	return d.labels
}

func (d *Detector) Stats() PoolStats {
	return d.pool.Stats()
}

// Predict decodes imageBytes and returns every detected box. Invalid images
// fail with a *DecodeError. Inference is not retried.
func (d *Detector) Predict(ctx context.Context, imageBytes []byte) (*models.DetectionResult, error) {
	return d.ProcessImage(ctx, imageBytes, &models.ProcessingTimings{})
}

// ProcessImage is Predict with per-stage timings recorded into timings.
func (d *Detector) ProcessImage(ctx context.Context, imageBytes []byte, timings *models.ProcessingTimings) (*models.DetectionResult, error) {
	decodeStart := time.Now()
	img, err := Decode(imageBytes)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return nil, err
	}

	resizeStart := time.Now()
	resized := Resize(img)
	timings.Resize = time.Since(resizeStart)

	session, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, &ProcessingError{Message: "acquire session", Cause: err}
	}

	prepStart := time.Now()
	if err := d.preprocessor.Process(resized, session.Input()); err != nil {
		d.pool.Release(session)
		return nil, &ProcessingError{Message: "prepare input buffer", Cause: err}
	}
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	output, err := session.Run()
	timings.Inference = time.Since(inferStart)
	if err != nil {
		d.pool.Discard(session, err)
		return nil, &ProcessingError{Message: "model inference", Cause: err}
	}

	// The output tensor belongs to the session, decode before releasing it.
	postStart := time.Now()
	dets, err := processPredictions(output, d.numClasses, d.numAnchors)
	d.pool.Release(session)
	timings.Postprocess = time.Since(postStart)
	if err != nil {
		return nil, &ProcessingError{Message: "process predictions", Cause: err}
	}

	return models.NewDetectionResult(dets, d.labels.Name), nil
}
