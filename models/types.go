package models

import "time"

// Detection is a single box produced by the inference backend before it is
// flattened into a DetectionResult. BBox is normalized xmin, ymin, xmax, ymax.
type Detection struct {
	ClassID    int
	BBox       [4]float64
	Confidence float32
}

// DetectionResult is the column-oriented prediction returned by the API.
// Index i across all four slices describes one box.
type DetectionResult struct {
	Classes []int        `json:"classes"`
	Boxes   [][4]float64 `json:"boxes"`
	Conf    []float64    `json:"conf"`
	Labels  []string     `json:"labels"`
}

// NewDetectionResult flattens detections, resolving class ids through labels.
func NewDetectionResult(dets []Detection, labels func(int) string) *DetectionResult {
	res := &DetectionResult{
		Classes: make([]int, 0, len(dets)),
		Boxes:   make([][4]float64, 0, len(dets)),
		Conf:    make([]float64, 0, len(dets)),
		Labels:  make([]string, 0, len(dets)),
	}
	for _, d := range dets {
		res.Classes = append(res.Classes, d.ClassID)
		res.Boxes = append(res.Boxes, d.BBox)
		res.Conf = append(res.Conf, float64(d.Confidence))
		res.Labels = append(res.Labels, labels(d.ClassID))
	}
	return res
}

// Len returns the number of detected boxes.
func (r *DetectionResult) Len() int {
	return len(r.Classes)
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}

// AdvisoryRequest is the body of POST /api/advisory.
type AdvisoryRequest struct {
	Labels []string `json:"labels"`
	Model  string   `json:"model"`
}

type AdvisoryResponse struct {
	Model    string `json:"model"`
	Advisory string `json:"advisory"`
}
