package detections

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/tomato-leaves/disease-detection-api/models"
)

type candidate struct {
	index int
	det   models.Detection
}

// processPredictions decodes a YOLOv8 head of shape [1, 4+numClasses, numAnchors]
// into normalized boxes, then applies the confidence threshold and class-wise NMS.
func processPredictions(predictions []float32, numClasses, numAnchors int) ([]models.Detection, error) {
	expectedSize := (4 + numClasses) * numAnchors
	if numClasses <= 0 || len(predictions) != expectedSize {
		return nil, fmt.Errorf("unexpected predictions length: got %d, want %d", len(predictions), expectedSize)
	}

	const chunkSize = 512
	numWorkers := runtime.NumCPU()
	jobs := make(chan int, numWorkers)
	results := make(chan []candidate, numWorkers)

	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]candidate, 0, 16)

			for start := range jobs {
				end := start + chunkSize
				if end > numAnchors {
					end = numAnchors
				}

				for i := start; i < end; i++ {
					classID, confidence := 0, float32(0)
					for c := 0; c < numClasses; c++ {
						if score := predictions[(4+c)*numAnchors+i]; score > confidence {
							classID, confidence = c, score
						}
					}
					if confidence < ConfThreshold {
						continue
					}
					local = append(local, candidate{
						index: i,
						det: models.Detection{
							ClassID: classID,
							BBox: calculateBBox(
								predictions[i],              // cx
								predictions[numAnchors+i],   // cy
								predictions[2*numAnchors+i], // w
								predictions[3*numAnchors+i], // h
							),
							Confidence: confidence,
						},
					})
				}
			}

			if len(local) > 0 {
				results <- local
			}
		}()
	}

	go func() {
		for i := 0; i < numAnchors; i += chunkSize {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var candidates []candidate
	for chunk := range results {
		candidates = append(candidates, chunk...)
	}

	sortCandidates(candidates)
	return nonMaxSuppression(candidates, IouThreshold, MaxDetections), nil
}

// calculateBBox converts a center-format box in input pixels to normalized
// corners clamped to [0,1].
func calculateBBox(cx, cy, w, h float32) [4]float64 {
	x1 := float64(cx-w/2) / InputWidth
	y1 := float64(cy-h/2) / InputHeight
	x2 := float64(cx+w/2) / InputWidth
	y2 := float64(cy+h/2) / InputHeight

	return [4]float64{clamp01(x1), clamp01(y1), clamp01(x2), clamp01(y2)}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// sortCandidates orders by confidence, ties broken by anchor index so the
// output does not depend on worker scheduling.
func sortCandidates(candidates []candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].det.Confidence != candidates[j].det.Confidence {
			return candidates[i].det.Confidence > candidates[j].det.Confidence
		}
		return candidates[i].index < candidates[j].index
	})
}

// nonMaxSuppression expects candidates sorted by confidence. Boxes only
// suppress boxes of the same class.
func nonMaxSuppression(candidates []candidate, iouThreshold float64, maxDet int) []models.Detection {
	kept := make([]models.Detection, 0, len(candidates))
	suppressed := make([]bool, len(candidates))

	for i := range candidates {
		if suppressed[i] {
			continue
		}
		kept = append(kept, candidates[i].det)
		if len(kept) == maxDet {
			break
		}
		for j := i + 1; j < len(candidates); j++ {
			if suppressed[j] || candidates[j].det.ClassID != candidates[i].det.ClassID {
				continue
			}
			if calculateIOU(candidates[i].det.BBox, candidates[j].det.BBox) > iouThreshold {
				suppressed[j] = true
			}
		}
	}

	return kept
}

func calculateIOU(box1, box2 [4]float64) float64 {
	x1 := math.Max(box1[0], box2[0])
	y1 := math.Max(box1[1], box2[1])
	x2 := math.Min(box1[2], box2[2])
	y2 := math.Min(box1[3], box2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0.0
	}

	intersection := (x2 - x1) * (y2 - y1)
	area1 := (box1[2] - box1[0]) * (box1[3] - box1[1])
	area2 := (box2[2] - box2[0]) * (box2[3] - box2[1])
	union := area1 + area2 - intersection

	return intersection / union
}
