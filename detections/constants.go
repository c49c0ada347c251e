package detections

const (
	InputWidth  = 512
	InputHeight = 512

	// Defaults of the YOLO predictor the weights were trained with.
	ConfThreshold = 0.25
	IouThreshold  = 0.7
	MaxDetections = 300

	// Number of anchor points a 512x512 YOLOv8 head emits (strides 8, 16, 32).
	NumAnchors = (InputWidth/8)*(InputHeight/8) + (InputWidth/16)*(InputHeight/16) + (InputWidth/32)*(InputHeight/32)
)
