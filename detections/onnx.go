package detections

import (
	"errors"
	"fmt"

	ort "github.com/yalue/onnxruntime_go"
)

// Session runs one forward pass over its own input buffer. A session is used
// by a single request at a time, the pool enforces that.
type Session interface {
	Input() []float32
	Run() ([]float32, error)
	Destroy()
}

// ModelSession is an ONNX Runtime session with preallocated tensors.
type ModelSession struct {
	Session *ort.AdvancedSession
	In      *ort.Tensor[float32]
	Out     *ort.Tensor[float32]
}

func (m *ModelSession) Input() []float32 {
	return m.In.GetData()
}

func (m *ModelSession) Run() ([]float32, error) {
	if err := m.Session.Run(); err != nil {
		return nil, err
	}
	return m.Out.GetData(), nil
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.In != nil {
		m.In.Destroy()
	}
	if m.Out != nil {
		m.Out.Destroy()
	}
}

// ModelInfo describes the graph inputs and outputs of the weights file.
type ModelInfo struct {
	Path        string
	InputName   string
	OutputName  string
	InputShape  ort.Shape
	OutputShape ort.Shape
	Labels      Labels
}

// NumClasses is derived from the output head, [1, 4+nc, anchors].
func (m *ModelInfo) NumClasses() int {
	return int(m.OutputShape[1]) - 4
}

func (m *ModelInfo) NumAnchors() int {
	return int(m.OutputShape[2])
}

// InitializeRuntime loads the onnxruntime shared library. It must be called
// once before any session is created.
func InitializeRuntime(libPath string) error {
	ort.SetSharedLibraryPath(libPath)
	if err := ort.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnxruntime: %w", err)
	}
	return nil
}

func DestroyRuntime() error {
	return ort.DestroyEnvironment()
}

// InspectModel reads input/output names and shapes and, unless labels is
// non-nil, the class vocabulary from the model metadata.
func InspectModel(path string, labels Labels) (*ModelInfo, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if err != nil {
		return nil, fmt.Errorf("read model io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, fmt.Errorf("unexpected model signature: %d inputs, %d outputs", len(inputs), len(outputs))
	}
	if err := checkInputShape(inputs[0].Dimensions); err != nil {
		return nil, err
	}

	if labels == nil {
		labels, err = readMetadataLabels(path)
		if err != nil {
			return nil, err
		}
	}

	info := &ModelInfo{
		Path:        path,
		InputName:   inputs[0].Name,
		OutputName:  outputs[0].Name,
		InputShape:  ort.NewShape(1, 3, InputHeight, InputWidth),
		OutputShape: resolveOutputShape(outputs[0].Dimensions, labels.NumClasses()),
		Labels:      labels,
	}
	if info.NumClasses() != labels.NumClasses() {
		return nil, fmt.Errorf("model predicts %d classes but %d labels are known", info.NumClasses(), labels.NumClasses())
	}
	return info, nil
}

// checkInputShape rejects exports whose static input is not [N,3,512,512].
// Dynamic dimensions (<= 0) are accepted.
func checkInputShape(dims ort.Shape) error {
	want := ort.NewShape(1, 3, InputHeight, InputWidth)
	if len(dims) != len(want) {
		return fmt.Errorf("model input has rank %d, want 4 (%v)", len(dims), want)
	}
	for i := 1; i < len(dims); i++ {
		if dims[i] > 0 && dims[i] != want[i] {
			return fmt.Errorf("model input shape %v does not match %v, export the weights with imgsz=%d", dims, want, InputWidth)
		}
	}
	return nil
}

// resolveOutputShape fills dynamic dimensions (exported with dynamic=True) with
// the values a 512x512 input produces.
func resolveOutputShape(dims ort.Shape, numClasses int) ort.Shape {
	shape := ort.NewShape(1, int64(4+numClasses), NumAnchors)
	if len(dims) != 3 {
		return shape
	}
	for i, d := range dims {
		if d > 0 {
			shape[i] = d
		}
	}
	return shape
}

func readMetadataLabels(path string) (Labels, error) {
	meta, err := ort.GetModelMetadata(path)
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	defer meta.Destroy()

	names, ok, err := meta.LookupCustomMetadataMap("names")
	if err != nil {
		return nil, fmt.Errorf("read model metadata: %w", err)
	}
	if !ok {
		return nil, errors.New("model metadata has no class names, configure a labels file")
	}
	return ParseLabels([]byte(names))
}

// NewModelSession creates a session with its own input and output tensors.
func NewModelSession(info *ModelInfo, threads int) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if threads > 0 {
		options.SetIntraOpNumThreads(threads)
		options.SetInterOpNumThreads(1)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](info.InputShape)
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](info.OutputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		info.Path,
		[]string{info.InputName},
		[]string{info.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session: session,
		In:      inputTensor,
		Out:     outputTensor,
	}, nil
}
