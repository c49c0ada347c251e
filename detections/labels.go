package detections

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Labels maps class ids to human-readable disease names.
type Labels map[int]string

// Name resolves id, falling back to the numeric id for unknown classes.
func (l Labels) Name(id int) string {
	if name, ok := l[id]; ok {
		return name
	}
	return strconv.Itoa(id)
}

// NumClasses is one past the highest class id.
func (l Labels) NumClasses() int {
	n := 0
	for id := range l {
		if id+1 > n {
			n = id + 1
		}
	}
	return n
}

// ParseLabels accepts the "names" value the YOLO exporter stores in the
// model metadata ({0: 'Early blight', 1: 'Healthy'}), a YAML sequence of
// names, or a document with a top-level "names" key (a dataset yaml).
func ParseLabels(data []byte) (Labels, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse labels: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		if names, ok := m["names"]; ok {
			v = names
		} else {
			generic := make(map[any]any, len(m))
			for k, n := range m {
				generic[k] = n
			}
			v = generic
		}
	}
	return labelsFromValue(v)
}

// LoadLabelsFile reads labels from a YAML file on disk.
func LoadLabelsFile(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels file: %w", err)
	}
	return ParseLabels(data)
}

func labelsFromValue(v any) (Labels, error) {
	labels := make(Labels)
	switch names := v.(type) {
	case []any:
		for i, n := range names {
			labels[i] = fmt.Sprint(n)
		}
	case map[any]any:
		for k, n := range names {
			id, err := strconv.Atoi(fmt.Sprint(k))
			if err != nil {
				return nil, fmt.Errorf("parse labels: class id %v is not an integer", k)
			}
			labels[id] = fmt.Sprint(n)
		}
	default:
		return nil, fmt.Errorf("parse labels: unexpected type %T", v)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("parse labels: empty vocabulary")
	}
	return labels, nil
}
