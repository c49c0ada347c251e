package advisory

import (
	"errors"
	"fmt"
	"strings"
)

const DefaultModel = "llama-v3p1-405b-instruct"

// AvailableModels are the hosted models the generator may be switched to.
var AvailableModels = []string{
	"llama-v3p1-405b-instruct",
	"llama-v3p1-70b-instruct",
	"llama-v3p1-8b-instruct",
	"llama-v3-70b-instruct",
	"mixtral-8x22b-instruct",
	"mixtral-8x7b-instruct",
}

// ErrModelNotAvailable is matched by every ModelNotAvailableError.
var ErrModelNotAvailable = errors.New("model not available")

type ModelNotAvailableError struct {
	Model string
}

func (e *ModelNotAvailableError) Error() string {
	return fmt.Sprintf("model name %s is not available, choose from [%s]", e.Model, strings.Join(AvailableModels, ", "))
}

func (e *ModelNotAvailableError) Is(target error) bool { return target == ErrModelNotAvailable }

// ValidateModel fails with a *ModelNotAvailableError for names outside the
// allow-list.
func ValidateModel(name string) error {
	for _, m := range AvailableModels {
		if m == name {
			return nil
		}
	}
	return &ModelNotAvailableError{Model: name}
}
