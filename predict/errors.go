package predict

import (
	"errors"
	"fmt"

	"heartrisk/ml"
	"heartrisk/registry"
)

// ErrInference is matched by every failure inside encoding, scaling or the classifier.
var ErrInference = errors.New("inference failed")

// InferenceError is a server-side failure while scoring a valid request.
type InferenceError struct {
	Model string
	Stage string
	Err   error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: model %s, %s: %v", ErrInference, e.Model, e.Stage, e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}

func (e *InferenceError) Is(target error) bool {
	return target == ErrInference
}

// Outcome kinds reported to observers.
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeInference   = "inference"
)

// Classify maps a Predict error to its outcome kind.
func Classify(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, registry.ErrEmpty):
		return OutcomeUnavailable
	case errors.Is(err, registry.ErrModelNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrInference):
		return OutcomeInference
	case errors.Is(err, ml.ErrMissingField), errors.Is(err, ml.ErrInvalidField), errors.Is(err, ml.ErrUnknownCategory):
		return OutcomeInvalid
	default:
		return OutcomeInference
	}
}
