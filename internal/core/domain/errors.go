package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrResultNotFound = errors.New("result not found")
	ErrTemporary      = errors.New("temporary failure")
)

// GenericFailureMessage is shown when the backend gives no usable detail.
const GenericFailureMessage = "An unexpected error occurred."

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// InferenceError is the single failure shape returned by the inference
// adapter. Message is always human readable and is what ends up in a failed
// result.
type InferenceError struct {
	Message    string
	StatusCode int
	Timeout    bool
	Temporary  bool
	Err        error
}

func (e *InferenceError) Error() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return GenericFailureMessage
	}
	return e.Message
}

func (e *InferenceError) Unwrap() []error {
	if e == nil {
		return nil
	}
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Temporary {
		errs = append(errs, ErrTemporary)
	}
	return errs
}

// FailureMessage extracts the user-facing message for a failed request unit.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	var inferenceErr *InferenceError
	if errors.As(err, &inferenceErr) {
		return inferenceErr.Error()
	}
	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return GenericFailureMessage
}
