package inference

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
)

func TestClassifyInferenceError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		retry  bool
		record bool
	}{
		{name: "cancelled", err: context.Canceled},
		{name: "timeout", err: &domain.InferenceError{Timeout: true, Err: context.DeadlineExceeded}, record: true},
		{name: "service unavailable", err: &domain.InferenceError{StatusCode: 503}, retry: true, record: true},
		{name: "validation error", err: &domain.InferenceError{StatusCode: 422}},
		{name: "internal error", err: &domain.InferenceError{StatusCode: 500}, record: true},
		{name: "caller deadline", err: fmt.Errorf("wrapped: %w", context.DeadlineExceeded)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyInferenceError(tt.err)
			if got.Retry != tt.retry || got.RecordFailure != tt.record {
				t.Fatalf("expected retry=%v record=%v, got %+v", tt.retry, tt.record, got)
			}
		})
	}
}

func TestAsInferenceErrorMarksTemporary(t *testing.T) {
	err := asInferenceError(&domain.InferenceError{Message: "overloaded", StatusCode: 503})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected retryable status to be temporary, got %v", err)
	}

	err = asInferenceError(gobreaker.ErrOpenState)
	if !domain.IsKind(err, domain.ErrTemporary) || domain.FailureMessage(err) != "inference service temporarily unavailable, try again shortly" {
		t.Fatalf("unexpected open circuit error: %v", err)
	}

	err = asInferenceError(errors.New("odd"))
	if domain.FailureMessage(err) != domain.GenericFailureMessage {
		t.Fatalf("expected generic message, got %q", domain.FailureMessage(err))
	}
}
