package inference

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/adtrack-console/internal/core/domain"
	"github.com/kirillkom/adtrack-console/internal/infrastructure/resilience"
)

// classifyInferenceError decides retry and breaker accounting. Timeouts are
// never retried: a unit already spent its whole time budget.
func classifyInferenceError(err error) resilience.Verdict {
	if err == nil {
		return resilience.Verdict{}
	}
	if errors.Is(err, context.Canceled) {
		return resilience.Verdict{Retry: false, RecordFailure: false}
	}

	var inferenceErr *domain.InferenceError
	if errors.As(err, &inferenceErr) {
		switch {
		case inferenceErr.Timeout:
			return resilience.Verdict{Retry: false, RecordFailure: true}
		case inferenceErr.StatusCode != 0:
			if isRetryableStatus(inferenceErr.StatusCode) {
				return resilience.Verdict{Retry: true, RecordFailure: true}
			}
			return resilience.Verdict{Retry: false, RecordFailure: inferenceErr.StatusCode >= 500}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return resilience.Verdict{Retry: false, RecordFailure: false}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return resilience.Verdict{Retry: true, RecordFailure: true}
	}
	return resilience.Verdict{Retry: false, RecordFailure: false}
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// asInferenceError collapses whatever came out of the executor into the
// adapter's single error shape.
func asInferenceError(err error) error {
	var inferenceErr *domain.InferenceError
	switch {
	case errors.As(err, &inferenceErr):
		if retryable := classifyInferenceError(err).Retry; retryable && !inferenceErr.Temporary {
			copied := *inferenceErr
			copied.Temporary = true
			return &copied
		}
		return inferenceErr
	case resilience.IsCircuitOpen(err):
		return &domain.InferenceError{
			Message:   "inference service temporarily unavailable, try again shortly",
			Temporary: true,
			Err:       err,
		}
	case errors.Is(err, context.Canceled):
		return &domain.InferenceError{Message: "inference request cancelled", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.InferenceError{Message: "inference request timed out", Timeout: true, Err: err}
	default:
		return &domain.InferenceError{Message: domain.GenericFailureMessage, Err: err}
	}
}
