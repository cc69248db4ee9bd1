package errors

import (
	"context"
	"errors"
)

// Kind groups errors by how the decision pipeline reacts to them.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindTimeout               Kind = "timeout"
	KindInvariantViolation    Kind = "invariant_violation"
)

// KindOf classifies err. Errors that carry no code of their own come from
// external calls and are treated as an unavailable dependency.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return KindTimeout
	case IsTimeout(err):
		return KindTimeout
	case IsValidation(err):
		return KindValidation
	case IsInvariantViolation(err):
		return KindInvariantViolation
	default:
		return KindDependencyUnavailable
	}
}

// Unavailable wraps an external failure unless it already carries a code.
func Unavailable(err error, dependency string) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout.WithCause(err).WithDetail("dependency", dependency)
	}
	return ErrDependencyUnavailable.WithCause(err).WithDetail("dependency", dependency)
}
