package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error produced by the provisioning core matches exactly
// one of these through errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrRuntimeAPI            = errors.New("container runtime error")
	ErrTimeout               = errors.New("timed out waiting for readiness")
	ErrPortRangeExhausted    = errors.New("port range exhausted")
	ErrUnexpectedProbeResult = errors.New("unexpected probe result")
	ErrDependency            = errors.New("invalid dependency")
)

// ProvisionError is the single error type returned across the provisioning
// boundary. Kind is one of the sentinel errors above.
type ProvisionError struct {
	Op       string
	Resource string
	Kind     error
	Err      error
}

func (e *ProvisionError) Error() string {
	msg := e.Op
	if e.Resource != "" {
		msg += " " + e.Resource
	}
	msg += ": " + e.Kind.Error()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProvisionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewError builds a ProvisionError. A nil kind defaults to ErrRuntimeAPI.
func NewError(op, resource string, kind, err error) *ProvisionError {
	if kind == nil {
		kind = ErrRuntimeAPI
	}
	return &ProvisionError{Op: op, Resource: resource, Kind: kind, Err: err}
}

// Classify returns the kind of err, or ErrRuntimeAPI when err carries none.
func Classify(err error) error {
	for _, kind := range []error{ErrNotFound, ErrTimeout, ErrPortRangeExhausted, ErrUnexpectedProbeResult, ErrDependency, ErrRuntimeAPI} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrRuntimeAPI
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotFoundf is a shorthand used by runtime implementations.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}
