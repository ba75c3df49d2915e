package cli

import "errors"

// Error kinds reported by Start. Every one of them stops startup.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrMissingArtifact = errors.New("missing build artifact")
	ErrFramework       = errors.New("framework error")
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Unwrap exposes the error kind to errors.Is.
func (e *ExitError) Unwrap() error {
	return e.Err
}
