package confidence

import (
	"errors"
	"fmt"
)

// ErrProviderNotReady is returned by the local resolution path when resolver
// state has not been installed yet, or installation failed. Resolutions fail
// fast rather than blocking until the state arrives.
var ErrProviderNotReady = errors.New("confidence: provider not ready")

// ErrFlagNotFound is returned when the backend knows nothing about the
// requested base flag.
var ErrFlagNotFound = errors.New("confidence: flag not found")

// PropertyNotFoundError reports a dot-notation path that does not exist in a
// resolved flag's value.
type PropertyNotFoundError struct {
	Path     string
	FlagName string
}

func (e PropertyNotFoundError) Error() string {
	return fmt.Sprintf("Property path '%s' not found in flag '%s'", e.Path, e.FlagName)
}

// TypeCoercionError reports a value that could not be converted to the
// requested type.
type TypeCoercionError struct {
	msg string
}

func (e TypeCoercionError) Error() string {
	return e.msg
}

// APIError is a transport-level failure talking to the Confidence backend.
type APIError struct {
	Operation  string
	StatusCode int
	msg        string
}

func (e APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("confidence: %s received %d: %s", e.Operation, e.StatusCode, e.msg)
	}
	return fmt.Sprintf("confidence: %s: %s", e.Operation, e.msg)
}
