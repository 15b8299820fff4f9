package protocol

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ValidationError is an error of a malformed protocol value. Context is the
// path of fields leading to the offending value, outermost first.
type ValidationError struct {
	Context []string
	Err     error
}

func (e *ValidationError) Error() string {
	if len(e.Context) == 0 {
		return e.Err.Error()
	}
	return strings.Join(e.Context, ".") + ": " + e.Err.Error()
}

// Unwrap returns the underlying error of the ValidationError.
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError returns a ValidationError of the formatted message.
func NewValidationError(format string, args ...interface{}) error {
	return &ValidationError{Err: fmt.Errorf(format, args...)}
}

// ExtendContext prefixes the formatted field name onto the Context of the
// ValidationError within |err|, and returns |err|. Errors which don't wrap
// a ValidationError are returned as-is.
func ExtendContext(err error, format string, args ...interface{}) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Context = append([]string{fmt.Sprintf(format, args...)}, ve.Context...)
	}
	return err
}

// ValidatePort returns a ValidationError if |port| isn't a usable TCP port.
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return NewValidationError("invalid port (%d; expected 1 <= port <= 65535)", port)
	}
	return nil
}
