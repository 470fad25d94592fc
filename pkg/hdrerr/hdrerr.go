package hdrerr

// The three ways a load or a parameter change can fail. Callers match
// them with errors.As; nothing in the engine retries on them.

import(
	"fmt"
)

// NotFoundError means the path does not resolve to a readable file.
type NotFoundError struct {
	Path string
	Err  error
}

func (e *NotFoundError)Error() string {
	return fmt.Sprintf("not found '%s': %v", e.Path, e.Err)
}
func (e *NotFoundError)Unwrap() error { return e.Err }

// DecodeError means the file exists, but its contents are unrecognized,
// truncated, corrupt or use a feature we don't decode.
type DecodeError struct {
	Path   string
	Format string // may be empty if we never figured out what it was
	Err    error
}

func (e *DecodeError)Error() string {
	if e.Format == "" {
		return fmt.Sprintf("decode '%s': %v", e.Path, e.Err)
	}
	return fmt.Sprintf("decode '%s' as %s: %v", e.Path, e.Format, e.Err)
}
func (e *DecodeError)Unwrap() error { return e.Err }

// InvalidParameterError is a caller mistake: non-positive width, gamma, etc.
type InvalidParameterError struct {
	Name   string
	Value  interface{}
	Reason string
}

func (e *InvalidParameterError)Error() string {
	return fmt.Sprintf("invalid %s=%v: %s", e.Name, e.Value, e.Reason)
}

func NewDecodeError(path, format string, err error) error {
	return &DecodeError{Path: path, Format: format, Err: err}
}

func NewInvalidParameter(name string, val interface{}, reason string) error {
	return &InvalidParameterError{Name: name, Value: val, Reason: reason}
}
