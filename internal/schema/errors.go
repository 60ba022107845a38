package schema

import (
	"errors"
	"fmt"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed payload")

// FieldError reports the field that failed validation.
type FieldError struct {
	Field string
	Value string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() []error {
	return []error{ErrMalformed, e.Err}
}

var (
	errMissing  = errors.New("missing")
	errType     = errors.New("wrong type")
	errNumber   = errors.New("not an unsigned integer")
	errOverflow = errors.New("exceeds 256 bits")
	errHash     = errors.New("not a 32-byte hex hash")
	errAddress  = errors.New("not a hex address")
	errHex      = errors.New("not hex data")
	errSide     = errors.New("side must be buy or sell")
	errJSON     = errors.New("invalid json")
)

func fieldErr(field, value string, err error) error {
	return &FieldError{Field: field, Value: value, Err: err}
}
