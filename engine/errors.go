package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig indicates parameters that cannot be instantiated
	ErrInvalidConfig = errors.New("engine: invalid configuration")

	// ErrInsecureParameters indicates a modulus chain too large for the ring
	// degree at 128-bit security
	ErrInsecureParameters = errors.New("engine: parameters below 128-bit security")

	// ErrMissingKey indicates an operation needs an evaluation key that was not generated
	ErrMissingKey = errors.New("engine: missing evaluation key")

	// ErrDepthExhausted indicates the ciphertext has no level left to consume
	ErrDepthExhausted = errors.New("engine: multiplicative depth exhausted")

	// ErrVectorTooLong indicates more values than available slots
	ErrVectorTooLong = errors.New("engine: vector longer than slot count")
)

// Error wraps an underlying error with the operation that failed
type Error struct {
	Op  string // Operation that failed
	Err error  // Underlying error
}

func (e *Error) Error() string {
	return fmt.Sprintf("engine.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorf(op string, format string, args ...interface{}) error {
	return &Error{
		Op:  op,
		Err: fmt.Errorf(format, args...),
	}
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}
