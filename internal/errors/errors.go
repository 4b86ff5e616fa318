package errors

import (
	"errors"
	"fmt"
)

// Standard library helpers, re-exported so callers need one errors import.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)

// codedError is the only Error implementation. Values are never mutated;
// the With* methods return modified copies.
type codedError struct {
	code    ErrorCode
	message string
	cause   error
	data    any
}

// Error renders "message (code)" followed by the data, or else the cause.
func (e *codedError) Error() string {
	msg := e.message
	if msg == "" {
		msg = GetErrorMessage(e.code)
	}

	switch {
	case e.data != nil:
		return fmt.Sprintf("%s (%s): %v", msg, e.code, e.data)
	case e.cause != nil:
		return fmt.Sprintf("%s (%s): %v", msg, e.code, e.cause)
	default:
		return fmt.Sprintf("%s (%s)", msg, e.code)
	}
}

func (e *codedError) Code() ErrorCode { return e.code }
func (e *codedError) GetData() any    { return e.data }
func (e *codedError) Unwrap() error   { return e.cause }

func (e *codedError) WithMessage(msg string) Error {
	c := *e
	c.message = msg
	return &c
}

func (e *codedError) WithData(data any) Error {
	c := *e
	c.data = data
	return &c
}

type factory struct{}

func (factory) New(code ErrorCode) Error {
	return &codedError{code: code}
}

func (factory) Wrap(code ErrorCode, err error) Error {
	return &codedError{code: code, cause: err}
}

func (factory) WithMessage(code ErrorCode, msg string) Error {
	return &codedError{code: code, message: msg}
}

func (factory) WithData(code ErrorCode, data any) Error {
	return &codedError{code: code, data: data}
}

// New returns the Factory used throughout the module.
func New() Factory {
	return factory{}
}

// HasCode reports whether any coded error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var coded Error
		if !As(err, &coded) {
			return false
		}
		if coded.Code() == code {
			return true
		}
		err = coded.Unwrap()
	}

	return false
}
