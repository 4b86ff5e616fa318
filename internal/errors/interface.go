package errors

// ErrorCode names a failure class, e.g. "divide_by_zero" or "read_config_failed".
// Codes are listed in codes.go; operation tracking reports them as the error type.
type ErrorCode string

// Error is a coded error. The code is stable and machine readable; the
// message is for humans and defaults to the code's entry in codes.go. Data
// carries the offending value (a config key's value, an operand) and a
// wrapped cause stays reachable through Unwrap.
type Error interface {
	error
	Code() ErrorCode
	WithMessage(msg string) Error
	WithData(data any) Error
	GetData() any
	Unwrap() error
}

// Factory builds coded errors. Obtain one with New.
type Factory interface {
	// New returns an error carrying only code.
	New(code ErrorCode) Error
	// Wrap attaches code to a lower level cause.
	Wrap(code ErrorCode, err error) Error
	// WithMessage replaces the default message for code.
	WithMessage(code ErrorCode, msg string) Error
	// WithData attaches the value that caused the failure.
	WithData(code ErrorCode, data any) Error
}
