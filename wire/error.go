package wire

import (
	"errors"
	"fmt"
)

// Error types carried in ErrorDetail.Type.
const (
	TypeEncoding   = "encoding"
	TypeNotFound   = "not_found"
	TypeValidation = "validation"
	TypePanic      = "panic"
	TypeInternal   = "internal"
)

// ErrorDetail is a structured error that travels in-band inside a Result.
type ErrorDetail struct {
	Wrapped *ErrorDetail `json:"wrapped,omitempty"`
	Message string       `json:"message"`
	Type    string       `json:"type"`
	Code    string       `json:"code,omitempty"`
}

func (e *ErrorDetail) Error() string {
	msg := e.Message
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Type != "" {
		msg = e.Type + ": " + msg
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *ErrorDetail) Unwrap() error {
	if e.Wrapped == nil {
		return nil
	}
	return e.Wrapped
}

// DetailedError is implemented by errors that know how to describe
// themselves on the wire.
type DetailedError interface {
	error
	ToErrorDetail() *ErrorDetail
}

// ToErrorDetail converts err to an ErrorDetail. Errors that are not already
// details and do not implement DetailedError are reported as internal.
func ToErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}

	var d *ErrorDetail
	if errors.As(err, &d) {
		return d
	}

	var de DetailedError
	if errors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &ErrorDetail{Message: err.Error(), Type: TypeInternal}
}

// EncodingError reports a failure to encode or decode a boundary value.
type EncodingError struct {
	Err error
	// Op is "encode" or "decode".
	Op string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *EncodingError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: TypeEncoding, Code: e.Op}
}

// NotFoundError reports a call to a service or method nobody serves.
type NotFoundError struct {
	Name   string
	Method string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no handler for %s/%s", e.Name, e.Method)
}

// ToErrorDetail implements DetailedError.
func (e *NotFoundError) ToErrorDetail() *ErrorDetail {
	return &ErrorDetail{Message: e.Error(), Type: TypeNotFound, Code: e.Name + "/" + e.Method}
}
