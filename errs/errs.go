// Package errs provides structured error types and helpers for the herald bus.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	// CodeAlreadyExists indicates a duplicate event or group name.
	CodeAlreadyExists Code = "already_exists"
	// CodeNotFound indicates a missing event, group, store binding or subscription.
	CodeNotFound Code = "not_found"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_argument"
	// CodeStore indicates a store adapter failed to persist, remove or read a value.
	CodeStore Code = "store"
	// CodeClone indicates a payload could not be deep-copied.
	CodeClone Code = "clone"
)

// E captures structured error information produced across the bus.
type E struct {
	Op          string
	Code        Code
	Name        string
	Message     string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the operation and error code.
func New(op string, code Code, opts ...Option) *E {
	e := &E{
		Op:          strings.TrimSpace(op),
		Code:        code,
		Name:        "",
		Message:     "",
		Remediation: "",
		cause:       nil,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithName records the event, group or store name the error refers to.
func WithName(name string) Option {
	return func(e *E) {
		e.Name = name
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	op := e.Op
	if op == "" {
		op = "unknown"
	}
	parts = append(parts, "op="+op)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Name != "" {
		parts = append(parts, "name="+strconv.Quote(e.Name))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.Remediation != "" {
		parts = append(parts, "remediation="+strconv.Quote(e.Remediation))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf returns the code of the first *E found in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the provided code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// AlreadyExists returns a standardized duplicate-name error.
func AlreadyExists(op, name, msg string) *E {
	return New(op, CodeAlreadyExists, WithName(name), WithMessage(msg))
}

// NotFound returns a standardized missing-resource error.
func NotFound(op, name, msg string) *E {
	return New(op, CodeNotFound, WithName(name), WithMessage(msg))
}

// Invalid returns a standardized invalid-argument error.
func Invalid(op, msg string) *E {
	return New(op, CodeInvalid, WithMessage(msg))
}
