package service

import (
    "errors"
    "fmt"
)

// Kind classifies a service failure so transports can map it to a status
// without inspecting messages.
type Kind string

const (
    KindValidation Kind = "validation"
    KindConflict   Kind = "conflict"
    KindNotFound   Kind = "not_found"
    KindForbidden  Kind = "forbidden"
    KindDependency Kind = "dependency"
    KindSignature  Kind = "signature"
    KindInternal   Kind = "internal"
)

// Error is returned by every service operation that fails.  Message is safe
// to show to the caller; Err carries the underlying cause for logs.
type Error struct {
    Kind    Kind
    Message string
    Details map[string]any
    Err     error
}

func (e *Error) Error() string {
    if e.Err != nil {
        return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
    }
    return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
    return &Error{Kind: kind, Message: msg, Err: err}
}

func validationErr(msg string, err error) *Error { return newError(KindValidation, msg, err) }
func conflictErr(msg string) *Error              { return newError(KindConflict, msg, nil) }
func notFoundErr(msg string) *Error              { return newError(KindNotFound, msg, nil) }
func forbiddenErr(msg string) *Error             { return newError(KindForbidden, msg, nil) }
func dependencyErr(msg string, err error) *Error { return newError(KindDependency, msg, err) }
func internalErr(msg string, err error) *Error   { return newError(KindInternal, msg, err) }

func (e *Error) with(key string, v any) *Error {
    if e.Details == nil {
        e.Details = make(map[string]any)
    }
    e.Details[key] = v
    return e
}

// KindOf returns the Kind of err, or KindInternal when err is not a
// service error.
func KindOf(err error) Kind {
    var se *Error
    if errors.As(err, &se) {
        return se.Kind
    }
    return KindInternal
}
