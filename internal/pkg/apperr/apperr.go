// Package apperr defines the error kinds shared by every store and handler.
package apperr

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies an error for transport mapping.
type Kind string

const (
	KindInternal         Kind = "internal"
	KindNotFound         Kind = "not_found"
	KindUnauthenticated  Kind = "unauthenticated"
	KindUnauthorized     Kind = "unauthorized"
	KindValidation       Kind = "validation_failed"
	KindDuplicateSlug    Kind = "duplicate_slug"
	KindRateLimited      Kind = "rate_limited"
	KindConflict         Kind = "conflict"
	KindInvalidPackage   Kind = "invalid_package"
	KindTemplateMissing  Kind = "template_missing"
	KindAlreadyInstalled Kind = "already_installed"
)

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	// Fields holds per-field validation messages.
	Fields        map[string]string
	RetryAfter    time.Duration
	SuggestedSlug string
	Err           error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message != "" {
		return e.Message + ": " + e.Err.Error()
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind so errors.Is(err, apperr.ErrNotFound) works for any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrUnauthenticated  = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrValidation       = &Error{Kind: KindValidation}
	ErrDuplicateSlug    = &Error{Kind: KindDuplicateSlug}
	ErrRateLimited      = &Error{Kind: KindRateLimited}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInvalidPackage   = &Error{Kind: KindInvalidPackage}
	ErrTemplateMissing  = &Error{Kind: KindTemplateMissing}
	ErrAlreadyInstalled = &Error{Kind: KindAlreadyInstalled}
)

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func TemplateMissing(path string) *Error {
	return &Error{Kind: KindTemplateMissing, Message: "template missing: " + path}
}

func AlreadyInstalled(format string, args ...any) *Error {
	return &Error{Kind: KindAlreadyInstalled, Message: fmt.Sprintf(format, args...)}
}

func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Message: "too many attempts", RetryAfter: retryAfter}
}

func DuplicateSlug(slug, suggested string) *Error {
	return &Error{
		Kind:          KindDuplicateSlug,
		Message:       fmt.Sprintf("slug %q already exists", slug),
		SuggestedSlug: suggested,
	}
}

// Validation builds a validation error. fields may be nil.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func InvalidPackage(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindInvalidPackage, Message: msg, Fields: fields}
}

// Internal wraps an unexpected failure. The cause is logged, never sent to clients.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf reports the kind of err, KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As is a shorthand for errors.As into *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

// FieldErrors accumulates per-field messages.
type FieldErrors map[string]string

func (f FieldErrors) Add(field, msg string) {
	if _, exists := f[field]; !exists {
		f[field] = msg
	}
}

// Err returns nil when empty, otherwise a validation error carrying the fields.
func (f FieldErrors) Err(msg string) error {
	if len(f) == 0 {
		return nil
	}
	return Validation(msg, map[string]string(f))
}
