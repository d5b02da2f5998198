package service

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorizes a dispatcher failure for the API error envelope.
type Kind string

const (
	KindBadRequest       Kind = "BadRequest"
	KindUnauthorized     Kind = "Unauthorized"
	KindForbidden        Kind = "Forbidden"
	KindNotFound         Kind = "NotFound"
	KindConflict         Kind = "Conflict"
	KindTimeout          Kind = "Timeout"
	KindStoreUnavailable Kind = "StoreUnavailable"
	KindInternal         Kind = "Internal"
)

// Error is a typed dispatcher error. State-machine rejections are produced
// inside the transaction that attempted the transition and surface unchanged.
type Error struct {
	Kind    Kind
	Message string
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// NotFoundError reports a missing entity.
func NotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// ConflictError reports a state-machine violation such as a reclaimed task or
// a counter regression.
func ConflictError(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// ForbiddenError reports an authenticated caller without permission.
func ForbiddenError(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// BadRequestError reports invalid input that slipped past edge validation.
func BadRequestError(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// storeError wraps a database failure, classifying deadline hits as Timeout
// and everything else as StoreUnavailable.
func storeError(op string, err error) error {
	kind := KindStoreUnavailable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: fmt.Sprintf("%s failed", op), Details: err.Error()}
}
