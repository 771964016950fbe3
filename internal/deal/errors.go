package deal

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies a deal error so callers can decide between retry and terminal.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindConflict   Kind = "conflict"
	KindLockout    Kind = "lockout"
	KindTransient  Kind = "transient"
)

// Error is returned by every Service operation that fails for a known reason.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration // set for KindLockout
	Notice     *Notice       // set on wrong delivery codes and lockouts
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable is true for transient failures only. Conflicts and validation
// errors are terminal; lockouts are retryable after RetryAfter.
func (e *Error) Retryable() bool { return e.Kind == KindTransient }

func validationError(msg string) error { return &Error{Kind: KindValidation, Message: msg} }

func notFoundError(msg string) error { return &Error{Kind: KindNotFound, Message: msg} }

func forbiddenError(msg string) error { return &Error{Kind: KindForbidden, Message: msg} }

func conflictError(msg string) error { return &Error{Kind: KindConflict, Message: msg} }

func transientError(msg string, err error) error {
	return &Error{Kind: KindTransient, Message: msg, Err: err}
}

func lockoutError(n Notice, retryAfter time.Duration) error {
	return &Error{Kind: KindLockout, Message: n.Message, RetryAfter: retryAfter, Notice: &n}
}

func wrongCodeError(n Notice) error {
	return &Error{Kind: KindValidation, Message: n.Message, Notice: &n}
}

// KindOf returns the kind of a deal error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, k Kind) bool { return KindOf(err) == k }

// Canonical messages shared with handlers and tests.
const (
	MsgOfferPending      = "an offer is already awaiting a response"
	MsgOfferResolved     = "offer already responded to"
	MsgAlreadyPaid       = "payment already exists for this conversation"
	MsgAlreadyConfirmed  = "delivery already confirmed"
	MsgPayerCannotSettle = "the payer cannot confirm their own delivery"
	MsgNotParticipant    = "not part of this conversation"
)
