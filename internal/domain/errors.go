package domain

import (
	"errors"
	"strings"
)

// Kind is the stable, machine-readable class of a failure.
type Kind string

const (
	KindValidation       Kind = "VALIDATION_ERROR"
	KindNotFound         Kind = "NOT_FOUND"
	KindCapacity         Kind = "CAPACITY_ERROR"
	KindDuplicatePayment Kind = "DUPLICATE_PAYMENT"
	KindExpiredSession   Kind = "EXPIRED_SESSION"
	KindInventory        Kind = "INVENTORY_ERROR"
	KindInternal         Kind = "INTERNAL_ERROR"
)

type Error struct {
	Kind        Kind
	Explanation []string
	Err         error
}

func (e *Error) Error() string {
	msg := strings.Join(e.Explanation, "; ")
	if msg == "" {
		msg = strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " "))
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func NewError(kind Kind, cause error, explanation ...string) *Error {
	return &Error{Kind: kind, Explanation: explanation, Err: cause}
}

func Validation(explanation ...string) *Error {
	return NewError(KindValidation, nil, explanation...)
}

func NotFound(explanation ...string) *Error {
	return NewError(KindNotFound, nil, explanation...)
}

func Inventory(cause error, explanation ...string) *Error {
	return NewError(KindInventory, cause, explanation...)
}

func Internal(cause error, explanation ...string) *Error {
	return NewError(KindInternal, cause, explanation...)
}

var (
	ErrBookingNotFound  = NotFound("booking not found")
	ErrFlightNotFound   = NotFound("the flight you requested is not present")
	ErrNotEnoughSeats   = NewError(KindCapacity, nil, "not enough seats available")
	ErrDuplicatePayment = NewError(KindDuplicatePayment, nil, "booking is already paid, payment cannot be retried")
	ErrExpiredSession   = NewError(KindExpiredSession, nil, "the booking session has expired")
	ErrBookingFinalized = Validation("booked bookings cannot be cancelled")
)

// KindOf returns the kind carried by err. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// ExplanationOf returns the human-readable explanation list for err.
func ExplanationOf(err error) []string {
	var de *Error
	if errors.As(err, &de) && len(de.Explanation) > 0 {
		return de.Explanation
	}
	if err == nil {
		return nil
	}
	return []string{err.Error()}
}
