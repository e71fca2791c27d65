package payment

import (
	"errors"
	"fmt"
)

// ErrConfig marks a deployment misconfiguration detected at construction time.
var ErrConfig = errors.New("payment: configuration error")

// Sentinels for each rejection kind, matched through RejectedError.Is.
var (
	ErrProcessorError   = errors.New("processor reported an error")
	ErrSignatureInvalid = errors.New("signature mismatch")
	ErrDataInvalid      = errors.New("invalid callback data")
	ErrUnknownOrder     = errors.New("unknown order")
	ErrUnknownState     = errors.New("unknown job/status combination")
	ErrAmountMismatch   = errors.New("charge does not match order")
)

// ErrOrderNotFound is returned by an OrderStore when the order does not exist.
var ErrOrderNotFound = errors.New("order not found")

// ErrUnverified is returned when callback fields are read before Verify succeeded.
var ErrUnverified = errors.New("result params not verified")

func configErrorf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// FieldError reports a missing or malformed callback field.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	if e.Err == nil {
		return "field " + e.Field + ": invalid"
	}
	return "field " + e.Field + ": " + e.Err.Error()
}

func (e *FieldError) Unwrap() error { return e.Err }

// RejectKind classifies a terminal rejection of a callback.
type RejectKind int

const (
	RejectProcessorError RejectKind = iota + 1
	RejectSignatureInvalid
	RejectDataInvalid
	RejectUnknownOrder
	RejectUnknownState
	RejectAmountMismatch
)

func (k RejectKind) String() string {
	switch k {
	case RejectProcessorError:
		return "processor_error"
	case RejectSignatureInvalid:
		return "signature_invalid"
	case RejectDataInvalid:
		return "data_invalid"
	case RejectUnknownOrder:
		return "unknown_order"
	case RejectUnknownState:
		return "unknown_state"
	case RejectAmountMismatch:
		return "amount_mismatch"
	}
	return fmt.Sprintf("reject_kind(%d)", int(k))
}

func (k RejectKind) sentinel() error {
	switch k {
	case RejectProcessorError:
		return ErrProcessorError
	case RejectSignatureInvalid:
		return ErrSignatureInvalid
	case RejectDataInvalid:
		return ErrDataInvalid
	case RejectUnknownOrder:
		return ErrUnknownOrder
	case RejectUnknownState:
		return ErrUnknownState
	case RejectAmountMismatch:
		return ErrAmountMismatch
	}
	return nil
}

// RejectedError is the terminal rejection of a callback. OrderID is zero when
// the order could not be resolved.
type RejectedError struct {
	Kind    RejectKind
	OrderID int64
	Err     error
}

func reject(kind RejectKind, orderID int64, err error) *RejectedError {
	return &RejectedError{Kind: kind, OrderID: orderID, Err: err}
}

func (e *RejectedError) Error() string {
	msg := "callback rejected: " + e.Kind.String()
	if e.OrderID != 0 {
		msg += fmt.Sprintf(" (order %d)", e.OrderID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RejectedError) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for this rejection kind.
func (e *RejectedError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && s == target
}

// AsRejected extracts a *RejectedError from err.
func AsRejected(err error) (*RejectedError, bool) {
	var re *RejectedError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
