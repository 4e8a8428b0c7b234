package types

import (
	"errors"
	"fmt"
)

// Failure taxonomy for the drop lifecycle engine. Validation and state errors
// are returned to the caller untouched; payment provider errors are recorded
// per booking; concurrency conflicts are retried internally before surfacing.
var (
	ErrDropNotActive       = errors.New("drop is not active")
	ErrOutOfBounds         = errors.New("booking would violate supplier list bounds")
	ErrInvalidTransition   = errors.New("invalid drop status transition")
	ErrAlreadySettled      = errors.New("booking already settled")
	ErrConcurrencyConflict = errors.New("concurrent update conflict")
)

type PaymentOp string

const (
	PAYMENT_OP_AUTHORIZE PaymentOp = "authorize"
	PAYMENT_OP_CAPTURE   PaymentOp = "capture"
	PAYMENT_OP_RELEASE   PaymentOp = "release"
)

// PaymentProviderError wraps a failure from the external payment provider,
// keeping which operation failed so settlement reports can tell an
// authorization failure from a capture failure.
type PaymentProviderError struct {
	Op  PaymentOp
	Err error
}

func (e *PaymentProviderError) Error() string {
	return fmt.Sprintf("payment provider %s failed: %s", e.Op, e.Err.Error())
}

func (e *PaymentProviderError) Unwrap() error {
	return e.Err
}

// InvalidTransitionError carries the rejected source/target pair. It matches
// ErrInvalidTransition under errors.Is.
type InvalidTransitionError struct {
	From DropStatus
	To   DropStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid drop status transition: %s -> %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
