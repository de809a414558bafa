package booking

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

var (
	ErrCustomerNotFound          = errors.New("customer not found")
	ErrTransferFailed            = errors.New("transfer failed")
	ErrHoldCreationFailed        = errors.New("hold creation failed")
	ErrReservationCreationFailed = errors.New("reservation creation failed")
	ErrInvoiceGenerationFailed   = errors.New("invoice generation failed")
	ErrReservationNotFound       = errors.New("reservation not found")
	ErrNotAuthorized             = errors.New("not authorized")
	ErrCancellationUnsupported   = errors.New("cancellation unsupported")
	ErrAlreadyCancelled          = errors.New("reservation already cancelled")
	ErrEmptyCart                 = errors.New("cart is empty")

	// Shared with the packages that detect them.
	ErrProviderUnreachable = connector.ErrProviderUnreachable
	ErrServiceNotFound     = provider.ErrNotFound
	ErrUnknownCategory     = provider.ErrUnknownCategory
)

// InvalidItemError reports a cart item that cannot be priced or routed.
type InvalidItemError struct {
	Index  int
	Reason string
	Err    error
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

func (e *InvalidItemError) Unwrap() error { return e.Err }

// StepError attaches a saga step to the failure that ended it.
// errors.Is matches both the step sentinel and the cause.
type StepError struct {
	Step error
	Err  error
}

func (e *StepError) Error() string {
	return e.Step.Error() + ": " + e.Err.Error()
}

func (e *StepError) Is(target error) bool { return target == e.Step }

func (e *StepError) Unwrap() error { return e.Err }

func stepErr(step, err error) error {
	return &StepError{Step: step, Err: err}
}
