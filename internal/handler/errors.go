package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/trip-checkout/internal/cart"
	"github.com/xenking/trip-checkout/internal/domain/booking"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	var invalid *booking.InvalidItemError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, booking.ErrEmptyCart),
		errors.As(err, &invalid):
		return http.StatusBadRequest
	case errors.Is(err, booking.ErrTransferFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, booking.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, booking.ErrCustomerNotFound),
		errors.Is(err, booking.ErrReservationNotFound):
		return http.StatusNotFound
	case errors.Is(err, booking.ErrAlreadyCancelled),
		errors.Is(err, cart.ErrCheckoutInFlight):
		return http.StatusConflict
	case errors.Is(err, booking.ErrCancellationUnsupported),
		errors.Is(err, provider.ErrNotFound),
		errors.Is(err, provider.ErrUnknownCategory):
		return http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrProviderUnreachable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as {"code","message"}. Internal errors are logged and not
// echoed to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorBody(status, msg))
}

func errorBody(status int, msg string) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	str(&e, "message", msg)
	e.ObjEnd()
	return e.Bytes()
}
