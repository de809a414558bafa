package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/domain/booking"
)

// Cancel cancels one reservation and refunds the customer.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		fail(w, r, errors.Wrap(errBadRequest, "invalid reservation id"))
		return
	}
	var req cancelDTO
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.CustomerID == "" || req.RefundAccount == "" {
		fail(w, r, errors.Wrap(errBadRequest, "customerId and refundAccount are required"))
		return
	}

	res, err := h.bookings.Cancel(r.Context(), booking.CancelRequest{
		ReservationID: id,
		CustomerID:    req.CustomerID,
		RefundAccount: req.RefundAccount,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeCancel(res))
}

// Reservations lists a customer's reservations.
func (h *Handler) Reservations(w http.ResponseWriter, r *http.Request) {
	list, err := h.bookings.Reservations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeReservations(list))
}
