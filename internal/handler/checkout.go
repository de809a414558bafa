package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/trip-checkout/internal/cart"
	"github.com/xenking/trip-checkout/internal/domain/booking"
)

// IdempotencyHeader makes a checkout replayable.
const IdempotencyHeader = "Idempotency-Key"

// Checkout runs the checkout saga. Without items in the body the stored cart
// is checked out and cleared once a purchase exists.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	lg := zctx.From(ctx)

	var req checkoutDTO
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.CustomerID == "" || req.CustomerAccount == "" {
		fail(w, r, errors.Wrap(errBadRequest, "customerId and customerAccount are required"))
		return
	}

	items, err := toItems(req.Items)
	if err != nil {
		fail(w, r, err)
		return
	}

	idemKey := ""
	if k := r.Header.Get(IdempotencyHeader); k != "" {
		key := req.CustomerID + ":" + k
		reserved, err := h.carts.Reserve(ctx, key, h.cfg.IdempotencyTTL)
		switch {
		case err != nil:
			lg.Warn("Idempotency key not reserved", zap.Error(err))
		case reserved:
			idemKey = key
		default:
			body, ok, err := h.carts.Recall(ctx, key)
			if err != nil {
				fail(w, r, err)
				return
			}
			if !ok {
				fail(w, r, cart.ErrCheckoutInFlight)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, body)
			return
		}
	}
	// A checkout that failed before charging can be retried with the same key.
	release := func() {
		if idemKey == "" {
			return
		}
		if err := h.carts.Release(context.WithoutCancel(ctx), idemKey); err != nil {
			lg.Warn("Idempotency key not released", zap.Error(err))
		}
	}

	fromCart := len(items) == 0
	if fromCart {
		c, err := h.carts.Get(ctx, req.CustomerID)
		if err != nil {
			release()
			fail(w, r, errors.Wrap(err, "load cart"))
			return
		}
		items = c.Items
	}

	res, err := h.bookings.Checkout(ctx, booking.CheckoutRequest{
		CustomerID:      req.CustomerID,
		CustomerAccount: req.CustomerAccount,
		Items:           items,
		Billing:         req.Billing.toBilling(),
	})
	if err != nil {
		release()
		fail(w, r, err)
		return
	}

	if fromCart {
		if err := h.carts.Delete(ctx, req.CustomerID); err != nil {
			lg.Warn("Cart not cleared after checkout", zap.Error(err))
		}
	}

	body := encodeCheckout(res)
	if idemKey != "" {
		if err := h.carts.Remember(context.WithoutCancel(ctx), idemKey, body, h.cfg.IdempotencyTTL); err != nil {
			lg.Warn("Checkout response not remembered", zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, body)
}

// PrepareHolds secures provider holds ahead of a checkout.
func (h *Handler) PrepareHolds(w http.ResponseWriter, r *http.Request) {
	var req holdsDTO
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	if req.CustomerID == "" {
		fail(w, r, errors.Wrap(errBadRequest, "customerId is required"))
		return
	}
	items, err := toItems(req.Items)
	if err != nil {
		fail(w, r, err)
		return
	}

	results, err := h.bookings.PrepareHolds(r.Context(), req.CustomerID, items)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeHolds(results))
}
