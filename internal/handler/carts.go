package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/cart"
)

func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		fail(w, r, errors.Wrap(err, "get cart"))
		return
	}
	writeJSON(w, http.StatusOK, encodeCart(c))
}

// PutCart replaces the cart's items.
func (h *Handler) PutCart(w http.ResponseWriter, r *http.Request) {
	var req cartDTO
	if err := h.decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	items, err := toItems(req.Items)
	if err != nil {
		fail(w, r, err)
		return
	}
	c := &cart.Cart{
		CustomerID: chi.URLParam(r, "customerId"),
		Items:      items,
		UpdatedAt:  h.now().UTC(),
	}
	if err := h.carts.Save(r.Context(), c); err != nil {
		fail(w, r, errors.Wrap(err, "save cart"))
		return
	}
	writeJSON(w, http.StatusOK, encodeCart(c))
}

func (h *Handler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.Delete(r.Context(), chi.URLParam(r, "customerId")); err != nil {
		fail(w, r, errors.Wrap(err, "delete cart"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
