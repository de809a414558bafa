// Package handler exposes the booking service over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/xenking/trip-checkout/internal/cart"
	"github.com/xenking/trip-checkout/internal/domain/booking"
)

// Bookings is the saga surface the handlers drive.
type Bookings interface {
	Checkout(ctx context.Context, req booking.CheckoutRequest) (*booking.CheckoutResult, error)
	PrepareHolds(ctx context.Context, customerID string, items []booking.CartItem) ([]booking.HoldResult, error)
	Cancel(ctx context.Context, req booking.CancelRequest) (*booking.CancelResult, error)
	Reservations(ctx context.Context, customerID string) ([]booking.Reservation, error)
}

// Carts stores carts and replayable checkout responses.
type Carts interface {
	Get(ctx context.Context, customerID string) (*cart.Cart, error)
	Save(ctx context.Context, c *cart.Cart) error
	Delete(ctx context.Context, customerID string) error
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Recall(ctx context.Context, key string) ([]byte, bool, error)
	Remember(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// IdempotencyTTL is how long a checkout response is replayable by its
	// Idempotency-Key.
	IdempotencyTTL time.Duration
	// MaxBodyBytes bounds request bodies.
	MaxBodyBytes int64
}

// Handler serves the /api routes.
type Handler struct {
	bookings Bookings
	carts    Carts
	cfg      Config
	now      func() time.Time
}

// NewHandler constructs a Handler.
func NewHandler(cfg Config, bookings Bookings, carts Carts) *Handler {
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Handler{
		bookings: bookings,
		carts:    carts,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Routes registers the API routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/checkout", h.Checkout)
	r.Post("/holds", h.PrepareHolds)
	r.Post("/reservations/{id}/cancel", h.Cancel)
	r.Get("/customers/{id}/reservations", h.Reservations)
	r.Route("/carts/{customerId}", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Put("/", h.PutCart)
		r.Delete("/", h.DeleteCart)
	})
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
