package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/trip-checkout/internal/cart"
	"github.com/xenking/trip-checkout/internal/domain/auth"
	"github.com/xenking/trip-checkout/internal/domain/booking"
)

// --- Mock implementations ---

type mockBookings struct {
	mu           sync.Mutex
	checkoutReqs []booking.CheckoutRequest
	checkoutRes  *booking.CheckoutResult
	checkoutErr  error
	// entered is signalled when Checkout starts; Checkout then waits on gate.
	entered chan struct{}
	gate    chan struct{}

	holdsRes []booking.HoldResult
	holdsErr error

	cancelReq booking.CancelRequest
	cancelRes *booking.CancelResult
	cancelErr error

	reservations    []booking.Reservation
	reservationsErr error
}

func (m *mockBookings) Checkout(_ context.Context, req booking.CheckoutRequest) (*booking.CheckoutResult, error) {
	m.mu.Lock()
	m.checkoutReqs = append(m.checkoutReqs, req)
	res, err := m.checkoutRes, m.checkoutErr
	m.mu.Unlock()
	if m.entered != nil {
		m.entered <- struct{}{}
	}
	if m.gate != nil {
		<-m.gate
	}
	return res, err
}

func (m *mockBookings) checkouts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.checkoutReqs)
}

func (m *mockBookings) PrepareHolds(_ context.Context, _ string, _ []booking.CartItem) ([]booking.HoldResult, error) {
	return m.holdsRes, m.holdsErr
}

func (m *mockBookings) Cancel(_ context.Context, req booking.CancelRequest) (*booking.CancelResult, error) {
	m.cancelReq = req
	return m.cancelRes, m.cancelErr
}

func (m *mockBookings) Reservations(_ context.Context, _ string) ([]booking.Reservation, error) {
	return m.reservations, m.reservationsErr
}

type mockCarts struct {
	mu       sync.Mutex
	carts    map[string]*cart.Cart
	recalled map[string][]byte
	getErr   error
}

func newCarts() *mockCarts {
	return &mockCarts{carts: map[string]*cart.Cart{}, recalled: map[string][]byte{}}
}

func (m *mockCarts) Get(_ context.Context, id string) (*cart.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	if c, ok := m.carts[id]; ok {
		return c, nil
	}
	return &cart.Cart{CustomerID: id}, nil
}

func (m *mockCarts) Save(_ context.Context, c *cart.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[c.CustomerID] = c
	return nil
}

func (m *mockCarts) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, id)
	return nil
}

// Reserve marks key pending with a nil value.
func (m *mockCarts) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recalled[key]; ok {
		return false, nil
	}
	m.recalled[key] = nil
	return true, nil
}

func (m *mockCarts) Recall(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.recalled[key]
	if ok && b == nil {
		return nil, false, cart.ErrCheckoutInFlight
	}
	return b, ok, nil
}

func (m *mockCarts) Remember(_ context.Context, key string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recalled[key] = append([]byte(nil), data...)
	return nil
}

func (m *mockCarts) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recalled, key)
	return nil
}

type mockAPIKeys struct {
	keys map[string]*auth.APIKeyInfo
	err  error
}

func (m *mockAPIKeys) FindByHash(_ context.Context, hash string) (*auth.APIKeyInfo, error) {
	if m.err != nil {
		return nil, m.err
	}
	info, ok := m.keys[hash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return info, nil
}

// --- Helpers ---

var testPepper = []byte("pepper")

const testKey = "secret-key"

func newRouter(b Bookings, c Carts) http.Handler {
	hash := auth.Hash(testPepper, testKey)
	sec := NewSecurity(&mockAPIKeys{keys: map[string]*auth.APIKeyInfo{
		hash: {ID: "k1", KeyHash: hash, Name: "web"},
	}}, testPepper)

	h := NewHandler(Config{}, b, c)
	h.now = func() time.Time { return time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC) }

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(sec.Middleware)
		h.Routes(r)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(APIKeyHeader, testKey)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var (
	testPurchase    = uuid.MustParse("7d1a4a8e-5a0b-4e55-9d7e-0a6f4f8e2b11")
	testReservation = uuid.MustParse("2f0c1f52-8f7c-4b0e-8d8e-3a0d7b7f1c22")
)

func checkoutResult() *booking.CheckoutResult {
	return &booking.CheckoutResult{
		Success:    true,
		Outcome:    booking.PartiallyBooked,
		Message:    "1 of 2 items booked",
		PurchaseID: testPurchase,
		TotalPaid:  dec("336"),
		Refunded:   dec("200"),
		Items: []booking.ItemResult{
			{
				Category:        "hotel",
				Title:           "Sea view",
				ProviderID:      "h1",
				State:           booking.StateBooked,
				Protocol:        "rest",
				ReservationID:   testReservation,
				ReservationCode: "RC0001",
				InvoiceURL:      "https://invoices.example/res-1",
				Price:           dec("100"),
			},
			{
				Category:   "flight",
				Title:      "LIS-BER",
				ProviderID: "f1",
				State:      booking.StateFailed,
				Price:      dec("200"),
				Refunded:   dec("200"),
				Error:      "reservation creation failed: refused",
			},
		},
	}
}

const itemsJSON = `[
	{"category":"hotel","providerId":"h1","productId":"room-1","title":"Sea view","start":"2026-05-01T00:00:00Z","end":"2026-05-02T00:00:00Z","quantity":1,"unitPrice":"100"},
	{"category":"flight","providerId":"f1","productId":"fl-9","title":"LIS-BER","start":"2026-05-01T08:00:00Z","quantity":2,"unitPrice":100,
	 "hold":{"id":"rest-hold-1","protocol":"rest","expiresAt":"2026-05-01T00:00:00Z"}}
]`
