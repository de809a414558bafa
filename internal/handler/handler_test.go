package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/trip-checkout/internal/cart"
	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/domain/booking"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

func TestSecurity(t *testing.T) {
	h := newRouter(&mockBookings{}, newCarts())

	for _, tt := range []struct {
		name string
		key  string
		want int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"unknown", "nope", http.StatusUnauthorized},
		{"valid", testKey, http.StatusOK},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodGet, "/api/carts/c-1", "", APIKeyHeader, tt.key)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestCheckout(t *testing.T) {
	b := &mockBookings{checkoutRes: checkoutResult()}
	h := newRouter(b, newCarts())

	w := do(t, h, http.MethodPost, "/api/checkout", `{
		"customerId":"c-1","customerAccount":"acct-c1",
		"items":`+itemsJSON+`,
		"billing":{"name":"Ada","email":"ada@example.com","taxId":"PT123"}}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"success":true,"outcome":"partially_booked","message":"1 of 2 items booked",
		"purchaseId":"7d1a4a8e-5a0b-4e55-9d7e-0a6f4f8e2b11","totalPaid":336.00,"refunded":200.00,
		"items":[
			{"category":"hotel","title":"Sea view","providerId":"h1","success":true,"state":"booked","protocol":"rest",
			 "reservationId":"2f0c1f52-8f7c-4b0e-8d8e-3a0d7b7f1c22","reservationCode":"RC0001",
			 "invoiceUrl":"https://invoices.example/res-1","price":100.00},
			{"category":"flight","title":"LIS-BER","providerId":"f1","success":false,"state":"failed",
			 "price":200.00,"refunded":200.00,"error":"reservation creation failed: refused"}
		]}`, w.Body.String())

	require.Len(t, b.checkoutReqs, 1)
	req := b.checkoutReqs[0]
	assert.Equal(t, "acct-c1", req.CustomerAccount)
	assert.Equal(t, "PT123", req.Billing.TaxID)
	require.Len(t, req.Items, 2)
	assert.Equal(t, provider.CategoryHotel, req.Items[0].Category)
	assert.True(t, req.Items[0].UnitPrice.Equal(dec("100")))
	require.NotNil(t, req.Items[1].Hold)
	assert.Equal(t, provider.ProtocolREST, req.Items[1].Hold.Protocol)
}

func TestCheckout_FromCart(t *testing.T) {
	carts := newCarts()
	carts.carts["c-1"] = &cart.Cart{CustomerID: "c-1", Items: []booking.CartItem{
		{Category: provider.CategoryPackage, ProviderID: "p1", ProductID: "pk", Quantity: 1, UnitPrice: dec("50")},
	}}
	b := &mockBookings{checkoutRes: checkoutResult()}
	h := newRouter(b, carts)

	w := do(t, h, http.MethodPost, "/api/checkout", `{"customerId":"c-1","customerAccount":"acct-c1"}`)
	require.Equal(t, http.StatusOK, w.Code)

	require.Len(t, b.checkoutReqs, 1)
	require.Len(t, b.checkoutReqs[0].Items, 1)
	assert.Equal(t, "pk", b.checkoutReqs[0].Items[0].ProductID)
	assert.NotContains(t, carts.carts, "c-1", "cart is cleared once a purchase exists")
}

func TestCheckout_FailedKeepsCart(t *testing.T) {
	carts := newCarts()
	carts.carts["c-1"] = &cart.Cart{CustomerID: "c-1", Items: []booking.CartItem{
		{Category: provider.CategoryPackage, ProviderID: "p1", ProductID: "pk", UnitPrice: dec("50")},
	}}
	h := newRouter(&mockBookings{checkoutErr: &booking.StepError{Step: booking.ErrTransferFailed, Err: errors.New("insufficient funds")}}, carts)

	w := do(t, h, http.MethodPost, "/api/checkout", `{"customerId":"c-1","customerAccount":"acct-c1"}`)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Contains(t, carts.carts, "c-1")
}

func TestCheckout_Idempotent(t *testing.T) {
	b := &mockBookings{checkoutRes: checkoutResult()}
	h := newRouter(b, newCarts())
	body := `{"customerId":"c-1","customerAccount":"acct-c1","items":` + itemsJSON + `}`

	first := do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, first.Code)

	second := do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Len(t, b.checkoutReqs, 1, "replay must not charge again")

	do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-2")
	assert.Len(t, b.checkoutReqs, 2)
}

func TestCheckout_IdempotentConcurrent(t *testing.T) {
	b := &mockBookings{
		checkoutRes: checkoutResult(),
		entered:     make(chan struct{}, 1),
		gate:        make(chan struct{}),
	}
	h := newRouter(b, newCarts())
	body := `{"customerId":"c-1","customerAccount":"acct-c1","items":` + itemsJSON + `}`

	done := make(chan int, 1)
	go func() {
		done <- do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-1").Code
	}()
	<-b.entered

	dup := do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-1")
	assert.Equal(t, http.StatusConflict, dup.Code)
	assert.Equal(t, 1, b.checkouts(), "duplicate must not charge")

	close(b.gate)
	require.Equal(t, http.StatusOK, <-done)

	replay := do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-1")
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, "true", replay.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, b.checkouts())
}

func TestCheckout_FailedKeyCanRetry(t *testing.T) {
	b := &mockBookings{checkoutErr: booking.ErrTransferFailed}
	h := newRouter(b, newCarts())
	body := `{"customerId":"c-1","customerAccount":"acct-c1","items":` + itemsJSON + `}`

	first := do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusPaymentRequired, first.Code)

	b.checkoutErr, b.checkoutRes = nil, checkoutResult()
	second := do(t, h, http.MethodPost, "/api/checkout", body, IdempotencyHeader, "k-1")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Empty(t, second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 2, b.checkouts())
}

func TestCheckout_Errors(t *testing.T) {
	for _, tt := range []struct {
		name string
		body string
		err  error
		want int
	}{
		{"malformed", `{`, nil, http.StatusBadRequest},
		{"missing account", `{"customerId":"c-1"}`, nil, http.StatusBadRequest},
		{"unknown category", `{"customerId":"c-1","customerAccount":"a","items":[{"category":"spaceship"}]}`, nil, http.StatusBadRequest},
		{"empty cart", `{"customerId":"c-1","customerAccount":"a"}`, booking.ErrEmptyCart, http.StatusBadRequest},
		{"invalid item", `{"customerId":"c-1","customerAccount":"a"}`, &booking.InvalidItemError{Index: 0, Reason: "product is required"}, http.StatusBadRequest},
		{"customer not found", `{"customerId":"c-9","customerAccount":"a"}`, booking.ErrCustomerNotFound, http.StatusNotFound},
		{"debit failed", `{"customerId":"c-1","customerAccount":"a"}`, &booking.StepError{Step: booking.ErrTransferFailed, Err: errors.New("declined")}, http.StatusPaymentRequired},
		{"internal", `{"customerId":"c-1","customerAccount":"a"}`, errors.New("create purchase: db down"), http.StatusInternalServerError},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&mockBookings{checkoutErr: tt.err}, newCarts())
			w := do(t, h, http.MethodPost, "/api/checkout", tt.body)
			assert.Equal(t, tt.want, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		})
	}
}

func TestCheckout_InternalErrorHidden(t *testing.T) {
	h := newRouter(&mockBookings{checkoutErr: errors.New("create purchase: password=hunter2")}, newCarts())
	w := do(t, h, http.MethodPost, "/api/checkout", `{"customerId":"c-1","customerAccount":"a"}`)
	assert.JSONEq(t, `{"code":500,"message":"Internal Server Error"}`, w.Body.String())
}

func TestPrepareHolds(t *testing.T) {
	expires := time.Date(2026, 4, 1, 12, 15, 0, 0, time.UTC)
	b := &mockBookings{holdsRes: []booking.HoldResult{
		{Item: booking.CartItem{
			Category: provider.CategoryRestaurant, ProviderID: "r1", ProductID: "t4", Title: "Dinner",
			Start: time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC), Quantity: 4, UnitPrice: dec("25"),
			Hold: &booking.Hold{ID: "soap-hold-1", Protocol: provider.ProtocolSOAP, ExpiresAt: &expires},
		}},
		{Item: booking.CartItem{
			Category: provider.CategoryFlight, ProviderID: "f1", ProductID: "fl", Title: "LIS-BER",
			Start: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC), Quantity: 1, UnitPrice: dec("90"),
		}, Error: "hold creation failed: not available"},
	}}
	h := newRouter(b, newCarts())

	w := do(t, h, http.MethodPost, "/api/holds", `{"customerId":"c-1","items":`+itemsJSON+`}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"items":[
		{"item":{"category":"restaurant","providerId":"r1","productId":"t4","title":"Dinner","start":"2026-05-01T20:00:00Z",
		         "quantity":4,"unitPrice":25.00,"price":100.00,
		         "hold":{"id":"soap-hold-1","protocol":"soap","expiresAt":"2026-04-01T12:15:00Z"}},
		 "held":true},
		{"item":{"category":"flight","providerId":"f1","productId":"fl","title":"LIS-BER","start":"2026-05-01T08:00:00Z",
		         "quantity":1,"unitPrice":90.00,"price":90.00},
		 "held":false,"error":"hold creation failed: not available"}
	]}`, w.Body.String())
}

func TestCancel(t *testing.T) {
	b := &mockBookings{cancelRes: &booking.CancelResult{Success: true, Message: "Reservation cancelled", AmountRefunded: dec("198")}}
	h := newRouter(b, newCarts())

	w := do(t, h, http.MethodPost, "/api/reservations/"+testReservation.String()+"/cancel",
		`{"customerId":"c-1","refundAccount":"acct-c1"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"message":"Reservation cancelled","amountRefunded":198.00}`, w.Body.String())
	assert.Equal(t, testReservation, b.cancelReq.ReservationID)
	assert.Equal(t, "acct-c1", b.cancelReq.RefundAccount)
}

func TestCancel_Errors(t *testing.T) {
	path := "/api/reservations/" + testReservation.String() + "/cancel"
	body := `{"customerId":"c-1","refundAccount":"acct-c1"}`

	for _, tt := range []struct {
		name string
		path string
		err  error
		want int
	}{
		{"bad id", "/api/reservations/nope/cancel", nil, http.StatusBadRequest},
		{"not found", path, booking.ErrReservationNotFound, http.StatusNotFound},
		{"not owner", path, booking.ErrNotAuthorized, http.StatusForbidden},
		{"already cancelled", path, booking.ErrAlreadyCancelled, http.StatusConflict},
		{"unsupported", path, booking.ErrCancellationUnsupported, http.StatusUnprocessableEntity},
		{"service not found", path, booking.ErrServiceNotFound, http.StatusUnprocessableEntity},
		{"unreachable", path, errors.Wrap(connector.ErrProviderUnreachable, "cancel"), http.StatusBadGateway},
	} {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&mockBookings{cancelErr: tt.err}, newCarts())
			w := do(t, h, http.MethodPost, tt.path, body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestReservations(t *testing.T) {
	b := &mockBookings{reservations: []booking.Reservation{{
		ID:            testReservation,
		PurchaseID:    testPurchase,
		ProviderID:    "h1",
		Category:      provider.CategoryHotel,
		Title:         "Sea view",
		Code:          "RC0001",
		BusinessValue: dec("90"),
		Commission:    dec("10"),
		Protocol:      provider.ProtocolREST,
		Active:        true,
		CreatedAt:     time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}}}
	h := newRouter(b, newCarts())

	w := do(t, h, http.MethodGet, "/api/customers/c-1/reservations", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"reservations":[{
		"id":"2f0c1f52-8f7c-4b0e-8d8e-3a0d7b7f1c22","purchaseId":"7d1a4a8e-5a0b-4e55-9d7e-0a6f4f8e2b11",
		"providerId":"h1","category":"hotel","title":"Sea view","reservationCode":"RC0001",
		"price":100.00,"businessValue":90.00,"commission":10.00,"protocol":"rest","active":true,
		"createdAt":"2026-04-01T12:00:00Z"}]}`, w.Body.String())

	h = newRouter(&mockBookings{reservationsErr: booking.ErrCustomerNotFound}, newCarts())
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/customers/c-9/reservations", "").Code)
}

func TestCarts(t *testing.T) {
	carts := newCarts()
	h := newRouter(&mockBookings{}, carts)

	w := do(t, h, http.MethodGet, "/api/carts/c-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"customerId":"c-1","items":[],"subtotal":0.00,"tax":0.00,"total":0.00}`, w.Body.String())

	w = do(t, h, http.MethodPut, "/api/carts/c-1", `{"items":[
		{"category":"car_rental","providerId":"v1","productId":"suv","title":"SUV","start":"2026-05-01T10:00:00Z","end":"2026-05-03T10:00:00Z","quantity":1,"unitPrice":"50"}]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"customerId":"c-1","items":[
		{"category":"car_rental","providerId":"v1","productId":"suv","title":"SUV","start":"2026-05-01T10:00:00Z",
		 "end":"2026-05-03T10:00:00Z","quantity":1,"unitPrice":50.00,"price":100.00}],
		"subtotal":100.00,"tax":12.00,"total":112.00,"updatedAt":"2026-04-01T12:00:00Z"}`, w.Body.String())
	require.Contains(t, carts.carts, "c-1")

	w = do(t, h, http.MethodPut, "/api/carts/c-1", `{"items":[{"category":"boat"}]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodDelete, "/api/carts/c-1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, carts.carts, "c-1")
}
