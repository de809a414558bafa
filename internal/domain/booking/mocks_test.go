package booking

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/connector/providertest"
	"github.com/xenking/trip-checkout/internal/domain/customer"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// --- Mock implementations ---

type mockCustomers struct {
	byID map[string]*customer.Customer
}

func (m *mockCustomers) Get(_ context.Context, id string) (*customer.Customer, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

type mockDirectory struct {
	byID map[string]*provider.Provider
}

func (m *mockDirectory) Resolve(_ context.Context, id string) (*provider.Provider, error) {
	p, ok := m.byID[id]
	if !ok || !p.Active {
		return nil, provider.ErrNotFound
	}
	return p, nil
}

type transfer struct {
	From, To string
	Amount   decimal.Decimal
}

type mockFunds struct {
	mu        sync.Mutex
	transfers []transfer
	failTo    map[string]bool
	failFrom  map[string]bool
	// afterTransfer runs once a transfer has been committed.
	afterTransfer func()
}

func (m *mockFunds) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.failTo[to] || m.failFrom[from] {
		m.mu.Unlock()
		return errors.New("declined")
	}
	m.transfers = append(m.transfers, transfer{From: from, To: to, Amount: amount})
	hook := m.afterTransfer
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

// balance is the net change of an account over all transfers.
func (m *mockFunds) balance(account string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, t := range m.transfers {
		if t.From == account {
			sum = sum.Sub(t.Amount)
		}
		if t.To == account {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}

func (m *mockFunds) to(account string) []decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []decimal.Decimal
	for _, t := range m.transfers {
		if t.To == account {
			out = append(out, t.Amount)
		}
	}
	return out
}

type mockLedger struct {
	mu           sync.Mutex
	purchases    map[uuid.UUID]*Purchase
	reservations map[uuid.UUID]*Reservation
	purchaseErr   error
	recordErr     error
	deactivateErr error
}

func newLedger() *mockLedger {
	return &mockLedger{
		purchases:    make(map[uuid.UUID]*Purchase),
		reservations: make(map[uuid.UUID]*Reservation),
	}
}

func (m *mockLedger) CreatePurchase(_ context.Context, p *Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.purchaseErr != nil {
		return m.purchaseErr
	}
	cp := *p
	m.purchases[p.ID] = &cp
	return nil
}

func (m *mockLedger) RecordReservation(_ context.Context, r *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	if _, ok := m.purchases[r.PurchaseID]; !ok {
		return errors.New("unknown purchase")
	}
	cp := *r
	m.reservations[r.ID] = &cp
	return nil
}

func (m *mockLedger) GetReservation(_ context.Context, id uuid.UUID) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockLedger) OwnedBy(_ context.Context, reservationID uuid.UUID, customerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	if !ok {
		return false, nil
	}
	p, ok := m.purchases[r.PurchaseID]
	return ok && p.CustomerID == customerID, nil
}

func (m *mockLedger) Deactivate(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deactivateErr != nil {
		return m.deactivateErr
	}
	r, ok := m.reservations[id]
	if !ok {
		return ErrReservationNotFound
	}
	r.Active = false
	return nil
}

func (m *mockLedger) ListByCustomer(_ context.Context, customerID string) ([]Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Reservation
	for _, r := range m.reservations {
		if p := m.purchases[r.PurchaseID]; p != nil && p.CustomerID == customerID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockLedger) reservationList() []Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Reservation, 0, len(m.reservations))
	for _, r := range m.reservations {
		out = append(out, *r)
	}
	return out
}

type mockPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *mockPublisher) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return m.err
}

// --- Helpers ---

const (
	platformAccount = "platform"
	customerAccount = "cust-acct"
	customerID      = "c-1"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	orch      *Orchestrator
	funds     *mockFunds
	ledger    *mockLedger
	publisher *mockPublisher
	dir       *mockDirectory
	fakes     map[string]*providertest.Fake
}

type envOption func(*Config)

func parallel(cfg *Config) {
	cfg.Parallel = true
	cfg.Concurrency = 2
}

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()
	e := &env{
		funds:     &mockFunds{failTo: map[string]bool{}, failFrom: map[string]bool{}},
		ledger:    newLedger(),
		publisher: &mockPublisher{},
		dir:       &mockDirectory{byID: map[string]*provider.Provider{}},
		fakes:     map[string]*providertest.Fake{},
	}
	cfg := Config{PlatformAccount: platformAccount, HoldDuration: 10 * time.Minute}
	for _, o := range opts {
		o(&cfg)
	}

	client := &http.Client{}
	orch, err := NewOrchestrator(cfg, Deps{
		Customers: &mockCustomers{byID: map[string]*customer.Customer{
			customerID: {ID: customerID, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
			"c-2":      {ID: "c-2", FirstName: "Grace", LastName: "Hopper"},
		}},
		Directory: e.dir,
		Gateway: connector.NewGateway(
			connector.NewREST(client, 2*time.Second),
			connector.NewSOAP(client, 2*time.Second),
		),
		Funds:     e.funds,
		Ledger:    e.ledger,
		Publisher: e.publisher,
		Now:       func() time.Time { return testNow },
	})
	require.NoError(t, err)
	e.orch = orch
	return e
}

// addProvider registers a provider backed by its own fake.
func (e *env) addProvider(t *testing.T, id string, c provider.Category, protos ...provider.Protocol) *providertest.Fake {
	t.Helper()
	fake := providertest.New()
	e.dir.byID[id] = providertest.Provider(id, c, fake.Serve(t), protos...)
	e.fakes[id] = fake
	return fake
}

func both() []provider.Protocol {
	return []provider.Protocol{provider.ProtocolREST, provider.ProtocolSOAP}
}

func item(providerID string, c provider.Category, price int64) CartItem {
	start := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	return CartItem{
		Category:   c,
		ProviderID: providerID,
		ProductID:  "P-" + providerID,
		Title:      string(c) + " " + providerID,
		Start:      start,
		End:        start.AddDate(0, 0, 1),
		Quantity:   1,
		UnitPrice:  decimal.NewFromInt(price),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func checkoutReq(items ...CartItem) CheckoutRequest {
	return CheckoutRequest{
		CustomerID:      customerID,
		CustomerAccount: customerAccount,
		Items:           items,
		Billing:         Billing{Name: "Ada Lovelace", Email: "ada@example.com"},
	}
}
