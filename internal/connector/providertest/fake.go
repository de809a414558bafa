// Package providertest provides an in-process travel provider speaking both
// the REST and SOAP dialects understood by package connector.
package providertest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/trip-checkout/internal/connector"
	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// Call is one request observed by the fake.
type Call struct {
	Protocol provider.Protocol
	Op       provider.Operation
	Fields   connector.Reply
}

// Fake is a scripted provider. The zero value is not usable; use New.
type Fake struct {
	mu       sync.Mutex
	down     map[provider.Protocol]bool
	rejects  map[provider.Operation]bool
	seats    int
	refund   decimal.Decimal
	holdTTL  time.Duration
	calls    []Call
	sequence int
}

// New returns a fake that accepts every request and refunds nothing.
func New() *Fake {
	return &Fake{
		down:    make(map[provider.Protocol]bool),
		rejects: make(map[provider.Operation]bool),
		seats:   100,
		holdTTL: 15 * time.Minute,
	}
}

// Serve starts the fake on a loopback listener for the duration of the test
// and returns its base URL.
func (f *Fake) Serve(tb testing.TB) string {
	tb.Helper()
	srv := httptest.NewServer(f)
	tb.Cleanup(srv.Close)
	return srv.URL
}

// SetDown makes every request over proto fail with 503.
func (f *Fake) SetDown(proto provider.Protocol, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down[proto] = down
}

// Reject makes op answer with an explicit refusal on both protocols.
func (f *Fake) Reject(op provider.Operation, reject bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects[op] = reject
}

// SetSeats sets the seat count reported by availability checks.
func (f *Fake) SetSeats(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seats = n
}

// SetRefund sets the amount reported by cancellations.
func (f *Fake) SetRefund(d decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refund = d
}

// Calls returns a copy of the observed calls in arrival order.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the protocols used for op in arrival order.
func (f *Fake) CallsTo(op provider.Operation) []provider.Protocol {
	var out []provider.Protocol
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c.Protocol)
		}
	}
	return out
}

// Provider builds a directory record pointing at baseURL. Each protocol in
// protos gets an endpoint record; the SOAP record never declares a cancel path.
func Provider(id string, category provider.Category, baseURL string, protos ...provider.Protocol) *provider.Provider {
	p := &provider.Provider{
		ID:            id,
		Name:          "Fake " + string(category),
		Category:      category,
		PayoutAccount: "acct-" + id,
		Active:        true,
	}
	for _, proto := range protos {
		paths := map[provider.Operation]string{
			provider.OpRegisterCustomer:  string(provider.OpRegisterCustomer),
			provider.OpCheckAvailability: string(provider.OpCheckAvailability),
			provider.OpCreateHold:        string(provider.OpCreateHold),
			provider.OpCreateReservation: string(provider.OpCreateReservation),
			provider.OpGenerateInvoice:   string(provider.OpGenerateInvoice),
		}
		if proto == provider.ProtocolREST {
			paths[provider.OpCancelReservation] = string(provider.OpCancelReservation)
		}
		p.Endpoints = append(p.Endpoints, provider.Endpoint{
			Protocol: proto,
			BaseURI:  baseURL + "/" + string(proto),
			Paths:    paths,
		})
	}
	return p
}

// ServeHTTP routes /rest/{op} and /soap/{op}.
func (f *Fake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 2 || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	proto, op := provider.Protocol(parts[0]), provider.Operation(parts[1])

	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var fields connector.Reply
	switch proto {
	case provider.ProtocolREST:
		fields, err = connector.DecodeJSON(data)
	case provider.ProtocolSOAP:
		_, fields, err = connector.DecodeSOAP(data)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply, refuse, unavailable := f.handle(proto, op, fields)
	switch {
	case unavailable:
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	case proto == provider.ProtocolSOAP && refuse != "":
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(connector.EncodeSOAPFault("soap:Server", refuse))
	case proto == provider.ProtocolSOAP:
		body, err := connector.EncodeSOAP(connector.Action(op)+"Response", reply)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		_, _ = w.Write(body)
	case refuse != "":
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(connector.EncodeJSON(connector.Message{}.
			With("success", false).
			With("message", refuse)))
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(connector.EncodeJSON(reply))
	}
}

func (f *Fake) handle(proto provider.Protocol, op provider.Operation, in connector.Reply) (connector.Message, string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, Call{Protocol: proto, Op: op, Fields: in})
	if f.down[proto] {
		return nil, "", true
	}
	if f.rejects[op] {
		return nil, string(op) + " refused", false
	}

	f.sequence++
	out := connector.Message{}
	switch op {
	case provider.OpRegisterCustomer:
		out = out.With("customer_id", fmt.Sprintf("cust-%d", f.sequence))
	case provider.OpCheckAvailability:
		out = out.With("available", f.seats > 0).With("seats_available", f.seats)
	case provider.OpCreateHold:
		out = out.
			With("hold_id", fmt.Sprintf("%s-hold-%d", proto, f.sequence)).
			With("expires_at", time.Now().Add(f.holdTTL))
	case provider.OpCreateReservation:
		// Holds are only honoured on the protocol that issued them.
		if !strings.HasPrefix(in["hold_id"], string(proto)+"-") {
			return nil, "unknown hold " + in["hold_id"], false
		}
		out = out.
			With("reservation_id", fmt.Sprintf("res-%d", f.sequence)).
			With("reservation_code", fmt.Sprintf("RC%04d", f.sequence))
	case provider.OpGenerateInvoice:
		out = out.With("invoice_url", fmt.Sprintf("https://invoices.example/%s", in["reservation_id"]))
	case provider.OpCancelReservation:
		out = out.With("success", true).With("refunded_amount", f.refund)
	default:
		return nil, "unknown operation", false
	}
	return out, "", false
}
