package connector

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/domain/provider"
)

var (
	// ErrProviderUnreachable is returned when every protocol failed for an operation.
	ErrProviderUnreachable = errors.New("provider unreachable")
	// ErrUnsupportedOperation is returned when an endpoint has no path for an operation.
	ErrUnsupportedOperation = errors.New("operation not supported by endpoint")
)

// UnreachableError reports that no endpoint record of a provider served an operation.
type UnreachableError struct {
	ProviderID string
	Last       error
}

func (e *UnreachableError) Error() string {
	if e.Last == nil {
		return fmt.Sprintf("provider %s unreachable: no endpoint records", e.ProviderID)
	}
	return fmt.Sprintf("provider %s unreachable: %v", e.ProviderID, e.Last)
}

// Is makes errors.Is(err, ErrProviderUnreachable) hold.
func (e *UnreachableError) Is(target error) bool { return target == ErrProviderUnreachable }

func (e *UnreachableError) Unwrap() error { return e.Last }

// Caller is a transport bound to a single endpoint record.
type Caller struct {
	transport Transport
	endpoint  provider.Endpoint
}

// Protocol returns the protocol of the bound endpoint.
func (c Caller) Protocol() provider.Protocol { return c.endpoint.Protocol }

// Call invokes op on the bound endpoint.
func (c Caller) Call(ctx context.Context, op provider.Operation, msg Message) (Reply, error) {
	if !c.endpoint.Supports(op) {
		return nil, errors.Wrapf(ErrUnsupportedOperation, "%s %s", c.endpoint.Protocol, op)
	}
	return c.transport.Call(ctx, c.endpoint, op, msg)
}

// Gateway selects endpoint records and transports for provider calls.
type Gateway struct {
	transports map[provider.Protocol]Transport
}

// NewGateway returns a Gateway over the given transports, keyed by their protocol.
func NewGateway(transports ...Transport) *Gateway {
	g := &Gateway{transports: make(map[provider.Protocol]Transport, len(transports))}
	for _, t := range transports {
		g.transports[t.Protocol()] = t
	}
	return g
}

// Do runs fn against the provider's endpoints in preference order (REST, then
// SOAP) until one succeeds, and returns the protocol that succeeded. When all
// attempts fail the error is an *UnreachableError carrying the last failure.
func (g *Gateway) Do(ctx context.Context, p *provider.Provider, fn func(context.Context, Caller) error) (provider.Protocol, error) {
	var last error
	for _, ep := range p.Ordered() {
		t, ok := g.transports[ep.Protocol]
		if !ok {
			last = errors.Errorf("no transport for %s", ep.Protocol)
			continue
		}
		if err := fn(ctx, Caller{transport: t, endpoint: ep}); err != nil {
			last = err
			continue
		}
		return ep.Protocol, nil
	}
	return "", &UnreachableError{ProviderID: p.ID, Last: last}
}

// On returns a Caller pinned to one protocol. Hold identifiers are
// protocol-specific, so once a hold is created every later call for the same
// line item goes through the same protocol.
func (g *Gateway) On(p *provider.Provider, proto provider.Protocol) (Caller, error) {
	ep, ok := p.Endpoint(proto)
	if !ok {
		return Caller{}, &UnreachableError{
			ProviderID: p.ID,
			Last:       errors.Errorf("no %s endpoint record", proto),
		}
	}
	t, ok := g.transports[proto]
	if !ok {
		return Caller{}, errors.Errorf("no transport for %s", proto)
	}
	return Caller{transport: t, endpoint: ep}, nil
}
