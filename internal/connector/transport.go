// Package connector talks to third-party inventory providers.
//
// A Transport speaks one wire protocol (REST+JSON or SOAP 1.1). A Caller binds
// a transport to one provider endpoint record. The Gateway applies the
// protocol selection rule: try REST first, fall back to SOAP, and pin the
// protocol that succeeded for the rest of a line item's calls. Category
// connectors (Flight, Room, Vehicle, Table, Package) shape the per-category
// request fields on top of a Caller.
package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/domain/provider"
)

// maxReplyBytes bounds how much of a provider response is read.
const maxReplyBytes = 1 << 20

// StatusError is returned when a provider answers with a non-2xx status.
type StatusError struct {
	Protocol provider.Protocol
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s provider returned %d: %s", e.Protocol, e.Code, e.Body)
}

// Transport executes a single operation against an endpoint record.
type Transport interface {
	Protocol() provider.Protocol
	Call(ctx context.Context, ep provider.Endpoint, op provider.Operation, msg Message) (Reply, error)
}

// HTTPTransport carries provider calls over HTTP in either protocol.
type HTTPTransport struct {
	protocol provider.Protocol
	client   *http.Client
	timeout  time.Duration
}

var _ Transport = (*HTTPTransport)(nil)

// NewREST returns a JSON-over-HTTP transport. Every call is bounded by timeout.
func NewREST(client *http.Client, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{protocol: provider.ProtocolREST, client: client, timeout: timeout}
}

// NewSOAP returns a SOAP 1.1 transport. Every call is bounded by timeout.
func NewSOAP(client *http.Client, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{protocol: provider.ProtocolSOAP, client: client, timeout: timeout}
}

// Protocol implements Transport.
func (t *HTTPTransport) Protocol() provider.Protocol { return t.protocol }

// Call implements Transport.
func (t *HTTPTransport) Call(ctx context.Context, ep provider.Endpoint, op provider.Operation, msg Message) (Reply, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var (
		body        []byte
		contentType string
		err         error
	)
	switch t.protocol {
	case provider.ProtocolREST:
		body, contentType = EncodeJSON(msg), "application/json"
	case provider.ProtocolSOAP:
		body, err = EncodeSOAP(Action(op), msg)
		if err != nil {
			return nil, err
		}
		contentType = "text/xml; charset=utf-8"
	default:
		return nil, errors.Errorf("unsupported protocol %q", t.protocol)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL(op), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", contentType)
	if t.protocol == provider.ProtocolSOAP {
		req.Header.Set("SOAPAction", `"`+soapServiceNS+"#"+Action(op)+`"`)
	} else {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", t.protocol, op)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s %s reply", t.protocol, op)
	}

	if t.protocol == provider.ProtocolSOAP {
		// Faults usually come back as 500 with a fault envelope.
		_, reply, err := DecodeSOAP(data)
		var fault *FaultError
		switch {
		case errors.As(err, &fault):
			return nil, errors.Wrapf(err, "soap %s", op)
		case resp.StatusCode/100 != 2:
			return nil, &StatusError{Protocol: t.protocol, Code: resp.StatusCode, Body: snippet(data)}
		case err != nil:
			return nil, err
		}
		return reply, nil
	}

	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Protocol: t.protocol, Code: resp.StatusCode, Body: snippet(data)}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Reply{}, nil
	}
	return DecodeJSON(data)
}

func snippet(b []byte) string {
	const limit = 256
	b = bytes.TrimSpace(b)
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
