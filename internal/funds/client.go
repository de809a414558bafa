// Package funds is the client of the funds transfer service: an opaque
// two-account debit/credit primitive.
package funds

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// ErrDeclined is returned when the service answered but did not move money.
var ErrDeclined = errors.New("transfer declined")

// Client moves money between two accounts. A nil error means the amount was
// moved irrevocably; any error means nothing moved.
type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
}

// Options configures a Client.
type Options struct {
	URL     string
	Timeout time.Duration
	// TracerProvider instruments the outbound transport when set.
	TracerProvider trace.TracerProvider
}

// New returns a Client for the service at opts.URL.
func New(opts Options) *Client {
	var transportOpts []otelhttp.Option
	if opts.TracerProvider != nil {
		transportOpts = append(transportOpts, otelhttp.WithTracerProvider(opts.TracerProvider))
	}
	return &Client{
		baseURL: strings.TrimRight(opts.URL, "/"),
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport, transportOpts...)},
		timeout: opts.Timeout,
	}
}

// Transfer moves amount from one account to another.
func (c *Client) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Errorf("transfer amount must be positive, got %s", amount)
	}

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("from")
	e.Str(from)
	e.FieldStart("to")
	e.Str(to)
	e.FieldStart("amount")
	e.Raw([]byte(amount.StringFixed(2)))
	e.ObjEnd()

	data, status, err := c.do(ctx, http.MethodPost, "/transfers", e.Bytes())
	if err != nil {
		return errors.Wrap(err, "transfer")
	}
	if status/100 != 2 {
		return errors.Wrapf(ErrDeclined, "status %d", status)
	}

	ok, reason, err := decodeResult(data)
	if err != nil {
		return errors.Wrap(err, "decode transfer result")
	}
	if !ok {
		if reason == "" {
			return ErrDeclined
		}
		return errors.Wrap(ErrDeclined, reason)
	}
	return nil
}

// Ping checks that the service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, status, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status/100 != 2 {
		return errors.Errorf("funds service status %d", status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, 0, errors.Wrap(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, 0, errors.Wrap(err, "read body")
	}
	return data, resp.StatusCode, nil
}

func decodeResult(data []byte) (ok bool, reason string, _ error) {
	err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "ok":
			v, err := d.Bool()
			ok = v
			return err
		case "reason", "message":
			v, err := d.Str()
			reason = v
			return err
		default:
			return d.Skip()
		}
	})
	return ok, reason, err
}
