package connector

import (
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Field is a single named value in a provider request.
type Field struct {
	Name  string
	Value any
}

// Message is an ordered set of request fields. Supported value types are
// string, int, int64, bool, decimal.Decimal and time.Time; both transports
// encode them the same way so a connector does not care which protocol
// carries the call.
type Message []Field

// With returns the message extended by one field.
func (m Message) With(name string, v any) Message {
	return append(m, Field{Name: name, Value: v})
}

// Get returns the value of the named field.
func (m Message) Get(name string) (any, bool) {
	for _, f := range m {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// text renders a field value the way it travels on the wire.
func text(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	case decimal.Decimal:
		return v.StringFixed(2)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case nil:
		return ""
	default:
		panic(errors.Errorf("connector: unsupported field type %T", v))
	}
}

// Reply is a provider response flattened to field name -> textual value.
// Nested objects are flattened with dotted keys ("data.hold_id").
type Reply map[string]string

// lookup returns the first non-empty value among keys. Every key is also
// tried under the common "data." and "result." envelopes.
func (r Reply) lookup(keys ...string) (string, bool) {
	for _, k := range keys {
		for _, candidate := range []string{k, "data." + k, "result." + k} {
			if v, ok := r[candidate]; ok && v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// String returns the first present value among keys, or "".
func (r Reply) String(keys ...string) string {
	v, _ := r.lookup(keys...)
	return v
}

// Bool reports whether the first present value among keys is truthy.
func (r Reply) Bool(keys ...string) bool {
	v, ok := r.lookup(keys...)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// Has reports whether any of keys is present.
func (r Reply) Has(keys ...string) bool {
	_, ok := r.lookup(keys...)
	return ok
}

// Decimal parses the first present value among keys. Missing values yield zero.
func (r Reply) Decimal(keys ...string) (decimal.Decimal, error) {
	v, ok := r.lookup(keys...)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(v))
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "parse %s", keys[0])
	}
	return d, nil
}

// Int parses the first present value among keys. Missing values yield zero.
func (r Reply) Int(keys ...string) (int, error) {
	v, ok := r.lookup(keys...)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", keys[0])
	}
	return n, nil
}

// Time parses the first present timestamp among keys. Accepts RFC 3339 and
// Unix seconds.
func (r Reply) Time(keys ...string) (time.Time, bool) {
	v, ok := r.lookup(keys...)
	if !ok {
		return time.Time{}, false
	}
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if sec, err := strconv.ParseInt(v, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), true
	}
	return time.Time{}, false
}
