package connector

import (
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// EncodeJSON renders msg as a flat JSON object. Decimals are written as JSON
// numbers with two fractional digits.
func EncodeJSON(msg Message) []byte {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	for _, f := range msg {
		e.FieldStart(f.Name)
		switch v := f.Value.(type) {
		case int:
			e.Int(v)
		case int64:
			e.Int64(v)
		case bool:
			e.Bool(v)
		case decimal.Decimal:
			e.Raw([]byte(v.StringFixed(2)))
		case time.Time:
			e.Str(text(v))
		case nil:
			e.Null()
		default:
			e.Str(text(v))
		}
	}
	e.ObjEnd()

	out := make([]byte, len(e.Bytes()))
	copy(out, e.Bytes())
	return out
}

// DecodeJSON flattens a JSON object into a Reply. Arrays are skipped.
func DecodeJSON(data []byte) (Reply, error) {
	r := Reply{}
	d := jx.DecodeBytes(data)
	if d.Next() != jx.Object {
		return nil, errors.Errorf("expected JSON object, got %s", d.Next())
	}
	if err := decodeObject(d, "", r); err != nil {
		return nil, errors.Wrap(err, "decode json reply")
	}
	return r, nil
}

func decodeObject(d *jx.Decoder, prefix string, r Reply) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		name := prefix + key
		switch d.Next() {
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			r[name] = s
		case jx.Number:
			n, err := d.Num()
			if err != nil {
				return err
			}
			r[name] = n.String()
		case jx.Bool:
			b, err := d.Bool()
			if err != nil {
				return err
			}
			r[name] = strconv.FormatBool(b)
		case jx.Null:
			return d.Null()
		case jx.Object:
			return decodeObject(d, name+".", r)
		default:
			return d.Skip()
		}
		return nil
	})
}
