package connector

import (
	"bytes"
	"encoding/xml"
	"strings"
	"unicode"

	"github.com/go-faster/errors"

	"github.com/xenking/trip-checkout/internal/domain/provider"
)

const (
	soapEnvNS     = "http://schemas.xmlsoap.org/soap/envelope/"
	soapServiceNS = "urn:trip-checkout:provider"
)

// FaultError is a SOAP fault returned by a provider.
type FaultError struct {
	Code   string
	Reason string
}

func (e *FaultError) Error() string {
	return "soap fault " + e.Code + ": " + e.Reason
}

// Action returns the SOAP operation element name for op, e.g. "CreateHold".
func Action(op provider.Operation) string {
	var b strings.Builder
	for _, part := range strings.Split(string(op), "_") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// EncodeSOAP wraps msg in a SOAP 1.1 envelope under the given action element.
func EncodeSOAP(action string, msg Message) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)

	enc := xml.NewEncoder(&buf)
	envelope := xml.StartElement{
		Name: xml.Name{Local: "soap:Envelope"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "xmlns:soap"}, Value: soapEnvNS}},
	}
	body := xml.StartElement{Name: xml.Name{Local: "soap:Body"}}
	op := xml.StartElement{Name: xml.Name{Space: soapServiceNS, Local: action}}

	tokens := []xml.Token{envelope, body, op}
	for _, f := range msg {
		el := xml.StartElement{Name: xml.Name{Local: f.Name}}
		tokens = append(tokens, el, xml.CharData(text(f.Value)), el.End())
	}
	tokens = append(tokens, op.End(), body.End(), envelope.End())

	for _, t := range tokens {
		if err := enc.EncodeToken(t); err != nil {
			return nil, errors.Wrap(err, "encode soap envelope")
		}
	}
	if err := enc.Flush(); err != nil {
		return nil, errors.Wrap(err, "flush soap envelope")
	}
	return buf.Bytes(), nil
}

// EncodeSOAPFault renders a SOAP 1.1 fault envelope.
func EncodeSOAPFault(code, reason string) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + soapEnvNS + `"><soap:Body><soap:Fault>`)
	buf.WriteString("<faultcode>")
	_ = xml.EscapeText(&buf, []byte(code))
	buf.WriteString("</faultcode><faultstring>")
	_ = xml.EscapeText(&buf, []byte(reason))
	buf.WriteString("</faultstring></soap:Fault></soap:Body></soap:Envelope>")
	return buf.Bytes()
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			Reason string `xml:"faultstring"`
		} `xml:"Fault"`
		Content []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// DecodeSOAP parses a SOAP envelope. The leaf elements under the body's
// operation element become Reply fields keyed by local name; a fault is
// returned as *FaultError. The action element name is returned alongside.
func DecodeSOAP(data []byte) (string, Reply, error) {
	var env soapEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return "", nil, errors.Wrap(err, "decode soap envelope")
	}
	if f := env.Body.Fault; f != nil {
		return "", nil, &FaultError{Code: f.Code, Reason: f.Reason}
	}

	dec := xml.NewDecoder(bytes.NewReader(env.Body.Content))
	r := Reply{}
	var (
		action   string
		stack    []string
		chars    strings.Builder
		hasChild []bool
	)
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) == 0 && action == "" {
				action = t.Name.Local
			}
			if len(hasChild) > 0 {
				hasChild[len(hasChild)-1] = true
			}
			stack = append(stack, t.Name.Local)
			hasChild = append(hasChild, false)
			chars.Reset()
		case xml.CharData:
			chars.Write(t)
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			leaf := !hasChild[len(hasChild)-1]
			// Depth 1 is the action element itself.
			if leaf && len(stack) > 1 {
				r[t.Name.Local] = strings.TrimSpace(chars.String())
			}
			stack = stack[:len(stack)-1]
			hasChild = hasChild[:len(hasChild)-1]
			chars.Reset()
		}
	}
	if action == "" {
		return "", nil, errors.New("soap body is empty")
	}
	return action, r, nil
}
