package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Param is a single query parameter.
type Param struct {
	Key   string
	Value string
}

// Params is an ordered query string. Order is preserved exactly as appended,
// because the encoded form is part of the signed path.
type Params []Param

// Add appends a parameter and returns the extended slice.
func (p Params) Add(key, value string) Params {
	return append(p, Param{Key: key, Value: value})
}

// AddInt appends an integer parameter.
func (p Params) AddInt(key string, value int) Params {
	return p.Add(key, strconv.Itoa(value))
}

// Encode renders the parameters as k=v pairs joined by '&' in insertion order.
func (p Params) Encode() string {
	if len(p) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, kv := range p {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(kv.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(kv.Value))
	}
	return sb.String()
}

// Header is an extra request header. Extra headers are sent but never signed.
type Header struct {
	Key   string
	Value string
}

// Call describes one request to the entity server.
type Call struct {
	Method string
	Path   string
	Query  Params
	// Body is JSON-encoded when non-nil. A nil body and an empty body sign
	// identically (empty string).
	Body any
	// TransactionID is sent as X-Transaction-ID when non-empty.
	TransactionID string
	Extra         []Header
}

// SignedPath returns the path plus its canonical query string, exactly as it
// is transmitted and signed.
func (c *Call) SignedPath() string {
	qs := c.Query.Encode()
	if qs == "" {
		return c.Path
	}
	return c.Path + "?" + qs
}

// Filter is one condition of a query, e.g. {Field: "status", Op: "eq", Value: "active"}.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// ListOptions controls paging for List and Query. Zero values mean page 1,
// limit 20, no ordering.
type ListOptions struct {
	Page    int
	Limit   int
	OrderBy string
}

func (o ListOptions) params() Params {
	page, limit := o.Page, o.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	p := Params{}.AddInt("page", page).AddInt("limit", limit)
	if o.OrderBy != "" {
		p = p.Add("order_by", o.OrderBy)
	}
	return p
}

// HistoryOptions controls paging for History. Zero values mean page 1, limit 50.
type HistoryOptions struct {
	Page  int
	Limit int
}

func (o HistoryOptions) params() Params {
	page, limit := o.Page, o.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	return Params{}.AddInt("page", page).AddInt("limit", limit)
}

// SubmitOptions configures Submit. An explicit TransactionID takes precedence
// over the client's active transaction.
type SubmitOptions struct {
	TransactionID string
}

// DeleteOptions configures Delete.
type DeleteOptions struct {
	TransactionID string
	Hard          bool
}

// Ref is a row reference returned by the server: either a committed seq such
// as "7" or, inside a transaction, a placeholder such as "$tx.0" that the
// server resolves on commit.
type Ref string

// UnmarshalJSON accepts both JSON numbers and strings.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = Ref(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("entity: ref must be a number or string: %w", err)
	}
	*r = Ref(n.String())
	return nil
}

// MarshalJSON emits committed seqs as numbers and placeholders as strings.
func (r Ref) MarshalJSON() ([]byte, error) {
	if n, err := r.Int64(); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(r))
}

// Pending reports whether the ref is an unresolved transaction placeholder.
func (r Ref) Pending() bool {
	return strings.HasPrefix(string(r), "$tx.")
}

// Int64 returns the committed seq.
func (r Ref) Int64() (int64, error) {
	return strconv.ParseInt(string(r), 10, 64)
}

func (r Ref) String() string {
	return string(r)
}

// Result is a decoded response envelope with ok=true.
type Result struct {
	OK         bool
	Message    string
	StatusCode int

	raw    json.RawMessage
	fields map[string]json.RawMessage
}

func parseEnvelope(status int, body []byte) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty body (HTTP %d)", ErrMalformedEnvelope, status)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: body is not a JSON object (HTTP %d)", ErrMalformedEnvelope, status)
	}
	okRaw, found := fields["ok"]
	if !found {
		return nil, fmt.Errorf("%w: missing ok field (HTTP %d)", ErrMalformedEnvelope, status)
	}
	res := &Result{
		StatusCode: status,
		raw:        append(json.RawMessage(nil), trimmed...),
		fields:     fields,
	}
	if err := json.Unmarshal(okRaw, &res.OK); err != nil {
		return nil, fmt.Errorf("%w: ok field is not a boolean (HTTP %d)", ErrMalformedEnvelope, status)
	}
	if msgRaw, found := fields["message"]; found {
		// A non-string message is ignored rather than rejected.
		_ = json.Unmarshal(msgRaw, &res.Message)
	}
	return res, nil
}

// Raw returns a copy of the full JSON envelope.
func (r *Result) Raw() []byte {
	if r == nil {
		return nil
	}
	return append([]byte(nil), r.raw...)
}

// Decode unmarshals the full envelope into out.
func (r *Result) Decode(out any) error {
	if r == nil {
		return fmt.Errorf("entity: nil result")
	}
	return json.Unmarshal(r.raw, out)
}

// Has reports whether the envelope carries the named top-level field.
func (r *Result) Has(name string) bool {
	if r == nil {
		return false
	}
	_, ok := r.fields[name]
	return ok
}

// Field unmarshals the named top-level field into out.
func (r *Result) Field(name string, out any) error {
	if r == nil {
		return fmt.Errorf("entity: nil result")
	}
	raw, ok := r.fields[name]
	if !ok {
		return fmt.Errorf("entity: response has no %q field", name)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("entity: decode %q field: %w", name, err)
	}
	return nil
}

// Data unmarshals the "data" field, used by get, list, query and history.
func (r *Result) Data(out any) error {
	return r.Field("data", out)
}

// Seq returns the "seq" field of a submit response.
func (r *Result) Seq() (Ref, error) {
	var ref Ref
	if err := r.Field("seq", &ref); err != nil {
		return "", err
	}
	return ref, nil
}

// TransactionID returns the "transaction_id" field of a start response.
func (r *Result) TransactionID() (string, error) {
	var id string
	if err := r.Field("transaction_id", &id); err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty transaction_id", ErrMalformedEnvelope)
	}
	return id, nil
}
