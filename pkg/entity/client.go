package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	HeaderAPIKey        = "X-API-Key"
	HeaderTimestamp     = "X-Timestamp"
	HeaderNonce         = "X-Nonce"
	HeaderSignature     = "X-Signature"
	HeaderTransactionID = "X-Transaction-ID"

	contentTypeJSON = "application/json"
)

// reservedHeaders are set by Do and cannot be replaced through Call.Extra.
var reservedHeaders = []string{
	"Content-Type",
	HeaderAPIKey,
	HeaderTimestamp,
	HeaderNonce,
	HeaderSignature,
	HeaderTransactionID,
}

func isReservedHeader(key string) bool {
	key = strings.TrimSpace(key)
	for _, h := range reservedHeaders {
		if strings.EqualFold(h, key) {
			return true
		}
	}
	return false
}

// Client signs requests, sends them through a Transport, decrypts secure
// packets and validates response envelopes. It also owns the transaction
// Session.
//
// A Client is not safe for concurrent use: the transaction slot is shared by
// every call. Use one Client per goroutine or serialise access.
type Client struct {
	cfg       Config
	signer    *Signer
	codec     *PacketCodec
	transport Transport
	session   Session

	logger *zap.Logger
	now    func() time.Time
	nonce  func() string
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default net/http transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithHTTPClient keeps the default transport but sends through h.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.transport = NewHTTPTransport(c.cfg.BaseURL, c.cfg.Timeout, h)
		}
	}
}

// WithLogger sets the logger used for debug tracing of calls.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// WithNonceSource overrides the nonce generator. Every returned value must be
// unique; the server rejects reused nonces.
func WithNonceSource(f func() string) Option {
	return func(c *Client) {
		if f != nil {
			c.nonce = f
		}
	}
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	signer, err := NewSigner(cfg.HMACSecret)
	if err != nil {
		return nil, err
	}
	codec, err := NewPacketCodec(cfg.HMACSecret, *cfg.MagicLen, cfg.ExpectedMagic)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:    cfg,
		signer: signer,
		codec:  codec,
		logger: zap.NewNop(),
		now:    time.Now,
		nonce:  uuid.NewString,
	}
	c.transport = NewHTTPTransport(cfg.BaseURL, cfg.Timeout, nil)
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns a copy of the client configuration.
func (c *Client) Config() Config {
	cfg := c.cfg
	cfg.ExpectedMagic = append([]byte(nil), c.cfg.ExpectedMagic...)
	cfg.MagicLen = Int(*c.cfg.MagicLen)
	return cfg
}

// Do executes one call: sign, send, decrypt if needed and validate the
// envelope. A response with ok=false yields *ApplicationError.
func (c *Client) Do(ctx context.Context, call *Call) (*Result, error) {
	if call == nil {
		return nil, fmt.Errorf("entity: call is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	signedPath := call.SignedPath()
	body, err := encodeBody(call.Body)
	if err != nil {
		return nil, err
	}

	// Timestamp and nonce are taken here, right before sending, and never reused.
	timestamp := strconv.FormatInt(c.now().Unix(), 10)
	nonce := c.nonce()
	signature, err := c.signer.Sign(call.Method, signedPath, timestamp, nonce, string(body))
	if err != nil {
		return nil, err
	}

	header := make(http.Header, 6+len(call.Extra))
	header.Set("Content-Type", contentTypeJSON)
	header.Set(HeaderAPIKey, c.cfg.APIKey)
	header.Set(HeaderTimestamp, timestamp)
	header.Set(HeaderNonce, nonce)
	header.Set(HeaderSignature, signature)
	if call.TransactionID != "" {
		header.Set(HeaderTransactionID, call.TransactionID)
	}
	for _, h := range call.Extra {
		if isReservedHeader(h.Key) {
			return nil, fmt.Errorf("%w: extra header %q would replace a protocol header", ErrSignatureContext, h.Key)
		}
		header.Set(h.Key, h.Value)
	}

	c.logger.Sugar().Debugw("Sending entity request",
		"method", call.Method,
		"path", signedPath,
		"transaction", call.TransactionID != "",
	)
	resp, err := c.transport.Do(ctx, &Request{
		Method: call.Method,
		Target: signedPath,
		Header: header,
		Body:   body,
	})
	if err != nil {
		return nil, &TransportError{Method: call.Method, Path: signedPath, Err: err}
	}

	payload := resp.Body
	if IsPacketContentType(resp.Header.Get("Content-Type")) {
		payload, err = c.codec.Open(resp.Body)
		if err != nil {
			c.logger.Sugar().Debugw("Secure packet rejected", "path", signedPath, "status", resp.StatusCode, "size", len(resp.Body))
			return nil, err
		}
	}

	res, err := parseEnvelope(resp.StatusCode, payload)
	if err != nil {
		return nil, err
	}
	if !res.OK {
		return nil, &ApplicationError{StatusCode: resp.StatusCode, Message: res.Message}
	}
	c.logger.Sugar().Debugw("Entity request succeeded", "method", call.Method, "path", signedPath, "status", resp.StatusCode)
	return res, nil
}

// encodeBody returns the canonical JSON text of v, or nothing for nil.
func encodeBody(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return bytes.TrimSpace(raw), nil
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("entity: encode body: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
