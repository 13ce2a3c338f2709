package entity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 32 << 20 // 32 MiB

// Request is a fully signed outbound request. Target is the signed path
// (path plus canonical query) and must be sent byte for byte.
type Request struct {
	Method string
	Target string
	Header http.Header
	Body   []byte
}

// Response is the raw server answer handed back to the orchestrator.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport sends one request. Implementations own connection pooling, TLS,
// timeouts and any retry policy; a retried request must not be re-sent with
// the same nonce, so retrying belongs above the Client, not inside Transport.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// HTTPTransport is the net/http Transport.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTransport returns a transport rooted at baseURL. A nil httpClient gets
// a client with the given timeout.
func NewHTTPTransport(baseURL string, timeout time.Duration, httpClient *http.Client) *HTTPTransport {
	if httpClient == nil {
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPTransport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.New("entity: request is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	// The target is appended verbatim so the query keeps the signed ordering.
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, t.baseURL+req.Target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("response body too large (max %d bytes)", maxResponseBytes)
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       data,
	}, nil
}
