package entity

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// signSeparator joins the canonical fields. None of the signed fields are
// expected to contain it: methods are tokens, paths and query strings are
// URL-escaped, timestamps are digits and nonces are UUIDs. The body is the
// last field, so a '|' inside JSON cannot shift the other fields.
const signSeparator = '|'

// Signer computes the X-Signature header: lowercase hex HMAC-SHA256 over
//
//	method | signed_path | timestamp | nonce | body
//
// keyed with the UTF-8 bytes of the shared secret.
type Signer struct {
	secret []byte
}

func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: HMAC secret is required", ErrSignatureContext)
	}
	return &Signer{secret: []byte(secret)}, nil
}

// CanonicalString returns the exact byte sequence that is signed.
func CanonicalString(method, signedPath, timestamp, nonce, body string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(method) + len(signedPath) + len(timestamp) + len(nonce) + len(body) + 4)
	writeField(&buf, method)
	writeField(&buf, signedPath)
	writeField(&buf, timestamp)
	writeField(&buf, nonce)
	buf.WriteString(body)
	return buf.Bytes()
}

func writeField(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	buf.WriteByte(signSeparator)
}

// Sign returns the hex signature for one request.
func (s *Signer) Sign(method, signedPath, timestamp, nonce, body string) (string, error) {
	if s == nil || len(s.secret) == 0 {
		return "", fmt.Errorf("%w: signer has no secret", ErrSignatureContext)
	}
	if method == "" || strings.ToUpper(method) != method {
		return "", fmt.Errorf("%w: method must be a non-empty upper-case token, got %q", ErrSignatureContext, method)
	}
	if !strings.HasPrefix(signedPath, "/") {
		return "", fmt.Errorf("%w: path must start with '/', got %q", ErrSignatureContext, signedPath)
	}
	if timestamp == "" || nonce == "" {
		return "", fmt.Errorf("%w: timestamp and nonce are required", ErrSignatureContext)
	}
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write(CanonicalString(method, signedPath, timestamp, nonce, body))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify reports whether signature matches the request fields. The comparison
// is constant time.
func (s *Signer) Verify(method, signedPath, timestamp, nonce, body, signature string) bool {
	want, err := s.Sign(method, signedPath, timestamp, nonce, body)
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return false
	}
	wantRaw, _ := hex.DecodeString(want)
	return hmac.Equal(got, wantRaw)
}
