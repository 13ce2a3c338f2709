package entity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func TestCanonicalString_FieldOrder(t *testing.T) {
	got := string(CanonicalString("POST", "/v1/entity/product/submit", "1700000000", "n-1", `{"a":1}`))
	want := `POST|/v1/entity/product/submit|1700000000|n-1|{"a":1}`
	if got != want {
		t.Fatalf("canonical string mismatch:\n got %q\nwant %q", got, want)
	}

	// Empty body still keeps the separator after the nonce.
	if got := string(CanonicalString("GET", "/x", "1", "n", "")); got != "GET|/x|1|n|" {
		t.Fatalf("empty body canonical = %q", got)
	}
}

func TestSign_MatchesHMAC(t *testing.T) {
	s, err := NewSigner("top-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	sig, err := s.Sign("GET", "/v1/entity/product/list?page=1&limit=20", "1700000000", "abc", "")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("top-secret"))
	mac.Write([]byte("GET|/v1/entity/product/list?page=1&limit=20|1700000000|abc|"))
	want := hex.EncodeToString(mac.Sum(nil))
	if sig != want {
		t.Fatalf("signature mismatch: got %s want %s", sig, want)
	}
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}
}

func TestSign_Deterministic(t *testing.T) {
	s, _ := NewSigner("k")
	a, _ := s.Sign("POST", "/p", "1", "n", "body")
	b, _ := s.Sign("POST", "/p", "1", "n", "body")
	if a != b {
		t.Fatalf("same input produced different signatures")
	}
	c, _ := s.Sign("POST", "/p", "1", "n2", "body")
	if a == c {
		t.Fatalf("nonce change did not change signature")
	}
}

func TestSign_AnyInputChangesSignature(t *testing.T) {
	type input struct{ secret, method, path, ts, nonce, body string }
	base := input{"k", "POST", "/p", "1", "n", "body"}
	sign := func(in input) string {
		s, err := NewSigner(in.secret)
		if err != nil {
			t.Fatalf("NewSigner: %v", err)
		}
		sig, err := s.Sign(in.method, in.path, in.ts, in.nonce, in.body)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		return sig
	}
	want := sign(base)

	cases := map[string]func(*input){
		"secret":     func(in *input) { in.secret = "k2" },
		"method":     func(in *input) { in.method = "GET" },
		"path":       func(in *input) { in.path = "/p?x=1" },
		"timestamp":  func(in *input) { in.ts = "2" },
		"nonce":      func(in *input) { in.nonce = "n2" },
		"body":       func(in *input) { in.body = "body " },
		"empty body": func(in *input) { in.body = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			mutate(&in)
			if got := sign(in); got == want {
				t.Fatalf("changing %s did not change the signature", name)
			}
		})
	}
}

func TestSign_RejectsBadContext(t *testing.T) {
	if _, err := NewSigner(""); !errors.Is(err, ErrSignatureContext) {
		t.Fatalf("NewSigner(\"\") err = %v, want ErrSignatureContext", err)
	}

	s, _ := NewSigner("k")
	cases := []struct {
		name                   string
		method, path, ts, nonc string
	}{
		{"lower-case method", "get", "/p", "1", "n"},
		{"empty method", "", "/p", "1", "n"},
		{"relative path", "GET", "p", "1", "n"},
		{"missing timestamp", "GET", "/p", "", "n"},
		{"missing nonce", "GET", "/p", "1", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Sign(tc.method, tc.path, tc.ts, tc.nonc, ""); !errors.Is(err, ErrSignatureContext) {
				t.Fatalf("err = %v, want ErrSignatureContext", err)
			}
		})
	}
}

func TestVerify(t *testing.T) {
	s, _ := NewSigner("k")
	sig, _ := s.Sign("DELETE", "/v1/entity/a/delete/3?hard=true", "9", "n", "")

	if !s.Verify("DELETE", "/v1/entity/a/delete/3?hard=true", "9", "n", "", sig) {
		t.Fatalf("valid signature rejected")
	}
	if !s.Verify("DELETE", "/v1/entity/a/delete/3?hard=true", "9", "n", "", toUpperHex(sig)) {
		t.Fatalf("upper-case hex signature rejected")
	}
	if s.Verify("DELETE", "/v1/entity/a/delete/3", "9", "n", "", sig) {
		t.Fatalf("signature accepted for a different path")
	}
	if s.Verify("DELETE", "/v1/entity/a/delete/3?hard=true", "9", "n", "", "not-hex") {
		t.Fatalf("garbage signature accepted")
	}

	other, _ := NewSigner("other")
	if other.Verify("DELETE", "/v1/entity/a/delete/3?hard=true", "9", "n", "", sig) {
		t.Fatalf("signature accepted under a different secret")
	}
}

func toUpperHex(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
