package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrSignatureContext is returned when a request cannot be signed, e.g. the
	// shared secret is missing or the method/path are malformed.
	ErrSignatureContext = errors.New("entity: invalid signing context")
	// ErrDecryptionFailed is returned when a secure packet cannot be opened:
	// truncated input, magic prefix mismatch or authentication tag failure.
	ErrDecryptionFailed = errors.New("entity: packet decryption failed")
	// ErrMalformedEnvelope is returned when a response body is not a JSON
	// object carrying a boolean "ok" field.
	ErrMalformedEnvelope = errors.New("entity: malformed response envelope")
	// ErrNoActiveTransaction is returned by commit/rollback when no id was
	// supplied and the client holds no active transaction.
	ErrNoActiveTransaction = errors.New("entity: no active transaction")
	// ErrTransactionAlreadyActive is returned by StartTransaction while a
	// previous transaction has not been committed or rolled back.
	ErrTransactionAlreadyActive = errors.New("entity: transaction already active")
)

// TransportError wraps a failure reported by the Transport (network error,
// timeout, cancelled context). The underlying error is kept intact.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("entity: transport %s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ApplicationError reports a response whose envelope carried ok=false.
// Message is the server's message verbatim.
type ApplicationError struct {
	StatusCode int
	Message    string
}

func (e *ApplicationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Message
	if msg == "" {
		msg = "Unknown"
	}
	return fmt.Sprintf("EntityServer error: %s (HTTP %d)", msg, e.StatusCode)
}

// IsApplicationError reports whether err is (or wraps) an *ApplicationError.
func IsApplicationError(err error) bool {
	var appErr *ApplicationError
	return errors.As(err, &appErr)
}
