package entity

import "fmt"

// Session holds the single active transaction of one client.
//
// A Session is not safe for concurrent use. Interleaving submit and commit
// calls from several goroutines on one client can attach a request to the
// wrong transaction even with locking, so each transaction should be driven by
// a single goroutine that owns the client.
type Session struct {
	active string
}

// Active returns the active transaction id, if any.
func (s *Session) Active() (string, bool) {
	return s.active, s.active != ""
}

// Begin records id as the active transaction. It refuses to replace an active
// transaction so that the first one is never orphaned on the server.
func (s *Session) Begin(id string) error {
	if s.active != "" {
		return fmt.Errorf("%w: %s", ErrTransactionAlreadyActive, s.active)
	}
	if id == "" {
		return fmt.Errorf("%w: empty transaction id", ErrMalformedEnvelope)
	}
	s.active = id
	return nil
}

// check reports whether Begin would currently succeed.
func (s *Session) check() error {
	if s.active != "" {
		return fmt.Errorf("%w: %s", ErrTransactionAlreadyActive, s.active)
	}
	return nil
}

// Take resolves the transaction to commit or roll back: explicit wins,
// otherwise the active one. When the resolved id is the active one the slot is
// cleared immediately, before the server has answered; the server remains the
// source of truth for the outcome.
func (s *Session) Take(explicit string) (string, error) {
	id := explicit
	if id == "" {
		id = s.active
	}
	if id == "" {
		return "", ErrNoActiveTransaction
	}
	if id == s.active {
		s.active = ""
	}
	return id, nil
}

// Attach returns the transaction id to send with a mutating call.
func (s *Session) Attach(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return s.active
}

// Reset forgets the active transaction without contacting the server.
func (s *Session) Reset() {
	s.active = ""
}
