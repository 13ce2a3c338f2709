package sandbox

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrTransactionNotFound = errors.New("transaction not found or expired")

const (
	opSubmit = "submit"
	opDelete = "delete"
)

// queuedOp is a mutating call deferred until commit.
type queuedOp struct {
	Kind   string
	Entity string
	Data   map[string]any
	Seq    int64
	Hard   bool
}

type txEntry struct {
	ops       []queuedOp
	expiresAt time.Time
}

// TxRegistry holds open transactions. Entries that are neither committed nor
// rolled back expire after ttl.
type TxRegistry struct {
	ttl time.Duration

	mu sync.Mutex
	m  map[string]*txEntry
}

func NewTxRegistry(ttl time.Duration) *TxRegistry {
	return &TxRegistry{
		ttl: ttl,
		m:   make(map[string]*txEntry),
	}
}

// Start opens a transaction and returns its id.
func (r *TxRegistry) Start(now time.Time) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(now)
	r.m[id] = &txEntry{expiresAt: now.Add(r.ttl)}
	return id
}

// Enqueue appends op and returns its index, which backs the "$tx.N" placeholder.
func (r *TxRegistry) Enqueue(id string, op queuedOp, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.m[id]
	if !ok || !now.Before(e.expiresAt) {
		delete(r.m, id)
		return 0, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	e.ops = append(e.ops, op)
	return len(e.ops) - 1, nil
}

// Take removes the transaction and returns its queued operations.
func (r *TxRegistry) Take(id string, now time.Time) ([]queuedOp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.m[id]
	delete(r.m, id)
	if !ok || !now.Before(e.expiresAt) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return e.ops, nil
}

// Len returns the number of open transactions.
func (r *TxRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

func (r *TxRegistry) evictLocked(now time.Time) {
	for id, e := range r.m {
		if !now.Before(e.expiresAt) {
			delete(r.m, id)
		}
	}
}
