package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"
)

// NonceStore remembers request nonces for the replay window.
type NonceStore interface {
	// Remember records nonce and reports whether it was seen for the first time.
	Remember(ctx context.Context, nonce string) (bool, error)
	Close() error
}

type memoryNonceStore struct {
	mu    sync.Mutex
	cache *bigcache.BigCache
}

// NonceRetention is how long a nonce must be remembered for a timestamp
// window of ±window. A request stamped window in the future stays acceptable
// for 2*window after it is first seen.
func NonceRetention(window time.Duration) time.Duration {
	return 2 * window
}

// NewMemoryNonceStore keeps nonces in process memory for NonceRetention(window).
func NewMemoryNonceStore(ctx context.Context, window time.Duration) (NonceStore, error) {
	cfg := bigcache.DefaultConfig(NonceRetention(window))
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 10000
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init nonce cache: %w", err)
	}
	return &memoryNonceStore{cache: cache}, nil
}

func (s *memoryNonceStore) Remember(_ context.Context, nonce string) (bool, error) {
	// Get and Set are separate calls; the mutex makes the pair atomic.
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.cache.Get(nonce); err == nil {
		return false, nil
	} else if !errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, fmt.Errorf("nonce lookup: %w", err)
	}
	if err := s.cache.Set(nonce, []byte{1}); err != nil {
		return false, fmt.Errorf("nonce store: %w", err)
	}
	return true, nil
}

func (s *memoryNonceStore) Close() error {
	return s.cache.Close()
}

type redisNonceStore struct {
	cli    *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisNonceStore keeps nonces in Redis with a TTL of NonceRetention(window).
func NewRedisNonceStore(addr string, window time.Duration) NonceStore {
	return &redisNonceStore{
		cli:    redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    NonceRetention(window),
		prefix: "entity-sandbox:nonce:",
	}
}

func (s *redisNonceStore) Remember(ctx context.Context, nonce string) (bool, error) {
	fresh, err := s.cli.SetNX(ctx, s.prefix+nonce, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return fresh, nil
}

func (s *redisNonceStore) Close() error {
	return s.cli.Close()
}
