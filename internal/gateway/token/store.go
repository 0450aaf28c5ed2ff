// Package token implements the shared bearer-token cache used by adapters
// whose processor requires a login call before every payment request.
// A Store holds one cached token per credential key and serializes
// refreshes behind a single mutex so that N concurrent callers sharing an
// expired token trigger exactly one login call.
package token

import (
	"context"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/paybridge/paybridge/internal/logger"
)

// Token is a cached login result. Terminal is only populated by processors
// that return a terminal identifier alongside the bearer token.
type Token struct {
	Value     string
	Terminal  string
	ExpiresAt time.Time
}

// FetchFunc performs the processor's login call and returns a fresh token
// with ExpiresAt already computed from the server-declared lifetime.
type FetchFunc func(ctx context.Context) (*Token, error)

// Store is a process-wide token cache. Construct one per gateway type and
// share it across adapter instances; tests construct isolated stores to
// avoid cross-test leakage. Entries are never evicted, only overwritten:
// staleness is detected lazily at read time by comparing ExpiresAt to the
// current time.
type Store struct {
	mu     sync.Mutex
	cache  *gocache.Cache
	logger *logger.Logger
	now    func() time.Time
}

// NewStore creates an empty Store.
func NewStore(log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Store{
		cache:  gocache.New(gocache.NoExpiration, 0),
		logger: log,
		now:    time.Now,
	}
}

// SetNowFunc overrides the clock used for staleness checks. Tests only.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Get is a pure lookup with no side effects. It returns whatever is cached
// for key, expired or not.
func (s *Store) Get(key string) (*Token, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*Token), true
}

// Put unconditionally overwrites any prior entry for key.
func (s *Store) Put(key string, t *Token) {
	s.cache.Set(key, t, gocache.NoExpiration)
}

// Fetch returns a fresh token for key, calling fetch at most once across
// all concurrent callers when the cached token is absent or expired.
//
// The freshness probe before the lock is intentionally lock-free: a token
// that expires between the check and its use surfaces as an ordinary
// authentication failure at request time, not a correctness violation.
func (s *Store) Fetch(ctx context.Context, key string, fetch FetchFunc) (*Token, error) {
	if t, ok := s.fresh(key); ok {
		return t, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if t, ok := s.fresh(key); ok {
		return t, nil
	}

	t, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	s.Put(key, t)
	s.logger.Debugw("refreshed bearer token", "expires_at", t.ExpiresAt)
	return t, nil
}

func (s *Store) fresh(key string) (*Token, bool) {
	t, ok := s.Get(key)
	if !ok {
		return nil, false
	}
	if s.now().After(t.ExpiresAt) {
		return nil, false
	}
	return t, true
}
