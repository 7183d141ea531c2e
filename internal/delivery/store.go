// Package delivery issues short-lived opaque download tokens.
//
// Tokens are time-bounded only: non-renewable, carrying no identity. A mobile
// device holding a valid token may download the finished photo; an expired
// token is gone, full stop.
package delivery

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/snapkiosk/boothd/internal/metrics"
)

// Record maps an opaque token to the session it belongs to.
type Record struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

// Store is an in-memory token store. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	tokens map[string]Record
	clock  clockwork.Clock
}

func NewStore(clock clockwork.Clock) *Store {
	return &Store{
		tokens: make(map[string]Record),
		clock:  clock,
	}
}

// CreateToken mints a fresh token for sessionID valid for ttl.
func (s *Store) CreateToken(sessionID string, ttl time.Duration) Record {
	token := "tok_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	r := Record{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: s.clock.Now().Add(ttl),
	}

	s.mu.Lock()
	s.tokens[token] = r
	s.mu.Unlock()

	metrics.DeliveryTokensMintedTotal.Inc()
	return r
}

// GetValid returns the record for token if present and unexpired. An expired
// token is evicted on the spot.
func (s *Store) GetValid(token string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.tokens[token]
	if !ok {
		return Record{}, false
	}
	if !s.clock.Now().Before(r.ExpiresAt) {
		delete(s.tokens, token)
		return Record{}, false
	}
	return r, true
}

// CleanupExpired evicts all expired tokens. Called by the sweeper.
func (s *Store) CleanupExpired() {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for token, r := range s.tokens {
		if !now.Before(r.ExpiresAt) {
			delete(s.tokens, token)
		}
	}
}

// Len reports the number of stored tokens, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}
