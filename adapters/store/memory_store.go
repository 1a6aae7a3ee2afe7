package store

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/handshake/core"
)

// MemoryNonceStore is an in-memory implementation of ports.NonceStore.
// It is meant for single-instance development and tests.
type MemoryNonceStore struct {
	nonces map[string]*core.Nonce
	ttl    time.Duration
	now    func() time.Time
	mu     sync.Mutex
}

// NewMemoryNonceStore creates a new in-memory nonce store
func NewMemoryNonceStore(ttl time.Duration, opts ...Option) *MemoryNonceStore {
	o := buildOptions(opts)
	return &MemoryNonceStore{
		nonces: make(map[string]*core.Nonce),
		ttl:    ttl,
		now:    o.now,
	}
}

// Issue creates a new unused nonce
func (s *MemoryNonceStore) Issue(ctx context.Context) (*core.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	for {
		v, err := randomToken(nonceBytes)
		if err != nil {
			return nil, err
		}
		if _, taken := s.nonces[v]; !taken {
			value = v
			break
		}
	}

	now := s.now()
	nonce := &core.Nonce{
		Value:     value,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.nonces[value] = nonce

	cp := *nonce
	return &cp, nil
}

// Redeem marks the nonce used if it is unused and unexpired
func (s *MemoryNonceStore) Redeem(ctx context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, exists := s.nonces[value]
	if !exists || nonce.Used {
		return false, nil
	}

	now := s.now()
	if nonce.Expired(now) {
		return false, nil
	}

	nonce.Used = true
	nonce.UsedAt = &now

	return true, nil
}

// Sweep removes nonces past their expiry
func (s *MemoryNonceStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for value, nonce := range s.nonces {
		if nonce.Expired(now) {
			delete(s.nonces, value)
			removed++
		}
	}
	return removed
}

// MemorySessionStore is an in-memory implementation of ports.SessionStore
type MemorySessionStore struct {
	sessions map[string]core.Session
	ttl      time.Duration
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMemorySessionStore creates a new in-memory session store
func NewMemorySessionStore(ttl time.Duration, opts ...Option) *MemorySessionStore {
	o := buildOptions(opts)
	return &MemorySessionStore{
		sessions: make(map[string]core.Session),
		ttl:      ttl,
		now:      o.now,
	}
}

// Issue creates a session for walletAddress
func (s *MemorySessionStore) Issue(ctx context.Context, walletAddress string) (*core.Session, error) {
	token, err := randomToken(sessionBytes)
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := core.Session{
		ID:            token,
		WalletAddress: core.NormalizeAddress(walletAddress),
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session

	return &session, nil
}

// Validate returns the session for token if it has not expired
func (s *MemorySessionStore) Validate(ctx context.Context, token string) (*core.Session, error) {
	s.mu.RLock()
	session, exists := s.sessions[token]
	s.mu.RUnlock()

	if !exists || !session.Valid(s.now()) {
		return nil, core.ErrUnauthenticated
	}

	return &session, nil
}

// Revoke deletes the session, ignoring unknown tokens
func (s *MemorySessionStore) Revoke(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}

// Sweep removes expired sessions
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, session := range s.sessions {
		if !session.Valid(now) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// Sweeper is implemented by the in-memory stores
type Sweeper interface {
	Sweep() int
}

// RunSweeper calls Sweep on every sweeper each interval until ctx is done
func RunSweeper(ctx context.Context, interval time.Duration, sweepers ...Sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range sweepers {
				s.Sweep()
			}
		}
	}
}
