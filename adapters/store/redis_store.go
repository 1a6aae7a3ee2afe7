package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/handshake/core"
	"github.com/redis/go-redis/v9"
)

// issueNonceScript creates the nonce hash only when the key is free
var issueNonceScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], 'used', '0', 'created_at', ARGV[1], 'expires_at', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// redeemNonceScript is the compare-and-set that makes redemption at-most-once
var redeemNonceScript = redis.NewScript(`
local used = redis.call('HGET', KEYS[1], 'used')
if not used or used ~= '0' then
	return 0
end
local expires = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
if not expires or expires <= tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'used', '1', 'used_at', ARGV[1])
return 1
`)

// RedisNonceStore is a Redis implementation of ports.NonceStore.
// Key expiry doubles as the sweep of expired nonces.
type RedisNonceStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisNonceStore creates a new Redis nonce store
func NewRedisNonceStore(client *redis.Client, ttl time.Duration, opts ...Option) *RedisNonceStore {
	o := buildOptions(opts)
	return &RedisNonceStore{
		client: client,
		prefix: "handshake:nonce:",
		ttl:    ttl,
		now:    o.now,
	}
}

// Issue stores a fresh unused nonce
func (s *RedisNonceStore) Issue(ctx context.Context) (*core.Nonce, error) {
	for {
		value, err := randomToken(nonceBytes)
		if err != nil {
			return nil, err
		}

		now := s.now()
		expiresAt := now.Add(s.ttl)

		created, err := issueNonceScript.Run(ctx, s.client, []string{s.prefix + value},
			now.UnixMilli(), expiresAt.UnixMilli(), s.ttl.Milliseconds()).Int()
		if err != nil {
			return nil, fmt.Errorf("failed to store nonce: %w", err)
		}
		if created == 0 {
			continue
		}

		return &core.Nonce{
			Value:     value,
			CreatedAt: now,
			ExpiresAt: expiresAt,
		}, nil
	}
}

// Redeem atomically marks the nonce used
func (s *RedisNonceStore) Redeem(ctx context.Context, value string) (bool, error) {
	if value == "" {
		return false, nil
	}

	ok, err := redeemNonceScript.Run(ctx, s.client, []string{s.prefix + value}, s.now().UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to redeem nonce: %w", err)
	}

	return ok == 1, nil
}

// Get loads a nonce record, mainly for inspection
func (s *RedisNonceStore) Get(ctx context.Context, value string) (*core.Nonce, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+value).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load nonce: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNotFound
	}

	nonce := &core.Nonce{
		Value:     value,
		Used:      fields["used"] == "1",
		CreatedAt: parseMillis(fields["created_at"]),
		ExpiresAt: parseMillis(fields["expires_at"]),
	}
	if v, ok := fields["used_at"]; ok {
		usedAt := parseMillis(v)
		nonce.UsedAt = &usedAt
	}

	return nonce, nil
}

func parseMillis(v string) time.Time {
	ms, _ := strconv.ParseInt(v, 10, 64)
	return time.UnixMilli(ms)
}

type redisSession struct {
	WalletAddress string    `json:"wallet_address"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// RedisSessionStore is a Redis implementation of ports.SessionStore
type RedisSessionStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisSessionStore creates a new Redis session store
func NewRedisSessionStore(client *redis.Client, ttl time.Duration, opts ...Option) *RedisSessionStore {
	o := buildOptions(opts)
	return &RedisSessionStore{
		client: client,
		prefix: "handshake:session:",
		ttl:    ttl,
		now:    o.now,
	}
}

// Issue stores a session keyed by a fresh random token
func (s *RedisSessionStore) Issue(ctx context.Context, walletAddress string) (*core.Session, error) {
	for {
		token, err := randomToken(sessionBytes)
		if err != nil {
			return nil, err
		}

		now := s.now()
		session := &core.Session{
			ID:            token,
			WalletAddress: core.NormalizeAddress(walletAddress),
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.ttl),
		}

		payload, err := json.Marshal(redisSession{
			WalletAddress: session.WalletAddress,
			CreatedAt:     session.CreatedAt,
			ExpiresAt:     session.ExpiresAt,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal session: %w", err)
		}

		created, err := s.client.SetNX(ctx, s.prefix+token, payload, s.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to store session: %w", err)
		}
		if created {
			return session, nil
		}
	}
}

// Validate loads the session and checks its expiry
func (s *RedisSessionStore) Validate(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrUnauthenticated
	}

	payload, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var stored redisSession
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	session := &core.Session{
		ID:            token,
		WalletAddress: stored.WalletAddress,
		CreatedAt:     stored.CreatedAt,
		ExpiresAt:     stored.ExpiresAt,
	}
	if !session.Valid(s.now()) {
		return nil, core.ErrUnauthenticated
	}

	return session, nil
}

// Revoke deletes the session; unknown tokens are not an error
func (s *RedisSessionStore) Revoke(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.prefix+token).Err(); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}
