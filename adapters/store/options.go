package store

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

const (
	DefaultNonceTTL   = 10 * time.Minute
	DefaultSessionTTL = 24 * time.Hour

	nonceBytes   = 16
	sessionBytes = 32
)

type options struct {
	now func() time.Time
}

// Option configures a store
type Option func(*options)

// WithClock overrides the time source, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
