package core

import (
	"strings"
	"time"
)

// Nonce is a one-time sign-in challenge
type Nonce struct {
	Value     string     // Random token embedded in the signed message
	Used      bool       // Set once the nonce has been redeemed
	CreatedAt time.Time  // When the nonce was issued
	ExpiresAt time.Time  // When the nonce stops being redeemable
	UsedAt    *time.Time // When the nonce was redeemed
}

// Expired reports whether the nonce is past its expiry at t
func (n *Nonce) Expired(t time.Time) bool {
	return !t.Before(n.ExpiresAt)
}

// Session represents an authenticated wallet session
type Session struct {
	ID            string    // Opaque token delivered in the session cookie
	WalletAddress string    // Lowercased Ethereum address of the user
	CreatedAt     time.Time // When the session was created
	ExpiresAt     time.Time // When the session expires
}

// Valid reports whether the session can still be used at t.
// A session is valid up to and including its expiry instant.
func (s *Session) Valid(t time.Time) bool {
	return !t.After(s.ExpiresAt)
}

// NormalizeAddress returns the canonical form of a wallet address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
