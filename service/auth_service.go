package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/internal/eth"
	"github.com/layer-3/handshake/ports"
)

// AvalancheCChainID is the chain deployments accept by default
const AvalancheCChainID = 43114

// AuthConfig pins the origin and chain sign-in messages must declare
type AuthConfig struct {
	Domain  string
	ChainID int64
}

// AuthService handles wallet sign-in business logic
type AuthService struct {
	nonces   ports.NonceStore
	sessions ports.SessionStore
	eventPub ports.EventPublisher
	logger   *slog.Logger

	domain  string
	chainID int64
	now     func() time.Time
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces ports.NonceStore,
	sessions ports.SessionStore,
	eventPub ports.EventPublisher,
	cfg AuthConfig,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		nonces:   nonces,
		sessions: sessions,
		eventPub: eventPub,
		logger:   logger,
		domain:   cfg.Domain,
		chainID:  cfg.ChainID,
		now:      time.Now,
	}
}

// RequestChallenge issues a one-time nonce for the next sign-in message
func (s *AuthService) RequestChallenge(ctx context.Context) (*core.Nonce, error) {
	nonce, err := s.nonces.Issue(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	return nonce, nil
}

// Verify authenticates a signed sign-in message and opens a session.
//
// The nonce is only redeemed once the signature checks out, so forged or
// malformed messages cannot burn nonces. Replays of a valid message fail on
// the nonce.
func (s *AuthService) Verify(ctx context.Context, message, signature string) (*core.Session, error) {
	if message == "" || signature == "" {
		return nil, core.Validationf("message and signature are required")
	}

	msg, err := eth.ParseSIWEMessage(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMalformedMessage, err)
	}

	if !msg.ValidAt(s.now()) {
		return nil, fmt.Errorf("message outside its validity window: %w", core.ErrInvalidSignature)
	}

	if err := eth.VerifyPersonalSignature([]byte(message), signature, msg.Address); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidSignature, err)
	}

	redeemed, err := s.nonces.Redeem(ctx, msg.Nonce)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}
	if !redeemed {
		return nil, core.ErrNonceInvalid
	}

	if msg.Domain != s.domain {
		return nil, fmt.Errorf("%w: got %q", core.ErrDomainMismatch, msg.Domain)
	}

	if msg.ChainID != s.chainID {
		return nil, fmt.Errorf("%w: got %d", core.ErrChainMismatch, msg.ChainID)
	}

	session, err := s.sessions.Issue(ctx, msg.Address.Hex())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	s.logger.InfoContext(ctx, "wallet signed in", "address", session.WalletAddress)

	return session, nil
}

// Logout revokes the session; unknown or empty tokens are ignored
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	session, err := s.sessions.Validate(ctx, token)
	if err != nil && !errors.Is(err, core.ErrUnauthenticated) {
		s.logger.WarnContext(ctx, "failed to load session during logout", "err", err)
	}

	if err := s.sessions.Revoke(ctx, token); err != nil {
		return fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	if session != nil {
		// The session is already gone, a lost event only delays other instances
		if err := s.eventPub.PublishLogout(ctx, session.WalletAddress, session.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to publish logout event", "err", err)
		}
	}

	return nil
}

// CurrentIdentity returns the wallet bound to a live session
func (s *AuthService) CurrentIdentity(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", core.ErrUnauthenticated
	}

	session, err := s.sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", core.ErrPersistence, err)
	}

	return session.WalletAddress, nil
}
