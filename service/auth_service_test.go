package service

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/handshake/adapters/store"
	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/internal/eth"
	"github.com/layer-3/handshake/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSessions struct {
	ports.SessionStore
	issued atomic.Int32
}

func (c *countingSessions) Issue(ctx context.Context, walletAddress string) (*core.Session, error) {
	c.issued.Add(1)
	return c.SessionStore.Issue(ctx, walletAddress)
}

type authFixture struct {
	svc      *AuthService
	sessions *countingSessions
	events   *recordingPublisher
}

func newAuthFixture() *authFixture {
	sessions := &countingSessions{SessionStore: store.NewMemorySessionStore(store.DefaultSessionTTL)}
	events := &recordingPublisher{}
	svc := NewAuthService(
		store.NewMemoryNonceStore(store.DefaultNonceTTL),
		sessions,
		events,
		AuthConfig{Domain: testDomain, ChainID: testChainID},
		discardLogger(),
	)
	return &authFixture{svc: svc, sessions: sessions, events: events}
}

func TestAuthService_Verify(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture()
	w := newWallet(t)

	nonce, err := f.svc.RequestChallenge(ctx)
	require.NoError(t, err)
	assert.Len(t, nonce.Value, 32)

	message, sig := w.signInMessage(t, nonce.Value, nil)
	session, err := f.svc.Verify(ctx, message, sig)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(w.address), session.WalletAddress)

	identity, err := f.svc.CurrentIdentity(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(w.address), identity)
}

func TestAuthService_VerifyRejectsReplay(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture()
	w := newWallet(t)

	nonce, err := f.svc.RequestChallenge(ctx)
	require.NoError(t, err)
	message, sig := w.signInMessage(t, nonce.Value, nil)

	_, err = f.svc.Verify(ctx, message, sig)
	require.NoError(t, err)
	require.Equal(t, int32(1), f.sessions.issued.Load())

	_, err = f.svc.Verify(ctx, message, sig)
	assert.ErrorIs(t, err, core.ErrNonceInvalid)
	assert.Equal(t, int32(1), f.sessions.issued.Load(), "replay must not create a session")
}

func TestAuthService_VerifyFailuresDoNotBurnNonce(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture()
	w := newWallet(t)
	attacker := newWallet(t)

	nonce, err := f.svc.RequestChallenge(ctx)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, "definitely not a sign-in message", "0x00")
	assert.ErrorIs(t, err, core.ErrMalformedMessage)

	// Message claims w's address but is signed by someone else
	message, _ := w.signInMessage(t, nonce.Value, nil)
	forged, err := eth.SignPersonal([]byte(message), attacker.key)
	require.NoError(t, err)
	_, err = f.svc.Verify(ctx, message, forged)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	expired, expiredSig := w.signInMessage(t, nonce.Value, func(m *eth.SIWEMessage) {
		past := time.Now().Add(-time.Minute)
		m.ExpirationTime = &past
	})
	_, err = f.svc.Verify(ctx, expired, expiredSig)
	assert.ErrorIs(t, err, core.ErrInvalidSignature)

	message, sig := w.signInMessage(t, nonce.Value, nil)
	_, err = f.svc.Verify(ctx, message, sig)
	assert.NoError(t, err, "nonce must survive rejected attempts")
	assert.Equal(t, int32(1), f.sessions.issued.Load())
}

func TestAuthService_VerifyChecks(t *testing.T) {
	tests := []struct {
		name    string
		nonce   func(t *testing.T, f *authFixture) string
		edit    func(*eth.SIWEMessage)
		wantErr error
	}{
		{
			name:    "unknown nonce",
			nonce:   func(t *testing.T, f *authFixture) string { return "0123456789abcdef0123456789abcdef" },
			wantErr: core.ErrNonceInvalid,
		},
		{
			name:    "foreign domain",
			edit:    func(m *eth.SIWEMessage) { m.Domain = "evil.example" },
			wantErr: core.ErrDomainMismatch,
		},
		{
			name:    "wrong chain",
			edit:    func(m *eth.SIWEMessage) { m.ChainID = 1 },
			wantErr: core.ErrChainMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newAuthFixture()
			w := newWallet(t)

			var nonce string
			if tt.nonce != nil {
				nonce = tt.nonce(t, f)
			} else {
				n, err := f.svc.RequestChallenge(ctx)
				require.NoError(t, err)
				nonce = n.Value
			}

			message, sig := w.signInMessage(t, nonce, tt.edit)
			_, err := f.svc.Verify(ctx, message, sig)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, int32(0), f.sessions.issued.Load())
		})
	}
}

func TestAuthService_VerifyRequiresFields(t *testing.T) {
	f := newAuthFixture()
	_, err := f.svc.Verify(context.Background(), "", "0xabc")
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture()
	w := newWallet(t)

	nonce, err := f.svc.RequestChallenge(ctx)
	require.NoError(t, err)
	message, sig := w.signInMessage(t, nonce.Value, nil)
	session, err := f.svc.Verify(ctx, message, sig)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, session.ID))
	_, err = f.svc.CurrentIdentity(ctx, session.ID)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Equal(t, []string{strings.ToLower(w.address)}, f.events.logouts)

	// Idempotent, and only live sessions produce events
	require.NoError(t, f.svc.Logout(ctx, session.ID))
	require.NoError(t, f.svc.Logout(ctx, ""))
	assert.Len(t, f.events.logouts, 1)
}

func TestAuthService_LogoutToleratesPublisherFailure(t *testing.T) {
	ctx := context.Background()
	f := newAuthFixture()
	f.events.failPublish = true

	session, err := f.sessions.Issue(ctx, "0xabc")
	require.NoError(t, err)

	assert.NoError(t, f.svc.Logout(ctx, session.ID))
	_, err = f.svc.CurrentIdentity(ctx, session.ID)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAuthService_CurrentIdentityWithoutToken(t *testing.T) {
	f := newAuthFixture()
	_, err := f.svc.CurrentIdentity(context.Background(), "")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}
