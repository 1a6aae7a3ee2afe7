package service

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/handshake/internal/eth"
	"github.com/stretchr/testify/require"
)

const (
	testDomain  = "localhost:3000"
	testChainID = AvalancheCChainID
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu          sync.Mutex
	logouts     []string
	registered  []string
	failPublish bool
}

func (p *recordingPublisher) PublishLogout(ctx context.Context, address, sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPublish {
		return errors.New("broker down")
	}
	p.logouts = append(p.logouts, address)
	return nil
}

func (p *recordingPublisher) PublishModelRegistered(ctx context.Context, id, hash, owner string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failPublish {
		return errors.New("broker down")
	}
	p.registered = append(p.registered, id)
	return nil
}

type fakeBlobStore struct {
	mu        sync.Mutex
	documents map[string]any
	failJSON  bool
	failSign  bool
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{documents: make(map[string]any)}
}

func (f *fakeBlobStore) CreateSignedUploadURL(ctx context.Context, fileName string, ttl time.Duration) (string, error) {
	if f.failSign {
		return "", errors.New("pinning service unavailable")
	}
	return fmt.Sprintf("https://uploads.test/%s?ttl=%d", fileName, int(ttl.Seconds())), nil
}

func (f *fakeBlobStore) UploadJSON(ctx context.Context, name string, document any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failJSON {
		return "", errors.New("pinning service unavailable")
	}
	cid := fmt.Sprintf("bafymeta%d", len(f.documents)+1)
	f.documents[cid] = document
	return cid, nil
}

func (f *fakeBlobStore) GatewayURL(cid string) string {
	return "https://ipfs.io/ipfs/" + cid
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

func newWallet(t *testing.T) wallet {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey).Hex()}
}

// signInMessage renders and signs a sign-in message the way a browser wallet does
func (w wallet) signInMessage(t *testing.T, nonce string, edit func(*eth.SIWEMessage)) (string, string) {
	t.Helper()
	msg := &eth.SIWEMessage{
		Domain:    testDomain,
		Address:   crypto.PubkeyToAddress(w.key.PublicKey),
		Statement: "Sign in to Handshake",
		URI:       "http://" + testDomain,
		Version:   eth.SIWEVersion,
		ChainID:   testChainID,
		Nonce:     nonce,
		IssuedAt:  time.Now().Add(-time.Second),
	}
	if edit != nil {
		edit(msg)
	}

	raw := msg.String()
	sig, err := eth.SignPersonal([]byte(raw), w.key)
	require.NoError(t, err)
	return raw, sig
}

func validHash(seed byte) string {
	b := make([]byte, 32)
	for i := range b {
		b[i] = seed
	}
	return fmt.Sprintf("%x", b)
}
