package client

import (
	"cmp"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/handshake/adapters/events"
	"github.com/layer-3/handshake/adapters/registry"
	"github.com/layer-3/handshake/adapters/storage"
	"github.com/layer-3/handshake/adapters/store"
	"github.com/layer-3/handshake/adapters/tokenizer"
	"github.com/layer-3/handshake/core"
	"github.com/layer-3/handshake/hasher"
	"github.com/layer-3/handshake/service"
	transport "github.com/layer-3/handshake/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer runs the full router on memory adapters and local blob storage.
// The server accepts sign-in messages for its own host.
func startServer(t *testing.T) string {
	t.Helper()
	return startServerWithDomain(t, "")
}

// startServerWithDomain runs the router accepting sign-ins for domain
func startServerWithDomain(t *testing.T, domain string) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := discardLogger()
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	eventPub := events.NewWatermillPublisher(pubSub)

	authService := service.NewAuthService(
		store.NewMemoryNonceStore(store.DefaultNonceTTL),
		store.NewMemorySessionStore(store.DefaultSessionTTL),
		eventPub,
		service.AuthConfig{Domain: cmp.Or(domain, srv.Listener.Addr().String()), ChainID: service.AvalancheCChainID},
		logger,
	)

	signKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	blobs, err := storage.NewLocalStore(t.TempDir(), srv.URL, tokenizer.NewJWTTokenizer(signKey))
	require.NoError(t, err)

	registryService := service.NewRegistryService(registry.NewMemoryRegistry(), blobs, eventPub, 0, logger)
	handler = transport.SetupRouter(authService, registryService, transport.RouterConfig{
		SessionTTL: store.DefaultSessionTTL,
		Blobs:      blobs,
		Logger:     logger,
	})

	return srv.URL
}

func signedInAPI(t *testing.T, baseURL string) (*API, string) {
	t.Helper()

	api, err := NewAPI(baseURL, nil)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	address, err := api.SignIn(context.Background(), key, "", service.AvalancheCChainID)
	require.NoError(t, err)
	return api, address
}

func writeArtifact(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.safetensors")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUploader_Upload(t *testing.T) {
	ctx := context.Background()
	baseURL := startServer(t)
	api, address := signedInAPI(t, baseURL)
	path := writeArtifact(t, "weights v1")

	uploader := NewUploader(api, discardLogger())
	result, err := uploader.Upload(ctx, path, UploadRequest{Name: "tiny-llm", Type: "LLM"})
	require.NoError(t, err)
	require.False(t, result.AlreadyRegistered)
	require.NotNil(t, result.Model)

	want, err := hasher.SumFile(path)
	require.NoError(t, err)

	model := result.Model
	assert.Equal(t, want, result.Hash)
	assert.Equal(t, want, model.ModelHash)
	assert.Equal(t, address, model.OwnerAddress)
	assert.Equal(t, "tiny-llm", model.Name)
	assert.Equal(t, "LLM", model.Type)
	assert.Equal(t, int64(len("weights v1")), model.Size)
	assert.Equal(t, storage.LocalCIDPrefix+want, model.ModelFileCID)
	assert.NotEmpty(t, model.MetadataCID)
	assert.Zero(t, model.Likes)

	fetched, err := api.Model(ctx, model.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ID, fetched.ID)

	mine, err := api.Models(ctx, address)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	// Same bytes from another wallet: detected before any upload
	other, _ := signedInAPI(t, baseURL)
	again, err := NewUploader(other, discardLogger()).Upload(ctx, path, UploadRequest{Name: "copy"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyRegistered)
	assert.Nil(t, again.Model)

	all, err := api.Models(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAPI_ConfirmConflict(t *testing.T) {
	ctx := context.Background()
	api, _ := signedInAPI(t, startServer(t))
	path := writeArtifact(t, "weights v2")

	first, err := NewUploader(api, discardLogger()).Upload(ctx, path, UploadRequest{})
	require.NoError(t, err)
	assert.Equal(t, "model.safetensors", first.Model.Name)

	// Skipping the advisory check still hits the registry's uniqueness
	_, err = api.Confirm(ctx, ConfirmRequest{
		Name:         "dup",
		ModelFileCID: first.Model.ModelFileCID,
		Size:         first.Model.Size,
		Hash:         first.Hash,
	})
	require.ErrorIs(t, err, core.ErrConflict)

	existingID, ok := IsConflict(err)
	require.True(t, ok)
	assert.Equal(t, first.Model.ID, existingID)
}

func TestAPI_SessionRequired(t *testing.T) {
	ctx := context.Background()
	baseURL := startServer(t)

	anon, err := NewAPI(baseURL, nil)
	require.NoError(t, err)

	me, err := anon.Me(ctx)
	require.NoError(t, err)
	assert.False(t, me.Authenticated)

	signedURL, err := anon.SignedURL(ctx, "model.bin")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
	assert.Empty(t, signedURL)

	_, err = NewUploader(anon, discardLogger()).Upload(ctx, writeArtifact(t, "w"), UploadRequest{})
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAPI_Logout(t *testing.T) {
	ctx := context.Background()
	api, address := signedInAPI(t, startServer(t))

	me, err := api.Me(ctx)
	require.NoError(t, err)
	assert.True(t, me.Authenticated)
	assert.Equal(t, strings.ToLower(address), me.WalletAddress)

	require.NoError(t, api.Logout(ctx))

	me, err = api.Me(ctx)
	require.NoError(t, err)
	assert.False(t, me.Authenticated)

	_, err = api.SignedURL(ctx, "model.bin")
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAPI_SignInWrongChain(t *testing.T) {
	api, err := NewAPI(startServer(t), nil)
	require.NoError(t, err)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = api.SignIn(context.Background(), key, "", 1)
	assert.ErrorIs(t, err, core.ErrUnauthenticated)
}

func TestAPI_ModelNotFound(t *testing.T) {
	api, err := NewAPI(startServer(t), nil)
	require.NoError(t, err)

	_, err = api.Model(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAPI_SignInWebAppDomain(t *testing.T) {
	ctx := context.Background()
	const webApp = "localhost:3000"

	baseURL := startServerWithDomain(t, webApp)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	api, err := NewAPI(baseURL, nil)
	require.NoError(t, err)

	// The API host is not the origin the server accepts
	_, err = api.SignIn(ctx, key, "", service.AvalancheCChainID)
	require.ErrorIs(t, err, core.ErrUnauthenticated)

	address, err := api.SignIn(ctx, key, webApp, service.AvalancheCChainID)
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex()), address)

	me, err := api.Me(ctx)
	require.NoError(t, err)
	assert.True(t, me.Authenticated)
}
