package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/layer-3/handshake/adapters/events"
	"github.com/layer-3/handshake/adapters/registry"
	"github.com/layer-3/handshake/adapters/storage"
	"github.com/layer-3/handshake/adapters/store"
	"github.com/layer-3/handshake/adapters/tokenizer"
	"github.com/layer-3/handshake/config"
	"github.com/layer-3/handshake/ports"
	"github.com/layer-3/handshake/service"
	transport "github.com/layer-3/handshake/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm/logger"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 10 * time.Second
)

func newServeCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, newLogger(cfg))
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	var redisClient *redis.Client
	if cfg.Store.Backend == config.BackendRedis || cfg.Events.Backend == config.BackendRedis {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
	}

	var (
		nonces   ports.NonceStore
		sessions ports.SessionStore
	)
	switch cfg.Store.Backend {
	case config.BackendRedis:
		nonces = store.NewRedisNonceStore(redisClient, cfg.Auth.NonceTTL)
		sessions = store.NewRedisSessionStore(redisClient, cfg.Auth.SessionTTL)
	default:
		memNonces := store.NewMemoryNonceStore(cfg.Auth.NonceTTL)
		memSessions := store.NewMemorySessionStore(cfg.Auth.SessionTTL)
		go store.RunSweeper(ctx, sweepInterval, memNonces, memSessions)
		nonces, sessions = memNonces, memSessions
	}

	var models ports.ModelRegistry
	switch cfg.Registry.Backend {
	case config.BackendPostgres:
		logLevel := logger.Warn
		if !cfg.Production() {
			logLevel = logger.Info
		}
		db, err := registry.NewConnection(cfg.Postgres.DSN, logLevel)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		models = registry.NewGormRegistry(db)
	default:
		models = registry.NewMemoryRegistry()
	}

	var (
		blobs      ports.BlobStore
		blobServer transport.BlobServer
	)
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		signKey, err := loadSigningKey(cfg.Local.SigningKey)
		if err != nil {
			return err
		}
		local, err := storage.NewLocalStore(cfg.Local.Dir, cfg.Local.BaseURL, tokenizer.NewJWTTokenizer(signKey))
		if err != nil {
			return err
		}
		blobs, blobServer = local, local
	default:
		blobs = storage.NewPinataStore(cfg.Pinata.JWT, cfg.Pinata.Gateway)
	}

	publisher, err := newPublisher(cfg, redisClient)
	if err != nil {
		return err
	}
	defer publisher.Close()
	eventPub := events.NewWatermillPublisher(publisher)

	authService := service.NewAuthService(nonces, sessions, eventPub, service.AuthConfig{
		Domain:  cfg.Auth.Domain,
		ChainID: cfg.Auth.ChainID,
	}, log)
	registryService := service.NewRegistryService(models, blobs, eventPub, cfg.Storage.SignedURLTTL, log)

	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: transport.SetupRouter(authService, registryService, transport.RouterConfig{
			Production:  cfg.Production(),
			CORSOrigins: cfg.Server.CORSOrigins,
			SessionTTL:  cfg.Auth.SessionTTL,
			Blobs:       blobServer,
			Logger:      log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening",
			"addr", cfg.Server.Addr,
			"store", cfg.Store.Backend,
			"registry", cfg.Registry.Backend,
			"storage", cfg.Storage.Backend,
			"events", cfg.Events.Backend,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func newPublisher(cfg *config.Config, redisClient *redis.Client) (message.Publisher, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if cfg.Events.Backend == config.BackendGoChannel {
		return gochannel.NewGoChannel(gochannel.Config{}, wmLogger), nil
	}

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		wmLogger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis publisher: %w", err)
	}
	return publisher, nil
}

// loadSigningKey reads a PEM encoded P-256 key, or generates an ephemeral one
func loadSigningKey(path string) (*ecdsa.PrivateKey, error) {
	if path == "" {
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read signing key: %w", err)
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("signing key %s is not PEM encoded", path)
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key %s is not an ECDSA key", path)
		}
		return ecKey, nil
	default:
		return nil, fmt.Errorf("unsupported PEM block %q", block.Type)
	}
}
