package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/handshake/service"
	"github.com/rs/cors"
)

// RouterConfig carries the transport-level settings
type RouterConfig struct {
	// Production enables Secure cookies and gin release mode
	Production  bool
	CORSOrigins []string
	SessionTTL  time.Duration
	// Blobs is set when uploads go to this service instead of a pinning service
	Blobs  BlobServer
	Logger *slog.Logger
}

// SetupRouter sets up the Gin router wrapped in the CORS handler
func SetupRouter(authService *service.AuthService, registryService *service.RegistryService, cfg RouterConfig) http.Handler {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(cfg.Logger))

	authHandlers := NewAuthHandlers(authService, cookieConfig{secure: cfg.Production, maxAge: cfg.SessionTTL}, cfg.Logger)
	modelHandlers := NewModelHandlers(registryService)
	requireSession := AuthMiddleware(authService, cfg.Logger)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := router.Group("/auth")
	{
		auth.GET("/nonce", authHandlers.Nonce)
		auth.POST("/verify", authHandlers.Verify)
		auth.POST("/logout", authHandlers.Logout)
		auth.GET("/me", authHandlers.Me)
	}

	models := router.Group("/models")
	{
		models.GET("", modelHandlers.List)
		models.GET("/check/:hash", modelHandlers.CheckHash)
		models.GET("/:id", modelHandlers.Get)
		models.POST("/confirm", requireSession, modelHandlers.Confirm)
	}

	signer := router.Group("/pinata-auth", requireSession)
	{
		signer.POST("/signed-url", modelHandlers.SignedURL)
		signer.GET("/signed-url", modelHandlers.SignedURL)
	}

	if cfg.Blobs != nil {
		storageHandlers := NewStorageHandlers(cfg.Blobs, cfg.Logger)
		storage := router.Group("/storage")
		{
			storage.POST("/upload", storageHandlers.Upload)
			storage.GET("/blobs/:cid", storageHandlers.Blob)
		}
	}

	return cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	}).Handler(router)
}
