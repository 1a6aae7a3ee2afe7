package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryEnv(t *testing.T) {
	t.Setenv("HANDSHAKE_STORE_BACKEND", "memory")
	t.Setenv("HANDSHAKE_REGISTRY_BACKEND", "memory")
	t.Setenv("HANDSHAKE_STORAGE_BACKEND", "local")
	t.Setenv("HANDSHAKE_EVENTS_BACKEND", "gochannel")
}

func TestLoad_Defaults(t *testing.T) {
	memoryEnv(t)

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5001", c.Server.Addr)
	assert.Equal(t, int64(43114), c.Auth.ChainID)
	assert.Equal(t, 10*time.Minute, c.Auth.NonceTTL)
	assert.Equal(t, 24*time.Hour, c.Auth.SessionTTL)
	assert.Equal(t, 30*time.Minute, c.Storage.SignedURLTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, c.Server.CORSOrigins)
	assert.False(t, c.Production())

	level, err := c.Log.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	memoryEnv(t)
	t.Setenv("HANDSHAKE_AUTH_DOMAIN", "handshake.example")
	t.Setenv("HANDSHAKE_AUTH_CHAIN_ID", "43113")
	t.Setenv("HANDSHAKE_AUTH_SESSION_TTL", "1h")
	t.Setenv("HANDSHAKE_SERVER_ENVIRONMENT", "production")
	t.Setenv("HANDSHAKE_LOG_LEVEL", "debug")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "handshake.example", c.Auth.Domain)
	assert.Equal(t, int64(43113), c.Auth.ChainID)
	assert.Equal(t, time.Hour, c.Auth.SessionTTL)
	assert.True(t, c.Production())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "handshake.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":8080"
store:
  backend: memory
registry:
  backend: postgres
postgres:
  dsn: postgres://handshake@localhost/handshake
storage:
  backend: pinata
pinata:
  jwt: secret
events:
  backend: gochannel
`), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", c.Server.Addr)
	assert.Equal(t, "postgres://handshake@localhost/handshake", c.Postgres.DSN)
	assert.Equal(t, "secret", c.Pinata.JWT)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown backend",
			env:     map[string]string{"HANDSHAKE_STORE_BACKEND": "etcd"},
			wantErr: "store.backend",
		},
		{
			name:    "postgres without dsn",
			env:     map[string]string{"HANDSHAKE_REGISTRY_BACKEND": "postgres"},
			wantErr: "postgres.dsn",
		},
		{
			name:    "pinata without jwt",
			env:     map[string]string{"HANDSHAKE_STORAGE_BACKEND": "pinata"},
			wantErr: "pinata.jwt",
		},
		{
			name:    "bad log level",
			env:     map[string]string{"HANDSHAKE_LOG_LEVEL": "loud"},
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			memoryEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
