package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "gymtracker.db", cfg.DBPath)
	require.Equal(t, "http://localhost:8080", cfg.ServerURL)
	require.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	require.Equal(t, ":8080", cfg.Server.Listen)
	require.Equal(t, time.Hour, cfg.Server.TokenTTL)
	require.Equal(t, int64(50<<20), cfg.Server.MaxUploadBytes)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gymsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
db_path: /data/app.db
http_timeout: 5s
log_level: DEBUG
log_format: json
server:
  listen: ":9090"
  jwt_secret: from-file-secret-123
  token_ttl: 15m
  dev_sign_in: true
`), 0o644))

	t.Setenv("GYMSYNC_SERVER_DATABASE_URL", "postgres://u:p@db/gym")
	t.Setenv("GYMSYNC_SERVER_URL", "https://api.example")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/app.db", cfg.DBPath)
	require.Equal(t, "https://api.example", cfg.ServerURL)
	require.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, ":9090", cfg.Server.Listen)
	require.Equal(t, "postgres://u:p@db/gym", cfg.Server.DatabaseURL)
	require.Equal(t, 15*time.Minute, cfg.Server.TokenTTL)
	require.True(t, cfg.Server.DevSignIn)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateServer())

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{LogLevel: "loud", LogFormat: "xml"}
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrMissingDBPath)
	require.ErrorIs(t, err, ErrMissingServerURL)
	require.ErrorIs(t, err, ErrBadTimeout)
	require.ErrorIs(t, err, ErrBadLogLevel)
	require.ErrorIs(t, err, ErrBadLogFormat)

	err = cfg.ValidateServer()
	require.ErrorIs(t, err, ErrMissingDatabaseURL)
	require.ErrorIs(t, err, ErrWeakJWTSecret)
}
