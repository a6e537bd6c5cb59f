// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package config loads settings for the CLI and the sync server from an
// optional YAML file, GYMSYNC_* environment variables and defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "GYMSYNC"

// Config keys.
const (
	KeyDBPath         = "db_path"
	KeyCachePath      = "cache_path"
	KeyServerURL      = "server_url"
	KeyAccessToken    = "access_token"
	KeyHTTPTimeout    = "http_timeout"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyListen         = "server.listen"
	KeyDatabaseURL    = "server.database_url"
	KeyJWTSecret      = "server.jwt_secret"
	KeyBlobDir        = "server.blob_dir"
	KeyTokenTTL       = "server.token_ttl"
	KeyDevSignIn      = "server.dev_sign_in"
	KeyMaxUploadBytes = "server.max_upload_bytes"
	KeyLogRequests    = "server.log_requests"
)

var (
	ErrMissingDBPath      = errors.New("db_path is required")
	ErrMissingServerURL   = errors.New("server_url is required")
	ErrBadTimeout         = errors.New("http_timeout must be positive")
	ErrBadLogLevel        = errors.New("log_level must be debug, info, warn or error")
	ErrBadLogFormat       = errors.New("log_format must be text or json")
	ErrMissingDatabaseURL = errors.New("server.database_url is required")
	ErrWeakJWTSecret      = errors.New("server.jwt_secret must be at least 16 characters")
)

// Server holds the sync server settings.
type Server struct {
	Listen         string        `mapstructure:"listen"`
	DatabaseURL    string        `mapstructure:"database_url"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	BlobDir        string        `mapstructure:"blob_dir"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	DevSignIn      bool          `mapstructure:"dev_sign_in"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	LogRequests    bool          `mapstructure:"log_requests"`
}

// Config is the resolved configuration.
type Config struct {
	DBPath      string        `mapstructure:"db_path"`
	CachePath   string        `mapstructure:"cache_path"`
	ServerURL   string        `mapstructure:"server_url"`
	AccessToken string        `mapstructure:"access_token"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	LogLevel    string        `mapstructure:"log_level"`
	LogFormat   string        `mapstructure:"log_format"`
	Server      Server        `mapstructure:"server"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDBPath, "gymtracker.db")
	v.SetDefault(KeyCachePath, "gymtracker-cache.db")
	v.SetDefault(KeyServerURL, "http://localhost:8080")
	v.SetDefault(KeyAccessToken, "")
	v.SetDefault(KeyHTTPTimeout, 30*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyListen, ":8080")
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyJWTSecret, "")
	v.SetDefault(KeyBlobDir, "blobs")
	v.SetDefault(KeyTokenTTL, time.Hour)
	v.SetDefault(KeyDevSignIn, false)
	v.SetDefault(KeyMaxUploadBytes, int64(50<<20))
	v.SetDefault(KeyLogRequests, false)
}

// Load reads path (when non-empty) and applies environment overrides such as
// GYMSYNC_DB_PATH or GYMSYNC_SERVER_DATABASE_URL. A missing file is an error
// only when path was given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("gymsync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	return &cfg, nil
}

// Validate checks the client settings.
func (c *Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, ErrMissingDBPath)
	}
	if c.ServerURL == "" {
		errs = append(errs, ErrMissingServerURL)
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, ErrBadTimeout)
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, ErrBadLogFormat)
	}
	return errors.Join(errs...)
}

// ValidateServer checks the settings needed by the serve command.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.Server.DatabaseURL == "" {
		errs = append(errs, ErrMissingDatabaseURL)
	}
	if len(c.Server.JWTSecret) < 16 {
		errs = append(errs, ErrWeakJWTSecret)
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrBadLogLevel, c.LogLevel)
}
