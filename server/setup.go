// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/metrics"
)

// RequestRecorder observes served requests.
type RequestRecorder interface {
	ObserveRequest(route string, status int, d time.Duration)
}

// ServerConfig is everything SetupServer needs to run the backend.
type ServerConfig struct {
	DatabaseURL    string
	JWTSecret      string
	BlobDir        string // defaults to ./blobs
	TokenTTL       time.Duration
	MaxUploadBytes int64
	MaxRowBytes    int
	DevSignIn      bool // expose POST /auth/token
	LogRequests    bool
	Logger         *slog.Logger
	Registry       *prometheus.Registry // nil creates a private registry
}

// ServerComponents are the pieces built by SetupServer. Handler is ready
// to be mounted on an http.Server; Close releases the pool.
type ServerComponents struct {
	Pool     *pgxpool.Pool
	Service  *Service
	JWTAuth  *JWTAuth
	Blobs    *DirBlobStore
	Metrics  *metrics.Collectors
	Handler  http.Handler
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// RouterConfig selects the optional routes of NewRouter.
type RouterConfig struct {
	DevSignIn   bool
	LogRequests bool
	Health      Pinger
	Requests    RequestRecorder
	Gatherer    prometheus.Gatherer // nil disables /metrics
}

func newPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pc, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("bad database url: %w", err)
	}
	pc.MinConns = 2
	pc.MaxConns = 20
	pc.MaxConnIdleTime = 30 * time.Minute
	pc.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return pool, nil
}

// SetupServer connects to Postgres, initializes the row schema and builds
// the HTTP handler.
func SetupServer(ctx context.Context, config *ServerConfig) (*ServerComponents, error) {
	switch {
	case config.DatabaseURL == "":
		return nil, errors.New("database URL is required")
	case config.JWTSecret == "":
		return nil, errors.New("JWT secret is required")
	}

	sc := &ServerComponents{Logger: config.Logger, Registry: config.Registry}
	if sc.Logger == nil {
		sc.Logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
	if sc.Registry == nil {
		sc.Registry = prometheus.NewRegistry()
	}
	blobDir := config.BlobDir
	if blobDir == "" {
		blobDir = "blobs"
	}

	var err error
	if sc.Pool, err = newPool(ctx, config.DatabaseURL); err != nil {
		return nil, err
	}
	sc.Metrics = metrics.New(sc.Registry)
	sc.Service, err = NewService(ctx, sc.Pool, &ServiceConfig{
		AppName:     "gymsync",
		MaxRowBytes: config.MaxRowBytes,
		Metrics:     sc.Metrics,
	}, sc.Logger)
	if err == nil {
		sc.Blobs, err = NewDirBlobStore(blobDir)
	}
	if err != nil {
		sc.Close()
		return nil, err
	}

	sc.JWTAuth = NewJWTAuth(config.JWTSecret)
	handlers := NewHandlers(sc.Service, sc.Blobs, sc.JWTAuth, config.TokenTTL, config.MaxUploadBytes, sc.Logger)
	sc.Handler = NewRouter(handlers, &RouterConfig{
		DevSignIn:   config.DevSignIn,
		LogRequests: config.LogRequests,
		Health:      sc.Service,
		Requests:    sc.Metrics,
		Gatherer:    sc.Registry,
	})
	return sc, nil
}

// Close marks the service closed and closes the pool.
func (sc *ServerComponents) Close() {
	if sc.Service != nil {
		_ = sc.Service.Close()
	}
	if sc.Pool != nil {
		sc.Pool.Close()
	}
}

// NewRouter registers every endpoint on a new mux.
func NewRouter(h *Handlers, config *RouterConfig) http.Handler {
	if config == nil {
		config = &RouterConfig{}
	}
	route := func(name string, next http.Handler) http.Handler {
		return observe(name, config, h.logger, next)
	}
	authed := func(name string, fn http.HandlerFunc) http.Handler {
		return route(name, h.jwt.Middleware(fn))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", route("health", HandleHealth(config.Health)))
	mux.Handle("/rest/v1/{table}", authed("rows", h.HandleRows))
	mux.Handle("POST /storage/v1/object/{bucket}/{path...}", authed("upload", h.HandleUpload))
	mux.Handle("PUT /storage/v1/object/{bucket}/{path...}", authed("upload", h.HandleUpload))
	mux.Handle("GET /storage/v1/object/public/{bucket}/{path...}", route("object", http.HandlerFunc(h.HandlePublicObject)))
	if config.DevSignIn {
		mux.Handle("POST /auth/token", route("token", http.HandlerFunc(h.HandleToken)))
	}
	if config.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// observe records the outcome of every request on route and, when
// LogRequests is set, logs it.
func observe(route string, config *RouterConfig, logger *slog.Logger, next http.Handler) http.Handler {
	if config.Requests == nil && !config.LogRequests {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		elapsed := time.Since(began)

		if config.Requests != nil {
			config.Requests.ObserveRequest(route, sw.status, elapsed)
		}
		if config.LogRequests {
			logger.Info("HTTP request",
				"route", route,
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"bytes_in", r.ContentLength,
				"bytes_out", sw.bytes,
				"authenticated", r.Header.Get("Authorization") != "",
				"duration", elapsed.String(),
			)
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	started bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.started {
		sw.status, sw.started = code, true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(p []byte) (int, error) {
	sw.started = true
	n, err := sw.ResponseWriter.Write(p)
	sw.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController and http.MaxBytesReader reach the
// underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }
