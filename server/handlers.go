// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/internal/auth"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/media"
)

// RowStore is the row persistence used by the REST handlers.
type RowStore interface {
	Upsert(ctx context.Context, userID, table string, row localdb.Row) (bool, error)
	SelectByUser(ctx context.Context, userID, table string) ([]json.RawMessage, error)
}

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// UpsertResponse acknowledges a row upsert. Applied is false when a newer
// version was already stored.
type UpsertResponse struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
}

// TokenRequest asks the development sign-in endpoint for a token.
type TokenRequest struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Confirmed bool   `json:"confirmed"`
}

// TokenResponse carries an issued access token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Handlers serves the REST, storage and auth endpoints.
type Handlers struct {
	rows           RowStore
	blobs          BlobStore
	jwt            *JWTAuth
	logger         *slog.Logger
	tokenTTL       time.Duration
	maxUploadBytes int64
}

// NewHandlers creates the HTTP handlers. A zero tokenTTL means one hour and
// a zero maxUploadBytes means 50 MiB.
func NewHandlers(rows RowStore, blobs BlobStore, jwt *JWTAuth, tokenTTL time.Duration, maxUploadBytes int64, logger *slog.Logger) *Handlers {
	if tokenTTL <= 0 {
		tokenTTL = time.Hour
	}
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		rows:           rows,
		blobs:          blobs,
		jwt:            jwt,
		logger:         logger,
		tokenTTL:       tokenTTL,
		maxUploadBytes: maxUploadBytes,
	}
}

// HandleRows upserts one row (POST) or lists the caller's rows (GET) of the
// table named in the path.
func (h *Handlers) HandleRows(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication_failed", "missing user")
		return
	}
	table := r.PathValue("table")

	switch r.Method {
	case http.MethodPost:
		h.upsertRow(w, r, userID, table)
	case http.MethodGet:
		h.listRows(w, r, userID, table)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET and POST methods are allowed")
	}
}

func (h *Handlers) upsertRow(w http.ResponseWriter, r *http.Request, userID, table string) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.UseNumber()
	var row localdb.Row
	if err := dec.Decode(&row); err != nil || row == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Failed to parse row")
		return
	}

	applied, err := h.rows.Upsert(r.Context(), userID, table, row)
	if err != nil {
		h.writeRowError(w, err, table)
		return
	}
	writeJSON(w, http.StatusOK, UpsertResponse{ID: row.ID(), Applied: applied})
}

func (h *Handlers) listRows(w http.ResponseWriter, r *http.Request, userID, table string) {
	if q := r.URL.Query().Get("user_id"); q != "" && q != userID {
		writeError(w, http.StatusForbidden, "forbidden", "rows of another user cannot be read")
		return
	}
	rows, err := h.rows.SelectByUser(r.Context(), userID, table)
	if err != nil {
		h.writeRowError(w, err, table)
		return
	}
	if rows == nil {
		rows = []json.RawMessage{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handlers) writeRowError(w http.ResponseWriter, err error, table string) {
	switch {
	case errors.Is(err, ErrUnknownTable):
		writeError(w, http.StatusNotFound, "unknown_table", err.Error())
	case errors.Is(err, ErrInvalidRow):
		writeError(w, http.StatusBadRequest, "invalid_row", err.Error())
	case errors.Is(err, ErrOwnerMismatch):
		writeError(w, http.StatusForbidden, "owner_mismatch", err.Error())
	default:
		h.logger.Error("Row request failed", "table", table, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to process row request")
	}
}

// HandleUpload stores an object under {bucket}/{path}. The path must start
// with the caller's user id.
func (h *Handlers) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodPut {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST and PUT methods are allowed")
		return
	}
	userID, ok := auth.GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication_failed", "missing user")
		return
	}
	bucket := r.PathValue("bucket")
	if !Buckets[bucket] {
		writeError(w, http.StatusNotFound, "unknown_bucket", "Unknown bucket "+bucket)
		return
	}
	objectPath, err := CleanObjectPath(r.PathValue("path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_path", err.Error())
		return
	}
	if !strings.HasPrefix(objectPath, userID+"/") {
		writeError(w, http.StatusForbidden, "forbidden", "objects must be stored under the caller's folder")
		return
	}

	body := http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := h.blobs.Put(r.Context(), bucket, objectPath, body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", "object exceeds the upload limit")
			return
		}
		h.logger.Error("Failed to store object", "bucket", bucket, "path", objectPath, "error", err)
		writeError(w, http.StatusInternalServerError, "upload_failed", "Failed to store object")
		return
	}
	writeJSON(w, http.StatusOK, media.UploadResponse{Path: objectPath})
}

// HandlePublicObject serves a stored object without authentication.
func (h *Handlers) HandlePublicObject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only GET method is allowed")
		return
	}
	bucket, objectPath := r.PathValue("bucket"), r.PathValue("path")
	f, modTime, err := h.blobs.Open(r.Context(), bucket, objectPath)
	switch {
	case errors.Is(err, ErrBlobNotFound), errors.Is(err, ErrBadBlobPath):
		writeError(w, http.StatusNotFound, "not_found", "object not found")
		return
	case err != nil:
		h.logger.Error("Failed to open object", "bucket", bucket, "path", objectPath, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Failed to read object")
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", media.ContentType(media.Extension(objectPath)))
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	http.ServeContent(w, r, objectPath, modTime, f)
}

// HandleToken is the development sign-in: any user id gets a token.
func (h *Handlers) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Only POST method is allowed")
		return
	}
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "user_id required")
		return
	}
	var confirmedAt *time.Time
	if req.Confirmed {
		now := h.jwt.now()
		confirmedAt = &now
	}
	tok, err := h.jwt.GenerateToken(req.UserID, req.Email, confirmedAt, h.tokenTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{
		AccessToken: tok,
		TokenType:   "bearer",
		ExpiresIn:   int64(h.tokenTTL / time.Second),
	})
	h.logger.Info("Issued development token", "user_id", req.UserID, "confirmed", req.Confirmed)
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandleHealth reports whether the database answers.
func HandleHealth(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "unhealthy", err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "gymsync"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		writeError(w, http.StatusInternalServerError, "encode_failed", "Failed to encode response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes a standardized error response
func writeError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: errorCode, Message: message})
}
