// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
)

// RestPrefix is the path under which the backend serves tables.
const RestPrefix = "/rest/v1/"

// HTTPStore talks to the backend's table endpoints.
type HTTPStore struct {
	BaseURL string
	Token   func(context.Context) (string, error) // returns JWT
	HTTP    *http.Client
}

// NewHTTPStore creates a store for baseURL. A zero timeout means 30 seconds.
func NewHTTPStore(baseURL string, token func(context.Context) (string, error), timeout time.Duration) *HTTPStore {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPStore{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// StatusError is returned for non-success responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

func (s *HTTPStore) authorize(ctx context.Context, req *http.Request) error {
	if s.Token == nil {
		return nil
	}
	token, err := s.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get JWT token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// upsertResult mirrors the backend's upsert response. A missing applied
// field counts as applied.
type upsertResult struct {
	ID      string `json:"id"`
	Applied *bool  `json:"applied"`
}

// Upsert sends the row to POST /rest/v1/{table}. It returns ErrStaleRow when
// the backend reports the row was not applied.
func (s *HTTPStore) Upsert(ctx context.Context, table string, row localdb.Row) error {
	body, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("failed to marshal %s row: %w", table, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.BaseURL+RestPrefix+url.PathEscape(table), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if err := s.authorize(ctx, req); err != nil {
		return err
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s upsert response: %w", table, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	var res upsertResult
	if err := json.Unmarshal(b, &res); err != nil {
		return fmt.Errorf("failed to decode %s upsert response: %w", table, err)
	}
	if res.Applied != nil && !*res.Applied {
		return ErrStaleRow
	}
	return nil
}

// SelectByUser reads GET /rest/v1/{table}?user_id=...
func (s *HTTPStore) SelectByUser(ctx context.Context, table, userID string) ([]localdb.Row, error) {
	u := fmt.Sprintf("%s%s%s?user_id=%s", s.BaseURL, RestPrefix, url.PathEscape(table), url.QueryEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	if err := s.authorize(ctx, req); err != nil {
		return nil, err
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var rows []localdb.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s rows: %w", table, err)
	}
	return rows, nil
}
