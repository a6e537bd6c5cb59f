// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Path prefixes of the backend's object endpoints.
const (
	ObjectPrefix       = "/storage/v1/object/"
	PublicObjectPrefix = "/storage/v1/object/public/"
)

// Storage is the remote blob surface.
type Storage interface {
	// Upload stores data at path in bucket, overwriting any existing object,
	// and returns the stored object path.
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
	// PublicURL returns the stable public URL of an object.
	PublicURL(bucket, path string) string
}

// UploadResponse is returned by the backend after storing an object.
type UploadResponse struct {
	Path string `json:"path"`
}

// HTTPStorage uploads to the backend's object endpoints.
type HTTPStorage struct {
	BaseURL    string
	PublicBase string // optional override for public links, e.g. a CDN
	Token      func(context.Context) (string, error)
	HTTP       *http.Client
}

// NewHTTPStorage creates a storage client for baseURL. A zero timeout means
// two minutes, enough for short videos.
func NewHTTPStorage(baseURL string, token func(context.Context) (string, error), timeout time.Duration) *HTTPStorage {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPStorage{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (s *HTTPStorage) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	u := s.BaseURL + ObjectPrefix + url.PathEscape(bucket) + "/" + escapePath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Upsert", "true")
	if s.Token != nil {
		token, err := s.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to get JWT token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if out.Path == "" {
		out.Path = path
	}
	return out.Path, nil
}

func (s *HTTPStorage) PublicURL(bucket, path string) string {
	base := s.BaseURL
	if s.PublicBase != "" {
		base = strings.TrimRight(s.PublicBase, "/")
	}
	return base + PublicObjectPrefix + url.PathEscape(bucket) + "/" + escapePath(path)
}

// MemoryStorage keeps objects in memory. Tests use it as a fake backend.
type MemoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	BaseURL string

	// Fail, when set, makes Upload return its error.
	Fail func(bucket, path string) error
}

// NewMemoryStorage returns an empty storage whose public URLs start with baseURL.
func NewMemoryStorage(baseURL string) *MemoryStorage {
	return &MemoryStorage{
		objects: make(map[string][]byte),
		types:   make(map[string]string),
		BaseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (m *MemoryStorage) Upload(_ context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	if m.Fail != nil {
		if err := m.Fail(bucket, path); err != nil {
			return "", err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bucket + "/" + path
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return path, nil
}

func (m *MemoryStorage) PublicURL(bucket, path string) string {
	return m.BaseURL + PublicObjectPrefix + bucket + "/" + path
}

// Object returns a stored object and its content type.
func (m *MemoryStorage) Object(bucket, path string) ([]byte, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := bucket + "/" + path
	b, ok := m.objects[key]
	return b, m.types[key], ok
}

// Len returns the number of stored objects.
func (m *MemoryStorage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}
