package media

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type mapSource map[string][]byte

func (m mapSource) ReadFile(path string) ([]byte, error) {
	if b, ok := m[path]; ok {
		return b, nil
	}
	return nil, os.ErrNotExist
}

type countingRecorder struct{ ok, failed int }

func (c *countingRecorder) ObserveUpload(_ string, ok bool) {
	if ok {
		c.ok++
	} else {
		c.failed++
	}
}

func TestIsLocal(t *testing.T) {
	cases := map[string]bool{
		"":                          false,
		"https://cdn.example/a.jpg": false,
		"HTTP://cdn.example/a.jpg":  false,
		"file:///data/a.jpg":        true,
		"/data/a.jpg":               true,
		"content://media/1":         true,
		"ph://ABC-123":              true,
	}
	for ref, want := range cases {
		require.Equal(t, want, IsLocal(ref), ref)
	}
	require.Equal(t, "/data/a.jpg", LocalPath("file:///data/a.jpg"))
	require.Equal(t, "/data/a.jpg", LocalPath("/data/a.jpg"))
}

func TestContentType(t *testing.T) {
	require.Equal(t, "png", Extension("/x/Photo.PNG"))
	require.Equal(t, "jpg", Extension("/x/noext"))
	require.Equal(t, "image/png", ContentType("png"))
	require.Equal(t, "video/mp4", ContentType("mp4"))
	require.Equal(t, "image/jpeg", ContentType("bmp"))
}

func TestUpload_LocalFile(t *testing.T) {
	storage := NewMemoryStorage("https://cdn.example")
	rec := &countingRecorder{}
	ext := NewExternalizer(storage,
		WithSource(mapSource{"/data/a.png": []byte("png-bytes")}),
		WithNameFunc(func() string { return "obj" }),
		WithRecorder(rec))

	url, ok := ext.Upload(context.Background(), "file:///data/a.png", "u1", "progress-photos")
	require.True(t, ok)
	require.Equal(t, "https://cdn.example/storage/v1/object/public/progress-photos/u1/obj.png", url)

	data, ct, found := storage.Object("progress-photos", "u1/obj.png")
	require.True(t, found)
	require.Equal(t, "png-bytes", string(data))
	require.Equal(t, "image/png", ct)
	require.Equal(t, 1, rec.ok)
}

func TestUpload_RemoteRefIsNotUploaded(t *testing.T) {
	storage := NewMemoryStorage("https://cdn.example")
	ext := NewExternalizer(storage, WithSource(mapSource{}))

	url, ok := ext.Upload(context.Background(), "https://cdn.example/x.jpg", "u1", "workout-media")
	require.True(t, ok)
	require.Equal(t, "https://cdn.example/x.jpg", url)
	require.Zero(t, storage.Len())
}

func TestUpload_FailuresReturnSentinel(t *testing.T) {
	storage := NewMemoryStorage("https://cdn.example")
	rec := &countingRecorder{}
	ext := NewExternalizer(storage, WithSource(mapSource{"/data/a.jpg": []byte("x")}), WithRecorder(rec))

	url, ok := ext.Upload(context.Background(), "/data/missing.jpg", "u1", "workout-media")
	require.False(t, ok)
	require.Empty(t, url)

	storage.Fail = func(bucket, path string) error { return errors.New("bucket offline") }
	url, ok = ext.Upload(context.Background(), "/data/a.jpg", "u1", "workout-media")
	require.False(t, ok)
	require.Empty(t, url)
	require.Equal(t, 2, rec.failed)

	storage.Fail = func(bucket, path string) error { panic("boom") }
	_, ok = ext.Upload(context.Background(), "/data/a.jpg", "u1", "workout-media")
	require.False(t, ok)
}

func TestUpload_ReadsFromDisk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("video"), 0o600))

	storage := NewMemoryStorage("https://cdn.example")
	ext := NewExternalizer(storage, WithNameFunc(func() string { return "v" }))
	url, ok := ext.Upload(context.Background(), "file://"+path, "u1", "workout-media")
	require.True(t, ok)
	require.True(t, strings.HasSuffix(url, "/workout-media/u1/v.mp4"))
	_, ct, _ := storage.Object("workout-media", "u1/v.mp4")
	require.Equal(t, "video/mp4", ct)
}

func TestHTTPStorage_Upload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/storage/v1/object/workout-media/u1/a.jpg", r.URL.Path)
		require.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		require.Equal(t, "true", r.Header.Get("X-Upsert"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.Equal(t, "jpeg", string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"path":"u1/a.jpg"}`))
	}))
	defer srv.Close()

	s := NewHTTPStorage(srv.URL, func(context.Context) (string, error) { return "tok", nil }, 0)
	path, err := s.Upload(context.Background(), "workout-media", "u1/a.jpg", []byte("jpeg"), "image/jpeg")
	require.NoError(t, err)
	require.Equal(t, "u1/a.jpg", path)
	require.Equal(t, srv.URL+"/storage/v1/object/public/workout-media/u1/a.jpg", s.PublicURL("workout-media", path))

	s.PublicBase = "https://cdn.example/"
	require.Equal(t, "https://cdn.example/storage/v1/object/public/workout-media/u1/a.jpg", s.PublicURL("workout-media", path))
}

func TestHTTPStorage_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too large", http.StatusRequestEntityTooLarge)
	}))
	defer srv.Close()

	s := NewHTTPStorage(srv.URL, nil, 0)
	_, err := s.Upload(context.Background(), "progress-photos", "u1/a.jpg", []byte("x"), "image/jpeg")
	require.ErrorContains(t, err, "413")
}
