package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lakshya75way/Gym-Workout-Habit-Tracker-Mobile-App/localdb"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func staticToken(context.Context) (string, error) { return "token", nil }

func TestRowLastWriteWins(t *testing.T) {
	older := localdb.Row{"id": "a", "updated_at": "2025-01-01T00:00:00.000Z", "name": "old"}
	newer := localdb.Row{"id": "a", "updated_at": "2025-01-02T00:00:00.000Z", "name": "new"}

	require.True(t, RowLastWriteWins.Accept(nil, older))
	require.True(t, RowLastWriteWins.Accept(older, newer))
	require.False(t, RowLastWriteWins.Accept(newer, older))
	require.True(t, RowLastWriteWins.Accept(newer, newer), "equal stamps are idempotent re-pushes")
	require.Equal(t, "new", Winner(RowLastWriteWins, newer, older).String("name"))
	require.Equal(t, "timestamp-based, row-granularity, no field merge", RowLastWriteWins.Name())
}

func TestMemoryStore_UpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	row := localdb.Row{"id": "w1", "user_id": "u1", "name": "Push", "updated_at": "2025-01-01T00:00:00.000Z"}

	require.NoError(t, m.Upsert(ctx, "workouts", row))
	require.NoError(t, m.Upsert(ctx, "workouts", row))
	require.Equal(t, 1, m.Count("workouts"))
	require.Equal(t, 2, m.Upserts("workouts"))
	require.Equal(t, row, m.Get("workouts", "w1"))

	stale := localdb.Row{"id": "w1", "user_id": "u1", "name": "Stale", "updated_at": "2024-01-01T00:00:00.000Z"}
	require.ErrorIs(t, m.Upsert(ctx, "workouts", stale), ErrStaleRow)
	require.Equal(t, 3, m.Upserts("workouts"))
	require.Equal(t, "Push", m.Get("workouts", "w1").String("name"))

	hijack := localdb.Row{"id": "w1", "user_id": "u2", "updated_at": "2026-01-01T00:00:00.000Z"}
	require.ErrorIs(t, m.Upsert(ctx, "workouts", hijack), ErrOwnerMismatch)

	rows, err := m.SelectByUser(ctx, "workouts", "u2")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestHTTPStore_Upsert(t *testing.T) {
	var gotPath, gotAuth string
	var gotRow map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRow))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL+"/", staticToken, 0)
	err := store.Upsert(context.Background(), "workouts", localdb.Row{"id": "w1", "user_id": "u1", "sets": int64(3)})
	require.NoError(t, err)
	require.Equal(t, "/rest/v1/workouts", gotPath)
	require.Equal(t, "Bearer token", gotAuth)
	require.Equal(t, "w1", gotRow["id"])
	require.EqualValues(t, 3, gotRow["sets"])
}

func TestHTTPStore_UpsertReportsStaleRow(t *testing.T) {
	responses := []string{`{"id":"w1","applied":true}`, `{"id":"w1","applied":false}`, `{"id":"w1"}`}
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(responses[calls]))
		calls++
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, staticToken, 0)
	row := localdb.Row{"id": "w1", "user_id": "u1"}
	require.NoError(t, store.Upsert(context.Background(), "workouts", row))
	require.ErrorIs(t, store.Upsert(context.Background(), "workouts", row), ErrStaleRow)
	require.NoError(t, store.Upsert(context.Background(), "workouts", row))
	require.Equal(t, 3, calls)
}

func TestHTTPStore_UpsertFailureCarriesStatus(t *testing.T) {
	store := NewHTTPStore("http://example.com", staticToken, 0)
	store.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Body:       io.NopCloser(strings.NewReader(`{"error":"invalid_row"}`)),
			Header:     make(http.Header),
		}, nil
	})}

	err := store.Upsert(context.Background(), "logs", localdb.Row{"id": "l1"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.StatusCode)
	require.Contains(t, statusErr.Body, "invalid_row")
}

func TestHTTPStore_SelectByUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/rest/v1/exercises", r.URL.Path)
		require.Equal(t, "u 1", r.URL.Query().Get("user_id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"e1","user_id":"u 1","sets":3,"weight":62.5}]`))
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL, staticToken, 0)
	rows, err := store.SelectByUser(context.Background(), "exercises", "u 1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, json.Number("3"), rows[0]["sets"])
	require.Equal(t, json.Number("62.5"), rows[0]["weight"])
}

func TestHTTPStore_TokenFailure(t *testing.T) {
	store := NewHTTPStore("http://example.com", func(context.Context) (string, error) {
		return "", errors.New("signed out")
	}, 0)
	store.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatal("request must not be sent without a token")
		return nil, nil
	})}

	_, err := store.SelectByUser(context.Background(), "workouts", "u1")
	require.ErrorContains(t, err, "signed out")
}
