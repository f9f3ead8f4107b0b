package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/require"
)

func newTestSyncer(t *testing.T, url string) *HTTPSyncer {
	t.Helper()

	s, err := NewHTTPSyncer(Config{BaseURL: url, Token: "secret", MaxRetries: 3})
	require.NoError(t, err)
	s.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return s
}

func TestHTTPSyncer_SyncEstimate(t *testing.T) {
	var got map[string]float64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/issues/PROJ-12/estimate", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := newTestSyncer(t, srv.URL+"/")
	require.NoError(t, s.SyncEstimate(context.Background(), "PROJ-12", 8))
	require.Equal(t, map[string]float64{"estimate": 8}, got)
}

func TestHTTPSyncer_PostComments(t *testing.T) {
	var got struct {
		Comments []Comment `json:"comments"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/issues/PROJ-12/comments", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := newTestSyncer(t, srv.URL)

	t.Run("posts comments", func(t *testing.T) {
		err := s.PostComments(context.Background(), "PROJ-12", []Comment{{Author: "alice", Body: "needs a spike"}})
		require.NoError(t, err)
		require.Len(t, got.Comments, 1)
		require.Equal(t, "needs a spike", got.Comments[0].Body)
	})

	t.Run("empty comments skip the request", func(t *testing.T) {
		require.NoError(t, s.PostComments(context.Background(), "PROJ-12", nil))
	})
}

func TestHTTPSyncer_Retries(t *testing.T) {
	t.Run("retries server errors", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		s := newTestSyncer(t, srv.URL)
		require.NoError(t, s.SyncEstimate(context.Background(), "PROJ-1", 3))
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		s := newTestSyncer(t, srv.URL)
		require.Error(t, s.SyncEstimate(context.Background(), "PROJ-1", 3))
		require.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		s := newTestSyncer(t, srv.URL)
		require.Error(t, s.SyncEstimate(context.Background(), "PROJ-1", 3))
		require.Equal(t, int32(1), calls.Load())
	})
}

func TestNewHTTPSyncer_RequiresURL(t *testing.T) {
	_, err := NewHTTPSyncer(Config{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestNoop(t *testing.T) {
	var s Syncer = Noop{}
	require.ErrorIs(t, s.SyncEstimate(context.Background(), "X-1", 1), ErrNotConfigured)
}
