package userclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(url string) *Client {
	return New(Options{
		BaseURL:         url + "/",
		Timeout:         time.Second,
		Retries:         2,
		MaxIdleConns:    4,
		IdleConnTimeout: time.Minute,
		AuthHeader:      "Bearer secret",
	}, zap.NewNop().Sugar())
}

func TestClient_FindUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/users/1":
			_, _ = w.Write([]byte(`{"trace_id":"t","message":"Success","data":{"id":1,"email":"a@example.com","name":"A"}}`))
		case "/users/2":
			_, _ = w.Write([]byte(`{"id":2,"email":"b@example.com"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	u, err := c.FindUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)
	assert.Equal(t, "A", u.Name)

	u, err = c.FindUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), u.ID)
	assert.Equal(t, "b@example.com", u.Email)

	_, err = c.FindUser(context.Background(), 3)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"id":5,"email":"e@example.com"}`))
	}))
	defer srv.Close()

	u, err := newTestClient(srv.URL).FindUser(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "e@example.com", u.Email)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FindUser(context.Background(), 5)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}
