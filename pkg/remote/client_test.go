package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClient_InvalidURL(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "://nope"})
	assert.Error(t, err)

	_, err = NewClient(Config{BaseURL: "ftp://bottles.example"})
	assert.Error(t, err)
}

func TestClient_NotConfigured(t *testing.T) {
	c, err := NewClient(Config{})
	require.NoError(t, err)
	assert.False(t, c.IsConfigured())

	_, err = c.Create(context.Background(), bottle.Draft{})
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.Pick(context.Background(), "u")
	assert.ErrorIs(t, err, ErrNotConfigured)
	_, err = c.ActiveCount(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_Create(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bottles/", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bottle_id": 31}`))
	})

	id, err := c.Create(context.Background(), bottle.Draft{
		Content:  "hello",
		Images:   []bottle.Image{{Type: bottle.ImageURL, Data: "http://img"}},
		Sender:   "Alice",
		SenderID: "telegram:1",
	})
	require.NoError(t, err)
	assert.Equal(t, "31", id)
	assert.Equal(t, "hello", got["content"])
	assert.Equal(t, "Alice", got["sender"])
	assert.Equal(t, "telegram:1", got["sender_id"])
	assert.Len(t, got["images"], 1)
}

func TestClient_CreateServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "database down", http.StatusInternalServerError)
	})

	_, err := c.Create(context.Background(), bottle.Draft{Content: "x"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Contains(t, err.Error(), "database down")
}

func TestClient_Pick(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bottles/pick/onebot:42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"bottle_id": 8, "content": "far away", "images": [],
			"sender": "Bob", "sender_id": "discord:9", "timestamp": "2025-02-02 02:02:02"}`))
	})

	b, err := c.Pick(context.Background(), "onebot:42")
	require.NoError(t, err)
	assert.Equal(t, "8", b.ID)
	assert.Equal(t, "far away", b.Content)
	assert.Equal(t, "Bob", b.Sender)
}

func TestClient_PickNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail": "no bottles"}`, http.StatusNotFound)
	})

	_, err := c.Pick(context.Background(), "u")
	assert.ErrorIs(t, err, bottle.ErrNoBottles)
	assert.True(t, IsNotFound(err))
}

func TestClient_ActiveCount(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/bottles/counts/active", r.URL.Path)
		w.Write([]byte(`{"total_active_bottles": 12}`))
	})

	n, err := c.ActiveCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, n)
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Config{BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.ActiveCount(context.Background())
	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestStore_RemotePickNotFoundLeavesStateUntouched(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	s, err := bottle.Open(filepath.Join(t.TempDir(), bottle.DefaultFileName), bottle.WithRemote(c))
	require.NoError(t, err)

	before, err := s.Snapshot()
	require.NoError(t, err)

	res, err := s.Pick(context.Background(), "B", bottle.Cloud)
	require.NoError(t, err)
	assert.Equal(t, bottle.Empty, res.Status)
	assert.Nil(t, res.Bottle)

	after, err := s.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}
