package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_ValidatesConfig(t *testing.T) {
	_, err := NewClient(&Config{BaseURL: "not a url", Timeout: time.Second}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewClient(&Config{BaseURL: "https://example.com", Timeout: 0}, zerolog.Nop())
	assert.Error(t, err)
}

func TestClient_ExecuteGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ping", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("x"))
		assert.Equal(t, "abc", r.Header.Get("X-Test"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := NewClient(&Config{BaseURL: srv.URL, Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.Execute(context.Background(), http.MethodGet, "/ping",
		WithQueryParam("x", "1"),
		WithHeader("X-Test", "abc"),
	)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
}

func TestClient_ClosedClientRejectsCalls(t *testing.T) {
	c, err := NewClient(&Config{BaseURL: "https://example.com", Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.Execute(context.Background(), http.MethodGet, "/")
	assert.Error(t, err)
}
