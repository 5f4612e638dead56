package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, body)
	})
}

func get(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestServer_Lifecycle(t *testing.T) {
	t.Parallel()

	srv := NewServer(ServerConfig{Address: "127.0.0.1:0"})
	assert.Equal(t, StateStopped, srv.State())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrNoHandler)

	srv.SetHandler(textHandler("one"))
	require.NoError(t, srv.Start(context.Background()))
	assert.True(t, srv.IsRunning())
	assert.ErrorIs(t, srv.Start(context.Background()), ErrServerNotStopped)

	base := "http://" + srv.Addr()
	assert.Equal(t, "one", get(t, base))

	srv.SetHandler(textHandler("two"))
	assert.Equal(t, "two", get(t, base))
	assert.Greater(t, srv.Uptime(), time.Duration(0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.Equal(t, StateStopped, srv.State())
	assert.ErrorIs(t, srv.Stop(ctx), ErrServerNotRunning)

	_, open := <-srv.Errors()
	assert.False(t, open)
}

func TestServer_ListenError(t *testing.T) {
	t.Parallel()

	srv := NewServer(ServerConfig{Address: "256.0.0.1:bad"})
	srv.SetHandler(textHandler("x"))
	assert.Error(t, srv.Start(context.Background()))
	assert.Equal(t, StateStopped, srv.State())
}

func TestServer_NotReady(t *testing.T) {
	t.Parallel()

	srv := NewServer(ServerConfig{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestState_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "starting", StateStarting.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "stopping", StateStopping.String())
	assert.Equal(t, "unknown", State(42).String())
}
