package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddr(t *testing.T) {
	assert.Equal(t, ":3000", normalizeAddr("3000"))
	assert.Equal(t, ":3000", normalizeAddr(":3000"))
	assert.Equal(t, "0.0.0.0:3000", normalizeAddr("0.0.0.0:3000"))
}

func TestServer_RunAndShutdown(t *testing.T) {
	srv := New()
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run("127.0.0.1:0", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "pong")
		}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	addr, err := srv.Addr(ctx)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, srv.Shutdown(ctx))
	assert.NoError(t, <-errCh)
}

func TestServer_ShutdownBeforeRun(t *testing.T) {
	assert.NoError(t, New().Shutdown(context.Background()))
}
