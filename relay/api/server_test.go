package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", time.Second, logSpecReader{})

	require.EqualError(t, s.Stop(context.Background()), "cannot stop HTTP server since it hasn't been started")

	require.NoError(t, s.Start())
	require.Error(t, s.Start(), "already started")

	require.NoError(t, s.Stop(context.Background()))
	require.Error(t, s.Stop(context.Background()))
}

func TestNewRouter_MethodMismatch(t *testing.T) {
	srv := NewServer("", 0, logSpecReader{})

	req, err := http.NewRequest(http.MethodDelete, "/loglevels", nil)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
