package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/internal/logfields"
)

// Endpoint is one routed HTTP handler.
type Endpoint interface {
	Method() string
	Path() string
	Handler() http.HandlerFunc
}

// NewRouter routes endpoints and wraps them with permissive CORS.
func NewRouter(endpoints ...Endpoint) http.Handler {
	router := mux.NewRouter()

	for _, e := range endpoints {
		logger.Debug("Registering handler", logfields.WithAddress(e.Method()+" "+e.Path()))

		router.HandleFunc(e.Path(), e.Handler()).Methods(e.Method())
	}

	return cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
		},
	).Handler(router)
}

// Server is the relay HTTP server.
type Server struct {
	httpServer *http.Server
	started    uint32
}

// NewServer returns a server listening on addr.
func NewServer(addr string, readHeaderTimeout time.Duration, endpoints ...Endpoint) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewRouter(endpoints...),
			ReadHeaderTimeout: readHeaderTimeout,
		},
	}
}

// Start listens on the configured address and serves in a separate goroutine.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapUint32(&s.started, 0, 1) {
		return fmt.Errorf("server already started")
	}

	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		atomic.StoreUint32(&s.started, 0)
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}

	go func() {
		logger.Info("Listening for requests", logfields.WithAddress(ln.Addr().String()))

		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", log.WithError(err))
		}

		atomic.StoreUint32(&s.started, 0)

		logger.Info("Server has stopped")
	}()

	return nil
}

// Stop shuts the server down, waiting for open requests until ctx is done.
// Open event streams end when their request contexts are cancelled.
func (s *Server) Stop(ctx context.Context) error {
	if !atomic.CompareAndSwapUint32(&s.started, 1, 0) {
		return fmt.Errorf("cannot stop HTTP server since it hasn't been started")
	}

	return s.httpServer.Shutdown(ctx)
}
