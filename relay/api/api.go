// Package api serves the relay over HTTP: health, event and topic queries, a
// server-sent event stream of new events, metrics and log levels.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/internal/logfields"
	"lumen.dev/sdk/relay"
)

var logger = log.New("lumen-relay-api")

const defaultKeepAlive = 15 * time.Second

// HeadReader reports the ledger head for /health.
type HeadReader interface {
	Head(ctx context.Context) (uint64, error)
}

// Deps are the collaborators of the relay endpoints.
type Deps struct {
	Store relay.Store
	Hub   *relay.Hub
	Head  HeadReader

	ChainID uint64
	Kernel  common.Address

	// Gatherer backs /metrics. Nil omits the endpoint.
	Gatherer prometheus.Gatherer
	// KeepAlive is the interval of stream comments that keep idle
	// connections open. Default 15s.
	KeepAlive time.Duration
}

// Endpoints returns every relay endpoint.
func Endpoints(d Deps) []Endpoint {
	if d.KeepAlive <= 0 {
		d.KeepAlive = defaultKeepAlive
	}

	eps := []Endpoint{
		endpoint{http.MethodGet, "/health", d.health},
		endpoint{http.MethodGet, "/events", d.events},
		endpoint{http.MethodGet, "/topics", d.topics},
		endpoint{http.MethodGet, "/stream", d.stream},
		logSpecReader{},
		newLogSpecWriter(),
	}
	if d.Gatherer != nil {
		eps = append(eps, endpoint{http.MethodGet, "/metrics",
			promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}).ServeHTTP})
	}
	return eps
}

type endpoint struct {
	method  string
	path    string
	handler http.HandlerFunc
}

func (e endpoint) Method() string            { return e.method }
func (e endpoint) Path() string              { return e.path }
func (e endpoint) Handler() http.HandlerFunc { return e.handler }

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type healthResponse struct {
	OK            bool   `json:"ok"`
	ChainID       uint64 `json:"chainId"`
	KernelAddress string `json:"kernelAddress"`
	LatestBlock   uint64 `json:"latestBlock"`
}

func (d Deps) health(w http.ResponseWriter, req *http.Request) {
	head, err := d.Head.Head(req.Context())
	if err != nil {
		logger.Warn("Health check failed", log.WithError(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, healthResponse{
		OK:            true,
		ChainID:       d.ChainID,
		KernelAddress: d.Kernel.Hex(),
		LatestBlock:   head,
	})
}

func (d Deps) events(w http.ResponseWriter, req *http.Request) {
	params := req.URL.Query()

	q := relay.Query{Topic: params.Get("topic"), Author: params.Get("author")}
	if s := params.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid limit %q", s)})
			return
		}
		if n < 1 {
			n = 1
		}
		q.Limit = n
	}

	rows, err := d.Store.QueryEvents(req.Context(), q)
	if errors.Is(err, relay.ErrInvalidQuery) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		logger.Error("Event query failed", log.WithError(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if rows == nil {
		rows = []relay.Row{}
	}

	writeJSON(w, http.StatusOK, struct {
		Events []relay.Row `json:"events"`
	}{rows})
}

func (d Deps) topics(w http.ResponseWriter, req *http.Request) {
	counts, err := d.Store.QueryTopics(req.Context(), relay.TopicsLimit)
	if err != nil {
		logger.Error("Topic query failed", log.WithError(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if counts == nil {
		counts = []relay.TopicCount{}
	}

	writeJSON(w, http.StatusOK, struct {
		Topics []relay.TopicCount `json:"topics"`
	}{counts})
}

type helloEvent struct {
	OK            bool   `json:"ok"`
	KernelAddress string `json:"kernelAddress"`
	ChainID       uint64 `json:"chainId"`
}

func (d Deps) stream(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	sub := d.Hub.Subscribe()
	defer sub.Cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "hello", helloEvent{OK: true, KernelAddress: d.Kernel.Hex(), ChainID: d.ChainID}); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(d.KeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-req.Context().Done():
			return
		case row, open := <-sub.C:
			if !open {
				return
			}
			if err := writeEvent(w, "context", row); err != nil {
				logger.Debug("Stream write failed", logfields.WithSubscriber(sub.ID), log.WithError(err))
				return
			}
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, event string, data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		logger.Error("Unable to marshal response", log.WithError(err))
		writeResponse(w, http.StatusInternalServerError, []byte(internalServerErrorResponse))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeResponse(w, status, b)
}
