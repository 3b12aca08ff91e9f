package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/trustbloc/logutil-go/pkg/log"

	"lumen.dev/sdk/internal/metrics"
	"lumen.dev/sdk/relay"
	"lumen.dev/sdk/relay/memstore"
	"lumen.dev/sdk/relay/storetest"
	"lumen.dev/sdk/topics"
)

var kernel = common.HexToAddress("0x52078D914CbccD78EE856b37b438818afaB3899c")

type headFunc func(ctx context.Context) (uint64, error)

func (f headFunc) Head(ctx context.Context) (uint64, error) { return f(ctx) }

func newTestServer(t *testing.T, head HeadReader) (*httptest.Server, *memstore.Store, *relay.Hub) {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := memstore.New()
	hub := relay.NewHub(8, m)
	if head == nil {
		head = headFunc(func(context.Context) (uint64, error) { return 1234, nil })
	}

	srv := httptest.NewServer(NewRouter(Endpoints(Deps{
		Store:    store,
		Hub:      hub,
		Head:     head,
		ChainID:  8453,
		Kernel:   kernel,
		Gatherer: reg,
	})...))
	t.Cleanup(srv.Close)

	return srv, store, hub
}

func getJSON(t *testing.T, url string, wantStatus int, out interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, wantStatus, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func TestHealth(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	var body map[string]interface{}
	getJSON(t, srv.URL+"/health", http.StatusOK, &body)
	require.Equal(t, true, body["ok"])
	require.Equal(t, float64(8453), body["chainId"])
	require.Equal(t, kernel.Hex(), body["kernelAddress"])
	require.Equal(t, float64(1234), body["latestBlock"])

	srv, _, _ = newTestServer(t, headFunc(func(context.Context) (uint64, error) { return 0, errors.New("rpc down") }))
	body = nil
	getJSON(t, srv.URL+"/health", http.StatusInternalServerError, &body)
	require.Equal(t, false, body["ok"])
	require.Equal(t, "rpc down", body["error"])
}

func TestEvents(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)
	ctx := context.Background()

	a := storetest.Row(1, 0, topics.Heartbeat, storetest.AuthorA)
	b := storetest.Row(2, 0, topics.JobRequest, storetest.AuthorB)
	c := storetest.Row(3, 0, topics.Heartbeat, storetest.AuthorB)
	for _, r := range []relay.Row{a, b, c} {
		_, err := store.Insert(ctx, r)
		require.NoError(t, err)
	}

	var resp struct {
		Events []relay.Row `json:"events"`
	}
	getJSON(t, srv.URL+"/events", http.StatusOK, &resp)
	require.Equal(t, []relay.Row{c, b, a}, resp.Events)

	getJSON(t, srv.URL+"/events?topic="+topics.Heartbeat+"&author="+strings.ToLower(storetest.AuthorB.Hex()), http.StatusOK, &resp)
	require.Equal(t, []relay.Row{c}, resp.Events)

	getJSON(t, srv.URL+"/events?limit=0", http.StatusOK, &resp)
	require.Len(t, resp.Events, 1)

	getJSON(t, srv.URL+"/events?topic=unknown.topic", http.StatusOK, &resp)
	require.NotNil(t, resp.Events)
	require.Empty(t, resp.Events)

	var errBody map[string]interface{}
	getJSON(t, srv.URL+"/events?limit=abc", http.StatusBadRequest, &errBody)
	getJSON(t, srv.URL+"/events?author=bob", http.StatusBadRequest, &errBody)
	require.Equal(t, false, errBody["ok"])
}

func TestTopics(t *testing.T) {
	srv, store, _ := newTestServer(t, nil)

	for i := uint64(0); i < 2; i++ {
		_, err := store.Insert(context.Background(), storetest.Row(i, 0, topics.Demo, storetest.AuthorA))
		require.NoError(t, err)
	}

	var resp struct {
		Topics []relay.TopicCount `json:"topics"`
	}
	getJSON(t, srv.URL+"/topics", http.StatusOK, &resp)
	require.Equal(t, []relay.TopicCount{{Topic: topics.ID(topics.Demo).Hex(), TopicName: topics.Demo, Count: 2}}, resp.Topics)
}

func TestStream(t *testing.T) {
	srv, _, hub := newTestServer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	rd := bufio.NewReader(resp.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := rd.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				return event, data
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, data := readEvent()
	require.Equal(t, "hello", event)
	require.JSONEq(t, `{"ok":true,"kernelAddress":"`+kernel.Hex()+`","chainId":8453}`, data)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	row := storetest.Row(5, 2, topics.Heartbeat, storetest.AuthorA)
	hub.Broadcast(row)

	event, data = readEvent()
	require.Equal(t, "context", event)
	var got relay.Row
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	require.Equal(t, row, got)

	cancel()
	require.Eventually(t, func() bool { return hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestMetricsAndCORS(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.org")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(b), "lumen_relay_stream_subscribers")
}

func TestLogLevels(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	orig := log.GetSpec()
	defer func() { require.NoError(t, log.SetSpec(orig)) }()

	resp, err := http.Post(srv.URL+"/loglevels", "text/plain", strings.NewReader("lumen-relay=DEBUG:INFO"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/loglevels")
	require.NoError(t, err)
	b, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Contains(t, strings.ToUpper(string(b)), "LUMEN-RELAY=DEBUG")

	resp, err = http.Post(srv.URL+"/loglevels", "text/plain", strings.NewReader("lumen-relay=LOUD"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
