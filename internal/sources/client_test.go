package sources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingGate counts Wait calls and remembers the last pause
type recordingGate struct {
	waits  atomic.Int32
	paused atomic.Int64
}

func (g *recordingGate) Wait(ctx context.Context) error {
	g.waits.Add(1)
	return ctx.Err()
}

func (g *recordingGate) Pause(d time.Duration) {
	g.paused.Store(int64(d))
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *recordingGate) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gate := &recordingGate{}
	client := NewClient(Options{
		Name:    "test",
		BaseURL: server.URL,
		Gate:    gate,
		Header:  http.Header{"Authorization": []string{"Discogs token=abc"}},
	})
	return client, gate
}

func TestClient_GetJSON(t *testing.T) {
	client, gate := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/alice/wants", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "Discogs token=abc", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("User-Agent"), "shelfsync")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"blue train","count":3}`))
	})

	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	err := client.GetJSON(context.Background(), "/users/alice/wants", url.Values{"page": {"2"}}, &out)

	require.NoError(t, err)
	assert.Equal(t, "blue train", out.Name)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, int32(1), gate.waits.Load())
}

func TestClient_PostJSON(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"query":"{ me { id } }"}`, string(body))
		_, _ = w.Write([]byte(`{"data":{"ok":true}}`))
	})

	var out struct {
		Data struct {
			OK bool `json:"ok"`
		} `json:"data"`
	}
	err := client.PostJSON(context.Background(), "/graphql", map[string]string{"query": "{ me { id } }"}, &out)

	require.NoError(t, err)
	assert.True(t, out.Data.OK)
}

func TestClient_RateLimitedPausesGate(t *testing.T) {
	client, gate := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "12")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.Do(context.Background(), Request{Path: "/anything"})

	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(12*time.Second), gate.paused.Load())
}

func TestClient_NonSuccessStatus(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such user", http.StatusNotFound)
	})

	_, err := client.Do(context.Background(), Request{Path: "/users/ghost"})

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "no such user")
}

func TestClient_AcceptedIsReturned(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`<message>queued</message>`))
	})

	resp, err := client.Do(context.Background(), Request{Path: "/xmlapi2/collection"})

	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestClient_AbsolutePathIgnoresBaseURL(t *testing.T) {
	other := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer other.Close()

	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("base URL should not be used for absolute paths")
	})

	_, err := client.Do(context.Background(), Request{Path: other.URL + "/x"})
	assert.NoError(t, err)
}

func TestClient_BreakerOpensAfterRepeatedServerErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, _ = client.Do(ctx, Request{Path: "/down"})
	}
	_, err := client.Do(ctx, Request{Path: "/down"})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.Equal(t, int32(10), calls.Load())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})

	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, _ = client.Do(ctx, Request{Path: "/missing"})
	}

	assert.Equal(t, int32(15), calls.Load())
}

func TestClient_GateErrorStopsRequest(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should not be sent")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Do(ctx, Request{Path: "/x"})
	assert.ErrorIs(t, err, context.Canceled)
}
