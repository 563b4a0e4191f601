package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-locker/internal/metrics"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestClient_PostEnvelope(t *testing.T) {
	var got map[string]any
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := NewClient(server.URL+"/api/", "secret", time.Second)
	require.NoError(t, c.Post(context.Background(), "new_transaction", map[string]string{"card_id": "A1"}))

	assert.Equal(t, "/api/new_transaction", path)
	assert.Equal(t, "new_transaction", got["action"])
	assert.Equal(t, "secret", got["api_key"])
	assert.NotEmpty(t, got["timestamp"])
	assert.Equal(t, map[string]any{"card_id": "A1"}, got["data"])
}

func TestClient_Non200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad api key", http.StatusUnauthorized)
	}))
	defer server.Close()

	err := NewClient(server.URL, "k", time.Second).Post(context.Background(), "sync", nil)
	assert.ErrorContains(t, err, "401")
	assert.ErrorContains(t, err, "bad api key")
}

func TestClient_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	start := time.Now()
	err := NewClient(server.URL, "k", 50*time.Millisecond).Post(context.Background(), "sync", nil)
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_NotConfigured(t *testing.T) {
	err := NewClient("", "", 0).Post(context.Background(), "sync", nil)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestClient_FetchWashTypes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_wash_types", r.URL.Path)
		_, _ = w.Write([]byte(`{"wash_types": [{"id": 4, "name": "Eco", "price": 3.0}, {"price": 1}]}`))
	}))
	defer server.Close()

	types, err := NewClient(server.URL, "k", time.Second).FetchWashTypes(context.Background())
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "4", string(types[0].ID))
	assert.Equal(t, "Unknown", types[1].Name)
	assert.Equal(t, "0", string(types[1].ID))
}

type fakePoster struct {
	mu    sync.Mutex
	calls []string
	err   error
	block chan struct{}
}

func (f *fakePoster) Post(ctx context.Context, action string, payload any) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action)
	return f.err
}

func (f *fakePoster) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func TestDispatcher_DeliversAndTracksStatus(t *testing.T) {
	poster := &fakePoster{}
	m := metrics.New(nil)
	d := NewDispatcher(poster, 1, 4, quiet, m)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Publish("new_transaction", nil)
	require.Eventually(t, func() bool { return d.Status().Sent == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, d.Status().Healthy())

	poster.mu.Lock()
	poster.err = errors.New("connection refused")
	poster.mu.Unlock()
	d.Publish("pickup_complete", nil)
	require.Eventually(t, func() bool { return d.Status().Failed == 1 }, time.Second, 5*time.Millisecond)

	status := d.Status()
	assert.False(t, status.Healthy())
	assert.Contains(t, status.LastError, "connection refused")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RemoteSync.WithLabelValues("failure")))
}

func TestDispatcher_PublishNeverBlocks(t *testing.T) {
	poster := &fakePoster{block: make(chan struct{})}
	d := NewDispatcher(poster, 1, 1, quiet, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish("sync", nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a stalled collector")
	}
	close(poster.block)
	assert.Greater(t, d.Status().Dropped, int64(0))
}

func TestDispatcher_Heartbeat(t *testing.T) {
	poster := &fakePoster{}
	d := NewDispatcher(poster, 1, 8, quiet, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	go d.Heartbeat(ctx, 20*time.Millisecond, func() any { return map[string]int{"active_cards": 0} })

	require.Eventually(t, func() bool { return poster.count() >= 2 }, time.Second, 5*time.Millisecond)
	poster.mu.Lock()
	assert.Equal(t, "sync", poster.calls[0])
	poster.mu.Unlock()
}
