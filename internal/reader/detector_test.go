package reader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-locker/internal/cardcache"
	"laundry-locker/internal/clock"
	"laundry-locker/internal/metrics"
)

// scriptedReader replays a fixed sequence of poll results.
type scriptedReader struct {
	mu          sync.Mutex
	results     []pollResult
	reinitCalls []int
	reinitErr   error
	polls       int
	inFlight    int
	overlap     bool
}

type pollResult struct {
	id  string
	err error
}

func (r *scriptedReader) Poll(ctx context.Context) (string, bool, error) {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > 1 {
		r.overlap = true
	}
	r.polls++
	var res pollResult
	if len(r.results) > 0 {
		res = r.results[0]
		r.results = r.results[1:]
	}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()
	if res.err != nil {
		return "", false, res.err
	}
	return res.id, res.id != "", nil
}

func (r *scriptedReader) Reinitialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inFlight++
	if r.inFlight > 1 {
		r.overlap = true
	}
	r.inFlight--
	r.reinitCalls = append(r.reinitCalls, r.polls)
	return r.reinitErr
}

func faults(n int) []pollResult {
	out := make([]pollResult, n)
	for i := range out {
		out[i] = pollResult{err: errors.New("spi timeout")}
	}
	return out
}

func newTestDetector(r Reader) (*Detector, *cardcache.Cache, *clock.Manual, *metrics.Metrics) {
	clk := clock.NewManual(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	cache := cardcache.New(cardcache.Options{Clock: clk})
	m := metrics.New(nil)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDetector(r, cache, WithClock(clk), WithLogger(logger), WithMetrics(m))
	return d, cache, clk, m
}

func TestDetector_RecordsAndDeduplicates(t *testing.T) {
	r := &scriptedReader{results: []pollResult{{id: " A1 "}, {id: "A1"}}}
	d, cache, clk, _ := newTestDetector(r)

	clk.Advance(d.Step(context.Background()))
	clk.Advance(d.Step(context.Background()))

	snap := cache.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "A1", snap[0].CardID)
	assert.Equal(t, 2, snap[0].ReadCount)
	assert.Equal(t, int64(2), d.Stats().Reads)
	assert.NotNil(t, d.Stats().LastSuccessfulRead)
}

func TestDetector_AdaptiveInterval(t *testing.T) {
	r := &scriptedReader{results: []pollResult{{id: "A1"}, {}, {}, {}, {}, {}, {}, {}, {}}}
	d, _, _, _ := newTestDetector(r)
	p := DefaultPolicy()

	wait := d.Step(context.Background())
	assert.Equal(t, p.BaseInterval, wait, "the first poll waits the base interval")
	assert.Equal(t, p.FastInterval, d.Interval(), "a read switches to the fast interval")

	wait = d.Step(context.Background())
	assert.Equal(t, p.FastInterval, wait)
	assert.Greater(t, d.Interval(), p.FastInterval)

	for i := 0; i < 7; i++ {
		d.Step(context.Background())
	}
	assert.Equal(t, p.BaseInterval, d.Interval(), "misses relax back to the base interval")
}

func TestDetector_FaultEscalation(t *testing.T) {
	r := &scriptedReader{results: faults(21)}
	d, _, _, _ := newTestDetector(r)
	p := DefaultPolicy()

	var waits []time.Duration
	for i := 0; i < 21; i++ {
		waits = append(waits, d.Step(context.Background()))
	}

	assert.Equal(t, p.ShortBackoff, waits[0])
	assert.Equal(t, p.ShortBackoff, waits[3])
	assert.Equal(t, p.MediumBackoff, waits[4])
	assert.Equal(t, p.MediumBackoff, waits[18])
	assert.Equal(t, p.LongBackoff+p.ReinitSettle, waits[19], "the 20th fault reinitializes and settles")
	assert.Equal(t, p.LongBackoff, waits[20])
}

func TestDetector_ReinitOnTwentiethConsecutiveFault(t *testing.T) {
	r := &scriptedReader{results: faults(25)}
	d, _, _, m := newTestDetector(r)

	for i := 0; i < 25; i++ {
		d.Step(context.Background())
	}

	assert.Equal(t, []int{20}, r.reinitCalls, "exactly one reinitialize, right after the 20th fault")
	stats := d.Stats()
	assert.Equal(t, int64(25), stats.Errors)
	assert.Equal(t, 25, stats.ConsecutiveErrors)
	assert.Equal(t, int64(1), stats.ReinitAttempts)
	assert.Equal(t, float64(25), testutil.ToFloat64(m.ReaderErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReaderReinits.WithLabelValues("success")))
}

func TestDetector_ReinitFailureKeepsRetrying(t *testing.T) {
	r := &scriptedReader{results: faults(40), reinitErr: errors.New("no spi device")}
	d, _, _, _ := newTestDetector(r)

	for i := 0; i < 40; i++ {
		d.Step(context.Background())
	}

	assert.Equal(t, []int{20, 40}, r.reinitCalls)
	stats := d.Stats()
	assert.Equal(t, int64(2), stats.ReinitFailures)
	assert.Equal(t, int64(40), stats.Attempts)
}

func TestDetector_ReadResetsStreakAndScalesWait(t *testing.T) {
	results := append(faults(3), pollResult{id: "B7"}, pollResult{})
	r := &scriptedReader{results: results}
	d, _, _, _ := newTestDetector(r)
	p := DefaultPolicy()

	for i := 0; i < 3; i++ {
		d.Step(context.Background())
	}
	assert.Equal(t, 3, d.Stats().ConsecutiveErrors)

	wait := d.Step(context.Background())
	assert.Equal(t, p.BaseInterval*4, wait, "the wait is scaled by the streak seen at the start of the poll")
	assert.Equal(t, 0, d.Stats().ConsecutiveErrors)

	wait = d.Step(context.Background())
	assert.Equal(t, p.FastInterval, wait)
}

func TestDetector_RecoversReaderPanic(t *testing.T) {
	d, _, _, _ := newTestDetector(panicReader{})

	assert.NotPanics(t, func() { d.Step(context.Background()) })
	assert.Equal(t, int64(1), d.Stats().Errors)
	assert.Contains(t, d.Stats().LastError, "reader panic")
}

type panicReader struct{}

func (panicReader) Poll(context.Context) (string, bool, error) { panic("bus error") }
func (panicReader) Reinitialize(context.Context) error         { return nil }

func TestDetector_RunStopsOnCancel(t *testing.T) {
	q := NewQueue(4)
	require.NoError(t, q.Present("C3"))
	cache := cardcache.New(cardcache.Options{})
	d := NewDetector(q, cache, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDetector_ReinitializeExcludesPolling(t *testing.T) {
	r := &scriptedReader{}
	d := NewDetector(r, cardcache.New(cardcache.Options{}), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				d.Step(context.Background())
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = d.Reinitialize(context.Background())
			}
		}()
	}
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.False(t, r.overlap)
}
