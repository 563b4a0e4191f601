package actuator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"laundry-locker/internal/clock"
)

type recordingDriver struct {
	mu      sync.Mutex
	calls   []string
	lockErr error
}

func (d *recordingDriver) Unlock(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "unlock:"+id)
	return nil
}

func (d *recordingDriver) Lock(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, "lock:"+id)
	return d.lockErr
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSequencer_UnlockHoldLock(t *testing.T) {
	drv := &recordingDriver{}
	clk := clock.NewManual(time.Unix(0, 0))
	s := NewSequencer(drv, 5*time.Second, clk, quiet)

	require.NoError(t, s.Open(context.Background(), "1"))

	assert.Equal(t, []string{"unlock:1", "lock:1"}, drv.calls)
	assert.Equal(t, []time.Duration{5 * time.Second}, clk.Slept())
}

// gateClock blocks Sleep until released.
type gateClock struct {
	clock.Real
	entered chan struct{}
	release chan struct{}
}

func (g *gateClock) Sleep(ctx context.Context, d time.Duration) error {
	g.entered <- struct{}{}
	<-g.release
	return nil
}

func TestSequencer_RejectsReentrantOpen(t *testing.T) {
	drv := &recordingDriver{}
	gate := &gateClock{entered: make(chan struct{}, 4), release: make(chan struct{})}
	s := NewSequencer(drv, time.Second, gate, quiet)

	errCh := make(chan error, 1)
	go func() { errCh <- s.Open(context.Background(), "1") }()
	<-gate.entered

	assert.ErrorIs(t, s.Open(context.Background(), "1"), ErrBusy)

	go func() { errCh <- s.Open(context.Background(), "2") }()
	<-gate.entered

	close(gate.release)
	require.NoError(t, <-errCh)
	require.NoError(t, <-errCh)
	require.NoError(t, s.Open(context.Background(), "1"), "locker is usable again after the sequence ends")
}

func TestSequencer_LockFailure(t *testing.T) {
	drv := &recordingDriver{lockErr: errors.New("relay stuck")}
	s := NewSequencer(drv, 0, clock.NewManual(time.Unix(0, 0)), quiet)

	err := s.Open(context.Background(), "1")
	assert.ErrorContains(t, err, "relay stuck")
}

func TestLogDriver_UnknownLocker(t *testing.T) {
	d := NewLogDriver(map[string]int{"1": 17}, quiet)

	assert.NoError(t, d.Unlock("1"))
	assert.NoError(t, d.Lock("1"))
	assert.ErrorIs(t, d.Unlock("9"), ErrUnknownLocker)

	s := NewSequencer(d, 0, clock.NewManual(time.Unix(0, 0)), quiet)
	assert.ErrorIs(t, s.Open(context.Background(), "9"), ErrUnknownLocker)
}
