package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"laundry-locker/internal/metrics"
)

type job struct {
	action  string
	payload any
}

// Status summarises recent delivery outcomes for health reporting.
type Status struct {
	LastSuccess *time.Time `json:"last_success,omitempty"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Sent        int64      `json:"sent"`
	Failed      int64      `json:"failed"`
	Dropped     int64      `json:"dropped"`
}

// Healthy reports whether the most recent delivery attempt succeeded.
func (s Status) Healthy() bool {
	if s.LastFailure == nil {
		return true
	}
	return s.LastSuccess != nil && s.LastSuccess.After(*s.LastFailure)
}

// Dispatcher delivers events through a small worker pool. Publish never
// blocks; when the queue is full the event is dropped and counted.
type Dispatcher struct {
	poster  Poster
	size    int
	jobs    chan job
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	status Status
}

// NewDispatcher creates a Dispatcher with size workers and a queue of
// queueSize events.
func NewDispatcher(poster Poster, size, queueSize int, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Dispatcher{
		poster:  poster,
		size:    size,
		jobs:    make(chan job, queueSize),
		logger:  logger.With("component", "telemetry"),
		metrics: m,
	}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	for i := 0; i < d.size; i++ {
		go d.worker(ctx, i)
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	for {
		select {
		case j := <-d.jobs:
			d.deliver(ctx, j)
		case <-ctx.Done():
			d.logger.Debug("telemetry worker shutting down", "worker", id)
			return
		}
	}
}

// Publish queues an event for delivery.
func (d *Dispatcher) Publish(action string, payload any) {
	select {
	case d.jobs <- job{action: action, payload: payload}:
	default:
		d.mu.Lock()
		d.status.Dropped++
		d.mu.Unlock()
		d.metrics.RemoteSync.WithLabelValues("dropped").Inc()
		d.logger.Warn("telemetry queue full, dropping event", "action", action)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, j job) {
	err := d.poster.Post(ctx, j.action, j.payload)
	if errors.Is(err, ErrNotConfigured) {
		return
	}
	now := time.Now()

	d.mu.Lock()
	if err != nil {
		d.status.Failed++
		d.status.LastFailure = &now
		d.status.LastError = err.Error()
	} else {
		d.status.Sent++
		d.status.LastSuccess = &now
	}
	d.mu.Unlock()

	if err != nil {
		d.metrics.RemoteSync.WithLabelValues("failure").Inc()
		d.logger.Error("failed to send event to server", "action", j.action, "err", err)
		return
	}
	d.metrics.RemoteSync.WithLabelValues("success").Inc()
	d.logger.Info("sent event to server", "action", j.action)
}

// Status returns a snapshot of delivery outcomes.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Heartbeat publishes snapshot() as a "sync" event immediately and then
// every interval until ctx is cancelled.
func (d *Dispatcher) Heartbeat(ctx context.Context, interval time.Duration, snapshot func() any) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	d.Publish("sync", snapshot())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Publish("sync", snapshot())
		}
	}
}
