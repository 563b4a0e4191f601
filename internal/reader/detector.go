package reader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"laundry-locker/internal/clock"
	"laundry-locker/internal/metrics"
	"laundry-locker/internal/model"
	"laundry-locker/internal/parse"
)

// Recorder receives detected cards. *cardcache.Cache implements it.
type Recorder interface {
	Record(cardID string) model.CardRead
}

// Stats is a snapshot of the detector's health counters.
type Stats struct {
	Started            time.Time
	Attempts           int64
	Reads              int64
	Errors             int64
	ConsecutiveErrors  int
	ReinitAttempts     int64
	ReinitFailures     int64
	LastSuccessfulRead *time.Time
	LastReinit         *time.Time
	LastError          string
}

// SuccessRate returns reads per attempt as a percentage.
func (s Stats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0
	}
	return float64(s.Reads) / float64(s.Attempts) * 100
}

// Detector runs the card polling loop.
type Detector struct {
	reader  Reader
	cache   Recorder
	policy  Policy
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// hwMu gives the poll path and reinitialisation exclusive use of the
	// reader.
	hwMu sync.Mutex

	mu       sync.Mutex
	interval time.Duration
	stats    Stats
}

// Option customises a Detector.
type Option func(*Detector)

// WithPolicy overrides the default polling policy.
func WithPolicy(p Policy) Option { return func(d *Detector) { d.policy = p } }

// WithClock sets the clock used for sleeping and timestamps.
func WithClock(c clock.Clock) Option { return func(d *Detector) { d.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(d *Detector) { d.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(d *Detector) { d.metrics = m } }

// NewDetector creates a Detector polling r and recording into cache.
func NewDetector(r Reader, cache Recorder, opts ...Option) *Detector {
	d := &Detector{
		reader:  r,
		cache:   cache,
		policy:  DefaultPolicy(),
		clock:   clock.Real{},
		logger:  slog.Default(),
		metrics: metrics.New(nil),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "rfid")
	d.interval = d.policy.BaseInterval
	d.stats.Started = d.clock.Now()
	return d
}

// Run polls until ctx is cancelled. Reader faults never stop the loop.
func (d *Detector) Run(ctx context.Context) {
	d.logger.Info("starting card reader loop", "base_interval", d.policy.BaseInterval)
	for {
		sleep := d.Step(ctx)
		if err := d.clock.Sleep(ctx, sleep); err != nil {
			d.logger.Info("card reader loop shutting down")
			return
		}
	}
}

// Step performs one poll and returns how long to wait before the next one.
func (d *Detector) Step(ctx context.Context) time.Duration {
	d.mu.Lock()
	wait := d.policy.PollInterval(d.interval, d.stats.ConsecutiveErrors)
	d.stats.Attempts++
	d.mu.Unlock()
	d.metrics.ReaderPolls.Inc()

	raw, ok, err := d.poll(ctx)
	if err != nil {
		return d.fault(ctx, err)
	}

	cardID := parse.CardID(raw)
	if !ok || cardID == "" {
		d.mu.Lock()
		d.interval = d.policy.Relax(d.interval)
		d.mu.Unlock()
		return wait
	}

	entry := d.cache.Record(cardID)
	now := d.clock.Now()
	d.mu.Lock()
	d.stats.Reads++
	d.stats.LastSuccessfulRead = &now
	d.stats.ConsecutiveErrors = 0
	d.interval = d.policy.FastInterval
	d.mu.Unlock()

	d.metrics.ReaderReads.Inc()
	d.metrics.ReaderConsecutiveErrors.Set(0)
	d.logger.Info("card detected", "card_id", cardID, "read_count", entry.ReadCount)
	return wait
}

func (d *Detector) poll(ctx context.Context) (id string, ok bool, err error) {
	d.hwMu.Lock()
	defer d.hwMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reader panic: %v", r)
		}
	}()
	return d.reader.Poll(ctx)
}

func (d *Detector) fault(ctx context.Context, err error) time.Duration {
	now := d.clock.Now()
	d.mu.Lock()
	d.stats.Errors++
	d.stats.ConsecutiveErrors++
	d.stats.LastError = err.Error()
	n := d.stats.ConsecutiveErrors
	since := d.stats.Started
	if d.stats.LastSuccessfulRead != nil {
		since = *d.stats.LastSuccessfulRead
	}
	d.mu.Unlock()

	d.metrics.ReaderErrors.Inc()
	d.metrics.ReaderConsecutiveErrors.Set(float64(n))

	severity, wait := d.policy.Classify(n)
	noRead := now.Sub(since).Round(100 * time.Millisecond)
	switch severity {
	case SeverityWarn:
		d.logger.Warn("card reader error", "err", err, "consecutive", n)
	case SeverityError:
		d.logger.Error("persistent card reader errors", "err", err, "consecutive", n, "no_read_for", noRead)
	default:
		d.logger.Error("card reader may be disconnected or malfunctioning",
			"severity", "critical", "err", err, "consecutive", n, "no_read_for", noRead)
	}

	if d.policy.ShouldReinit(n) {
		d.logger.Info("attempting to reinitialize card reader", "consecutive", n)
		if rerr := d.Reinitialize(ctx); rerr != nil {
			d.logger.Error("failed to reinitialize card reader", "severity", "critical", "err", rerr)
		}
		wait += d.policy.ReinitSettle
	}
	return wait
}

// ErrReinitialize wraps failures returned by Reinitialize.
var ErrReinitialize = errors.New("reader reinitialization failed")

// Reinitialize resets the reader hardware. It waits for any poll in flight.
func (d *Detector) Reinitialize(ctx context.Context) (err error) {
	d.hwMu.Lock()
	defer d.hwMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reader panic: %v", r)
		}
		now := d.clock.Now()
		d.mu.Lock()
		d.stats.ReinitAttempts++
		d.stats.LastReinit = &now
		if err != nil {
			d.stats.ReinitFailures++
		}
		d.mu.Unlock()

		if err != nil {
			d.metrics.ReaderReinits.WithLabelValues("failure").Inc()
			err = fmt.Errorf("%w: %w", ErrReinitialize, err)
			return
		}
		d.metrics.ReaderReinits.WithLabelValues("success").Inc()
		d.logger.Info("card reader initialized")
	}()

	return d.reader.Reinitialize(ctx)
}

// Stats returns a snapshot of the health counters.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.stats
	if s.LastSuccessfulRead != nil {
		t := *s.LastSuccessfulRead
		s.LastSuccessfulRead = &t
	}
	if s.LastReinit != nil {
		t := *s.LastReinit
		s.LastReinit = &t
	}
	return s
}

// Interval returns the current base poll interval, before error scaling.
func (d *Detector) Interval() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.interval
}
