package reader

import "time"

// Policy holds the timing and escalation parameters of the polling loop.
type Policy struct {
	// BaseInterval is the idle poll interval; FastInterval is used right
	// after a card was read so repeated presentations are caught.
	BaseInterval time.Duration
	FastInterval time.Duration
	// RelaxFactor grows the interval back toward BaseInterval on each miss.
	RelaxFactor float64
	// MaxErrorScale caps the consecutive-error multiplier applied to the
	// poll interval.
	MaxErrorScale int

	// Streaks shorter than WarnBelow log a warning and wait ShortBackoff;
	// shorter than ErrorBelow log an error and wait MediumBackoff; longer
	// streaks are critical and wait LongBackoff.
	WarnBelow     int
	ErrorBelow    int
	ShortBackoff  time.Duration
	MediumBackoff time.Duration
	LongBackoff   time.Duration

	// ReinitEvery triggers a reader reinitialisation on every Nth
	// consecutive fault. Zero disables it.
	ReinitEvery  int
	ReinitSettle time.Duration
}

// DefaultPolicy returns the tuning used in production.
func DefaultPolicy() Policy {
	return Policy{
		BaseInterval:  100 * time.Millisecond,
		FastInterval:  50 * time.Millisecond,
		RelaxFactor:   1.1,
		MaxErrorScale: 5,
		WarnBelow:     5,
		ErrorBelow:    20,
		ShortBackoff:  500 * time.Millisecond,
		MediumBackoff: time.Second,
		LongBackoff:   2 * time.Second,
		ReinitEvery:   20,
		ReinitSettle:  2 * time.Second,
	}
}

// Severity classifies a fault streak.
type Severity int

const (
	SeverityWarn Severity = iota
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	default:
		return "critical"
	}
}

// Classify returns the severity and backoff for a streak of n consecutive
// faults.
func (p Policy) Classify(n int) (Severity, time.Duration) {
	switch {
	case n < p.WarnBelow:
		return SeverityWarn, p.ShortBackoff
	case n < p.ErrorBelow:
		return SeverityError, p.MediumBackoff
	default:
		return SeverityCritical, p.LongBackoff
	}
}

// ShouldReinit reports whether the nth consecutive fault triggers a reader
// reinitialisation.
func (p Policy) ShouldReinit(n int) bool {
	return p.ReinitEvery > 0 && n > 0 && n%p.ReinitEvery == 0
}

// PollInterval scales interval by the consecutive-error multiplier.
func (p Policy) PollInterval(interval time.Duration, consecutiveErrors int) time.Duration {
	return interval * time.Duration(1+min(consecutiveErrors, p.MaxErrorScale))
}

// Relax moves interval one step back toward BaseInterval.
func (p Policy) Relax(interval time.Duration) time.Duration {
	next := time.Duration(float64(interval) * p.RelaxFactor)
	if next > p.BaseInterval || next <= interval {
		return p.BaseInterval
	}
	return next
}
