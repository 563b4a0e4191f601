// Package actuator drives the locker door relays.
package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"laundry-locker/internal/clock"
)

var (
	// ErrUnknownLocker is returned for a locker with no relay configured.
	ErrUnknownLocker = errors.New("unknown locker")
	// ErrBusy is returned when an unlock sequence for the locker is
	// already running.
	ErrBusy = errors.New("locker unlock already in progress")
)

// Driver switches a single locker's relay.
type Driver interface {
	Unlock(lockerID string) error
	Lock(lockerID string) error
}

// Sequencer opens a locker for the configured hold time and locks it again.
// Sequences for different lockers may overlap; a second sequence for the
// same locker is rejected.
type Sequencer struct {
	driver Driver
	hold   time.Duration
	clock  clock.Clock
	logger *slog.Logger

	mu   sync.Mutex
	busy map[string]struct{}
}

// NewSequencer creates a Sequencer.
func NewSequencer(driver Driver, hold time.Duration, clk clock.Clock, logger *slog.Logger) *Sequencer {
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		driver: driver,
		hold:   hold,
		clock:  clk,
		logger: logger.With("component", "actuator"),
		busy:   make(map[string]struct{}),
	}
}

// Open unlocks lockerID, holds it open, then locks it. It blocks for the
// hold duration. The relock is attempted even if ctx is cancelled during the
// hold.
func (s *Sequencer) Open(ctx context.Context, lockerID string) error {
	s.mu.Lock()
	if _, running := s.busy[lockerID]; running {
		s.mu.Unlock()
		return fmt.Errorf("locker %s: %w", lockerID, ErrBusy)
	}
	s.busy[lockerID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.busy, lockerID)
		s.mu.Unlock()
	}()

	if err := s.driver.Unlock(lockerID); err != nil {
		return fmt.Errorf("unlock locker %s: %w", lockerID, err)
	}
	s.logger.Info("locker unlocked", "locker_id", lockerID)

	if err := s.clock.Sleep(ctx, s.hold); err != nil {
		s.logger.Warn("unlock hold interrupted", "locker_id", lockerID, "err", err)
	}

	if err := s.driver.Lock(lockerID); err != nil {
		return fmt.Errorf("lock locker %s: %w", lockerID, err)
	}
	s.logger.Info("locker locked", "locker_id", lockerID)
	return nil
}

// LogDriver is a Driver for installations without relays wired to this host.
// It validates the locker id against the configured relay pins and logs the
// switch.
type LogDriver struct {
	pins   map[string]int
	logger *slog.Logger
}

// NewLogDriver creates a LogDriver for the given locker → pin map.
func NewLogDriver(pins map[string]int, logger *slog.Logger) *LogDriver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDriver{pins: pins, logger: logger}
}

// Unlock implements Driver.
func (d *LogDriver) Unlock(lockerID string) error {
	pin, ok := d.pins[lockerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLocker, lockerID)
	}
	d.logger.Debug("relay active", "locker_id", lockerID, "pin", pin)
	return nil
}

// Lock implements Driver.
func (d *LogDriver) Lock(lockerID string) error {
	pin, ok := d.pins[lockerID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLocker, lockerID)
	}
	d.logger.Debug("relay released", "locker_id", lockerID, "pin", pin)
	return nil
}
