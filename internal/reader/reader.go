// Package reader polls the RFID card reader and feeds presented cards into
// the read cache, recovering from hardware faults on its own.
package reader

import (
	"context"
	"fmt"
)

// Reader is the hardware capability the detector drives. Implementations
// are only ever called from one goroutine at a time.
type Reader interface {
	// Poll checks for a card without blocking. ok is false when no card is
	// in the field.
	Poll(ctx context.Context) (cardID string, ok bool, err error)
	// Reinitialize resets the reader hardware.
	Reinitialize(ctx context.Context) error
}

// Config selects a Reader implementation.
type Config struct {
	Driver string
	Device string
}

// New creates the Reader described by cfg.
func New(cfg Config) (Reader, error) {
	switch cfg.Driver {
	case "", "simulated":
		return NewQueue(16), nil
	case "serial", "keyboard":
		if cfg.Device == "" {
			return nil, fmt.Errorf("reader driver %q needs a device path", cfg.Driver)
		}
		return NewSerial(cfg.Device), nil
	default:
		return nil, fmt.Errorf("unknown reader driver %q", cfg.Driver)
	}
}
