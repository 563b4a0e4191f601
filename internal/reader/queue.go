package reader

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by Present when the simulated reader is backed up.
var ErrQueueFull = errors.New("simulated reader queue is full")

// Queue is a simulated reader: cards handed to Present are returned by
// subsequent polls, one per poll.
type Queue struct {
	cards chan string
}

// NewQueue creates a Queue holding up to size pending presentations.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{cards: make(chan string, size)}
}

// Present simulates holding cardID against the reader for one poll.
func (q *Queue) Present(cardID string) error {
	select {
	case q.cards <- cardID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Poll implements Reader.
func (q *Queue) Poll(ctx context.Context) (string, bool, error) {
	select {
	case id := <-q.cards:
		return id, true, nil
	default:
		return "", false, nil
	}
}

// Reinitialize drops any pending presentations.
func (q *Queue) Reinitialize(ctx context.Context) error {
	for {
		select {
		case <-q.cards:
		default:
			return nil
		}
	}
}
