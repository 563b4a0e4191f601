package reader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Serial reads card ids from a line-oriented device: USB keyboard-wedge
// readers and serial readers that print one id per line.
type Serial struct {
	path string
	open func(path string) (io.ReadCloser, error)

	mu    sync.Mutex
	dev   io.ReadCloser
	lines chan string
	// stop is closed when dev is replaced so its scan goroutine exits.
	stop chan struct{}
	err  error
}

// NewSerial creates a Serial reader for the device at path. The device is
// opened lazily on the first poll.
func NewSerial(path string) *Serial {
	return &Serial{
		path: path,
		open: func(p string) (io.ReadCloser, error) { return os.Open(p) },
	}
}

// Poll implements Reader.
func (s *Serial) Poll(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	if s.dev == nil && s.err == nil {
		if err := s.startLocked(); err != nil {
			s.mu.Unlock()
			return "", false, err
		}
	}
	lines, err := s.lines, s.err
	s.mu.Unlock()

	select {
	case line, ok := <-lines:
		if !ok {
			s.mu.Lock()
			err = s.err
			s.mu.Unlock()
			if err == nil {
				err = io.EOF
			}
			return "", false, fmt.Errorf("reader %s: %w", s.path, err)
		}
		return line, true, nil
	default:
		if err != nil {
			return "", false, fmt.Errorf("reader %s: %w", s.path, err)
		}
		return "", false, nil
	}
}

// Reinitialize closes and reopens the device.
func (s *Serial) Reinitialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dev != nil {
		close(s.stop)
		_ = s.dev.Close()
		s.dev = nil
	}
	s.err = nil
	return s.startLocked()
}

func (s *Serial) startLocked() error {
	dev, err := s.open(s.path)
	if err != nil {
		return fmt.Errorf("open reader %s: %w", s.path, err)
	}
	lines := make(chan string, 8)
	stop := make(chan struct{})
	s.dev = dev
	s.lines = lines
	s.stop = stop
	go s.scan(dev, lines, stop)
	return nil
}

func (s *Serial) scan(dev io.ReadCloser, lines chan<- string, stop <-chan struct{}) {
	defer close(lines)
	scanner := bufio.NewScanner(dev)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		select {
		case <-stop:
			return
		default:
		}
		select {
		case lines <- id:
		case <-stop:
			return
		}
	}
	s.mu.Lock()
	if s.dev == dev {
		s.err = scanner.Err()
		if s.err == nil {
			s.err = io.EOF
		}
	}
	s.mu.Unlock()
}
