package locker

import (
	"context"
	"fmt"
	"slices"
	"time"

	"laundry-locker/internal/model"
	"laundry-locker/internal/reader"
	"laundry-locker/internal/telemetry"
)

// StaleReadAfter is how long the reader may go without a read before it is
// reported as WARNING.
const StaleReadAfter = 5 * time.Minute

// ReaderStatus is the card reader block of Status.
type ReaderStatus struct {
	Status      string  `json:"status"`
	LastRead    string  `json:"last_read"`
	ErrorCount  int     `json:"error_count"`
	SuccessRate float64 `json:"success_rate"`
}

// Status is the operator-facing summary of the controller.
type Status struct {
	SystemName        string       `json:"system_name"`
	ActiveCards       int          `json:"active_cards"`
	AvailableLockers  []string     `json:"available_lockers"`
	TotalTransactions int          `json:"total_transactions"`
	LastSync          *time.Time   `json:"last_sync"`
	RFID              ReaderStatus `json:"rfid"`
}

// ReaderHealth is the card reader block of Health.
type ReaderHealth struct {
	Status             string  `json:"status"`
	LastSuccessfulRead *string `json:"last_successful_read"`
	ErrorCount         int     `json:"error_count"`
	TotalErrors        int64   `json:"total_errors"`
	ReinitAttempts     int64   `json:"reinit_attempts"`
	ReadSuccessRate    string  `json:"read_success_rate"`
	LastError          string  `json:"last_error,omitempty"`
}

// PersistenceHealth reports the outcome of the latest state save.
type PersistenceHealth struct {
	Status     string     `json:"status"`
	LastSave   *time.Time `json:"last_save,omitempty"`
	LastFailed *time.Time `json:"last_failure,omitempty"`
	LastError  string     `json:"last_error,omitempty"`
}

// Health aggregates component health.
type Health struct {
	Status             string            `json:"status"`
	Uptime             string            `json:"uptime"`
	RFIDReader         ReaderHealth      `json:"rfid_reader"`
	Persistence        PersistenceHealth `json:"persistence"`
	Remote             *telemetry.Status `json:"remote,omitempty"`
	AvailableLockers   int               `json:"available_lockers"`
	ActiveTransactions int               `json:"active_transactions"`
	Issues             []string          `json:"issues,omitempty"`
}

func (s *Service) readerStats() (reader.Stats, bool) {
	if s.reader == nil {
		return reader.Stats{}, false
	}
	return s.reader.Stats(), true
}

// readerOK reports whether the last read is recent enough and how long ago
// it was.
func (s *Service) readerOK(stats reader.Stats) (bool, *time.Duration) {
	if stats.LastSuccessfulRead == nil {
		return false, nil
	}
	age := s.clock.Now().Sub(*stats.LastSuccessfulRead)
	return age < StaleReadAfter, &age
}

func secondsAgo(d time.Duration) string {
	return fmt.Sprintf("%d seconds ago", int(d.Seconds()))
}

// Status returns the current controller summary.
func (s *Service) Status() Status {
	stats, _ := s.readerStats()

	v := s.view.Load()
	out := Status{
		SystemName:        v.device.SystemName,
		ActiveCards:       v.activeCards,
		AvailableLockers:  slices.Clone(v.available),
		TotalTransactions: v.transactions,
	}

	if s.remote != nil {
		out.LastSync = s.remote.Status().LastSuccess
	}

	// A reader that has never produced a card is still OK here; Health is
	// stricter.
	out.RFID = ReaderStatus{
		Status:      "OK",
		LastRead:    "Never",
		ErrorCount:  stats.ConsecutiveErrors,
		SuccessRate: stats.SuccessRate(),
	}
	if ok, age := s.readerOK(stats); age != nil {
		out.RFID.LastRead = secondsAgo(*age)
		if !ok {
			out.RFID.Status = "WARNING"
		}
	}
	return out
}

// Health reports whether the controller is healthy or degraded and why.
func (s *Service) Health() Health {
	stats, hasReader := s.readerStats()
	now := s.clock.Now()

	v := s.view.Load()
	h := Health{
		Status:             "healthy",
		Uptime:             now.Sub(s.started).Truncate(time.Second).String(),
		AvailableLockers:   len(v.available),
		ActiveTransactions: v.activeCards,
		Persistence:        PersistenceHealth{Status: "OK", LastSave: v.lastSave, LastFailed: v.saveFailed},
	}
	if v.saveErr != nil {
		h.Persistence.Status = "ERROR"
		h.Persistence.LastError = v.saveErr.Error()
		h.Issues = append(h.Issues, "Last save of the locker state failed")
	}

	h.RFIDReader = ReaderHealth{
		Status:          "WARNING",
		ErrorCount:      stats.ConsecutiveErrors,
		TotalErrors:     stats.Errors,
		ReinitAttempts:  stats.ReinitAttempts,
		ReadSuccessRate: fmt.Sprintf("%.1f%%", stats.SuccessRate()),
		LastError:       stats.LastError,
	}
	if stats.Attempts == 0 {
		h.RFIDReader.ReadSuccessRate = "0%"
	}
	ok, age := s.readerOK(stats)
	if age != nil {
		ago := secondsAgo(*age)
		h.RFIDReader.LastSuccessfulRead = &ago
	}
	if ok {
		h.RFIDReader.Status = "OK"
	} else if hasReader {
		h.Issues = append(h.Issues, "RFID reader may not be functioning correctly")
	}

	if s.remote != nil {
		remote := s.remote.Status()
		h.Remote = &remote
		if !remote.Healthy() {
			h.Issues = append(h.Issues, fmt.Sprintf("%s: %s", ErrRemoteSync, remote.LastError))
		}
	}

	if len(h.Issues) > 0 {
		h.Status = "degraded"
	}
	return h
}

// WashTypes lists the wash services on offer.
func (s *Service) WashTypes(ctx context.Context) []model.WashType {
	if s.catalog == nil {
		return nil
	}
	return s.catalog.List(ctx)
}

// LastCard returns the most relevant recent card read.
func (s *Service) LastCard() (model.CardRead, bool) {
	if s.cards == nil {
		return model.CardRead{}, false
	}
	return s.cards.LastCard()
}

// ClearCardQueue forgets all recent card reads.
func (s *Service) ClearCardQueue() {
	if s.cards != nil {
		s.cards.Clear()
	}
}

// ResetReader reinitialises the card reader. It waits for any poll in
// progress.
func (s *Service) ResetReader(ctx context.Context) error {
	if s.reader == nil {
		return fmt.Errorf("%w: no reader attached", ErrHardwareFault)
	}
	s.logger.Info("manual reader reset requested")
	if err := s.reader.Reinitialize(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrHardwareFault, err)
	}
	return nil
}

// DeviceInfo returns the device identity.
func (s *Service) DeviceInfo() DeviceInfo {
	return s.view.Load().device
}

// UpdateDeviceInfo changes the non-empty fields of d and returns the result.
// Later transactions carry the new identity.
func (s *Service) UpdateDeviceInfo(d DeviceInfo) DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.DeviceName != "" {
		s.device.DeviceName = d.DeviceName
	}
	if d.DeviceLocation != "" {
		s.device.DeviceLocation = d.DeviceLocation
	}
	if d.SystemName != "" {
		s.device.SystemName = d.SystemName
	}
	s.refreshView()
	s.logger.Info("device info updated",
		"device_name", s.device.DeviceName, "device_location", s.device.DeviceLocation)
	return s.device
}

// SyncSnapshot is the payload of the periodic sync heartbeat.
type SyncSnapshot struct {
	ActiveCards       int      `json:"active_cards"`
	AvailableLockers  []string `json:"available_lockers"`
	TotalTransactions int      `json:"total_transactions"`
}

// Snapshot returns the heartbeat payload.
func (s *Service) Snapshot() any {
	v := s.view.Load()
	return SyncSnapshot{
		ActiveCards:       v.activeCards,
		AvailableLockers:  slices.Clone(v.available),
		TotalTransactions: v.transactions,
	}
}
