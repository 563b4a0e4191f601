package locker

import (
	"context"
	"fmt"
	"time"

	"laundry-locker/internal/model"
	"laundry-locker/internal/parse"
)

// Receipt describes a completed drop-off.
type Receipt struct {
	LockerID      string         `json:"locker_id"`
	TransactionID string         `json:"transaction_id"`
	WashType      model.WashType `json:"wash_type"`
	Message       string         `json:"message"`
}

// Assign gives cardID the first free locker for the given wash type and
// records a pending transaction. When the card already holds a locker the
// returned Receipt carries that locker's id alongside ErrDuplicateAssignment.
// A failed save does not fail the assignment. Cancelling ctx after the
// wash type is resolved does not stop the save.
func (s *Service) Assign(ctx context.Context, cardID string, washTypeID model.WashTypeID) (Receipt, error) {
	cardID = parse.CardID(cardID)
	if cardID == "" {
		return Receipt{}, parse.ErrEmptyCardID
	}

	// The catalog may call out to the server, so resolve it before taking
	// the lock.
	var (
		washType model.WashType
		known    bool
	)
	if s.catalog != nil {
		washType, known = s.catalog.Lookup(ctx, washTypeID)
	}

	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.activeKey(cardID); ok {
		held := s.state.ActiveCards[key].LockerID
		s.logger.Warn("card already has an active assignment", "card_id", cardID, "locker_id", held)
		s.countAssignment("duplicate")
		return Receipt{LockerID: held}, fmt.Errorf("card %s: %w", cardID, ErrDuplicateAssignment)
	}
	if i := s.openTransaction(cardID); i >= 0 {
		held := s.state.Transactions[i].LockerID
		s.logger.Warn("card has an open transaction without an assignment", "card_id", cardID, "transaction_id", s.state.Transactions[i].ID)
		s.countAssignment("duplicate")
		return Receipt{LockerID: held}, fmt.Errorf("card %s: %w", cardID, ErrDuplicateAssignment)
	}
	if len(s.state.AvailableLockers) == 0 {
		s.countAssignment("unavailable")
		return Receipt{}, ErrLockerUnavailable
	}
	if !known {
		s.logger.Error("wash type not found", "wash_type", washTypeID)
		s.countAssignment("invalid_wash_type")
		return Receipt{}, fmt.Errorf("%w: %s", ErrInvalidWashType, washTypeID)
	}

	lockerID := s.state.AvailableLockers[0]
	now := s.clock.Now()
	tx := model.Transaction{
		ID:          s.newID(),
		CardID:      cardID,
		LockerID:    lockerID,
		WashType:    washType,
		Status:      model.StatusPending,
		DropOffTime: now,
		DeviceInfo: map[string]string{
			"device_name":     s.device.DeviceName,
			"device_location": s.device.DeviceLocation,
		},
	}
	if washType.EstimatedMinutes > 0 {
		done := now.Add(time.Duration(washType.EstimatedMinutes) * time.Minute)
		tx.EstimatedCompletionTime = &done
	}

	s.state.ActiveCards[cardID] = model.Assignment{LockerID: lockerID, TransactionID: tx.ID}
	s.state.AvailableLockers = s.state.AvailableLockers[1:]
	s.state.Transactions = append(s.state.Transactions, tx)
	s.persist(ctx)
	s.observePool()
	s.countAssignment("assigned")
	s.publish("new_transaction", tx)

	s.logger.Info("card assigned",
		"card_id", cardID, "locker_id", lockerID,
		"transaction_id", tx.ID, "wash_type", washType.Name)
	return Receipt{
		LockerID:      lockerID,
		TransactionID: tx.ID,
		WashType:      washType,
		Message:       fmt.Sprintf("Card assigned to locker %s with %s service", lockerID, washType.Name),
	}, nil
}

func (s *Service) countAssignment(outcome string) {
	s.metrics.Assignments.WithLabelValues(outcome).Inc()
}
