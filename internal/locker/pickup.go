package locker

import (
	"context"
	"fmt"

	"laundry-locker/internal/model"
	"laundry-locker/internal/parse"
)

// PickupPath says how a pickup was resolved.
type PickupPath string

const (
	// PathPrimary: the assignment's transaction was found by id.
	PathPrimary PickupPath = "primary"
	// PathFallback: the transaction was found by card id instead.
	PathFallback PickupPath = "fallback"
	// PathReset: no open transaction exists for the assignment. The locker
	// is released without completing anything and without opening the door.
	PathReset PickupPath = "reset"
)

// PickupReceipt describes a completed pickup.
type PickupReceipt struct {
	LockerID      string     `json:"locker_id"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Path          PickupPath `json:"path"`
	Message       string     `json:"message"`
	// ActuatorErr is set when the door could not be driven. The pickup is
	// still recorded.
	ActuatorErr error `json:"-"`
}

// ProcessPickup completes the card's transaction, opens its locker and
// returns the locker to the pool. The whole operation, including the door
// hold and the save, runs under the state lock. Once started it does not
// observe cancellation of ctx: the door is held for its full time and the
// result is saved even if the caller has gone away.
func (s *Service) ProcessPickup(ctx context.Context, cardID string) (PickupReceipt, error) {
	cardID = parse.CardID(cardID)
	ctx = context.WithoutCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.activeKey(cardID)
	if !ok {
		s.logger.Info("pickup for card without a locker", "card_id", cardID)
		s.countPickup("not_found")
		return PickupReceipt{}, fmt.Errorf("card %s: %w", cardID, ErrTransactionNotFound)
	}
	assignment := s.state.ActiveCards[key]

	path := PathPrimary
	idx := s.transactionByID(assignment.TransactionID)
	switch {
	case idx < 0:
		s.logger.Error("transaction for assignment not found, searching by card",
			"card_id", key, "transaction_id", assignment.TransactionID)
	case !s.state.Transactions[idx].Open():
		// A completed record is never completed again.
		s.logger.Error("transaction for assignment is already completed, searching by card",
			"card_id", key, "transaction_id", assignment.TransactionID)
		idx = -1
	}
	if idx < 0 {
		path = PathFallback
		idx = s.openTransaction(key)
	}
	if idx < 0 {
		return s.resetAssignment(ctx, key, assignment), nil
	}

	tx := &s.state.Transactions[idx]
	now := s.clock.Now()
	tx.Status = model.StatusCompleted
	tx.PickupTime = &now

	door := assignment.LockerID
	if path == PathFallback {
		door = tx.LockerID
	}
	receipt := PickupReceipt{LockerID: door, TransactionID: tx.ID, Path: path}
	if s.opener != nil {
		if err := s.opener.Open(ctx, door); err != nil {
			s.logger.Error("failed to open locker for pickup", "locker_id", door, "err", err)
			receipt.ActuatorErr = err
		}
	}

	delete(s.state.ActiveCards, key)
	released := s.releaseAll(assignment.LockerID, tx.LockerID)
	completed := *tx
	s.persist(ctx)
	s.observePool()
	s.countPickup(string(path))
	s.publish("pickup_complete", completed)
	s.announce(released)

	receipt.Message = fmt.Sprintf("Clothes picked up from locker %s", door)
	if path == PathFallback {
		receipt.Message += " (fallback)"
	}
	if receipt.ActuatorErr != nil {
		receipt.Message += "; the door did not open, please contact staff"
	}
	s.logger.Info("pickup complete", "card_id", key, "locker_id", door, "transaction_id", tx.ID, "path", path)
	return receipt, nil
}

// resetAssignment drops an assignment that has no open transaction and
// frees its locker. Nothing is marked completed because no record exists.
func (s *Service) resetAssignment(ctx context.Context, key string, assignment model.Assignment) PickupReceipt {
	s.logger.Warn("transaction mismatch, resetting assignment",
		"card_id", key, "locker_id", assignment.LockerID, "transaction_id", assignment.TransactionID)
	delete(s.state.ActiveCards, key)
	released := s.releaseAll(assignment.LockerID)
	s.persist(ctx)
	s.observePool()
	s.countPickup(string(PathReset))
	s.announce(released)
	return PickupReceipt{
		LockerID: assignment.LockerID,
		Path:     PathReset,
		Message:  fmt.Sprintf("Locker %s unlocked and reset", assignment.LockerID),
	}
}

func (s *Service) releaseAll(ids ...string) []string {
	var released []string
	for _, id := range ids {
		if s.release(id) {
			released = append(released, id)
		}
	}
	return released
}

func (s *Service) announce(lockers []string) {
	if s.notifier == nil {
		return
	}
	for _, id := range lockers {
		s.notifier.Dispatch(id)
	}
}

func (s *Service) countPickup(path string) {
	s.metrics.Pickups.WithLabelValues(path).Inc()
}
