package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundry-locker/internal/model"
)

// gormStore implements Store on the active_card_records,
// transaction_records and available_locker_records tables.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Load implements Store.
func (s *gormStore) Load(ctx context.Context) (*model.State, error) {
	var cards []model.ActiveCardRecord
	if err := s.db.WithContext(ctx).Find(&cards).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch active cards: %w", err)
	}
	var txs []model.TransactionRecord
	if err := s.db.WithContext(ctx).Order("seq").Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	var lockers []model.AvailableLockerRecord
	if err := s.db.WithContext(ctx).Order("position").Find(&lockers).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch available lockers: %w", err)
	}

	if len(cards) == 0 && len(txs) == 0 && len(lockers) == 0 {
		return nil, ErrNoState
	}

	state := &model.State{
		ActiveCards:      make(map[string]model.Assignment, len(cards)),
		Transactions:     make([]model.Transaction, 0, len(txs)),
		AvailableLockers: make([]string, 0, len(lockers)),
	}
	for _, c := range cards {
		state.ActiveCards[c.CardID] = model.Assignment{LockerID: c.LockerID, TransactionID: c.TransactionID}
	}
	for _, r := range txs {
		state.Transactions = append(state.Transactions, fromRecord(r))
	}
	for _, l := range lockers {
		state.AvailableLockers = append(state.AvailableLockers, l.LockerID)
	}
	return state, nil
}

// Save implements Store. The assignment and pool tables are rewritten and
// the transaction log is upserted, all in one database transaction.
func (s *gormStore) Save(ctx context.Context, state *model.State) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.ActiveCardRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear active cards: %w", err)
		}
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.AvailableLockerRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear available lockers: %w", err)
		}

		if len(state.ActiveCards) > 0 {
			cards := make([]model.ActiveCardRecord, 0, len(state.ActiveCards))
			for cardID, a := range state.ActiveCards {
				cards = append(cards, model.ActiveCardRecord{CardID: cardID, LockerID: a.LockerID, TransactionID: a.TransactionID})
			}
			if err := tx.Create(&cards).Error; err != nil {
				return fmt.Errorf("failed to write active cards: %w", err)
			}
		}

		if len(state.AvailableLockers) > 0 {
			lockers := make([]model.AvailableLockerRecord, len(state.AvailableLockers))
			for i, id := range state.AvailableLockers {
				lockers[i] = model.AvailableLockerRecord{LockerID: id, Position: i}
			}
			if err := tx.Create(&lockers).Error; err != nil {
				return fmt.Errorf("failed to write available lockers: %w", err)
			}
		}

		if len(state.Transactions) > 0 {
			records := make([]model.TransactionRecord, len(state.Transactions))
			for i, t := range state.Transactions {
				records[i] = toRecord(t, int64(i))
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "transaction_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"status", "pickup_time"}),
			}).CreateInBatches(&records, 200).Error; err != nil {
				return fmt.Errorf("failed to write transactions: %w", err)
			}
		}
		return nil
	})
}

func toRecord(t model.Transaction, seq int64) model.TransactionRecord {
	return model.TransactionRecord{
		TransactionID:           t.ID,
		Seq:                     seq,
		CardID:                  t.CardID,
		LockerID:                t.LockerID,
		WashType:                t.WashType,
		Status:                  string(t.Status),
		DropOffTime:             t.DropOffTime,
		PickupTime:              t.PickupTime,
		EstimatedCompletionTime: t.EstimatedCompletionTime,
		DeviceInfo:              t.DeviceInfo,
	}
}

func fromRecord(r model.TransactionRecord) model.Transaction {
	return model.Transaction{
		ID:                      r.TransactionID,
		CardID:                  r.CardID,
		LockerID:                r.LockerID,
		WashType:                r.WashType,
		Status:                  model.TransactionStatus(r.Status),
		DropOffTime:             r.DropOffTime,
		PickupTime:              r.PickupTime,
		EstimatedCompletionTime: r.EstimatedCompletionTime,
		DeviceInfo:              r.DeviceInfo,
	}
}
