package model

import "time"

// TransactionStatus is the lifecycle state of a locker transaction.
type TransactionStatus string

const (
	StatusPending TransactionStatus = "pending"
	// StatusProcessing is kept for compatibility with stored data; no
	// transition produces it.
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
)

// Transaction records one drop-off and, once completed, its pickup.
type Transaction struct {
	ID                      string            `json:"transaction_id"`
	CardID                  string            `json:"card_id"`
	LockerID                string            `json:"locker_id"`
	WashType                WashType          `json:"wash_type"`
	Status                  TransactionStatus `json:"status"`
	DropOffTime             time.Time         `json:"drop_off_time"`
	PickupTime              *time.Time        `json:"pickup_time"`
	EstimatedCompletionTime *time.Time        `json:"estimated_completion_time"`
	DeviceInfo              map[string]string `json:"device_info"`
}

// Open reports whether the transaction has not been picked up yet.
func (t Transaction) Open() bool {
	return t.Status != StatusCompleted
}

// Assignment is the active record that a card holds a locker.
type Assignment struct {
	LockerID      string `json:"locker_id"`
	TransactionID string `json:"transaction_id"`
}

// State is the persisted locker state. Field names are part of the on-disk
// format.
type State struct {
	ActiveCards      map[string]Assignment `json:"active_cards"`
	Transactions     []Transaction         `json:"transactions"`
	AvailableLockers []string              `json:"available_lockers"`
}

// NewState returns a state with every given locker free.
func NewState(lockers []string) *State {
	available := make([]string, len(lockers))
	copy(available, lockers)
	return &State{
		ActiveCards:      make(map[string]Assignment),
		Transactions:     []Transaction{},
		AvailableLockers: available,
	}
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	out := &State{
		ActiveCards:      make(map[string]Assignment, len(s.ActiveCards)),
		Transactions:     make([]Transaction, len(s.Transactions)),
		AvailableLockers: make([]string, len(s.AvailableLockers)),
	}
	for k, v := range s.ActiveCards {
		out.ActiveCards[k] = v
	}
	for i, t := range s.Transactions {
		if t.DeviceInfo != nil {
			info := make(map[string]string, len(t.DeviceInfo))
			for k, v := range t.DeviceInfo {
				info[k] = v
			}
			t.DeviceInfo = info
		}
		out.Transactions[i] = t
	}
	copy(out.AvailableLockers, s.AvailableLockers)
	return out
}
