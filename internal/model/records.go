package model

import "time"

// ActiveCardRecord is the database row for an active assignment.
type ActiveCardRecord struct {
	CardID        string `gorm:"primaryKey;size:128"`
	LockerID      string `gorm:"size:64;not null"`
	TransactionID string `gorm:"size:64;not null"`
}

// TransactionRecord is the database row for a transaction. Seq preserves the
// append order of the log.
type TransactionRecord struct {
	TransactionID           string    `gorm:"primaryKey;size:64"`
	Seq                     int64     `gorm:"index;not null"`
	CardID                  string    `gorm:"index;size:128;not null"`
	LockerID                string    `gorm:"size:64;not null"`
	WashType                WashType  `gorm:"serializer:json"`
	Status                  string    `gorm:"size:32;not null"`
	DropOffTime             time.Time `gorm:"not null"`
	PickupTime              *time.Time
	EstimatedCompletionTime *time.Time
	DeviceInfo              map[string]string `gorm:"serializer:json"`
}

// AvailableLockerRecord is the database row for a free locker.
type AvailableLockerRecord struct {
	LockerID string `gorm:"primaryKey;size:64"`
	Position int    `gorm:"not null"`
}
