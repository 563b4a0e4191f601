package model

import (
	"slices"
	"time"
)

// PushSubscription holds a browser push subscription that wants to hear when
// a locker frees up. An empty Lockers list subscribes to every locker.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey"`
	P256DH    string    `gorm:"column:p256dh;not null"`
	Auth      string    `gorm:"not null"`
	Lockers   []string  `gorm:"serializer:json"`
	CreatedAt time.Time `gorm:"not null"`
}

// Wants reports whether the subscription covers lockerID.
func (p PushSubscription) Wants(lockerID string) bool {
	return len(p.Lockers) == 0 || slices.Contains(p.Lockers, lockerID)
}
