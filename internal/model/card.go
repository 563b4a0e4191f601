package model

import "time"

// CardRead is a recent card presentation held by the read cache.
type CardRead struct {
	CardID    string    `json:"card_id"`
	Timestamp time.Time `json:"timestamp"`
	ReadCount int       `json:"read_count"`
}
