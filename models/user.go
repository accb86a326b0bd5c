package models

import (
	"time"
)

// DefaultStartingBalance is credited to every new account.
const DefaultStartingBalance = 1000

// User is a player account with a wagering balance.
type User struct {
	ID          string  `gorm:"primaryKey;type:uuid" json:"id"`
	DisplayName string  `gorm:"index;not null" json:"display_name"`
	Balance     float64 `gorm:"type:decimal(18,2);not null;default:0" json:"balance"`

	// Lifetime record, updated by settlement
	Wins   int64 `json:"wins" gorm:"default:0"`
	Losses int64 `json:"losses" gorm:"default:0"`
	Draws  int64 `json:"draws" gorm:"default:0"`

	LastSeen *time.Time `json:"last_seen,omitempty"`

	Timestamps
}
