package models

import "time"

const (
	TransactionKindPayout   = "payout"
	TransactionKindTransfer = "transfer"
)

// GameTransaction records one balance movement between two users.
type GameTransaction struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	MatchID    *string   `gorm:"index" json:"match_id,omitempty"` // nil for peer transfers
	SenderID   string    `gorm:"index;not null" json:"sender_id"`
	ReceiverID string    `gorm:"index;not null" json:"receiver_id"`
	Amount     float64   `gorm:"type:decimal(18,2);not null" json:"amount"`
	Kind       string    `gorm:"type:varchar(16);not null" json:"kind"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
