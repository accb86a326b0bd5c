package models

import "time"

const (
	MatchStatusCreated   = "created"
	MatchStatusPending   = "pending"
	MatchStatusWin       = "win"  // player 1 won
	MatchStatusLoss      = "loss" // player 2 won
	MatchStatusDraw      = "draw"
	MatchStatusAbandoned = "abandoned"
)

const (
	MoveNone     = "none"
	MoveRock     = "rock"
	MovePaper    = "paper"
	MoveScissors = "scissors"
)

// Match is the durable record of one wagered session. Never deleted; it is
// the audit trail for seat fills, moves and the final outcome.
type Match struct {
	ID        string  `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedBy string  `gorm:"index;not null" json:"created_by"`
	Player1ID *string `gorm:"index" json:"player1_id,omitempty"`
	Player2ID *string `gorm:"index" json:"player2_id,omitempty"`
	BetAmount float64 `gorm:"type:decimal(18,2);not null" json:"bet_amount"`

	Status      string `gorm:"type:varchar(16);not null;default:'created';index" json:"status"`
	Player1Move string `gorm:"type:varchar(16);not null;default:'none'" json:"player1_move"`
	Player2Move string `gorm:"type:varchar(16);not null;default:'none'" json:"player2_move"`
	Details     string `gorm:"type:text" json:"details,omitempty"`

	// Optimistic concurrency token, bumped on every seat claim
	Version int64 `gorm:"not null;default:0" json:"-"`

	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	Timestamps
}

// HasFreeSeat reports whether another player can still join.
func (m *Match) HasFreeSeat() bool {
	return m.Player1ID == nil || m.Player2ID == nil
}
