package coordinator

import "context"

// Seat identifies one of the two participant slots.
type Seat int

const (
	SeatNone Seat = iota
	Seat1
	Seat2
)

// MatchStatus mirrors the persisted lifecycle of a match.
type MatchStatus string

const (
	MatchCreated   MatchStatus = "created"
	MatchPending   MatchStatus = "pending"
	MatchWin       MatchStatus = "win"
	MatchLoss      MatchStatus = "loss"
	MatchDraw      MatchStatus = "draw"
	MatchAbandoned MatchStatus = "abandoned"
)

// Closed reports whether no further joins or moves are accepted.
func (s MatchStatus) Closed() bool {
	switch s {
	case MatchWin, MatchLoss, MatchDraw, MatchAbandoned:
		return true
	}
	return false
}

// Settled reports whether a result has been committed.
func (s MatchStatus) Settled() bool {
	switch s {
	case MatchWin, MatchLoss, MatchDraw:
		return true
	}
	return false
}

// StatusFor maps an outcome to the persisted status (win means seat 1 won).
func StatusFor(o Outcome) MatchStatus {
	switch o {
	case OutcomePlayer1Wins:
		return MatchWin
	case OutcomePlayer2Wins:
		return MatchLoss
	}
	return MatchDraw
}

// Player is the subset of a user record the coordinators need.
type Player struct {
	ID          string
	DisplayName string
	Balance     float64
}

// MatchRecord is the persisted view of a match.
type MatchRecord struct {
	ID        string
	Player1ID string
	Player2ID string
	BetAmount float64
	Status    MatchStatus
	Version   int64
}

// Store is the persistence collaborator.
type Store interface {
	FindUser(ctx context.Context, userID string) (Player, error)
	FindMatch(ctx context.Context, matchID string) (MatchRecord, error)
	// ClaimSeat persists a seat assignment if the record is still at version.
	// A racing writer yields ErrConcurrencyConflict.
	ClaimSeat(ctx context.Context, matchID string, seat Seat, userID string, version int64) error
	// AbandonMatch closes a match that never resolved.
	AbandonMatch(ctx context.Context, matchID string) error
}

// Settlement is everything the gateway needs to pay out one match.
type Settlement struct {
	MatchID   string
	Player1ID string
	Player2ID string
	Move1     Move
	Move2     Move
	Outcome   Outcome
	BetAmount float64
	Details   string
}

// SettlementGateway applies balance deltas for a resolved match in one commit.
type SettlementGateway interface {
	Settle(ctx context.Context, s Settlement) error
}
