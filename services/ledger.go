package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rps-wager-system/coordinator"
	"rps-wager-system/models"
)

// ReceiptStore keeps a copy of every settled match outside the database.
type ReceiptStore interface {
	PutJSON(ctx context.Context, key string, v interface{}) (string, error)
}

// Ledger is the persistence collaborator of the coordinators: it reads users
// and matches, claims seats and commits settlements.
type Ledger struct {
	DB       *gorm.DB
	Receipts ReceiptStore // optional
}

func NewLedger(db *gorm.DB, receipts ReceiptStore) *Ledger {
	return &Ledger{DB: db, Receipts: receipts}
}

var (
	_ coordinator.Store             = (*Ledger)(nil)
	_ coordinator.SettlementGateway = (*Ledger)(nil)
)

func (l *Ledger) FindUser(ctx context.Context, userID string) (coordinator.Player, error) {
	var u models.User
	if err := l.DB.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return coordinator.Player{}, fmt.Errorf("user %s: %w", userID, coordinator.ErrNotFound)
		}
		return coordinator.Player{}, fmt.Errorf("load user %s: %w", userID, err)
	}
	return coordinator.Player{ID: u.ID, DisplayName: u.DisplayName, Balance: u.Balance}, nil
}

func (l *Ledger) FindMatch(ctx context.Context, matchID string) (coordinator.MatchRecord, error) {
	m, err := l.GetMatch(ctx, matchID)
	if err != nil {
		return coordinator.MatchRecord{}, err
	}
	return coordinator.MatchRecord{
		ID:        m.ID,
		Player1ID: deref(m.Player1ID),
		Player2ID: deref(m.Player2ID),
		BetAmount: m.BetAmount,
		Status:    coordinator.MatchStatus(m.Status),
		Version:   m.Version,
	}, nil
}

// GetMatch loads the full match row.
func (l *Ledger) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	var m models.Match
	if err := l.DB.WithContext(ctx).First(&m, "id = ?", matchID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("match %s: %w", matchID, coordinator.ErrNotFound)
		}
		return nil, fmt.Errorf("load match %s: %w", matchID, err)
	}
	return &m, nil
}

// ClaimSeat writes userID into the seat if nobody changed the match since
// version was read.
func (l *Ledger) ClaimSeat(ctx context.Context, matchID string, seat coordinator.Seat, userID string, version int64) error {
	column := "player1_id"
	if seat == coordinator.Seat2 {
		column = "player2_id"
	}

	res := l.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND version = ? AND "+column+" IS NULL", matchID, version).
		Where("status IN ?", []string{models.MatchStatusCreated, models.MatchStatusPending}).
		Updates(map[string]interface{}{
			column:    userID,
			"status":  models.MatchStatusPending,
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return fmt.Errorf("claim seat %d of match %s: %w", seat, matchID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("claim seat %d of match %s: %w", seat, matchID, coordinator.ErrConcurrencyConflict)
	}
	log.Debug().Str("match_id", matchID).Str("user_id", userID).Int("seat", int(seat)).Msg("[LEDGER] seat claimed")
	return nil
}

// AbandonMatch closes a match that never reached a result.
func (l *Ledger) AbandonMatch(ctx context.Context, matchID string) error {
	res := l.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND status IN ?", matchID, []string{models.MatchStatusCreated, models.MatchStatusPending}).
		Update("status", models.MatchStatusAbandoned)
	if res.Error != nil {
		return fmt.Errorf("abandon match %s: %w", matchID, res.Error)
	}
	return nil
}

// Settle commits the outcome, both balance changes and the payout record in
// one transaction. A match already carrying a result is left untouched; an
// abandoned one is refused so the settlement stays outstanding.
func (l *Ledger) Settle(ctx context.Context, s coordinator.Settlement) error {
	var (
		already bool
		names   [2]string
	)
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var match models.Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&match, "id = ?", s.MatchID).Error; err != nil {
			return fmt.Errorf("lock match: %w", err)
		}
		status := coordinator.MatchStatus(match.Status)
		if status.Settled() {
			already = true
			return nil
		}
		if status == coordinator.MatchAbandoned {
			return fmt.Errorf("match is abandoned: %w", coordinator.ErrInvalidState)
		}

		var users []models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", []string{s.Player1ID, s.Player2ID}).
			Order("id").
			Find(&users).Error; err != nil {
			return fmt.Errorf("lock players: %w", err)
		}
		p1, p2 := pick(users, s.Player1ID), pick(users, s.Player2ID)
		if p1 == nil || p2 == nil {
			return fmt.Errorf("players of match %s: %w", s.MatchID, coordinator.ErrNotFound)
		}
		names = [2]string{p1.DisplayName, p2.DisplayName}

		now := time.Now()
		match.Status = string(coordinator.StatusFor(s.Outcome))
		match.Player1Move = string(s.Move1)
		match.Player2Move = string(s.Move2)
		match.Details = s.Details
		match.ResolvedAt = &now
		if err := tx.Save(&match).Error; err != nil {
			return fmt.Errorf("save match: %w", err)
		}

		switch s.Outcome {
		case coordinator.OutcomeDraw:
			p1.Draws++
			p2.Draws++
		default:
			winner, loser := p1, p2
			if s.Outcome == coordinator.OutcomePlayer2Wins {
				winner, loser = p2, p1
			}
			loser.Balance -= s.BetAmount
			winner.Balance += s.BetAmount
			winner.Wins++
			loser.Losses++

			matchID := s.MatchID
			if err := tx.Create(&models.GameTransaction{
				ID:         uuid.NewString(),
				MatchID:    &matchID,
				SenderID:   loser.ID,
				ReceiverID: winner.ID,
				Amount:     s.BetAmount,
				Kind:       models.TransactionKindPayout,
			}).Error; err != nil {
				return fmt.Errorf("record payout: %w", err)
			}
		}

		for _, u := range []*models.User{p1, p2} {
			if err := tx.Save(u).Error; err != nil {
				return fmt.Errorf("save player %s: %w", u.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("settle match %s: %w", s.MatchID, err)
	}
	if already {
		log.Warn().Str("match_id", s.MatchID).Msg("[LEDGER] match already settled, skipping")
		return nil
	}

	l.archive(ctx, s, names)
	return nil
}

// Receipt is the archived copy of a settled match.
type Receipt struct {
	MatchID   string    `json:"match_id"`
	Player1   string    `json:"player1"`
	Player2   string    `json:"player2"`
	Move1     string    `json:"player1_move"`
	Move2     string    `json:"player2_move"`
	Outcome   string    `json:"outcome"`
	BetAmount float64   `json:"bet_amount"`
	Details   string    `json:"details"`
	SettledAt time.Time `json:"settled_at"`
}

func (l *Ledger) archive(ctx context.Context, s coordinator.Settlement, names [2]string) {
	if l.Receipts == nil {
		return
	}
	now := time.Now().UTC()
	key := fmt.Sprintf("receipts/%s/%s-%s.json",
		now.Format("2006/01/02"), slug.Make(names[0]+" vs "+names[1]), s.MatchID)

	url, err := l.Receipts.PutJSON(ctx, key, Receipt{
		MatchID:   s.MatchID,
		Player1:   names[0],
		Player2:   names[1],
		Move1:     string(s.Move1),
		Move2:     string(s.Move2),
		Outcome:   string(s.Outcome),
		BetAmount: s.BetAmount,
		Details:   s.Details,
		SettledAt: now,
	})
	if err != nil {
		log.Error().Err(err).Str("match_id", s.MatchID).Msg("[LEDGER] receipt upload failed")
		return
	}
	log.Debug().Str("match_id", s.MatchID).Str("url", url).Msg("[LEDGER] receipt archived")
}

func pick(users []models.User, id string) *models.User {
	for i := range users {
		if users[i].ID == id {
			return &users[i]
		}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
