package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rps-wager-system/coordinator"
	"rps-wager-system/models"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrSelfTransfer  = errors.New("cannot transfer to yourself")
	ErrAlreadyExists = errors.New("account already exists")

	errMissingDisplayName = errors.New("display_name is required")
)

// CreateUser opens an account with the given starting balance.
func (l *Ledger) CreateUser(ctx context.Context, userID, displayName string, balance float64) (*models.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, errMissingDisplayName
	}
	if userID == "" {
		userID = uuid.NewString()
	}

	var existing int64
	if err := l.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("check user %s: %w", userID, err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrAlreadyExists)
	}

	u := &models.User{ID: userID, DisplayName: displayName, Balance: balance}
	if err := l.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetUser loads the full account row.
func (l *Ledger) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var u models.User
	if err := l.DB.WithContext(ctx).First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", userID, coordinator.ErrNotFound)
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	return &u, nil
}

// Transfer moves amount from sender to receiver and records it. Returns the
// sender's updated account.
func (l *Ledger) Transfer(ctx context.Context, senderID, receiverID string, amount float64) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if senderID == receiverID {
		return nil, ErrSelfTransfer
	}

	var sender models.User
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users []models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id IN ?", []string{senderID, receiverID}).
			Order("id").
			Find(&users).Error; err != nil {
			return fmt.Errorf("lock accounts: %w", err)
		}
		s, r := pick(users, senderID), pick(users, receiverID)
		if s == nil || r == nil {
			return fmt.Errorf("transfer accounts: %w", coordinator.ErrNotFound)
		}
		if s.Balance < amount {
			return coordinator.ErrInsufficientFunds
		}

		s.Balance -= amount
		r.Balance += amount
		if err := tx.Save(s).Error; err != nil {
			return fmt.Errorf("save sender: %w", err)
		}
		if err := tx.Save(r).Error; err != nil {
			return fmt.Errorf("save receiver: %w", err)
		}
		if err := tx.Create(&models.GameTransaction{
			ID:         uuid.NewString(),
			SenderID:   s.ID,
			ReceiverID: r.ID,
			Amount:     amount,
			Kind:       models.TransactionKindTransfer,
		}).Error; err != nil {
			return fmt.Errorf("record transfer: %w", err)
		}
		sender = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &sender, nil
}

// Transactions lists the latest movements touching userID, newest first.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]models.GameTransaction, error) {
	var txs []models.GameTransaction
	err := l.DB.WithContext(ctx).
		Where("sender_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&txs).Error
	return txs, err
}

// CreateMatch opens a match with both seats free. The creator joins through
// the regular join stream like anyone else.
func (l *Ledger) CreateMatch(ctx context.Context, creatorID string, bet float64) (*models.Match, error) {
	if bet <= 0 {
		return nil, ErrInvalidAmount
	}
	creator, err := l.GetUser(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if creator.Balance < bet {
		return nil, coordinator.ErrInsufficientFunds
	}

	m := &models.Match{
		ID:          uuid.NewString(),
		CreatedBy:   creator.ID,
		BetAmount:   bet,
		Status:      models.MatchStatusCreated,
		Player1Move: models.MoveNone,
		Player2Move: models.MoveNone,
	}
	if err := l.DB.WithContext(ctx).Create(m).Error; err != nil {
		return nil, fmt.Errorf("create match: %w", err)
	}
	return m, nil
}

// OpenMatches lists matches that have not resolved yet, oldest first.
func (l *Ledger) OpenMatches(ctx context.Context, limit int) ([]models.Match, error) {
	var matches []models.Match
	err := l.DB.WithContext(ctx).
		Where("status IN ?", []string{models.MatchStatusCreated, models.MatchStatusPending}).
		Order("created_at ASC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}
