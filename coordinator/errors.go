package coordinator

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrMatchFull           = errors.New("full or over")
	ErrInvalidState        = errors.New("invalid match state")
	ErrNotSeated           = errors.New("user is not seated in this match")
	ErrInvalidMove         = errors.New("invalid move")
	ErrConcurrencyConflict = errors.New("match was modified by another player")
	ErrSettlementFailure   = errors.New("settlement failed")
	ErrInsufficientFunds   = errors.New("insufficient balance for the bet")
	ErrMatchAbandoned      = errors.New("match abandoned")
)
