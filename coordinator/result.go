package coordinator

import (
	"fmt"
	"strings"
)

// Move is one participant's play.
type Move string

const (
	MoveNone     Move = "none"
	MoveRock     Move = "rock"
	MovePaper    Move = "paper"
	MoveScissors Move = "scissors"
)

// ParseMove accepts rock, paper or scissors in any case.
func ParseMove(token string) (Move, error) {
	switch Move(strings.ToLower(strings.TrimSpace(token))) {
	case MoveRock:
		return MoveRock, nil
	case MovePaper:
		return MovePaper, nil
	case MoveScissors:
		return MoveScissors, nil
	}
	return MoveNone, fmt.Errorf("%w: %q", ErrInvalidMove, token)
}

// Title returns the move as shown to players ("Rock").
func (m Move) Title() string {
	if m == "" {
		return ""
	}
	return strings.ToUpper(string(m[:1])) + string(m[1:])
}

// beats maps each move to the one it dominates.
var beats = map[Move]Move{
	MoveRock:     MoveScissors,
	MoveScissors: MovePaper,
	MovePaper:    MoveRock,
}

// Outcome of a resolved match, from seat 1's point of view.
type Outcome string

const (
	OutcomeDraw        Outcome = "draw"
	OutcomePlayer1Wins Outcome = "player1_wins"
	OutcomePlayer2Wins Outcome = "player2_wins"
)

// Swap relabels the outcome as if the seats were exchanged.
func (o Outcome) Swap() Outcome {
	switch o {
	case OutcomePlayer1Wins:
		return OutcomePlayer2Wins
	case OutcomePlayer2Wins:
		return OutcomePlayer1Wins
	}
	return o
}

// Compute resolves two legal moves. Callers validate moves with ParseMove first.
func Compute(move1, move2 Move) Outcome {
	if move1 == move2 {
		return OutcomeDraw
	}
	if beats[move1] == move2 {
		return OutcomePlayer1Wins
	}
	return OutcomePlayer2Wins
}
