package coordinator

import (
	"fmt"
	"sync"
	"time"
)

// Phase is the lifecycle of an in-flight match.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseBothMovesIn
	PhaseResolved
	PhaseSettled
	PhaseAbandoned
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseBothMovesIn:
		return "both_moves_in"
	case PhaseResolved:
		return "resolved"
	case PhaseSettled:
		return "settled"
	case PhaseAbandoned:
		return "abandoned"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// transitions lists the only legal single-writer phase changes.
var transitions = map[Phase][]Phase{
	PhaseOpen:        {PhaseBothMovesIn, PhaseAbandoned},
	PhaseBothMovesIn: {PhaseResolved, PhaseAbandoned},
	PhaseResolved:    {PhaseSettled},
}

// MatchState is the ephemeral coordination record of one match. Every field
// is guarded by mu; mu is never held across I/O.
type MatchState struct {
	mu sync.Mutex

	id    string
	seat1 string
	seat2 string
	name1 string
	name2 string
	move1 Move
	move2 Move
	bet   float64

	joinSinks      []Sink
	moveSinks      []Sink
	readyAnnounced bool

	phase    Phase
	settling bool
	outcome  Outcome
	details  string

	changed chan struct{}
	touched time.Time
}

func newMatchState(id string) *MatchState {
	return &MatchState{
		id:      id,
		move1:   MoveNone,
		move2:   MoveNone,
		changed: make(chan struct{}),
		touched: time.Now(),
	}
}

// ID returns the match identifier.
func (s *MatchState) ID() string { return s.id }

// Phase returns the current phase.
func (s *MatchState) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Seats returns the assigned seat user ids.
func (s *MatchState) Seats() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seat1, s.seat2
}

// IsReady reports whether both seats are filled.
func (s *MatchState) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready()
}

// The helpers below require s.mu.

func (s *MatchState) advance(to Phase) bool {
	for _, next := range transitions[s.phase] {
		if next == to {
			s.phase = to
			s.notify()
			return true
		}
	}
	return false
}

// notify wakes every waiter and marks the state as active.
func (s *MatchState) notify() {
	close(s.changed)
	s.changed = make(chan struct{})
	s.touched = time.Now()
}

// adopt seeds seats and bet from the persisted record. Seats already held in
// memory win.
func (s *MatchState) adopt(rec MatchRecord) {
	if s.seat1 == "" && rec.Player1ID != "" {
		s.seat1 = rec.Player1ID
	}
	if s.seat2 == "" && rec.Player2ID != "" {
		s.seat2 = rec.Player2ID
	}
	if s.bet == 0 {
		s.bet = rec.BetAmount
	}
}

func (s *MatchState) seatOf(userID string) Seat {
	switch userID {
	case "":
		return SeatNone
	case s.seat1:
		return Seat1
	case s.seat2:
		return Seat2
	}
	return SeatNone
}

func (s *MatchState) nextSeat() Seat {
	if s.seat1 == "" {
		return Seat1
	}
	if s.seat2 == "" {
		return Seat2
	}
	return SeatNone
}

// assign fills seat with userID. A seat held by someone else is a conflict.
func (s *MatchState) assign(seat Seat, userID, displayName string) error {
	slot, name := &s.seat1, &s.name1
	if seat == Seat2 {
		slot, name = &s.seat2, &s.name2
	}
	switch *slot {
	case "":
		*slot = userID
		s.notify()
	case userID:
	default:
		return fmt.Errorf("seat %d of match %s: %w", seat, s.id, ErrConcurrencyConflict)
	}
	if displayName != "" {
		*name = displayName
	}
	return nil
}

func (s *MatchState) ready() bool {
	return s.seat1 != "" && s.seat2 != ""
}

// record stores userID's move. A second move from the same seat is ignored.
func (s *MatchState) record(userID, displayName string, move Move) (Seat, error) {
	seat := s.seatOf(userID)
	switch seat {
	case Seat1:
		if s.move1 == MoveNone {
			s.move1 = move
			s.notify()
		}
		if displayName != "" {
			s.name1 = displayName
		}
	case Seat2:
		if s.move2 == MoveNone {
			s.move2 = move
			s.notify()
		}
		if displayName != "" {
			s.name2 = displayName
		}
	default:
		return SeatNone, fmt.Errorf("match %s: %w: %w", s.id, ErrInvalidState, ErrNotSeated)
	}
	if s.phase == PhaseOpen && s.move1 != MoveNone && s.move2 != MoveNone {
		s.advance(PhaseBothMovesIn)
	}
	return seat, nil
}

func (s *MatchState) movesIn() bool {
	switch s.phase {
	case PhaseBothMovesIn, PhaseResolved, PhaseSettled:
		return true
	}
	return false
}

func (s *MatchState) resolved() bool {
	return s.phase == PhaseResolved || s.phase == PhaseSettled
}

// resolve is the single-writer gate for the outcome. It returns the sinks to
// fan out to when this call performed the resolution.
func (s *MatchState) resolve(format func(*MatchState) string) ([]Sink, bool) {
	if s.phase != PhaseBothMovesIn {
		return nil, false
	}
	s.outcome = Compute(s.move1, s.move2)
	s.details = format(s)
	s.advance(PhaseResolved)

	sinks := s.moveSinks
	s.moveSinks = nil
	return sinks, true
}

func (s *MatchState) resultEvent() Event {
	return Event{
		Kind:    KindMove,
		MatchID: s.id,
		Status:  StatusResult,
		Message: s.details,
		Outcome: s.outcome,
		Move1:   s.move1,
		Move2:   s.move2,
	}
}

// claimSettlement hands the settlement to exactly one caller at a time.
func (s *MatchState) claimSettlement() bool {
	if s.phase != PhaseResolved || s.settling {
		return false
	}
	s.settling = true
	return true
}

// finishSettlement records the claimant's result. Only a confirmed commit
// moves the state to Settled; a failure releases the claim.
func (s *MatchState) finishSettlement(committed bool) {
	s.settling = false
	if committed {
		s.advance(PhaseSettled)
	}
}

func (s *MatchState) settlement() Settlement {
	return Settlement{
		MatchID:   s.id,
		Player1ID: s.seat1,
		Player2ID: s.seat2,
		Move1:     s.move1,
		Move2:     s.move2,
		Outcome:   s.outcome,
		BetAmount: s.bet,
		Details:   s.details,
	}
}

// abandon closes an unresolved match and drops its sinks.
func (s *MatchState) abandon() bool {
	if !s.advance(PhaseAbandoned) {
		return false
	}
	s.joinSinks = nil
	s.moveSinks = nil
	return true
}
