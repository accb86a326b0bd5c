package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"rps-wager-system/metrics"
)

const claimAttempts = 3

// JoinCoordinator seats connecting players and announces readiness.
type JoinCoordinator struct {
	registry     *Registry
	store        Store
	pollInterval time.Duration
}

func NewJoinCoordinator(registry *Registry, store Store, pollInterval time.Duration) *JoinCoordinator {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &JoinCoordinator{registry: registry, store: store, pollInterval: pollInterval}
}

// Join seats userID in matchID and streams Waiting/Ready to sink. It returns
// once the match is ready, or nil when ctx is cancelled first.
func (j *JoinCoordinator) Join(ctx context.Context, matchID, userID string, sink Sink) error {
	player, err := j.store.FindUser(ctx, userID)
	if err != nil {
		return err
	}

	var (
		state  *MatchState
		seat   Seat
		rejoin bool
	)
	// A conflicting claim means another joiner moved the record first; reread
	// it and pick again.
	for attempt := 1; ; attempt++ {
		state, seat, rejoin, err = j.claim(ctx, matchID, player)
		if err == nil {
			break
		}
		if !errors.Is(err, ErrConcurrencyConflict) || attempt == claimAttempts {
			return err
		}
		log.Debug().Err(err).Str("match_id", matchID).Int("attempt", attempt).Msg("[JOIN] seat claim raced, retrying")
	}

	state.mu.Lock()
	if err := state.assign(seat, userID, player.DisplayName); err != nil {
		state.mu.Unlock()
		return err
	}
	var (
		recipients []Sink
		announced  bool
		event      = Event{Kind: KindJoin, MatchID: matchID, Status: StatusWaiting, Message: "Waiting for another player..."}
	)
	switch {
	case state.ready() && !state.readyAnnounced:
		state.readyAnnounced = true
		announced = true
		recipients = append(state.joinSinks, sink)
		state.joinSinks = nil
		event.Status, event.Message = StatusReady, "Game is ready. Submit your move!"
	case state.ready():
		recipients = []Sink{sink}
		event.Status, event.Message = StatusReady, "Game is ready. Submit your move!"
	default:
		state.joinSinks = append(state.joinSinks, sink)
		recipients = []Sink{sink}
	}
	state.mu.Unlock()

	if rejoin {
		metrics.Joins.WithLabelValues("rejoined").Inc()
	} else {
		metrics.Joins.WithLabelValues("seated").Inc()
	}
	if announced {
		metrics.MatchesReady.Inc()
	}
	log.Debug().Str("match_id", matchID).Str("user_id", userID).Int("seat", int(seat)).
		Str("status", event.Status).Msg("[JOIN] seat assigned")

	fanOut(recipients, event)

	ok, err := state.waitFor(ctx, j.pollInterval, state.ready, nil)
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("match_id", matchID).Str("user_id", userID).Msg("[JOIN] wait cancelled")
	}
	return nil
}

// claim picks a seat for player and persists it. Re-joins by a seated player
// touch nothing.
func (j *JoinCoordinator) claim(ctx context.Context, matchID string, player Player) (*MatchState, Seat, bool, error) {
	rec, err := j.store.FindMatch(ctx, matchID)
	if err != nil {
		return nil, SeatNone, false, err
	}
	if rec.Status.Closed() {
		metrics.Joins.WithLabelValues("rejected").Inc()
		return nil, SeatNone, false, fmt.Errorf("join %s match %s: %w", rec.Status, matchID, ErrMatchFull)
	}

	state, live := j.registry.Get(matchID)
	if !live {
		// reject from the record alone so refused joiners leave no state behind
		seated := player.ID == rec.Player1ID || player.ID == rec.Player2ID
		switch {
		case !seated && rec.Player1ID != "" && rec.Player2ID != "":
			metrics.Joins.WithLabelValues("rejected").Inc()
			return nil, SeatNone, false, fmt.Errorf("join match %s: %w", matchID, ErrMatchFull)
		case !seated && player.Balance < rec.BetAmount:
			return nil, SeatNone, false, fmt.Errorf("join match %s: %w", matchID, ErrInsufficientFunds)
		}
		state = j.registry.GetOrCreate(matchID)
	}

	state.mu.Lock()
	state.adopt(rec)
	seat := state.seatOf(player.ID)
	rejoin := seat != SeatNone
	if !rejoin {
		seat = state.nextSeat()
	}
	state.mu.Unlock()

	if rejoin {
		return state, seat, true, nil
	}
	if seat == SeatNone {
		metrics.Joins.WithLabelValues("rejected").Inc()
		return nil, SeatNone, false, fmt.Errorf("join match %s: %w", matchID, ErrMatchFull)
	}
	if player.Balance < rec.BetAmount {
		return nil, SeatNone, false, fmt.Errorf("join match %s: %w", matchID, ErrInsufficientFunds)
	}
	if err := j.store.ClaimSeat(ctx, matchID, seat, player.ID, rec.Version); err != nil {
		return nil, SeatNone, false, err
	}
	return state, seat, false, nil
}

// fanOut writes event to every sink. Closed sinks are skipped.
func fanOut(sinks []Sink, event Event) {
	for _, s := range sinks {
		if err := s.Send(event); err != nil {
			log.Debug().Err(err).Str("match_id", event.MatchID).Str("status", event.Status).
				Msg("dropping closed sink")
		}
	}
}
