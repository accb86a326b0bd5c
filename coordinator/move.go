package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"rps-wager-system/metrics"
)

// MoveCoordinator records moves, resolves each match exactly once and makes
// sure exactly one caller settles it.
type MoveCoordinator struct {
	registry      *Registry
	store         Store
	gateway       SettlementGateway
	pollInterval  time.Duration
	settleTimeout time.Duration

	mu        sync.Mutex
	unsettled map[string]*MatchState
}

func NewMoveCoordinator(registry *Registry, store Store, gateway SettlementGateway, pollInterval time.Duration) *MoveCoordinator {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	return &MoveCoordinator{
		registry:      registry,
		store:         store,
		gateway:       gateway,
		pollInterval:  pollInterval,
		settleTimeout: 10 * time.Second,
		unsettled:     make(map[string]*MatchState),
	}
}

// SubmitMove records userID's move and streams Pending notices until the
// result is pushed to sink. Cancellation of ctx ends the wait with a nil error;
// the match still resolves once the peer's move arrives.
func (m *MoveCoordinator) SubmitMove(ctx context.Context, matchID, userID, token string, sink Sink) error {
	move, err := ParseMove(token)
	if err != nil {
		return err
	}
	player, err := m.store.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	rec, err := m.store.FindMatch(ctx, matchID)
	if err != nil {
		return err
	}

	state, live := m.registry.Get(matchID)
	if !live {
		if rec.Status.Closed() {
			return fmt.Errorf("move on %s match %s: %w", rec.Status, matchID, ErrInvalidState)
		}
		state = m.registry.GetOrCreate(matchID)
	}

	state.mu.Lock()
	if state.phase == PhaseAbandoned {
		state.mu.Unlock()
		return fmt.Errorf("move on match %s: %w", matchID, ErrMatchAbandoned)
	}
	state.adopt(rec)
	seat, err := state.record(userID, player.DisplayName, move)
	if err != nil {
		state.mu.Unlock()
		return err
	}
	var cached *Event
	if state.resolved() {
		ev := state.resultEvent()
		cached = &ev
	} else {
		sink = &resultGuard{sink: sink}
		state.moveSinks = append(state.moveSinks, sink)
	}
	state.mu.Unlock()

	metrics.MovesSubmitted.Inc()
	log.Debug().Str("match_id", matchID).Str("user_id", userID).Int("seat", int(seat)).
		Msg("[MOVE] move recorded")

	if cached != nil {
		if err := sink.Send(*cached); err != nil {
			log.Debug().Err(err).Str("match_id", matchID).Msg("[MOVE] result not delivered")
		}
		return m.settle(ctx, state)
	}

	pending := Event{Kind: KindMove, MatchID: matchID, Status: StatusPending, Message: "Waiting for the other player..."}
	ok, err := state.waitFor(ctx, m.pollInterval, state.movesIn, func() error { return sink.Send(pending) })
	if err != nil {
		return err
	}
	if !ok {
		log.Debug().Str("match_id", matchID).Str("user_id", userID).Msg("[MOVE] wait cancelled")
		return nil
	}

	m.resolve(state)
	return m.settle(ctx, state)
}

// resolve lets the first caller to see both moves compute, cache and
// broadcast the outcome. Later callers do nothing; their sinks were part of
// the broadcast. The state stays registered until its settlement commits, so
// reconnecting players are served the cached result.
func (m *MoveCoordinator) resolve(state *MatchState) {
	state.mu.Lock()
	sinks, won := state.resolve(describe)
	var event Event
	if won {
		event = state.resultEvent()
	}
	state.mu.Unlock()

	if !won {
		return
	}

	fanOut(sinks, event)

	metrics.MatchesResolved.WithLabelValues(string(event.Outcome)).Inc()
	log.Info().Str("match_id", state.id).Str("outcome", string(event.Outcome)).
		Int("recipients", len(sinks)).Msg("[MOVE] match resolved")
}

func (m *MoveCoordinator) settle(ctx context.Context, state *MatchState) error {
	_, err := m.trySettle(ctx, state)
	return err
}

// trySettle calls the gateway from exactly one caller. The state becomes
// Settled only after a confirmed commit.
func (m *MoveCoordinator) trySettle(ctx context.Context, state *MatchState) (bool, error) {
	state.mu.Lock()
	claimed := state.claimSettlement()
	done := state.phase == PhaseSettled
	s := state.settlement()
	state.mu.Unlock()

	if !claimed {
		if done {
			m.unpark(s.MatchID)
		}
		return false, nil
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.settleTimeout)
	defer cancel()
	err := m.gateway.Settle(sctx, s)

	state.mu.Lock()
	state.finishSettlement(err == nil)
	state.mu.Unlock()

	if err != nil {
		m.park(state)
		metrics.Settlements.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("match_id", s.MatchID).Msg("[SETTLE] settlement failed, parked for retry")
		return false, fmt.Errorf("match %s: %w: %w", s.MatchID, ErrSettlementFailure, err)
	}

	m.unpark(s.MatchID)
	m.registry.RemoveIf(state.id, state)
	metrics.Settlements.WithLabelValues("committed").Inc()
	log.Info().Str("match_id", s.MatchID).Str("outcome", string(s.Outcome)).
		Float64("bet", s.BetAmount).Msg("[SETTLE] match settled")
	return true, nil
}

// resultGuard drops Pending notices once the result reached the sink, so a
// late poll tick cannot follow the broadcast.
type resultGuard struct {
	mu   sync.Mutex
	sink Sink
	done bool
}

func (g *resultGuard) Send(e Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done && e.Status != StatusResult {
		return nil
	}
	if err := g.sink.Send(e); err != nil {
		return err
	}
	if e.Status == StatusResult {
		g.done = true
	}
	return nil
}

func (m *MoveCoordinator) park(state *MatchState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsettled[state.id] = state
	metrics.UnsettledMatches.Set(float64(len(m.unsettled)))
}

func (m *MoveCoordinator) unpark(matchID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.unsettled, matchID)
	metrics.UnsettledMatches.Set(float64(len(m.unsettled)))
}

// Unsettled returns the number of resolved matches awaiting a retry.
func (m *MoveCoordinator) Unsettled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.unsettled)
}

// RetryUnsettled re-attempts settlement for every parked match and returns
// how many committed.
func (m *MoveCoordinator) RetryUnsettled(ctx context.Context) int {
	m.mu.Lock()
	parked := make([]*MatchState, 0, len(m.unsettled))
	for _, s := range m.unsettled {
		parked = append(parked, s)
	}
	m.mu.Unlock()

	settled := 0
	for _, s := range parked {
		if ctx.Err() != nil {
			break
		}
		if ok, _ := m.trySettle(ctx, s); ok {
			settled++
		}
	}
	return settled
}
