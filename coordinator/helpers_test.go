package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPoll = 5 * time.Millisecond

type fakeStore struct {
	mu        sync.Mutex
	users     map[string]Player
	matches   map[string]*MatchRecord
	claims    int
	abandoned []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: make(map[string]Player), matches: make(map[string]*MatchRecord)}
}

func (f *fakeStore) addUser(id, name string, balance float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[id] = Player{ID: id, DisplayName: name, Balance: balance}
}

func (f *fakeStore) addMatch(rec MatchRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec.Status == "" {
		rec.Status = MatchCreated
	}
	f.matches[rec.ID] = &rec
}

func (f *fakeStore) record(id string) MatchRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.matches[id]
}

func (f *fakeStore) setStatus(id string, status MatchStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.matches[id].Status = status
}

func (f *fakeStore) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claims
}

func (f *fakeStore) FindUser(_ context.Context, userID string) (Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.users[userID]
	if !ok {
		return Player{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return p, nil
}

func (f *fakeStore) FindMatch(_ context.Context, matchID string) (MatchRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[matchID]
	if !ok {
		return MatchRecord{}, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return *m, nil
}

func (f *fakeStore) ClaimSeat(_ context.Context, matchID string, seat Seat, userID string, version int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.matches[matchID]
	slot := &m.Player1ID
	if seat == Seat2 {
		slot = &m.Player2ID
	}
	if m.Version != version || *slot != "" || m.Status.Closed() {
		return fmt.Errorf("claim: %w", ErrConcurrencyConflict)
	}
	*slot = userID
	m.Status = MatchPending
	m.Version++
	f.claims++
	return nil
}

func (f *fakeStore) AbandonMatch(_ context.Context, matchID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, matchID)
	if m, ok := f.matches[matchID]; ok && !m.Status.Closed() {
		m.Status = MatchAbandoned
	}
	return nil
}

type fakeGateway struct {
	mu       sync.Mutex
	store    *fakeStore
	failing  bool
	attempts int
	settled  []Settlement
}

var errGatewayDown = errors.New("ledger unavailable")

func (g *fakeGateway) Settle(_ context.Context, s Settlement) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts++
	if g.failing {
		return errGatewayDown
	}
	g.settled = append(g.settled, s)
	if g.store != nil {
		g.store.setStatus(s.MatchID, StatusFor(s.Outcome))
	}
	return nil
}

func (g *fakeGateway) setFailing(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing = v
}

func (g *fakeGateway) settlements() []Settlement {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Settlement(nil), g.settled...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (r *recordingSink) Send(e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("closed")
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recordingSink) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recordingSink) withStatus(status string) []Event {
	var out []Event
	for _, e := range r.all() {
		if e.Status == status {
			out = append(out, e)
		}
	}
	return out
}

func (r *recordingSink) waitStatus(t *testing.T, status string) Event {
	t.Helper()
	require.Eventually(t, func() bool { return len(r.withStatus(status)) > 0 }, 2*time.Second, time.Millisecond,
		"no %s event", status)
	return r.withStatus(status)[0]
}

// seatedMatch stores a pending match with alice in seat 1 and bob in seat 2.
func seatedMatch(store *fakeStore, id string, bet float64) {
	store.addUser("alice", "Alice", 1000)
	store.addUser("bob", "Bob", 1000)
	store.addMatch(MatchRecord{ID: id, Player1ID: "alice", Player2ID: "bob", BetAmount: bet, Status: MatchPending, Version: 2})
}

type result struct {
	err error
}

func goSubmit(ctx context.Context, m *MoveCoordinator, matchID, userID, move string, sink Sink) <-chan result {
	done := make(chan result, 1)
	go func() {
		done <- result{err: m.SubmitMove(ctx, matchID, userID, move, sink)}
	}()
	return done
}

func wait(t *testing.T, done <-chan result) error {
	t.Helper()
	select {
	case r := <-done:
		return r.err
	case <-time.After(3 * time.Second):
		t.Fatal("call did not return")
		return nil
	}
}
