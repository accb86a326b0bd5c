package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJoinFixture() (*fakeStore, *Registry, *JoinCoordinator) {
	store := newFakeStore()
	store.addUser("alice", "Alice", 1000)
	store.addUser("bob", "Bob", 1000)
	store.addUser("carol", "Carol", 1000)
	store.addMatch(MatchRecord{ID: "m1", BetAmount: 100})
	reg := NewRegistry()
	return store, reg, NewJoinCoordinator(reg, store, testPoll)
}

func goJoin(ctx context.Context, j *JoinCoordinator, matchID, userID string, sink Sink) <-chan result {
	done := make(chan result, 1)
	go func() { done <- result{err: j.Join(ctx, matchID, userID, sink)} }()
	return done
}

func TestJoinWaitsThenReady(t *testing.T) {
	store, reg, j := newJoinFixture()

	alice := &recordingSink{}
	aliceDone := goJoin(context.Background(), j, "m1", "alice", alice)
	alice.waitStatus(t, StatusWaiting)

	bob := &recordingSink{}
	require.NoError(t, j.Join(context.Background(), "m1", "bob", bob))
	require.NoError(t, wait(t, aliceDone))

	assert.Len(t, alice.withStatus(StatusReady), 1)
	assert.Len(t, bob.withStatus(StatusReady), 1)
	assert.Empty(t, bob.withStatus(StatusWaiting))

	s, ok := reg.Get("m1")
	require.True(t, ok)
	seat1, seat2 := s.Seats()
	assert.Equal(t, "alice", seat1)
	assert.Equal(t, "bob", seat2)

	rec := store.record("m1")
	assert.Equal(t, "alice", rec.Player1ID)
	assert.Equal(t, "bob", rec.Player2ID)
	assert.Equal(t, MatchPending, rec.Status)
}

func TestJoinThirdPlayerIsRejected(t *testing.T) {
	store, reg, j := newJoinFixture()
	ctx := context.Background()

	done := goJoin(ctx, j, "m1", "alice", &recordingSink{})
	require.NoError(t, j.Join(ctx, "m1", "bob", &recordingSink{}))
	require.NoError(t, wait(t, done))
	before := store.record("m1")

	carol := &recordingSink{}
	err := j.Join(ctx, "m1", "carol", carol)
	assert.ErrorIs(t, err, ErrMatchFull)
	assert.Contains(t, err.Error(), "full or over")
	assert.Empty(t, carol.all())

	s, _ := reg.Get("m1")
	seat1, seat2 := s.Seats()
	assert.Equal(t, "alice", seat1)
	assert.Equal(t, "bob", seat2)
	assert.Equal(t, before, store.record("m1"))
}

func TestJoinIsIdempotent(t *testing.T) {
	store, reg, j := newJoinFixture()

	ctx, cancel := context.WithCancel(context.Background())
	first := &recordingSink{}
	done := goJoin(ctx, j, "m1", "alice", first)
	first.waitStatus(t, StatusWaiting)
	cancel()
	require.NoError(t, wait(t, done))

	ctx2, cancel2 := context.WithCancel(context.Background())
	second := &recordingSink{}
	done2 := goJoin(ctx2, j, "m1", "alice", second)
	second.waitStatus(t, StatusWaiting)
	cancel2()
	require.NoError(t, wait(t, done2))

	assert.Equal(t, 1, store.claimCount())
	s, _ := reg.Get("m1")
	seat1, seat2 := s.Seats()
	assert.Equal(t, "alice", seat1)
	assert.Empty(t, seat2)
}

func TestJoinConcurrentPlayersBothSeated(t *testing.T) {
	for i := 0; i < 20; i++ {
		_, reg, j := newJoinFixture()

		var wg sync.WaitGroup
		sinks := map[string]*recordingSink{"alice": {}, "bob": {}}
		errs := make(chan error, 2)
		for user, sink := range sinks {
			wg.Add(1)
			go func(user string, sink *recordingSink) {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				errs <- j.Join(ctx, "m1", user, sink)
			}(user, sink)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		for user, sink := range sinks {
			assert.Len(t, sink.withStatus(StatusReady), 1, "ready events for %s", user)
		}
		s, _ := reg.Get("m1")
		seat1, seat2 := s.Seats()
		assert.ElementsMatch(t, []string{"alice", "bob"}, []string{seat1, seat2})
	}
}

func TestJoinCancelledWhileWaiting(t *testing.T) {
	_, _, j := newJoinFixture()

	ctx, cancel := context.WithCancel(context.Background())
	sink := &recordingSink{}
	done := goJoin(ctx, j, "m1", "alice", sink)
	sink.waitStatus(t, StatusWaiting)
	cancel()

	assert.NoError(t, wait(t, done))
	assert.Empty(t, sink.withStatus(StatusReady))
}

func TestJoinErrors(t *testing.T) {
	store, reg, j := newJoinFixture()
	store.addUser("broke", "Broke", 5)
	store.addMatch(MatchRecord{ID: "done", Status: MatchDraw})
	ctx := context.Background()

	assert.ErrorIs(t, j.Join(ctx, "missing", "alice", &recordingSink{}), ErrNotFound)
	assert.ErrorIs(t, j.Join(ctx, "m1", "ghost", &recordingSink{}), ErrNotFound)
	assert.ErrorIs(t, j.Join(ctx, "m1", "broke", &recordingSink{}), ErrInsufficientFunds)
	assert.ErrorIs(t, j.Join(ctx, "done", "alice", &recordingSink{}), ErrMatchFull)
	assert.Equal(t, 0, store.claimCount())
	assert.Equal(t, 0, reg.Len(), "refused joins leave no state")
}

func TestJoinFullRecordCreatesNoState(t *testing.T) {
	store, reg, j := newJoinFixture()
	store.addMatch(MatchRecord{ID: "m2", Player1ID: "alice", Player2ID: "bob", BetAmount: 100, Status: MatchPending, Version: 2})

	err := j.Join(context.Background(), "m2", "carol", &recordingSink{})
	assert.ErrorIs(t, err, ErrMatchFull)
	assert.Equal(t, 0, reg.Len())

	require.NoError(t, j.Join(context.Background(), "m2", "alice", &recordingSink{}))
	assert.Equal(t, 1, reg.Len(), "a seated player rebuilds the state")
}

func TestJoinAbandonedWhileWaiting(t *testing.T) {
	_, reg, j := newJoinFixture()

	sink := &recordingSink{}
	done := goJoin(context.Background(), j, "m1", "alice", sink)
	sink.waitStatus(t, StatusWaiting)

	assert.Equal(t, []string{"m1"}, reg.SweepIdle(time.Now().Add(time.Hour)))
	assert.ErrorIs(t, wait(t, done), ErrMatchAbandoned)
}
