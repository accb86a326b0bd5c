package coordinator

import (
	"sync"
	"time"
)

// Registry maps match ids to their in-flight state. Its lock only protects
// insertion and removal; state fields are guarded by each state's own lock.
type Registry struct {
	mu      sync.Mutex
	matches map[string]*MatchState
}

func NewRegistry() *Registry {
	return &Registry{matches: make(map[string]*MatchState)}
}

// GetOrCreate returns the state for matchID, inserting a fresh one if absent.
// Concurrent callers for the same id always receive the same instance.
func (r *Registry) GetOrCreate(matchID string) *MatchState {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.matches[matchID]
	if !ok {
		s = newMatchState(matchID)
		r.matches[matchID] = s
	}
	return s
}

// Get returns the state for matchID if one is live.
func (r *Registry) Get(matchID string) (*MatchState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.matches[matchID]
	return s, ok
}

// Remove drops matchID. A later GetOrCreate starts from an empty state.
func (r *Registry) Remove(matchID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.matches, matchID)
}

// RemoveIf drops matchID only while it still maps to s.
func (r *Registry) RemoveIf(matchID string, s *MatchState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.matches[matchID]; ok && cur == s {
		delete(r.matches, matchID)
		return true
	}
	return false
}

// Len returns the number of live states.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

// SweepIdle abandons and removes every unresolved state with no activity
// since cutoff. It returns the ids it abandoned.
func (r *Registry) SweepIdle(cutoff time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var abandoned []string
	for id, s := range r.matches {
		s.mu.Lock()
		idle := s.touched.Before(cutoff) && !s.resolved()
		if idle && s.abandon() {
			abandoned = append(abandoned, id)
			delete(r.matches, id)
		}
		s.mu.Unlock()
	}
	return abandoned
}
