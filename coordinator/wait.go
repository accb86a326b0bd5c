package coordinator

import (
	"context"
	"time"
)

// waitFor suspends until cond holds, re-checking on every state change and
// every interval. tick runs on each timer fire; a tick error ends the wait as
// a disconnect. It returns false with a nil error when ctx is cancelled or the
// connection went away.
func (s *MatchState) waitFor(ctx context.Context, interval time.Duration, cond func() bool, tick func() error) (bool, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		ok := cond()
		abandoned := s.phase == PhaseAbandoned
		changed := s.changed
		s.mu.Unlock()

		if ok {
			return true, nil
		}
		if abandoned {
			return false, ErrMatchAbandoned
		}

		select {
		case <-ctx.Done():
			return false, nil
		case <-changed:
		case <-ticker.C:
			// a change that landed with the tick wins; re-check cond first
			select {
			case <-changed:
				continue
			default:
			}
			if tick != nil {
				if err := tick(); err != nil {
					return false, nil
				}
			}
		}
	}
}
