package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"

	"rps-wager-system/coordinator"
	"rps-wager-system/metrics"
)

// MatchJanitor evicts matches nobody finished and retries settlements whose
// commit failed.
type MatchJanitor struct {
	registry     *coordinator.Registry
	store        coordinator.Store
	moves        *coordinator.MoveCoordinator
	abandonAfter time.Duration
	interval     time.Duration
	now          func() time.Time
}

func NewMatchJanitor(registry *coordinator.Registry, store coordinator.Store, moves *coordinator.MoveCoordinator, abandonAfter, interval time.Duration) *MatchJanitor {
	if abandonAfter <= 0 {
		abandonAfter = 10 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &MatchJanitor{
		registry:     registry,
		store:        store,
		moves:        moves,
		abandonAfter: abandonAfter,
		interval:     interval,
		now:          time.Now,
	}
}

// Sweep runs one janitor pass and reports how many matches it abandoned and
// how many parked settlements it committed.
func (j *MatchJanitor) Sweep(ctx context.Context) (abandoned, settled int) {
	ids := j.registry.SweepIdle(j.now().Add(-j.abandonAfter))
	for _, id := range ids {
		if err := j.store.AbandonMatch(ctx, id); err != nil {
			log.Error().Err(err).Str("match_id", id).Msg("[JANITOR] failed to persist abandonment")
			continue
		}
		log.Info().Str("match_id", id).Msg("🧹 [JANITOR] match abandoned")
	}
	metrics.MatchesAbandoned.Add(float64(len(ids)))
	metrics.ActiveMatches.Set(float64(j.registry.Len()))

	if pending := j.moves.Unsettled(); pending > 0 {
		settled = j.moves.RetryUnsettled(ctx)
		log.Info().Int("parked", pending).Int("settled", settled).Msg("[JANITOR] settlement retry pass")
	}
	return len(ids), settled
}

// Start schedules Sweep every interval until ctx is done.
func (j *MatchJanitor) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create janitor scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(j.interval),
		gocron.NewTask(func() { j.Sweep(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule janitor: %w", err)
	}
	sched.Start()

	go func() {
		<-ctx.Done()
		if err := sched.Shutdown(); err != nil {
			log.Error().Err(err).Msg("[JANITOR] scheduler shutdown failed")
		}
		log.Info().Msg("[JANITOR] stopped")
	}()

	log.Info().Dur("interval", j.interval).Dur("abandon_after", j.abandonAfter).Msg("✅ [JANITOR] running")
	return nil
}
