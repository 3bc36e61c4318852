/*
scheduler.go - Rolling schedule generation

PURPOSE:
  Periodically regenerates and persists schedules for every legal entity so
  that the coming months are always available without a manual call.

DESIGN:
  - Runs a background goroutine with configurable interval
  - Each run covers [start of the current month, + HorizonMonths)
  - Generation is idempotent: schedules upsert on (legal entity, anchor)
  - One legal entity failing never stops the others; failures are logged,
    counted by the generator's metrics and published by its notifier

CONFIGURATION:
  - Interval: How often to run (default: 24 hours)
  - HorizonMonths: How far ahead to generate (default: 12)
  - Enabled: Whether scheduler is active (default: false)

USAGE:
  scheduler := NewScheduleScheduler(generator, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GenerateSchedules endpoint (manual generation)
  - schedule/generator.go: GenerateAndSave
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/schedule"
)

// ScheduleScheduler keeps generated schedules a horizon ahead of today.
type ScheduleScheduler struct {
	Generator     *schedule.Generator
	Logger        zerolog.Logger
	Interval      time.Duration
	HorizonMonths int
	Enabled       bool

	// Today is the clock; tests pin it.
	Today func() generic.Date

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// RunResult summarises one pass over the legal entities.
type RunResult struct {
	Range     generic.Range
	Generated int
	Failed    int
	Periods   int
}

// NewScheduleScheduler creates a new scheduler.
func NewScheduleScheduler(gen *schedule.Generator, logger zerolog.Logger) *ScheduleScheduler {
	return &ScheduleScheduler{
		Generator:     gen,
		Logger:        logger.With().Str("component", "scheduler").Logger(),
		Interval:      24 * time.Hour,
		HorizonMonths: 12,
		Today:         generic.Today,
	}
}

// Start begins the scheduler.
func (s *ScheduleScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info().Msg("disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.Logger.Info().Dur("interval", s.Interval).Int("horizon_months", s.HorizonMonths).Msg("started")
}

// Stop stops the scheduler and waits for a running pass to finish.
func (s *ScheduleScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Logger.Info().Msg("stopped")
	}
}

func (s *ScheduleScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.RunOnce(ctx, s.Today())

	for {
		select {
		case <-s.ticker.C:
			s.RunOnce(ctx, s.Today())
		case <-s.stop:
			return
		}
	}
}

// Horizon is the range one pass generates for the given day.
func (s *ScheduleScheduler) Horizon(today generic.Date) generic.Range {
	start := generic.StartOfMonth(today)
	months := s.HorizonMonths
	if months < 1 {
		months = 1
	}
	return generic.Range{Start: start, End: start.AddMonths(months).AddDays(-1)}
}

// RunOnce generates and saves the horizon for every legal entity.
func (s *ScheduleScheduler) RunOnce(ctx context.Context, today generic.Date) RunResult {
	res := RunResult{Range: s.Horizon(today)}

	entities, err := s.Generator.LegalEntities.ListLegalEntities(ctx)
	if err != nil {
		s.Logger.Error().Err(err).Msg("error listing legal entities")
		return res
	}

	for _, le := range entities {
		if ctx.Err() != nil {
			break
		}
		set, err := s.Generator.GenerateAndSave(ctx, schedule.GenerateInput{
			LegalEntityID: le.ID,
			Start:         res.Range.Start,
			End:           res.Range.End,
		})
		if err != nil {
			res.Failed++
			continue
		}
		res.Generated++
		res.Periods += len(set.Schedules)
	}

	s.Logger.Info().
		Str("range", res.Range.String()).
		Int("generated", res.Generated).
		Int("failed", res.Failed).
		Int("periods", res.Periods).
		Msg("completed")
	return res
}
