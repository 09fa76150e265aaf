// Package scheduler runs the periodic session maintenance sweeps.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/logging"
	"example.com/matchday/internal/observability"
)

// Maintainer is the slice of the domain service the scheduler drives.
type Maintainer interface {
	GenerateUpcomingSessions(ctx context.Context, activityID string, weeksAhead int) (domain.GenerationReport, error)
	UpdateCompletedSessions(ctx context.Context, buffer time.Duration) (int, error)
	CleanupOldSessions(ctx context.Context, policy domain.RetentionPolicy) (domain.CleanupReport, error)
}

// Config tunes one maintenance pass.
type Config struct {
	Interval         time.Duration
	WeeksAhead       int
	CompletionBuffer time.Duration
	Retention        domain.RetentionPolicy
}

// Report aggregates the outcome of one pass.
type Report struct {
	Generation domain.GenerationReport
	Completed  int
	Cleanup    domain.CleanupReport
}

// Scheduler generates upcoming sessions, completes finished ones and applies
// retention, once per interval.
type Scheduler struct {
	svc Maintainer
	cfg Config
	log zerolog.Logger
}

// New constructs a Scheduler.
func New(svc Maintainer, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.WeeksAhead == 0 {
		cfg.WeeksAhead = domain.DefaultHorizonWeeks
	}
	return &Scheduler{svc: svc, cfg: cfg, log: logging.WithComponent("scheduler")}
}

// RunOnce performs generate, complete and cleanup in that order. A failing
// step does not prevent the later ones; their errors are joined.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	var (
		report Report
		errs   []error
	)

	gen, err := s.svc.GenerateUpcomingSessions(ctx, "", s.cfg.WeeksAhead)
	if err != nil {
		errs = append(errs, err)
	}
	report.Generation = gen
	observability.RecordGeneration(gen.Created, len(gen.Failures))
	for _, f := range gen.Failures {
		s.log.Warn().Str("activity_id", f.ActivityID).Err(f.Err).Msg("session generation failed for activity")
	}

	completed, err := s.svc.UpdateCompletedSessions(ctx, s.cfg.CompletionBuffer)
	if err != nil {
		errs = append(errs, err)
	}
	report.Completed = completed
	observability.RecordSweep("complete", completed)

	cleanup, err := s.svc.CleanupOldSessions(ctx, s.cfg.Retention)
	if err != nil {
		errs = append(errs, err)
	}
	report.Cleanup = cleanup
	observability.RecordSweep("cleanup_empty_sessions", cleanup.EmptySessionsDeleted)
	observability.RecordSweep("cleanup_participants", cleanup.ParticipantsDeleted)
	observability.RecordSweep("cleanup_sessions", cleanup.SessionsDeleted)

	return report, errors.Join(errs...)
}

// Serve runs a pass immediately and then every interval until ctx is cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		report, err := s.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.log.Error().Err(err).Msg("maintenance pass failed")
		}
		s.log.Info().
			Int("activities", report.Generation.Activities).
			Int("sessions_created", report.Generation.Created).
			Int("generation_failures", len(report.Generation.Failures)).
			Int("sessions_completed", report.Completed).
			Int("empty_sessions_deleted", report.Cleanup.EmptySessionsDeleted).
			Int("participants_deleted", report.Cleanup.ParticipantsDeleted).
			Int("sessions_deleted", report.Cleanup.SessionsDeleted).
			Msg("maintenance pass finished")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) String() string { return "session-scheduler" }
