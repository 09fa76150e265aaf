package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"example.com/matchday/internal/events"
)

// Generation horizon bounds, in weeks.
const (
	MinHorizonWeeks     = 1
	MaxHorizonWeeks     = 8
	DefaultHorizonWeeks = 2
)

// Occurrence is one computed slot of a recurring activity.
type Occurrence struct {
	StartsAt time.Time
	EndsAt   time.Time
}

// UpcomingOccurrences expands the activity over the calendar dates from
// from's date through from + 7*weeksAhead days, interpreted in loc. Weekly
// activities match on weekday; monthly activities match the day-of-month of
// CreatedAt and skip months that lack it. Only slots strictly after from are
// returned.
func UpcomingOccurrences(a Activity, from time.Time, weeksAhead int, loc *time.Location) ([]Occurrence, error) {
	if loc == nil {
		loc = time.UTC
	}
	hour, minute, err := ParseClock(a.StartTime)
	if err != nil {
		return nil, err
	}
	duration, err := a.Duration()
	if err != nil {
		return nil, err
	}

	days := make(map[time.Weekday]bool, len(a.RecurringDays))
	for _, d := range a.RecurringDays {
		days[d] = true
	}
	anchor := a.CreatedAt.In(loc).Day()

	local := from.In(loc)
	first := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	last := first.AddDate(0, 0, 7*weeksAhead)

	var out []Occurrence
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		switch a.RecurringType {
		case RecurringMonthly:
			if day.Day() != anchor {
				continue
			}
		default:
			if !days[day.Weekday()] {
				continue
			}
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
		if !start.After(from) {
			continue
		}
		out = append(out, Occurrence{StartsAt: start.UTC(), EndsAt: start.Add(duration).UTC()})
	}
	return out, nil
}

// GenerationFailure records an activity whose sessions could not be generated.
type GenerationFailure struct {
	ActivityID string
	Err        error
}

// GenerationReport aggregates one generation run.
type GenerationReport struct {
	Activities int
	Created    int
	Failures   []GenerationFailure
}

// Err joins the per-activity failures, or returns nil when there are none.
func (r GenerationReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for _, f := range r.Failures {
		errs = append(errs, fmt.Errorf("activity %s: %w", f.ActivityID, f.Err))
	}
	return errors.Join(errs...)
}

// GenerateUpcomingSessions materialises sessions for one activity, or for all
// activities when activityID is empty. Existing (activity, date) pairs are
// left alone. A failing activity is reported and never aborts the batch.
func (s *Service) GenerateUpcomingSessions(ctx context.Context, activityID string, weeksAhead int) (GenerationReport, error) {
	if weeksAhead < MinHorizonWeeks || weeksAhead > MaxHorizonWeeks {
		return GenerationReport{}, fmt.Errorf("weeks ahead %d: %w", weeksAhead, ErrInvalidHorizon)
	}

	var activities []Activity
	if activityID != "" {
		activity, err := s.GetActivity(ctx, activityID)
		if err != nil {
			return GenerationReport{}, err
		}
		activities = []Activity{*activity}
	} else {
		all, err := s.repo.ListActivities(ctx)
		if err != nil {
			return GenerationReport{}, err
		}
		activities = all
	}

	now := s.now()
	report := GenerationReport{Activities: len(activities)}
	for _, activity := range activities {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		created, err := s.generateFor(ctx, activity, now, weeksAhead)
		if err != nil {
			report.Failures = append(report.Failures, GenerationFailure{ActivityID: activity.ID, Err: err})
			continue
		}
		report.Created += created
	}
	return report, nil
}

func (s *Service) generateFor(ctx context.Context, activity Activity, now time.Time, weeksAhead int) (int, error) {
	if err := activity.Validate(); err != nil {
		return 0, err
	}
	occurrences, err := UpcomingOccurrences(activity, now, weeksAhead, s.location)
	if err != nil {
		return 0, err
	}
	if len(occurrences) == 0 {
		return 0, nil
	}

	sessions := make([]ActivitySession, 0, len(occurrences))
	for _, o := range occurrences {
		sessions = append(sessions, ActivitySession{
			ID:         uuid.NewString(),
			ActivityID: activity.ID,
			Date:       o.StartsAt,
			EndsAt:     o.EndsAt,
			Status:     SessionActive,
			MaxPlayers: activity.MaxPlayers,
			CreatedAt:  now.UTC(),
		})
	}
	return s.repo.InsertSessions(ctx, sessions)
}

// UpdateCompletedSessions marks active sessions and open or full matches as
// completed once their end plus buffer has passed.
func (s *Service) UpdateCompletedSessions(ctx context.Context, buffer time.Duration) (int, error) {
	if buffer < 0 {
		return 0, fmt.Errorf("%w: completion buffer must not be negative", ErrInvalidArgument)
	}
	cutoff := s.now().Add(-buffer)

	sessions, err := s.repo.CompleteSessions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("complete sessions: %w", err)
	}
	matches, err := s.repo.CompleteMatches(ctx, cutoff)
	if err != nil {
		return sessions, fmt.Errorf("complete matches: %w", err)
	}
	return sessions + matches, nil
}

// RetentionPolicy controls how long past sessions are kept.
type RetentionPolicy struct {
	// EmptySessionRetention keeps sessions without participants this long.
	EmptySessionRetention time.Duration
	// ParticipantRetention keeps participant history this long.
	ParticipantRetention time.Duration
}

// Validate enforces positive windows with participant history kept at least
// as long as empty sessions.
func (p RetentionPolicy) Validate() error {
	if p.EmptySessionRetention <= 0 || p.ParticipantRetention <= 0 {
		return fmt.Errorf("%w: retention windows must be positive", ErrInvalidArgument)
	}
	if p.ParticipantRetention < p.EmptySessionRetention {
		return fmt.Errorf("%w: participant retention must not be shorter than empty session retention", ErrInvalidArgument)
	}
	return nil
}

// CleanupReport counts rows removed by a retention sweep.
type CleanupReport struct {
	EmptySessionsDeleted int
	ParticipantsDeleted  int
	SessionsDeleted      int
}

// CleanupOldSessions applies the retention policy.
func (s *Service) CleanupOldSessions(ctx context.Context, policy RetentionPolicy) (CleanupReport, error) {
	if err := policy.Validate(); err != nil {
		return CleanupReport{}, err
	}
	now := s.now()
	return s.repo.CleanupSessions(ctx, now.Add(-policy.EmptySessionRetention), now.Add(-policy.ParticipantRetention))
}

// CancelSession cancels a session on behalf of its activity owner or an admin.
// Cancelling an already cancelled session is a no-op.
func (s *Service) CancelSession(ctx context.Context, actor Actor, sessionID string) (*ActivitySession, error) {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	activity, err := s.GetActivity(ctx, session.ActivityID)
	if err != nil {
		return nil, err
	}
	if !activity.ManageableBy(actor) {
		return nil, fmt.Errorf("cancel session %s: %w", sessionID, ErrForbidden)
	}

	err = s.repo.WithRoster(ctx, SessionRef(sessionID), func(ctx context.Context, tx RosterTx) error {
		roster := tx.Roster()
		if roster.Cancelled {
			return nil
		}
		if roster.Completed {
			return fmt.Errorf("session %s: %w", sessionID, ErrSessionCompleted)
		}
		if err := tx.SetStatus(ctx, string(SessionCancelled)); err != nil {
			return err
		}

		affected := make([]string, 0, len(tx.Participants()))
		for _, p := range tx.Participants() {
			affected = append(affected, p.UserID)
		}
		return tx.Emit(ctx, events.Event{
			Type:          events.TypeSessionCancelled,
			AggregateType: roster.Ref.AggregateType(),
			AggregateID:   sessionID,
			Payload: events.SessionCancelled{
				SessionID:       sessionID,
				ActivityID:      session.ActivityID,
				Date:            session.Date,
				CancelledBy:     actor.UserID,
				AffectedUserIDs: affected,
				OccurredAt:      s.now().UTC(),
				Version:         events.SchemaVersion,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetSession(ctx, sessionID)
}
