// Package domain defines the business logic for the matchday booking service.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Cursor models the pagination token for newest-first listings.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// ActivityRepository persists activity templates. Get returns nil, nil when missing.
type ActivityRepository interface {
	CreateActivity(ctx context.Context, activity Activity) error
	GetActivity(ctx context.Context, id string) (*Activity, error)
	ListActivities(ctx context.Context) ([]Activity, error)
	ListPublicActivities(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error)
}

// SessionRepository persists generated sessions.
type SessionRepository interface {
	// InsertSessions skips (activity_id, date) pairs that already exist and
	// returns the number of rows created.
	InsertSessions(ctx context.Context, sessions []ActivitySession) (int, error)
	GetSession(ctx context.Context, id string) (*ActivitySession, error)
	ListSessions(ctx context.Context, activityID string, from time.Time, limit int) ([]ActivitySession, error)
	CompleteSessions(ctx context.Context, endedBefore time.Time) (int, error)
	CleanupSessions(ctx context.Context, emptyBefore, participantsBefore time.Time) (CleanupReport, error)
	// FutureParticipations lists sessions of the activity dated at or after
	// from in which the user participates.
	FutureParticipations(ctx context.Context, activityID, userID string, from time.Time) ([]string, error)
}

// MatchRepository persists ad-hoc matches.
type MatchRepository interface {
	CreateMatch(ctx context.Context, match Match) error
	GetMatch(ctx context.Context, id string) (*Match, error)
	CompleteMatches(ctx context.Context, endedBefore time.Time) (int, error)
}

// SubscriptionRepository persists activity subscriptions.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, sub Subscription) error
	DeleteSubscription(ctx context.Context, activityID, userID string) (bool, error)
	ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
}

// Repository is everything the service needs from storage.
type Repository interface {
	ActivityRepository
	SessionRepository
	MatchRepository
	SubscriptionRepository
	RosterStore
}

// Option tunes the service and its participation engine.
type Option func(*options)

type options struct {
	now      func() time.Time
	location *time.Location
	policies map[RosterKind]RosterPolicy
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithLocation sets the timezone in which recurring wall-clock times are interpreted.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithPolicy overrides the registration rules for one roster kind.
func WithPolicy(kind RosterKind, policy RosterPolicy) Option {
	return func(o *options) {
		o.policies[kind] = policy
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now, location: time.UTC, policies: DefaultPolicies()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Service orchestrates catalog, scheduling, subscription and participation workflows.
type Service struct {
	*Engine
	repo     Repository
	now      func() time.Time
	location *time.Location
}

// NewService constructs a Service.
func NewService(repo Repository, opts ...Option) *Service {
	o := buildOptions(opts)
	return &Service{
		Engine:   &Engine{store: repo, policies: o.policies, now: o.now},
		repo:     repo,
		now:      o.now,
		location: o.location,
	}
}

// CreateActivityInput captures the payload from the API layer.
type CreateActivityInput struct {
	Name          string
	Sport         Sport
	MinPlayers    int
	MaxPlayers    int
	CreatedBy     string
	IsPublic      bool
	RecurringDays []time.Weekday
	RecurringType RecurringType
	StartTime     string
	EndTime       string
}

// CreateActivity validates and stores a new activity template.
func (s *Service) CreateActivity(ctx context.Context, input CreateActivityInput) (*Activity, error) {
	if err := requireUser(input.CreatedBy); err != nil {
		return nil, err
	}
	activity := Activity{
		ID:            uuid.NewString(),
		Name:          input.Name,
		Sport:         input.Sport,
		MinPlayers:    input.MinPlayers,
		MaxPlayers:    input.MaxPlayers,
		CreatedBy:     input.CreatedBy,
		IsPublic:      input.IsPublic,
		RecurringDays: input.RecurringDays,
		RecurringType: input.RecurringType,
		StartTime:     input.StartTime,
		EndTime:       input.EndTime,
		CreatedAt:     s.now().UTC(),
	}
	if err := activity.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateActivity(ctx, activity); err != nil {
		return nil, err
	}
	return &activity, nil
}

// GetActivity fetches by ID.
func (s *Service) GetActivity(ctx context.Context, id string) (*Activity, error) {
	activity, err := s.repo.GetActivity(ctx, id)
	if err != nil {
		return nil, err
	}
	if activity == nil {
		return nil, fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}
	return activity, nil
}

// ListPublicActivities pages through public activities, newest first.
func (s *Service) ListPublicActivities(ctx context.Context, cursor *Cursor, limit int) ([]Activity, *Cursor, error) {
	return s.repo.ListPublicActivities(ctx, cursor, clampLimit(limit))
}

// ListSessions lists an activity's sessions dated at or after from.
func (s *Service) ListSessions(ctx context.Context, activityID string, from time.Time, limit int) ([]ActivitySession, error) {
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	return s.repo.ListSessions(ctx, activityID, from, clampLimit(limit))
}

// GetSession fetches by ID.
func (s *Service) GetSession(ctx context.Context, id string) (*ActivitySession, error) {
	session, err := s.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return session, nil
}

// CreateMatchInput captures the payload for an ad-hoc match.
type CreateMatchInput struct {
	Title           string
	Sport           Sport
	Date            time.Time
	DurationMinutes int
	MaxPlayers      int
	CreatedBy       string
	Location        string
}

// CreateMatch validates and stores a new open match.
func (s *Service) CreateMatch(ctx context.Context, input CreateMatchInput) (*Match, error) {
	if err := requireUser(input.CreatedBy); err != nil {
		return nil, err
	}
	match := Match{
		ID:              uuid.NewString(),
		Title:           input.Title,
		Sport:           input.Sport,
		Date:            input.Date.UTC(),
		DurationMinutes: input.DurationMinutes,
		MaxPlayers:      input.MaxPlayers,
		Status:          MatchOpen,
		CreatedBy:       input.CreatedBy,
		Location:        input.Location,
		CreatedAt:       s.now().UTC(),
	}
	if err := match.Validate(); err != nil {
		return nil, err
	}
	if err := s.repo.CreateMatch(ctx, match); err != nil {
		return nil, err
	}
	return &match, nil
}

// GetMatch fetches by ID.
func (s *Service) GetMatch(ctx context.Context, id string) (*Match, error) {
	match, err := s.repo.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, fmt.Errorf("match %s: %w", id, ErrNotFound)
	}
	return match, nil
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	}
	return limit
}
