package api

import (
	"time"

	"example.com/matchday/internal/domain"
)

// CreateActivityRequest is the payload for POST /v1/activities.
type CreateActivityRequest struct {
	Name          string   `json:"name" validate:"required,max=120"`
	Sport         string   `json:"sport" validate:"required,oneof=football badminton volley pingpong rugby"`
	MinPlayers    int      `json:"min_players" validate:"gte=1"`
	MaxPlayers    int      `json:"max_players" validate:"gtefield=MinPlayers,lte=200"`
	IsPublic      bool     `json:"is_public"`
	RecurringDays []string `json:"recurring_days" validate:"min=1,max=7,dive,oneof=sunday monday tuesday wednesday thursday friday saturday"`
	RecurringType string   `json:"recurring_type" validate:"omitempty,oneof=weekly monthly"`
	StartTime     string   `json:"start_time" validate:"required,clock"`
	EndTime       string   `json:"end_time" validate:"required,clock"`
}

func (r CreateActivityRequest) input(createdBy string) (domain.CreateActivityInput, error) {
	days := make([]time.Weekday, 0, len(r.RecurringDays))
	for _, name := range r.RecurringDays {
		day, err := domain.ParseWeekday(name)
		if err != nil {
			return domain.CreateActivityInput{}, err
		}
		days = append(days, day)
	}
	recurring := domain.RecurringType(r.RecurringType)
	if recurring == "" {
		recurring = domain.RecurringWeekly
	}
	return domain.CreateActivityInput{
		Name:          r.Name,
		Sport:         domain.Sport(r.Sport),
		MinPlayers:    r.MinPlayers,
		MaxPlayers:    r.MaxPlayers,
		CreatedBy:     createdBy,
		IsPublic:      r.IsPublic,
		RecurringDays: days,
		RecurringType: recurring,
		StartTime:     r.StartTime,
		EndTime:       r.EndTime,
	}, nil
}

// ActivityView exposes an activity template.
type ActivityView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Sport         string    `json:"sport"`
	MinPlayers    int       `json:"min_players"`
	MaxPlayers    int       `json:"max_players"`
	CreatedBy     string    `json:"created_by"`
	IsPublic      bool      `json:"is_public"`
	RecurringDays []string  `json:"recurring_days"`
	RecurringType string    `json:"recurring_type"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
}

func toActivityView(a domain.Activity) ActivityView {
	days := make([]string, 0, len(a.RecurringDays))
	for _, d := range a.RecurringDays {
		days = append(days, domain.WeekdayName(d))
	}
	return ActivityView{
		ID:            a.ID,
		Name:          a.Name,
		Sport:         string(a.Sport),
		MinPlayers:    a.MinPlayers,
		MaxPlayers:    a.MaxPlayers,
		CreatedBy:     a.CreatedBy,
		IsPublic:      a.IsPublic,
		RecurringDays: days,
		RecurringType: string(a.RecurringType),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		CreatedAt:     a.CreatedAt,
	}
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// SessionView exposes a generated session.
type SessionView struct {
	ID          string    `json:"id"`
	ActivityID  string    `json:"activity_id"`
	Date        time.Time `json:"date"`
	EndsAt      time.Time `json:"ends_at"`
	Status      string    `json:"status"`
	MaxPlayers  int       `json:"max_players"`
	IsCancelled bool      `json:"is_cancelled"`
}

func toSessionView(s domain.ActivitySession) SessionView {
	return SessionView{
		ID:          s.ID,
		ActivityID:  s.ActivityID,
		Date:        s.Date,
		EndsAt:      s.EndsAt,
		Status:      string(s.Status),
		MaxPlayers:  s.MaxPlayers,
		IsCancelled: s.IsCancelled,
	}
}

// CreateMatchRequest is the payload for POST /v1/matches.
type CreateMatchRequest struct {
	Title           string    `json:"title" validate:"required,max=120"`
	Sport           string    `json:"sport" validate:"required,oneof=football badminton volley pingpong rugby"`
	Date            time.Time `json:"date" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"gte=1,lte=1440"`
	MaxPlayers      int       `json:"max_players" validate:"gte=1,lte=200"`
	Location        string    `json:"location" validate:"max=200"`
}

// MatchView exposes an ad-hoc match.
type MatchView struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Sport           string    `json:"sport"`
	Date            time.Time `json:"date"`
	DurationMinutes int       `json:"duration_minutes"`
	MaxPlayers      int       `json:"max_players"`
	Status          string    `json:"status"`
	CreatedBy       string    `json:"created_by"`
	Location        string    `json:"location,omitempty"`
}

func toMatchView(m domain.Match) MatchView {
	return MatchView{
		ID:              m.ID,
		Title:           m.Title,
		Sport:           string(m.Sport),
		Date:            m.Date,
		DurationMinutes: m.DurationMinutes,
		MaxPlayers:      m.MaxPlayers,
		Status:          string(m.Status),
		CreatedBy:       m.CreatedBy,
		Location:        m.Location,
	}
}

// ParticipantView exposes one roster member.
type ParticipantView struct {
	UserID   string    `json:"user_id"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

// StatsView exposes roster counts.
type StatsView struct {
	ConfirmedCount  int `json:"confirmed_count"`
	WaitingCount    int `json:"waiting_count"`
	InterestedCount int `json:"interested_count"`
	TotalCount      int `json:"total_count"`
	AvailableSpots  int `json:"available_spots"`
	MaxPlayers      int `json:"max_players"`
}

func toStatsView(s domain.Stats) StatsView {
	return StatsView(s)
}

// ParticipationResponse is returned by join, force-join and replace.
type ParticipationResponse struct {
	Participant ParticipantView `json:"participant"`
	Stats       StatsView       `json:"stats"`
}

func toParticipationResponse(res domain.ParticipationResult) ParticipationResponse {
	return ParticipationResponse{
		Participant: ParticipantView{
			UserID:   res.Participant.UserID,
			Status:   string(res.Participant.Status),
			JoinedAt: res.Participant.JoinedAt,
		},
		Stats: toStatsView(res.Stats),
	}
}

// ForceJoinRequest is the admin payload to add a user regardless of capacity.
type ForceJoinRequest struct {
	UserID string `json:"user_id" validate:"required,max=128"`
	Status string `json:"status" validate:"omitempty,oneof=confirmed waiting interested"`
}

// ReplaceRequest swaps one participant for another in place.
type ReplaceRequest struct {
	FromUserID string `json:"from_user_id" validate:"required,max=128"`
	ToUserID   string `json:"to_user_id" validate:"required,max=128,nefield=FromUserID"`
}

// GenerateRequest selects the generation horizon.
type GenerateRequest struct {
	WeeksAhead int `json:"weeks_ahead" validate:"omitempty,gte=1,lte=8"`
}

// GenerationResponse reports a generation run.
type GenerationResponse struct {
	Activities int                 `json:"activities"`
	Created    int                 `json:"created"`
	Failures   []GenerationFailure `json:"failures"`
}

// GenerationFailure names an activity whose sessions could not be generated.
type GenerationFailure struct {
	ActivityID string `json:"activity_id"`
	Error      string `json:"error"`
}

func toGenerationResponse(r domain.GenerationReport) GenerationResponse {
	out := GenerationResponse{Activities: r.Activities, Created: r.Created, Failures: make([]GenerationFailure, 0, len(r.Failures))}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, GenerationFailure{ActivityID: f.ActivityID, Error: f.Err.Error()})
	}
	return out
}

// CompleteRequest optionally overrides the completion buffer.
type CompleteRequest struct {
	BufferMinutes *int `json:"buffer_minutes" validate:"omitempty,gte=0"`
}

// CleanupResponse reports a retention sweep.
type CleanupResponse struct {
	EmptySessionsDeleted int `json:"empty_sessions_deleted"`
	ParticipantsDeleted  int `json:"participants_deleted"`
	SessionsDeleted      int `json:"sessions_deleted"`
}

// SubscriptionView exposes one subscription.
type SubscriptionView struct {
	ActivityID string    `json:"activity_id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// UnsubscribeResponse reports the cascade.
type UnsubscribeResponse struct {
	Removed               bool `json:"removed"`
	ParticipationsRemoved int  `json:"participations_removed"`
}
