package domain

import (
	"fmt"
	"strings"
	"time"
)

// SessionStatus is the lifecycle state of a generated session.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCancelled SessionStatus = "cancelled"
	SessionCompleted SessionStatus = "completed"
)

// ActivitySession is one dated occurrence of an Activity.
type ActivitySession struct {
	ID          string
	ActivityID  string
	Date        time.Time
	EndsAt      time.Time
	Status      SessionStatus
	MaxPlayers  int
	IsCancelled bool
	CreatedAt   time.Time
}

// Roster exposes the session to the participation engine.
func (s ActivitySession) Roster() Roster {
	return Roster{
		Ref:        SessionRef(s.ID),
		MaxPlayers: s.MaxPlayers,
		StartsAt:   s.Date,
		Status:     string(s.Status),
		Cancelled:  s.IsCancelled || s.Status == SessionCancelled,
		Completed:  s.Status == SessionCompleted,
	}
}

// MatchStatus is the lifecycle state of an ad-hoc match.
type MatchStatus string

const (
	MatchOpen      MatchStatus = "open"
	MatchFull      MatchStatus = "full"
	MatchCancelled MatchStatus = "cancelled"
	MatchCompleted MatchStatus = "completed"
)

// Match is a single-occurrence game without a parent activity.
type Match struct {
	ID              string
	Title           string
	Sport           Sport
	Date            time.Time
	DurationMinutes int
	MaxPlayers      int
	Status          MatchStatus
	CreatedBy       string
	Location        string
	CreatedAt       time.Time
}

// EndsAt is the scheduled end of the match.
func (m Match) EndsAt() time.Time {
	return m.Date.Add(time.Duration(m.DurationMinutes) * time.Minute)
}

// Validate checks the structural invariants of a match.
func (m Match) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidArgument)
	}
	if !m.Sport.Valid() {
		return fmt.Errorf("%w: unknown sport %q", ErrInvalidArgument, m.Sport)
	}
	if m.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidArgument)
	}
	if m.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}
	if m.MaxPlayers < 1 {
		return fmt.Errorf("%w: max players must be positive", ErrInvalidArgument)
	}
	return nil
}

// Roster exposes the match to the participation engine.
func (m Match) Roster() Roster {
	return Roster{
		Ref:        MatchRef(m.ID),
		MaxPlayers: m.MaxPlayers,
		StartsAt:   m.Date,
		Status:     string(m.Status),
		Cancelled:  m.Status == MatchCancelled,
		Completed:  m.Status == MatchCompleted,
	}
}

// Subscription is a user's standing interest in an activity.
type Subscription struct {
	ActivityID string
	UserID     string
	CreatedAt  time.Time
}
