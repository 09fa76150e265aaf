package domain

import (
	"fmt"
	"strings"
	"time"
)

// Sport enumerates the supported disciplines.
type Sport string

const (
	SportFootball  Sport = "football"
	SportBadminton Sport = "badminton"
	SportVolley    Sport = "volley"
	SportPingpong  Sport = "pingpong"
	SportRugby     Sport = "rugby"
)

// Valid reports whether s is a known sport.
func (s Sport) Valid() bool {
	switch s {
	case SportFootball, SportBadminton, SportVolley, SportPingpong, SportRugby:
		return true
	}
	return false
}

// RecurringType selects how an activity repeats.
type RecurringType string

const (
	RecurringWeekly  RecurringType = "weekly"
	RecurringMonthly RecurringType = "monthly"
)

// Activity is a recurring template from which dated sessions are generated.
type Activity struct {
	ID            string
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
	CreatedAt     time.Time
}

// Actor is the identity performing an operation, as supplied by the auth layer.
type Actor struct {
	UserID string
	Admin  bool
}

// ManageableBy reports whether the actor owns the activity or is an admin.
func (a Activity) ManageableBy(actor Actor) bool {
	return actor.Admin || (actor.UserID != "" && actor.UserID == a.CreatedBy)
}

// Validate checks the structural invariants of the template.
func (a Activity) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	if !a.Sport.Valid() {
		return fmt.Errorf("%w: unknown sport %q", ErrInvalidArgument, a.Sport)
	}
	if a.MinPlayers < 1 || a.MinPlayers > a.MaxPlayers {
		return fmt.Errorf("%w: players must satisfy 1 <= min (%d) <= max (%d)", ErrInvalidArgument, a.MinPlayers, a.MaxPlayers)
	}
	if len(a.RecurringDays) == 0 {
		return fmt.Errorf("%w: recurring days must not be empty", ErrInvalidArgument)
	}
	for _, day := range a.RecurringDays {
		if day < time.Sunday || day > time.Saturday {
			return fmt.Errorf("%w: invalid weekday %d", ErrInvalidArgument, day)
		}
	}
	if a.RecurringType != RecurringWeekly && a.RecurringType != RecurringMonthly {
		return fmt.Errorf("%w: unknown recurring type %q", ErrInvalidArgument, a.RecurringType)
	}
	if _, err := a.Duration(); err != nil {
		return err
	}
	return nil
}

// Duration is the length of one occurrence. An end time earlier than the
// start time means the session crosses midnight.
func (a Activity) Duration() (time.Duration, error) {
	sh, sm, err := ParseClock(a.StartTime)
	if err != nil {
		return 0, err
	}
	eh, em, err := ParseClock(a.EndTime)
	if err != nil {
		return 0, err
	}
	start := time.Duration(sh)*time.Hour + time.Duration(sm)*time.Minute
	end := time.Duration(eh)*time.Hour + time.Duration(em)*time.Minute
	if end == start {
		return 0, fmt.Errorf("%w: start and end time are equal", ErrInvalidArgument)
	}
	if end < start {
		end += 24 * time.Hour
	}
	return end - start, nil
}

// ParseClock parses an "HH:MM" wall-clock value.
func ParseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidArgument, value)
	}
	return t.Hour(), t.Minute(), nil
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// ParseWeekday maps a lowercase English weekday name to time.Weekday.
func ParseWeekday(name string) (time.Weekday, error) {
	day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidArgument, name)
	}
	return day, nil
}

// WeekdayName is the inverse of ParseWeekday.
func WeekdayName(day time.Weekday) string {
	return strings.ToLower(day.String())
}
