package domain

import (
	"context"
	"time"

	"example.com/matchday/internal/events"
)

// RosterKind distinguishes the two schemas that carry participant lists.
type RosterKind string

const (
	RosterSession RosterKind = "session"
	RosterMatch   RosterKind = "match"
)

// RosterRef identifies a session or a match.
type RosterRef struct {
	Kind RosterKind
	ID   string
}

// SessionRef references an activity session.
func SessionRef(id string) RosterRef {
	return RosterRef{Kind: RosterSession, ID: id}
}

// MatchRef references an ad-hoc match.
func MatchRef(id string) RosterRef {
	return RosterRef{Kind: RosterMatch, ID: id}
}

func (r RosterRef) String() string {
	return string(r.Kind) + " " + r.ID
}

// AggregateType is the outbox aggregate name for the roster kind.
func (r RosterRef) AggregateType() string {
	if r.Kind == RosterMatch {
		return "match"
	}
	return "activity_session"
}

// Roster is the view of a session or match the participation engine works on.
type Roster struct {
	Ref        RosterRef
	MaxPlayers int
	StartsAt   time.Time
	Status     string
	Cancelled  bool
	Completed  bool
}

// RosterPolicy holds the per-kind registration rules.
type RosterPolicy struct {
	// Cutoff closes registration this long before StartsAt.
	Cutoff time.Duration
	// TracksFullness keeps the roster status in sync with open/full.
	TracksFullness bool
}

// DefaultPolicies returns the registration rules for both roster kinds.
func DefaultPolicies() map[RosterKind]RosterPolicy {
	return map[RosterKind]RosterPolicy{
		RosterSession: {Cutoff: 0},
		RosterMatch:   {Cutoff: 15 * time.Minute, TracksFullness: true},
	}
}

// ParticipantStatus is the state of a user within one roster.
type ParticipantStatus string

const (
	ParticipantInterested ParticipantStatus = "interested"
	ParticipantConfirmed  ParticipantStatus = "confirmed"
	ParticipantWaiting    ParticipantStatus = "waiting"
)

// Valid reports whether s is a known participant status.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantInterested, ParticipantConfirmed, ParticipantWaiting:
		return true
	}
	return false
}

// Participant is a user's membership in a session (ActivityParticipant) or a
// match (MatchPlayer).
type Participant struct {
	ID       string
	Kind     RosterKind
	RosterID string
	UserID   string
	Status   ParticipantStatus
	JoinedAt time.Time
}

// Stats summarises a roster's participant set.
type Stats struct {
	ConfirmedCount  int
	WaitingCount    int
	InterestedCount int
	TotalCount      int
	AvailableSpots  int
	MaxPlayers      int
}

// ComputeStats derives Stats from a participant list.
func ComputeStats(maxPlayers int, participants []Participant) Stats {
	stats := Stats{MaxPlayers: maxPlayers, TotalCount: len(participants)}
	for _, p := range participants {
		switch p.Status {
		case ParticipantConfirmed:
			stats.ConfirmedCount++
		case ParticipantWaiting:
			stats.WaitingCount++
		case ParticipantInterested:
			stats.InterestedCount++
		}
	}
	if spots := maxPlayers - stats.ConfirmedCount; spots > 0 {
		stats.AvailableSpots = spots
	}
	return stats
}

// RosterTx is a transaction holding the exclusive lock on one roster.
// Participants are ordered by join order (joined_at, then insertion sequence).
type RosterTx interface {
	Roster() Roster
	Participants() []Participant
	InsertParticipant(ctx context.Context, p Participant) error
	UpdateParticipantStatus(ctx context.Context, participantID string, status ParticipantStatus) error
	ReassignParticipant(ctx context.Context, participantID, userID string) error
	DeleteParticipant(ctx context.Context, participantID string) error
	SetStatus(ctx context.Context, status string) error
	Emit(ctx context.Context, event events.Event) error
}

// RosterStore serialises mutations per roster. Different rosters never contend.
type RosterStore interface {
	// WithRoster locks the roster, runs fn and commits only if fn returns nil.
	WithRoster(ctx context.Context, ref RosterRef, fn func(context.Context, RosterTx) error) error
	// Snapshot reads the roster and its participants without locking.
	Snapshot(ctx context.Context, ref RosterRef) (Roster, []Participant, error)
}
