// Package events defines the payloads recorded in the outbox and published to Kafka.
package events

import (
	"fmt"
	"time"
)

// Event types routed through the outbox.
const (
	TypeParticipantJoined   = "participant.joined"
	TypeParticipantLeft     = "participant.left"
	TypeParticipantPromoted = "participant.promoted"
	TypeParticipantReplaced = "participant.replaced"
	TypeSessionCancelled    = "session.cancelled"
)

// SchemaVersion is stamped on every payload.
const SchemaVersion = "v1"

// Event is a domain event written in the same transaction as the change it describes.
type Event struct {
	Type          string
	AggregateType string
	AggregateID   string
	Payload       any
}

// ParticipantChanged describes any change to a roster's participant set.
type ParticipantChanged struct {
	RosterKind     string    `json:"roster_kind"`
	RosterID       string    `json:"roster_id"`
	ParticipantID  string    `json:"participant_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	ReplacedUserID string    `json:"replaced_user_id,omitempty"`
	Admin          bool      `json:"admin"`
	OccurredAt     time.Time `json:"occurred_at"`
	Version        string    `json:"version"`
}

// SessionCancelled is emitted when an owner or admin cancels a session.
type SessionCancelled struct {
	SessionID       string    `json:"session_id"`
	ActivityID      string    `json:"activity_id"`
	Date            time.Time `json:"date"`
	CancelledBy     string    `json:"cancelled_by"`
	AffectedUserIDs []string  `json:"affected_user_ids"`
	OccurredAt      time.Time `json:"occurred_at"`
	Version         string    `json:"version"`
}

// DedupeKey identifies the logical change an event describes, so a replayed
// outbox row can be recognised downstream.
func (e Event) DedupeKey() string {
	switch p := e.Payload.(type) {
	case ParticipantChanged:
		return fmt.Sprintf("%s:%s:%s:%d", e.Type, p.RosterID, p.ParticipantID, p.OccurredAt.UnixNano())
	case SessionCancelled:
		return fmt.Sprintf("%s:%s", e.Type, p.SessionID)
	}
	return fmt.Sprintf("%s:%s", e.Type, e.AggregateID)
}
