package consumer

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/matchday/internal/events"
)

// Notification is a user-facing message derived from a roster event.
type Notification struct {
	UserID     string
	Kind       string
	RosterKind string
	RosterID   string
	Message    string
}

// Notifications derives the notifications an event produces. Joins and
// voluntary leaves produce none.
func Notifications(eventType string, payload []byte) ([]Notification, error) {
	switch eventType {
	case events.TypeParticipantPromoted:
		var p events.ParticipantChanged
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return []Notification{{
			UserID:     p.UserID,
			Kind:       "promoted",
			RosterKind: p.RosterKind,
			RosterID:   p.RosterID,
			Message:    fmt.Sprintf("A spot opened up: you are now confirmed for %s %s.", p.RosterKind, p.RosterID),
		}}, nil

	case events.TypeParticipantReplaced:
		var p events.ParticipantChanged
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		out := []Notification{{
			UserID:     p.UserID,
			Kind:       "replaced_in",
			RosterKind: p.RosterKind,
			RosterID:   p.RosterID,
			Message:    fmt.Sprintf("An organiser added you to %s %s as %s.", p.RosterKind, p.RosterID, p.Status),
		}}
		if p.ReplacedUserID != "" {
			out = append(out, Notification{
				UserID:     p.ReplacedUserID,
				Kind:       "replaced_out",
				RosterKind: p.RosterKind,
				RosterID:   p.RosterID,
				Message:    fmt.Sprintf("An organiser gave your place in %s %s to another player.", p.RosterKind, p.RosterID),
			})
		}
		return out, nil

	case events.TypeSessionCancelled:
		var p events.SessionCancelled
		if err := json.Unmarshal(payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		out := make([]Notification, 0, len(p.AffectedUserIDs))
		for _, userID := range p.AffectedUserIDs {
			out = append(out, Notification{
				UserID:     userID,
				Kind:       "cancelled",
				RosterKind: "session",
				RosterID:   p.SessionID,
				Message:    fmt.Sprintf("The session on %s was cancelled.", p.Date.Format("Mon 2 Jan 15:04")),
			})
		}
		return out, nil
	}
	return nil, nil
}

// NotificationHandler appends every consumed event to roster_event_log and
// records the notifications it produces in the same transaction. Redelivered
// records are ignored.
type NotificationHandler struct {
	pool *pgxpool.Pool
}

// NewNotificationHandler constructs a handler backed by the provided pool.
func NewNotificationHandler(pool *pgxpool.Pool) *NotificationHandler {
	return &NotificationHandler{pool: pool}
}

// Handle stores the event and its notifications.
func (h *NotificationHandler) Handle(ctx context.Context, msg Message) error {
	notes, err := Notifications(msg.EventType, msg.Payload)
	if err != nil {
		return err
	}

	tx, err := h.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`INSERT INTO roster_event_log (event_type, schema_id, schema_subject, topic, partition, record_offset, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.EventType,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.Payload,
		msg.Timestamp,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return tx.Commit(ctx)
	}

	for _, n := range notes {
		if _, err := tx.Exec(ctx,
			`INSERT INTO notifications (user_id, kind, roster_kind, roster_id, message) VALUES ($1,$2,$3,$4,$5)`,
			n.UserID, n.Kind, n.RosterKind, n.RosterID, n.Message,
		); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	recordNotifications(msg, len(notes))
	return nil
}
