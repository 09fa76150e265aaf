// Package postgres implements the domain repositories on top of pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/events"
)

// Repository provides Postgres-backed persistence for activities, sessions,
// matches, subscriptions and outbox events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const activityColumns = `activity_id, name, sport, min_players, max_players, created_by, is_public, recurring_days, recurring_type, start_time, end_time, created_at`

// CreateActivity inserts a new activity template.
func (r *Repository) CreateActivity(ctx context.Context, a domain.Activity) error {
	days := make([]int16, 0, len(a.RecurringDays))
	for _, d := range a.RecurringDays {
		days = append(days, int16(d))
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO activities (`+activityColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, a.Name, string(a.Sport), a.MinPlayers, a.MaxPlayers, a.CreatedBy, a.IsPublic,
		days, string(a.RecurringType), a.StartTime, a.EndTime, a.CreatedAt,
	)
	return err
}

// GetActivity returns nil, nil when the activity does not exist.
func (r *Repository) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+activityColumns+` FROM activities WHERE activity_id = $1`, id)
	a, err := scanActivity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// ListActivities returns every activity ordered by creation.
func (r *Repository) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+activityColumns+` FROM activities ORDER BY created_at, activity_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListPublicActivities pages public activities by (created_at, id) descending.
func (r *Repository) ListPublicActivities(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	args := []interface{}{limit}
	query := `SELECT ` + activityColumns + ` FROM activities WHERE is_public`
	if cursor != nil {
		query += ` AND (created_at, activity_id) < ($2, $3)`
		args = append(args, cursor.CreatedAt, cursor.ID)
	}
	query += ` ORDER BY created_at DESC, activity_id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Activity, 0, limit)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a            domain.Activity
		sport, rtype string
		days         []int16
	)
	if err := row.Scan(&a.ID, &a.Name, &sport, &a.MinPlayers, &a.MaxPlayers, &a.CreatedBy, &a.IsPublic, &days, &rtype, &a.StartTime, &a.EndTime, &a.CreatedAt); err != nil {
		return domain.Activity{}, err
	}
	a.Sport = domain.Sport(sport)
	a.RecurringType = domain.RecurringType(rtype)
	for _, d := range days {
		a.RecurringDays = append(a.RecurringDays, time.Weekday(d))
	}
	return a, nil
}

const matchColumns = `match_id, title, sport, date, duration_minutes, max_players, status, created_by, location, created_at`

// CreateMatch inserts a new match.
func (r *Repository) CreateMatch(ctx context.Context, m domain.Match) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO matches (`+matchColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		m.ID, m.Title, string(m.Sport), m.Date, m.DurationMinutes, m.MaxPlayers, string(m.Status), m.CreatedBy, m.Location, m.CreatedAt,
	)
	return err
}

// GetMatch returns nil, nil when the match does not exist.
func (r *Repository) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	m, err := scanMatch(r.pool.QueryRow(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// CompleteMatches marks open or full matches that ended before the cutoff.
func (r *Repository) CompleteMatches(ctx context.Context, endedBefore time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE matches SET status = 'completed'
          WHERE status IN ('open', 'full')
            AND date + make_interval(mins => duration_minutes) < $1`,
		endedBefore,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanMatch(row pgx.Row) (domain.Match, error) {
	var (
		m             domain.Match
		sport, status string
	)
	if err := row.Scan(&m.ID, &m.Title, &sport, &m.Date, &m.DurationMinutes, &m.MaxPlayers, &status, &m.CreatedBy, &m.Location, &m.CreatedAt); err != nil {
		return domain.Match{}, err
	}
	m.Sport = domain.Sport(sport)
	m.Status = domain.MatchStatus(status)
	return m, nil
}

// CreateSubscription fails with ErrAlreadySubscribed on duplicates.
func (r *Repository) CreateSubscription(ctx context.Context, sub domain.Subscription) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO activity_subscriptions (activity_id, user_id, created_at) VALUES ($1,$2,$3)`,
		sub.ActivityID, sub.UserID, sub.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("activity %s user %s: %w", sub.ActivityID, sub.UserID, domain.ErrAlreadySubscribed)
	}
	return err
}

// DeleteSubscription reports whether a row was removed.
func (r *Repository) DeleteSubscription(ctx context.Context, activityID, userID string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM activity_subscriptions WHERE activity_id = $1 AND user_id = $2`,
		activityID, userID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListSubscriptions returns the user's subscriptions, newest first.
func (r *Repository) ListSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT activity_id, user_id, created_at FROM activity_subscriptions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Subscription, 0)
	for rows.Next() {
		var sub domain.Subscription
		if err := rows.Scan(&sub.ActivityID, &sub.UserID, &sub.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func insertOutbox(ctx context.Context, tx pgx.Tx, evt events.Event) error {
	meta, ok := eventCatalog[evt.Type]
	if !ok {
		return fmt.Errorf("unknown event type: %s", evt.Type)
	}
	body, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err = tx.Exec(ctx, stmt,
		evt.AggregateType,
		evt.AggregateID,
		evt.Type,
		meta.Topic,
		meta.SchemaSubject,
		meta.PartitionKeyFn(evt),
		body,
		evt.DedupeKey(),
	)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// EventMetadata describes how to route an outbox event.
type EventMetadata struct {
	Topic          string
	SchemaSubject  string
	PartitionKeyFn func(events.Event) string
}

// Participant changes are keyed by roster so a roster's history stays ordered
// within one partition.
var rosterEvent = EventMetadata{
	Topic:         "roster_events",
	SchemaSubject: "roster_events-value",
	PartitionKeyFn: func(e events.Event) string {
		return e.AggregateID
	},
}

var eventCatalog = map[string]EventMetadata{
	events.TypeParticipantJoined:   rosterEvent,
	events.TypeParticipantLeft:     rosterEvent,
	events.TypeParticipantPromoted: rosterEvent,
	events.TypeParticipantReplaced: rosterEvent,
	events.TypeSessionCancelled: {
		Topic:         "session_events",
		SchemaSubject: "session_events-value",
		PartitionKeyFn: func(e events.Event) string {
			return e.AggregateID
		},
	},
}
