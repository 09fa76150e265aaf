package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/events"
	"example.com/matchday/internal/observability"
)

// rosterTables names the parent row and participant table of one roster kind.
type rosterTables struct {
	lock         string
	read         string
	participants string
	parent       string
	setStatus    string
}

var tablesByKind = map[domain.RosterKind]rosterTables{
	domain.RosterSession: {
		lock:         `SELECT session_id, date, max_players, status, is_cancelled FROM activity_sessions WHERE session_id = $1 FOR UPDATE`,
		read:         `SELECT session_id, date, max_players, status, is_cancelled FROM activity_sessions WHERE session_id = $1`,
		participants: "activity_participants",
		parent:       "session_id",
		setStatus:    `UPDATE activity_sessions SET status = $1, is_cancelled = is_cancelled OR $1 = 'cancelled' WHERE session_id = $2`,
	},
	domain.RosterMatch: {
		lock:         `SELECT match_id, date, max_players, status, FALSE FROM matches WHERE match_id = $1 FOR UPDATE`,
		read:         `SELECT match_id, date, max_players, status, FALSE FROM matches WHERE match_id = $1`,
		participants: "match_players",
		parent:       "match_id",
		setStatus:    `UPDATE matches SET status = $1 WHERE match_id = $2`,
	},
}

func lookupTables(ref domain.RosterRef) (rosterTables, error) {
	tables, ok := tablesByKind[ref.Kind]
	if !ok {
		return rosterTables{}, fmt.Errorf("%w: unknown roster kind %q", domain.ErrInvalidArgument, ref.Kind)
	}
	return tables, nil
}

// WithRoster locks the session or match row for the duration of fn. Every
// participant change and outbox event fn records commits atomically with it.
func (r *Repository) WithRoster(ctx context.Context, ref domain.RosterRef, fn func(context.Context, domain.RosterTx) error) (err error) {
	tables, err := lookupTables(ref)
	if err != nil {
		return err
	}

	start := time.Now()
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	roster, err := scanRoster(ref, tx.QueryRow(ctx, tables.lock, ref.ID))
	if err != nil {
		return err
	}
	participants, err := loadParticipants(ctx, tx, ref, tables)
	if err != nil {
		return err
	}

	rtx := &rosterTx{tx: tx, ref: ref, tables: tables, roster: roster, participants: participants}
	if err = fn(ctx, rtx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return err
	}

	observability.ObserveRosterTx(string(ref.Kind), time.Since(start))
	observability.RecordRosterCommitted(time.Now())
	return nil
}

// Snapshot reads the roster and its participants from one consistent snapshot.
func (r *Repository) Snapshot(ctx context.Context, ref domain.RosterRef) (domain.Roster, []domain.Participant, error) {
	tables, err := lookupTables(ref)
	if err != nil {
		return domain.Roster{}, nil, err
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.Roster{}, nil, err
	}
	defer tx.Rollback(ctx)

	roster, err := scanRoster(ref, tx.QueryRow(ctx, tables.read, ref.ID))
	if err != nil {
		return domain.Roster{}, nil, err
	}
	participants, err := loadParticipants(ctx, tx, ref, tables)
	if err != nil {
		return domain.Roster{}, nil, err
	}
	return roster, participants, tx.Commit(ctx)
}

func scanRoster(ref domain.RosterRef, row pgx.Row) (domain.Roster, error) {
	var (
		id        string
		startsAt  time.Time
		capacity  int
		status    string
		cancelled bool
	)
	if err := row.Scan(&id, &startsAt, &capacity, &status, &cancelled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Roster{}, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
		}
		return domain.Roster{}, err
	}
	return domain.Roster{
		Ref:        ref,
		MaxPlayers: capacity,
		StartsAt:   startsAt,
		Status:     status,
		Cancelled:  cancelled || status == "cancelled",
		Completed:  status == "completed",
	}, nil
}

func loadParticipants(ctx context.Context, tx pgx.Tx, ref domain.RosterRef, tables rosterTables) ([]domain.Participant, error) {
	query := fmt.Sprintf(
		`SELECT participant_id, user_id, status, joined_at FROM %s WHERE %s = $1 ORDER BY joined_at, seq`,
		tables.participants, tables.parent,
	)
	rows, err := tx.Query(ctx, query, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Participant, 0)
	for rows.Next() {
		p := domain.Participant{Kind: ref.Kind, RosterID: ref.ID}
		var status string
		if err := rows.Scan(&p.ID, &p.UserID, &status, &p.JoinedAt); err != nil {
			return nil, err
		}
		p.Status = domain.ParticipantStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

type rosterTx struct {
	tx           pgx.Tx
	ref          domain.RosterRef
	tables       rosterTables
	roster       domain.Roster
	participants []domain.Participant
}

func (t *rosterTx) Roster() domain.Roster { return t.roster }

func (t *rosterTx) Participants() []domain.Participant { return t.participants }

func (t *rosterTx) InsertParticipant(ctx context.Context, p domain.Participant) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (participant_id, %s, user_id, status, joined_at) VALUES ($1,$2,$3,$4,$5)`,
		t.tables.participants, t.tables.parent,
	)
	_, err := t.tx.Exec(ctx, query, p.ID, t.ref.ID, p.UserID, string(p.Status), p.JoinedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s user %s: %w", t.ref, p.UserID, domain.ErrAlreadyJoined)
	}
	return err
}

func (t *rosterTx) UpdateParticipantStatus(ctx context.Context, participantID string, status domain.ParticipantStatus) error {
	query := fmt.Sprintf(`UPDATE %s SET status = $1 WHERE participant_id = $2`, t.tables.participants)
	tag, err := t.tx.Exec(ctx, query, string(status), participantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s: %w", participantID, domain.ErrNotParticipant)
	}
	return nil
}

func (t *rosterTx) ReassignParticipant(ctx context.Context, participantID, userID string) error {
	query := fmt.Sprintf(`UPDATE %s SET user_id = $1 WHERE participant_id = $2`, t.tables.participants)
	tag, err := t.tx.Exec(ctx, query, userID, participantID)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s user %s: %w", t.ref, userID, domain.ErrAlreadyJoined)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s: %w", participantID, domain.ErrNotParticipant)
	}
	return nil
}

func (t *rosterTx) DeleteParticipant(ctx context.Context, participantID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE participant_id = $1`, t.tables.participants)
	tag, err := t.tx.Exec(ctx, query, participantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("participant %s: %w", participantID, domain.ErrNotParticipant)
	}
	return nil
}

func (t *rosterTx) SetStatus(ctx context.Context, status string) error {
	if _, err := t.tx.Exec(ctx, t.tables.setStatus, status, t.ref.ID); err != nil {
		return err
	}
	t.roster.Status = status
	return nil
}

func (t *rosterTx) Emit(ctx context.Context, evt events.Event) error {
	return insertOutbox(ctx, t.tx, evt)
}
