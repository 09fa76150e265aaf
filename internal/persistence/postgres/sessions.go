package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"example.com/matchday/internal/domain"
)

const sessionColumns = `session_id, activity_id, date, ends_at, status, max_players, is_cancelled, created_at`

// InsertSessions queues one idempotent insert per session in a single batch
// and returns how many rows were actually created.
func (r *Repository) InsertSessions(ctx context.Context, sessions []domain.ActivitySession) (int, error) {
	if len(sessions) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range sessions {
		batch.Queue(
			`INSERT INTO activity_sessions (`+sessionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
             ON CONFLICT (activity_id, date) DO NOTHING`,
			s.ID, s.ActivityID, s.Date, s.EndsAt, string(s.Status), s.MaxPlayers, s.IsCancelled, s.CreatedAt,
		)
	}

	results := tx.SendBatch(ctx, batch)
	created := 0
	for range sessions {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return 0, err
		}
		created += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return created, nil
}

// GetSession returns nil, nil when the session does not exist.
func (r *Repository) GetSession(ctx context.Context, id string) (*domain.ActivitySession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM activity_sessions WHERE session_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions of the activity dated at or after from.
func (r *Repository) ListSessions(ctx context.Context, activityID string, from time.Time, limit int) ([]domain.ActivitySession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM activity_sessions
          WHERE activity_id = $1 AND date >= $2
          ORDER BY date LIMIT $3`,
		activityID, from, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.ActivitySession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CompleteSessions marks active sessions that ended before the cutoff.
func (r *Repository) CompleteSessions(ctx context.Context, endedBefore time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE activity_sessions SET status = 'completed' WHERE status = 'active' AND ends_at < $1`,
		endedBefore,
	)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CleanupSessions removes participant history older than participantsBefore
// together with its sessions, then empty sessions older than emptyBefore.
func (r *Repository) CleanupSessions(ctx context.Context, emptyBefore, participantsBefore time.Time) (domain.CleanupReport, error) {
	var report domain.CleanupReport

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return report, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx,
		`DELETE FROM activity_participants p
          USING activity_sessions s
          WHERE p.session_id = s.session_id AND s.date < $1
      RETURNING p.session_id`,
		participantsBefore,
	)
	if err != nil {
		return report, err
	}
	purged := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return report, err
		}
		purged[id] = struct{}{}
		report.ParticipantsDeleted++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return report, err
	}

	if len(purged) > 0 {
		ids := make([]string, 0, len(purged))
		for id := range purged {
			ids = append(ids, id)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM activity_sessions WHERE session_id = ANY($1)`, ids)
		if err != nil {
			return report, err
		}
		report.SessionsDeleted = int(tag.RowsAffected())
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM activity_sessions s
          WHERE s.date < $1
            AND NOT EXISTS (SELECT 1 FROM activity_participants p WHERE p.session_id = s.session_id)`,
		emptyBefore,
	)
	if err != nil {
		return report, err
	}
	report.EmptySessionsDeleted = int(tag.RowsAffected())

	if err := tx.Commit(ctx); err != nil {
		return report, err
	}
	return report, nil
}

// FutureParticipations lists session IDs of the activity, dated at or after
// from, in which the user participates.
func (r *Repository) FutureParticipations(ctx context.Context, activityID, userID string, from time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.session_id
           FROM activity_sessions s
           JOIN activity_participants p ON p.session_id = s.session_id
          WHERE s.activity_id = $1 AND p.user_id = $2 AND s.date >= $3
          ORDER BY s.date`,
		activityID, userID, from,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanSession(row pgx.Row) (domain.ActivitySession, error) {
	var (
		s      domain.ActivitySession
		status string
	)
	if err := row.Scan(&s.ID, &s.ActivityID, &s.Date, &s.EndsAt, &status, &s.MaxPlayers, &s.IsCancelled, &s.CreatedAt); err != nil {
		return domain.ActivitySession{}, err
	}
	s.Status = domain.SessionStatus(status)
	return s, nil
}
