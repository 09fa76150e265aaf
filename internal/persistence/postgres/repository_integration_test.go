//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"golang.org/x/sync/errgroup"

	"example.com/matchday/internal/domain"
)

func setupPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("matchday"),
		postgrescontainer.WithUsername("matchday"),
		postgrescontainer.WithPassword("matchday"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// A second run must be a no-op.
	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}

func TestRepositoryRosterLifecycle(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := NewRepository(pool)

	now := time.Date(2025, time.March, 3, 12, 0, 0, 0, time.UTC)
	svc := domain.NewService(repo, domain.WithClock(func() time.Time { return now }))

	activity, err := svc.CreateActivity(ctx, domain.CreateActivityInput{
		Name:          "Tuesday Football",
		Sport:         domain.SportFootball,
		MinPlayers:    2,
		MaxPlayers:    3,
		CreatedBy:     "owner",
		IsPublic:      true,
		RecurringDays: []time.Weekday{time.Tuesday},
		RecurringType: domain.RecurringWeekly,
		StartTime:     "18:00",
		EndTime:       "19:30",
	})
	require.NoError(t, err)

	report, err := svc.GenerateUpcomingSessions(ctx, activity.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 2, report.Created)
	report, err = svc.GenerateUpcomingSessions(ctx, activity.ID, 2)
	require.NoError(t, err)
	require.Equal(t, 0, report.Created)

	sessions, err := svc.ListSessions(ctx, activity.ID, now, 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	ref := domain.SessionRef(sessions[0].ID)

	var g errgroup.Group
	for i := 0; i < 12; i++ {
		userID := fmt.Sprintf("user-%02d", i)
		g.Go(func() error {
			_, err := svc.Join(ctx, ref, userID)
			return err
		})
	}
	require.NoError(t, g.Wait())

	stats, err := svc.Stats(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, 3, stats.ConfirmedCount)
	require.Equal(t, 9, stats.WaitingCount)

	participants, err := svc.Participants(ctx, ref)
	require.NoError(t, err)
	firstWaiting := participants[3].UserID

	_, err = svc.Leave(ctx, ref, participants[0].UserID)
	require.NoError(t, err)
	participants, err = svc.Participants(ctx, ref)
	require.NoError(t, err)
	require.Equal(t, firstWaiting, participants[2].UserID)
	require.Equal(t, domain.ParticipantConfirmed, participants[2].Status)

	_, err = svc.Join(ctx, ref, participants[0].UserID)
	require.ErrorIs(t, err, domain.ErrAlreadyJoined)

	var outboxRows int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE aggregate_id = $1`, ref.ID).Scan(&outboxRows))
	// 12 joins, one leave, one promotion.
	require.Equal(t, 14, outboxRows)
}

func TestRepositoryMatchFullness(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := NewRepository(pool)
	now := time.Now().UTC()
	svc := domain.NewService(repo, domain.WithClock(func() time.Time { return now }))

	match, err := svc.CreateMatch(ctx, domain.CreateMatchInput{
		Title:           "Five-a-side",
		Sport:           domain.SportFootball,
		Date:            now.Add(2 * time.Hour),
		DurationMinutes: 60,
		MaxPlayers:      2,
		CreatedBy:       "owner",
	})
	require.NoError(t, err)
	ref := domain.MatchRef(match.ID)

	for _, u := range []string{"a", "b"} {
		_, err := svc.Join(ctx, ref, u)
		require.NoError(t, err)
	}
	stored, err := svc.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MatchFull, stored.Status)

	_, err = svc.Leave(ctx, ref, "a")
	require.NoError(t, err)
	stored, err = svc.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	require.Equal(t, domain.MatchOpen, stored.Status)
}

func TestRepositorySubscriptionsAndCleanup(t *testing.T) {
	ctx := context.Background()
	pool := setupPostgres(t)
	repo := NewRepository(pool)

	created := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.CreateActivity(ctx, domain.Activity{
		ID: "a1", Name: "Badminton", Sport: domain.SportBadminton, MinPlayers: 2, MaxPlayers: 4,
		CreatedBy: "owner", RecurringDays: []time.Weekday{time.Monday, time.Wednesday},
		RecurringType: domain.RecurringWeekly, StartTime: "19:00", EndTime: "20:00", CreatedAt: created,
	}))

	require.NoError(t, repo.CreateSubscription(ctx, domain.Subscription{ActivityID: "a1", UserID: "u1", CreatedAt: created}))
	err := repo.CreateSubscription(ctx, domain.Subscription{ActivityID: "a1", UserID: "u1", CreatedAt: created})
	require.ErrorIs(t, err, domain.ErrAlreadySubscribed)

	stored, err := repo.GetActivity(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, []time.Weekday{time.Monday, time.Wednesday}, stored.RecurringDays)

	missing, err := repo.GetActivity(ctx, "nope")
	require.NoError(t, err)
	require.Nil(t, missing)

	old := created.AddDate(0, 0, 1)
	n, err := repo.InsertSessions(ctx, []domain.ActivitySession{
		{ID: "s1", ActivityID: "a1", Date: old, EndsAt: old.Add(time.Hour), Status: domain.SessionActive, MaxPlayers: 4, CreatedAt: created},
		{ID: "s2", ActivityID: "a1", Date: old.AddDate(0, 0, 2), EndsAt: old.AddDate(0, 0, 2).Add(time.Hour), Status: domain.SessionActive, MaxPlayers: 4, CreatedAt: created},
	})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	svc := domain.NewService(repo, domain.WithClock(func() time.Time { return created }))
	_, err = svc.Join(ctx, domain.SessionRef("s1"), "u1")
	require.NoError(t, err)

	report, err := repo.CleanupSessions(ctx, old.AddDate(0, 1, 0), old.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Equal(t, domain.CleanupReport{EmptySessionsDeleted: 1, ParticipantsDeleted: 1, SessionsDeleted: 1}, report)
}
