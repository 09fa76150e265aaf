// Package memory provides an in-process implementation of the domain
// repositories, used by tests and by local runs without Postgres.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/events"
)

type subscriptionKey struct {
	activityID string
	userID     string
}

type sessionKey struct {
	activityID string
	date       int64
}

// retainedEvents bounds the in-memory event log. Nothing drains it, so only
// the newest entries are kept for inspection.
const retainedEvents = 1024

// Store keeps all state in maps guarded by mu. Roster mutations additionally
// hold a per-roster mutex for the lifetime of the transaction.
type Store struct {
	mu            sync.RWMutex
	activities    map[string]domain.Activity
	sessions      map[string]domain.ActivitySession
	sessionDates  map[sessionKey]string
	matches       map[string]domain.Match
	participants  map[domain.RosterRef][]domain.Participant
	subscriptions map[subscriptionKey]domain.Subscription
	outbox        []events.Event
	outboxCap     int

	locksMu sync.Mutex
	locks   map[domain.RosterRef]*sync.Mutex
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		activities:    make(map[string]domain.Activity),
		sessions:      make(map[string]domain.ActivitySession),
		sessionDates:  make(map[sessionKey]string),
		matches:       make(map[string]domain.Match),
		participants:  make(map[domain.RosterRef][]domain.Participant),
		subscriptions: make(map[subscriptionKey]domain.Subscription),
		outboxCap:     retainedEvents,
		locks:         make(map[domain.RosterRef]*sync.Mutex),
	}
}

// Events returns a copy of the most recent committed events, oldest first.
func (s *Store) Events() []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]events.Event, len(s.outbox))
	copy(out, s.outbox)
	return out
}

// CreateActivity stores a new activity.
func (s *Store) CreateActivity(ctx context.Context, activity domain.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.activities[activity.ID]; exists {
		return fmt.Errorf("activity %s already exists", activity.ID)
	}
	activity.RecurringDays = append([]time.Weekday(nil), activity.RecurringDays...)
	s.activities[activity.ID] = activity
	return nil
}

// GetActivity returns nil, nil when the activity is unknown.
func (s *Store) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	activity, ok := s.activities[id]
	if !ok {
		return nil, nil
	}
	return &activity, nil
}

// ListActivities returns every activity ordered by creation.
func (s *Store) ListActivities(ctx context.Context) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// ListPublicActivities pages public activities by (created_at, id) descending.
func (s *Store) ListPublicActivities(ctx context.Context, cursor *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	s.mu.RLock()
	public := make([]domain.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		if a.IsPublic {
			public = append(public, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(public, func(i, j int) bool {
		if public[i].CreatedAt.Equal(public[j].CreatedAt) {
			return public[i].ID > public[j].ID
		}
		return public[i].CreatedAt.After(public[j].CreatedAt)
	})

	results := make([]domain.Activity, 0, limit)
	for _, a := range public {
		if cursor != nil && !before(a.CreatedAt, a.ID, cursor.CreatedAt, cursor.ID) {
			continue
		}
		results = append(results, a)
		if len(results) == limit {
			break
		}
	}

	var next *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		next = &domain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return results, next, nil
}

// before reports whether (ts, id) sorts strictly before (cts, cid) in descending order.
func before(ts time.Time, id string, cts time.Time, cid string) bool {
	if ts.Equal(cts) {
		return id < cid
	}
	return ts.Before(cts)
}

// InsertSessions ignores sessions whose (activity, date) already exists. A
// session for an unknown activity rejects the whole batch.
func (s *Store) InsertSessions(ctx context.Context, sessions []domain.ActivitySession) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, session := range sessions {
		if _, ok := s.activities[session.ActivityID]; !ok {
			return 0, fmt.Errorf("insert session: activity %s does not exist", session.ActivityID)
		}
	}
	created := 0
	for _, session := range sessions {
		key := sessionKey{activityID: session.ActivityID, date: session.Date.UnixNano()}
		if _, exists := s.sessionDates[key]; exists {
			continue
		}
		s.sessionDates[key] = session.ID
		s.sessions[session.ID] = session
		created++
	}
	return created, nil
}

// GetSession returns nil, nil when the session is unknown.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.ActivitySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

// ListSessions returns sessions of the activity dated at or after from.
func (s *Store) ListSessions(ctx context.Context, activityID string, from time.Time, limit int) ([]domain.ActivitySession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ActivitySession, 0)
	for _, session := range s.sessions {
		if session.ActivityID == activityID && !session.Date.Before(from) {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CompleteSessions marks active sessions that ended before the cutoff.
func (s *Store) CompleteSessions(ctx context.Context, endedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, session := range s.sessions {
		if session.Status == domain.SessionActive && session.EndsAt.Before(endedBefore) {
			session.Status = domain.SessionCompleted
			s.sessions[id] = session
			n++
		}
	}
	return n, nil
}

// CleanupSessions applies the retention windows. Participant history older
// than participantsBefore goes first together with its sessions, then empty
// sessions older than emptyBefore.
func (s *Store) CleanupSessions(ctx context.Context, emptyBefore, participantsBefore time.Time) (domain.CleanupReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var report domain.CleanupReport
	for id, session := range s.sessions {
		if !session.Date.Before(participantsBefore) {
			continue
		}
		ref := domain.SessionRef(id)
		if n := len(s.participants[ref]); n > 0 {
			report.ParticipantsDeleted += n
			delete(s.participants, ref)
			s.deleteSessionLocked(session)
			report.SessionsDeleted++
		}
	}
	for id, session := range s.sessions {
		if !session.Date.Before(emptyBefore) {
			continue
		}
		if len(s.participants[domain.SessionRef(id)]) == 0 {
			s.deleteSessionLocked(session)
			report.EmptySessionsDeleted++
		}
	}
	return report, nil
}

func (s *Store) deleteSessionLocked(session domain.ActivitySession) {
	delete(s.sessions, session.ID)
	delete(s.sessionDates, sessionKey{activityID: session.ActivityID, date: session.Date.UnixNano()})
	delete(s.participants, domain.SessionRef(session.ID))
}

// FutureParticipations lists session IDs of the activity, dated at or after
// from, in which the user participates.
func (s *Store) FutureParticipations(ctx context.Context, activityID, userID string, from time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, session := range s.sessions {
		if session.ActivityID != activityID || session.Date.Before(from) {
			continue
		}
		for _, p := range s.participants[domain.SessionRef(id)] {
			if p.UserID == userID {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// CreateMatch stores a new match.
func (s *Store) CreateMatch(ctx context.Context, match domain.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.matches[match.ID]; exists {
		return fmt.Errorf("match %s already exists", match.ID)
	}
	s.matches[match.ID] = match
	return nil
}

// GetMatch returns nil, nil when the match is unknown.
func (s *Store) GetMatch(ctx context.Context, id string) (*domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	match, ok := s.matches[id]
	if !ok {
		return nil, nil
	}
	return &match, nil
}

// CompleteMatches marks open or full matches that ended before the cutoff.
func (s *Store) CompleteMatches(ctx context.Context, endedBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, match := range s.matches {
		if (match.Status == domain.MatchOpen || match.Status == domain.MatchFull) && match.EndsAt().Before(endedBefore) {
			match.Status = domain.MatchCompleted
			s.matches[id] = match
			n++
		}
	}
	return n, nil
}

// CreateSubscription fails with ErrAlreadySubscribed on duplicates.
func (s *Store) CreateSubscription(ctx context.Context, sub domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriptionKey{activityID: sub.ActivityID, userID: sub.UserID}
	if _, exists := s.subscriptions[key]; exists {
		return fmt.Errorf("activity %s user %s: %w", sub.ActivityID, sub.UserID, domain.ErrAlreadySubscribed)
	}
	s.subscriptions[key] = sub
	return nil
}

// DeleteSubscription reports whether a subscription was removed.
func (s *Store) DeleteSubscription(ctx context.Context, activityID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriptionKey{activityID: activityID, userID: userID}
	if _, exists := s.subscriptions[key]; !exists {
		return false, nil
	}
	delete(s.subscriptions, key)
	return true, nil
}

// ListSubscriptions returns the user's subscriptions, newest first.
func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Subscription, 0)
	for key, sub := range s.subscriptions {
		if key.userID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
