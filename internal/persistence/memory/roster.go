package memory

import (
	"context"
	"fmt"
	"sync"

	"example.com/matchday/internal/domain"
	"example.com/matchday/internal/events"
)

func (s *Store) rosterLock(ref domain.RosterRef) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[ref]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ref] = lock
	}
	return lock
}

func (s *Store) rosterLocked(ref domain.RosterRef) (domain.Roster, bool) {
	switch ref.Kind {
	case domain.RosterSession:
		session, ok := s.sessions[ref.ID]
		if !ok {
			return domain.Roster{}, false
		}
		return session.Roster(), true
	case domain.RosterMatch:
		match, ok := s.matches[ref.ID]
		if !ok {
			return domain.Roster{}, false
		}
		return match.Roster(), true
	}
	return domain.Roster{}, false
}

// WithRoster runs fn against a private copy of the roster and publishes the
// copy only when fn succeeds.
func (s *Store) WithRoster(ctx context.Context, ref domain.RosterRef, fn func(context.Context, domain.RosterTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.rosterLock(ref)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	roster, ok := s.rosterLocked(ref)
	current := s.participants[ref]
	snapshot := make([]domain.Participant, len(current))
	copy(snapshot, current)
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}

	staged := make([]domain.Participant, len(snapshot))
	copy(staged, snapshot)
	tx := &rosterTx{roster: roster, snapshot: snapshot, staged: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rosterLocked(ref); !ok {
		return fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	s.participants[ref] = tx.staged
	if tx.status != "" {
		s.applyStatusLocked(ref, tx.status)
	}
	s.appendEventsLocked(tx.pending)
	return nil
}

func (s *Store) appendEventsLocked(evts []events.Event) {
	s.outbox = append(s.outbox, evts...)
	if over := len(s.outbox) - s.outboxCap; over > 0 {
		s.outbox = append(s.outbox[:0:0], s.outbox[over:]...)
	}
}

func (s *Store) applyStatusLocked(ref domain.RosterRef, status string) {
	switch ref.Kind {
	case domain.RosterSession:
		session := s.sessions[ref.ID]
		session.Status = domain.SessionStatus(status)
		if session.Status == domain.SessionCancelled {
			session.IsCancelled = true
		}
		s.sessions[ref.ID] = session
	case domain.RosterMatch:
		match := s.matches[ref.ID]
		match.Status = domain.MatchStatus(status)
		s.matches[ref.ID] = match
	}
}

// Snapshot returns the roster and a copy of its participants.
func (s *Store) Snapshot(ctx context.Context, ref domain.RosterRef) (domain.Roster, []domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster, ok := s.rosterLocked(ref)
	if !ok {
		return domain.Roster{}, nil, fmt.Errorf("%s: %w", ref, domain.ErrNotFound)
	}
	out := make([]domain.Participant, len(s.participants[ref]))
	copy(out, s.participants[ref])
	return roster, out, nil
}

type rosterTx struct {
	roster   domain.Roster
	snapshot []domain.Participant
	staged   []domain.Participant
	status   string
	pending  []events.Event
}

func (t *rosterTx) Roster() domain.Roster { return t.roster }

func (t *rosterTx) Participants() []domain.Participant { return t.snapshot }

func (t *rosterTx) indexOf(participantID string) int {
	for i, p := range t.staged {
		if p.ID == participantID {
			return i
		}
	}
	return -1
}

func (t *rosterTx) InsertParticipant(ctx context.Context, p domain.Participant) error {
	for _, existing := range t.staged {
		if existing.UserID == p.UserID {
			return fmt.Errorf("%s user %s: %w", t.roster.Ref, p.UserID, domain.ErrAlreadyJoined)
		}
	}
	t.staged = append(t.staged, p)
	return nil
}

func (t *rosterTx) UpdateParticipantStatus(ctx context.Context, participantID string, status domain.ParticipantStatus) error {
	idx := t.indexOf(participantID)
	if idx < 0 {
		return fmt.Errorf("participant %s: %w", participantID, domain.ErrNotParticipant)
	}
	t.staged[idx].Status = status
	return nil
}

func (t *rosterTx) ReassignParticipant(ctx context.Context, participantID, userID string) error {
	for _, existing := range t.staged {
		if existing.UserID == userID {
			return fmt.Errorf("%s user %s: %w", t.roster.Ref, userID, domain.ErrAlreadyJoined)
		}
	}
	idx := t.indexOf(participantID)
	if idx < 0 {
		return fmt.Errorf("participant %s: %w", participantID, domain.ErrNotParticipant)
	}
	t.staged[idx].UserID = userID
	return nil
}

func (t *rosterTx) DeleteParticipant(ctx context.Context, participantID string) error {
	idx := t.indexOf(participantID)
	if idx < 0 {
		return fmt.Errorf("participant %s: %w", participantID, domain.ErrNotParticipant)
	}
	t.staged = append(t.staged[:idx], t.staged[idx+1:]...)
	return nil
}

func (t *rosterTx) SetStatus(ctx context.Context, status string) error {
	t.status = status
	t.roster.Status = status
	return nil
}

func (t *rosterTx) Emit(ctx context.Context, event events.Event) error {
	t.pending = append(t.pending, event)
	return nil
}
