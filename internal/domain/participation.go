package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/matchday/internal/events"
)

// ParticipationResult is returned by operations that admit a user.
type ParticipationResult struct {
	Participant Participant
	Stats       Stats
}

// Engine admits and removes participants on sessions and matches alike,
// keeping the confirmed set within capacity and the waiting list in FIFO order.
type Engine struct {
	store    RosterStore
	policies map[RosterKind]RosterPolicy
	now      func() time.Time
}

// NewEngine constructs an Engine over the provided roster store.
func NewEngine(store RosterStore, opts ...Option) *Engine {
	o := buildOptions(opts)
	return &Engine{store: store, policies: o.policies, now: o.now}
}

// Join admits userID as confirmed while capacity remains, otherwise as waiting.
func (e *Engine) Join(ctx context.Context, ref RosterRef, userID string) (ParticipationResult, error) {
	if err := requireUser(userID); err != nil {
		return ParticipationResult{}, err
	}

	var result ParticipationResult
	err := e.store.WithRoster(ctx, ref, func(ctx context.Context, tx RosterTx) error {
		l := e.open(tx)
		if l.roster.Cancelled {
			return fmt.Errorf("%s: %w", ref, ErrSessionCancelled)
		}
		if !e.registrationOpen(l.roster) {
			return fmt.Errorf("%s: %w", ref, ErrRegistrationClosed)
		}
		if l.indexOf(userID) >= 0 {
			return fmt.Errorf("%s user %s: %w", ref, userID, ErrAlreadyJoined)
		}

		status := ParticipantWaiting
		if l.confirmed() < l.roster.MaxPlayers {
			status = ParticipantConfirmed
		}
		p, err := l.add(ctx, userID, status, false)
		if err != nil {
			return err
		}
		result = ParticipationResult{Participant: p, Stats: l.stats()}
		return nil
	})
	return result, err
}

// Leave removes userID and fills any vacancy from the waiting list.
func (e *Engine) Leave(ctx context.Context, ref RosterRef, userID string) (Stats, error) {
	return e.leave(ctx, ref, userID, false)
}

// ForceLeave is the admin variant of Leave.
func (e *Engine) ForceLeave(ctx context.Context, ref RosterRef, userID string) (Stats, error) {
	return e.leave(ctx, ref, userID, true)
}

func (e *Engine) leave(ctx context.Context, ref RosterRef, userID string, admin bool) (Stats, error) {
	if err := requireUser(userID); err != nil {
		return Stats{}, err
	}

	var stats Stats
	err := e.store.WithRoster(ctx, ref, func(ctx context.Context, tx RosterTx) error {
		l := e.open(tx)
		idx := l.indexOf(userID)
		if idx < 0 {
			return fmt.Errorf("%s user %s: %w", ref, userID, ErrNotParticipant)
		}
		if err := l.remove(ctx, idx, admin); err != nil {
			return err
		}
		stats = l.stats()
		return nil
	})
	return stats, err
}

// ForceJoin admits userID ignoring capacity, cutoff and cancellation. A nil
// desired status applies the normal confirmed-or-waiting rule. Free seats are
// filled from the waiting list afterwards, so a forced waiting status only
// sticks while the roster is full.
func (e *Engine) ForceJoin(ctx context.Context, ref RosterRef, userID string, desired *ParticipantStatus) (ParticipationResult, error) {
	if err := requireUser(userID); err != nil {
		return ParticipationResult{}, err
	}
	if desired != nil && !desired.Valid() {
		return ParticipationResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *desired)
	}

	var result ParticipationResult
	err := e.store.WithRoster(ctx, ref, func(ctx context.Context, tx RosterTx) error {
		l := e.open(tx)
		if l.indexOf(userID) >= 0 {
			return fmt.Errorf("%s user %s: %w", ref, userID, ErrAlreadyJoined)
		}

		status := ParticipantWaiting
		if l.confirmed() < l.roster.MaxPlayers {
			status = ParticipantConfirmed
		}
		if desired != nil {
			status = *desired
		}
		if _, err := l.add(ctx, userID, status, true); err != nil {
			return err
		}
		// A forced waiting entry next to free seats is promoted at once.
		if err := l.fillVacancies(ctx); err != nil {
			return err
		}
		if err := l.syncFullness(ctx); err != nil {
			return err
		}
		result = ParticipationResult{Participant: l.participants[l.indexOf(userID)], Stats: l.stats()}
		return nil
	})
	return result, err
}

// Replace swaps fromUserID for toUserID in place. The incoming user keeps the
// outgoing user's status, join time and queue position.
func (e *Engine) Replace(ctx context.Context, ref RosterRef, fromUserID, toUserID string) (ParticipationResult, error) {
	if err := requireUser(fromUserID); err != nil {
		return ParticipationResult{}, err
	}
	if err := requireUser(toUserID); err != nil {
		return ParticipationResult{}, err
	}
	if fromUserID == toUserID {
		return ParticipationResult{}, fmt.Errorf("%s user %s: %w", ref, fromUserID, ErrSameUser)
	}

	var result ParticipationResult
	err := e.store.WithRoster(ctx, ref, func(ctx context.Context, tx RosterTx) error {
		l := e.open(tx)
		idx := l.indexOf(fromUserID)
		if idx < 0 {
			return fmt.Errorf("%s user %s: %w", ref, fromUserID, ErrNotParticipant)
		}
		if l.indexOf(toUserID) >= 0 {
			return fmt.Errorf("%s user %s: %w", ref, toUserID, ErrAlreadyJoined)
		}

		p := l.participants[idx]
		if err := tx.ReassignParticipant(ctx, p.ID, toUserID); err != nil {
			return err
		}
		p.UserID = toUserID
		l.participants[idx] = p

		evt := l.event(events.TypeParticipantReplaced, p, true)
		payload := evt.Payload.(events.ParticipantChanged)
		payload.ReplacedUserID = fromUserID
		evt.Payload = payload
		if err := tx.Emit(ctx, evt); err != nil {
			return err
		}
		result = ParticipationResult{Participant: p, Stats: l.stats()}
		return nil
	})
	return result, err
}

// Stats reads the current counts without taking the roster lock.
func (e *Engine) Stats(ctx context.Context, ref RosterRef) (Stats, error) {
	roster, participants, err := e.store.Snapshot(ctx, ref)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(roster.MaxPlayers, participants), nil
}

// Participants lists the roster in join order.
func (e *Engine) Participants(ctx context.Context, ref RosterRef) ([]Participant, error) {
	_, participants, err := e.store.Snapshot(ctx, ref)
	return participants, err
}

func (e *Engine) registrationOpen(r Roster) bool {
	if r.Completed {
		return false
	}
	policy := e.policies[r.Ref.Kind]
	return e.now().Before(r.StartsAt.Add(-policy.Cutoff))
}

func (e *Engine) open(tx RosterTx) *ledger {
	roster := tx.Roster()
	current := tx.Participants()
	participants := make([]Participant, len(current))
	copy(participants, current)
	return &ledger{
		tx:           tx,
		roster:       roster,
		policy:       e.policies[roster.Ref.Kind],
		participants: participants,
		now:          e.now,
	}
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidArgument)
	}
	return nil
}

// ledger tracks the participant list of a locked roster while a single
// operation mutates it, mirroring every change into the transaction.
type ledger struct {
	tx           RosterTx
	roster       Roster
	policy       RosterPolicy
	participants []Participant
	now          func() time.Time
}

func (l *ledger) indexOf(userID string) int {
	for i, p := range l.participants {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func (l *ledger) confirmed() int {
	n := 0
	for _, p := range l.participants {
		if p.Status == ParticipantConfirmed {
			n++
		}
	}
	return n
}

func (l *ledger) stats() Stats {
	return ComputeStats(l.roster.MaxPlayers, l.participants)
}

func (l *ledger) add(ctx context.Context, userID string, status ParticipantStatus, admin bool) (Participant, error) {
	p := Participant{
		ID:       uuid.NewString(),
		Kind:     l.roster.Ref.Kind,
		RosterID: l.roster.Ref.ID,
		UserID:   userID,
		Status:   status,
		JoinedAt: l.now().UTC(),
	}
	if err := l.tx.InsertParticipant(ctx, p); err != nil {
		return Participant{}, err
	}
	l.participants = append(l.participants, p)
	if err := l.tx.Emit(ctx, l.event(events.TypeParticipantJoined, p, admin)); err != nil {
		return Participant{}, err
	}
	if err := l.syncFullness(ctx); err != nil {
		return Participant{}, err
	}
	return p, nil
}

func (l *ledger) remove(ctx context.Context, idx int, admin bool) error {
	p := l.participants[idx]
	if err := l.tx.DeleteParticipant(ctx, p.ID); err != nil {
		return err
	}
	l.participants = append(l.participants[:idx], l.participants[idx+1:]...)
	if err := l.tx.Emit(ctx, l.event(events.TypeParticipantLeft, p, admin)); err != nil {
		return err
	}
	if err := l.fillVacancies(ctx); err != nil {
		return err
	}
	return l.syncFullness(ctx)
}

// fillVacancies promotes the earliest waiting participants while confirmed
// seats are free. Cancelled and completed rosters are left untouched.
func (l *ledger) fillVacancies(ctx context.Context) error {
	if l.roster.Cancelled || l.roster.Completed {
		return nil
	}
	for l.confirmed() < l.roster.MaxPlayers {
		idx := -1
		for i, p := range l.participants {
			if p.Status == ParticipantWaiting {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		p := l.participants[idx]
		if err := l.tx.UpdateParticipantStatus(ctx, p.ID, ParticipantConfirmed); err != nil {
			return err
		}
		p.Status = ParticipantConfirmed
		l.participants[idx] = p

		evt := l.event(events.TypeParticipantPromoted, p, false)
		payload := evt.Payload.(events.ParticipantChanged)
		payload.PreviousStatus = string(ParticipantWaiting)
		evt.Payload = payload
		if err := l.tx.Emit(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// syncFullness flips a match between open and full. Other statuses are final.
func (l *ledger) syncFullness(ctx context.Context) error {
	if !l.policy.TracksFullness {
		return nil
	}
	current := MatchStatus(l.roster.Status)
	if current != MatchOpen && current != MatchFull {
		return nil
	}
	want := MatchOpen
	if l.confirmed() >= l.roster.MaxPlayers {
		want = MatchFull
	}
	if want == current {
		return nil
	}
	if err := l.tx.SetStatus(ctx, string(want)); err != nil {
		return err
	}
	l.roster.Status = string(want)
	return nil
}

func (l *ledger) event(eventType string, p Participant, admin bool) events.Event {
	return events.Event{
		Type:          eventType,
		AggregateType: l.roster.Ref.AggregateType(),
		AggregateID:   l.roster.Ref.ID,
		Payload: events.ParticipantChanged{
			RosterKind:    string(l.roster.Ref.Kind),
			RosterID:      l.roster.Ref.ID,
			ParticipantID: p.ID,
			UserID:        p.UserID,
			Status:        string(p.Status),
			Admin:         admin,
			OccurredAt:    l.now().UTC(),
			Version:       events.SchemaVersion,
		},
	}
}
