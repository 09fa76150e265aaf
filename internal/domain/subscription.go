package domain

import (
	"context"
	"errors"
	"fmt"
)

// UnsubscribeResult reports what an unsubscribe removed.
type UnsubscribeResult struct {
	Removed               bool
	ParticipationsRemoved int
}

// Subscribe records the user's standing interest in an activity.
func (s *Service) Subscribe(ctx context.Context, activityID, userID string) (*Subscription, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return nil, err
	}
	sub := Subscription{ActivityID: activityID, UserID: userID, CreatedAt: s.now().UTC()}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Unsubscribe removes the user from every future session of the activity,
// each through the regular leave path so vacancies are refilled, and then
// deletes the subscription. Past participation is kept. A missing
// subscription is not an error.
func (s *Service) Unsubscribe(ctx context.Context, activityID, userID string) (UnsubscribeResult, error) {
	if err := requireUser(userID); err != nil {
		return UnsubscribeResult{}, err
	}
	if _, err := s.GetActivity(ctx, activityID); err != nil {
		return UnsubscribeResult{}, err
	}

	sessionIDs, err := s.repo.FutureParticipations(ctx, activityID, userID, s.now())
	if err != nil {
		return UnsubscribeResult{}, err
	}

	var result UnsubscribeResult
	for _, sessionID := range sessionIDs {
		if _, err := s.Leave(ctx, SessionRef(sessionID), userID); err != nil {
			if errors.Is(err, ErrNotParticipant) || errors.Is(err, ErrNotFound) {
				continue
			}
			return result, fmt.Errorf("leave session %s: %w", sessionID, err)
		}
		result.ParticipationsRemoved++
	}

	removed, err := s.repo.DeleteSubscription(ctx, activityID, userID)
	if err != nil {
		return result, err
	}
	result.Removed = removed
	return result, nil
}

// ListSubscriptions returns the user's subscriptions, newest first.
func (s *Service) ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error) {
	if err := requireUser(userID); err != nil {
		return nil, err
	}
	return s.repo.ListSubscriptions(ctx, userID)
}
