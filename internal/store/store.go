package store

import (
	"context"
	"errors"
	"sort"

	"github.com/wolfeidau/planpoker/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrSessionExists     = errors.New("session already exists")
	ErrOpenRoundExists   = errors.New("story already has an open round")
	ErrRoundNumberExists = errors.New("round number already exists for story")
	ErrInvalidRound      = errors.New("invalid round")
)

// SessionStore persists sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// UpdateSession applies fn to the stored session under exclusive access and
	// persists the result when fn returns nil. The returned session is a copy.
	UpdateSession(ctx context.Context, sessionID string, fn func(*models.Session) error) (*models.Session, error)
}

// RoundStore persists estimates (voting rounds) and their votes.
type RoundStore interface {
	// ListRounds returns the rounds for a story ordered by round number.
	ListRounds(ctx context.Context, sessionID, storyID string) ([]*models.Estimate, error)

	// ListSessionRounds returns every round in the session ordered by story then round number.
	ListSessionRounds(ctx context.Context, sessionID string) ([]*models.Estimate, error)

	// UpdateRounds runs fn with copies of the story's rounds under exclusive
	// access. Rounds returned by fn are inserted or replaced. The store rejects
	// changes that would leave more than one open round for the story.
	UpdateRounds(ctx context.Context, sessionID, storyID string, fn RoundUpdateFunc) error
}

// RoundUpdateFunc receives the current rounds and returns the rounds to upsert.
type RoundUpdateFunc func(rounds []*models.Estimate) ([]*models.Estimate, error)

// ValidateRounds checks the per-story round invariants on the merged set.
func ValidateRounds(rounds []*models.Estimate) error {
	open := 0
	seen := make(map[int]bool, len(rounds))
	for _, r := range rounds {
		if r.RoundNumber < 1 {
			return ErrInvalidRound
		}
		if r.FinalizedAt != nil && r.RevealedAt == nil {
			return ErrInvalidRound
		}
		if seen[r.RoundNumber] {
			return ErrRoundNumberExists
		}
		seen[r.RoundNumber] = true
		if r.IsOpen() {
			open++
		}
	}
	if open > 1 {
		return ErrOpenRoundExists
	}
	return nil
}

// MergeRounds upserts changed rounds into current by round number, returning
// the merged set ordered by round number.
func MergeRounds(current, changed []*models.Estimate) []*models.Estimate {
	byNumber := make(map[int]*models.Estimate, len(current)+len(changed))
	for _, r := range current {
		byNumber[r.RoundNumber] = r
	}
	for _, r := range changed {
		byNumber[r.RoundNumber] = r
	}
	merged := make([]*models.Estimate, 0, len(byNumber))
	for _, r := range byNumber {
		merged = append(merged, r)
	}
	SortRounds(merged)
	return merged
}

// SortRounds orders rounds by story then round number.
func SortRounds(rounds []*models.Estimate) {
	sort.Slice(rounds, func(i, j int) bool {
		if rounds[i].StoryID != rounds[j].StoryID {
			return rounds[i].StoryID < rounds[j].StoryID
		}
		return rounds[i].RoundNumber < rounds[j].RoundNumber
	})
}
