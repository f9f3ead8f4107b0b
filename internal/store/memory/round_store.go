package memory

import (
	"context"
	"sync"

	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/store"
)

type roundKey struct {
	sessionID string
	storyID   string
}

// RoundStore implements store.RoundStore using in-memory storage.
type RoundStore struct {
	mu sync.RWMutex

	rounds   map[roundKey][]*models.Estimate // (session, story) -> rounds ordered by number
	sessions map[string][]string             // session_id -> story IDs with rounds
}

// NewRoundStore creates a new in-memory round store.
func NewRoundStore() *RoundStore {
	return &RoundStore{
		rounds:   make(map[roundKey][]*models.Estimate),
		sessions: make(map[string][]string),
	}
}

// ListRounds returns copies of a story's rounds ordered by round number.
func (s *RoundStore) ListRounds(ctx context.Context, sessionID, storyID string) ([]*models.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return cloneRounds(s.rounds[roundKey{sessionID, storyID}]), nil
}

// ListSessionRounds returns copies of every round in the session.
func (s *RoundStore) ListSessionRounds(ctx context.Context, sessionID string) ([]*models.Estimate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*models.Estimate
	for _, storyID := range s.sessions[sessionID] {
		all = append(all, cloneRounds(s.rounds[roundKey{sessionID, storyID}])...)
	}
	store.SortRounds(all)
	return all, nil
}

// UpdateRounds runs fn under the store lock and upserts the rounds it returns.
func (s *RoundStore) UpdateRounds(ctx context.Context, sessionID, storyID string, fn store.RoundUpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := roundKey{sessionID, storyID}
	current := s.rounds[key]

	changed, err := fn(cloneRounds(current))
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}

	for _, r := range changed {
		if r.SessionID != sessionID || r.StoryID != storyID {
			return store.ErrInvalidRound
		}
	}

	merged := store.MergeRounds(current, cloneRounds(changed))
	if err := store.ValidateRounds(merged); err != nil {
		return err
	}

	if len(current) == 0 {
		s.sessions[sessionID] = append(s.sessions[sessionID], storyID)
	}
	s.rounds[key] = merged
	return nil
}

func cloneRounds(rounds []*models.Estimate) []*models.Estimate {
	out := make([]*models.Estimate, len(rounds))
	for i, r := range rounds {
		out[i] = r.Clone()
	}
	return out
}
