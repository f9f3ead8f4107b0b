package models

import (
	"sort"
	"time"
)

// TrackerSyncStatus records the outcome of pushing a final estimate to an
// external tracker. It never affects round rules.
type TrackerSyncStatus string

const (
	TrackerSyncNone    TrackerSyncStatus = ""
	TrackerSyncPending TrackerSyncStatus = "pending"
	TrackerSyncSynced  TrackerSyncStatus = "synced"
	TrackerSyncFailed  TrackerSyncStatus = "failed"
)

type RoundState string

const (
	RoundStateOpen      RoundState = "open"
	RoundStateRevealed  RoundState = "revealed"
	RoundStateFinalized RoundState = "finalized"
)

// Vote is a single participant's card in a round.
type Vote struct {
	UserID  string    `json:"userId" yaml:"userId"`
	Value   Card      `json:"value" yaml:"value"`
	Comment string    `json:"comment,omitempty" yaml:"comment,omitempty"`
	VotedAt time.Time `json:"votedAt" yaml:"votedAt"`
}

// Estimate is one voting round for a story, identified by
// (SessionID, StoryID, RoundNumber).
type Estimate struct {
	SessionID     string            `json:"sessionId"`
	StoryID       string            `json:"storyId"`
	RoundNumber   int               `json:"roundNumber"`
	Votes         map[string]*Vote  `json:"votes"`
	CreatedAt     time.Time         `json:"createdAt"`
	RevealedAt    *time.Time        `json:"revealedAt,omitempty"`
	FinalizedAt   *time.Time        `json:"finalizedAt,omitempty"`
	FinalEstimate *float64          `json:"finalEstimate,omitempty"`
	TrackerSync   TrackerSyncStatus `json:"trackerSync,omitempty"`
}

// NewEstimate creates an open round with no votes.
func NewEstimate(sessionID, storyID string, roundNumber int, now time.Time) *Estimate {
	return &Estimate{
		SessionID:   sessionID,
		StoryID:     storyID,
		RoundNumber: roundNumber,
		Votes:       make(map[string]*Vote),
		CreatedAt:   now,
	}
}

func (e *Estimate) IsOpen() bool {
	return e.RevealedAt == nil
}

func (e *Estimate) IsRevealed() bool {
	return e.RevealedAt != nil
}

func (e *Estimate) IsFinalized() bool {
	return e.FinalizedAt != nil
}

// State derives the round state from its timestamps.
func (e *Estimate) State() RoundState {
	switch {
	case e.IsFinalized():
		return RoundStateFinalized
	case e.IsRevealed():
		return RoundStateRevealed
	default:
		return RoundStateOpen
	}
}

// SortedVotes returns the votes ordered by VotedAt, then user ID.
func (e *Estimate) SortedVotes() []*Vote {
	votes := make([]*Vote, 0, len(e.Votes))
	for _, v := range e.Votes {
		votes = append(votes, v)
	}
	sort.Slice(votes, func(i, j int) bool {
		if votes[i].VotedAt.Equal(votes[j].VotedAt) {
			return votes[i].UserID < votes[j].UserID
		}
		return votes[i].VotedAt.Before(votes[j].VotedAt)
	})
	return votes
}

// Clone returns a deep copy of the estimate.
func (e *Estimate) Clone() *Estimate {
	clone := *e
	clone.Votes = make(map[string]*Vote, len(e.Votes))
	for id, v := range e.Votes {
		vc := *v
		clone.Votes[id] = &vc
	}
	if e.RevealedAt != nil {
		t := *e.RevealedAt
		clone.RevealedAt = &t
	}
	if e.FinalizedAt != nil {
		t := *e.FinalizedAt
		clone.FinalizedAt = &t
	}
	if e.FinalEstimate != nil {
		f := *e.FinalEstimate
		clone.FinalEstimate = &f
	}
	return &clone
}

// OpenRound returns the round accepting votes, or nil.
func OpenRound(rounds []*Estimate) *Estimate {
	for _, r := range rounds {
		if r.IsOpen() {
			return r
		}
	}
	return nil
}

// LatestRound returns the round with the highest round number, or nil.
func LatestRound(rounds []*Estimate) *Estimate {
	var latest *Estimate
	for _, r := range rounds {
		if latest == nil || r.RoundNumber > latest.RoundNumber {
			latest = r
		}
	}
	return latest
}
