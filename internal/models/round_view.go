package models

import "time"

// RoundView is a round as seen by participants. Votes and Stats are only
// populated once the round is revealed; before that only who has voted is
// visible.
type RoundView struct {
	StoryID       string            `json:"storyId"`
	RoundNumber   int               `json:"roundNumber"`
	State         RoundState        `json:"state"`
	Voters        []string          `json:"voters"`
	VoteCount     int               `json:"voteCount"`
	Votes         []*Vote           `json:"votes,omitempty"`
	Stats         *RoundStats       `json:"stats,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	RevealedAt    *time.Time        `json:"revealedAt,omitempty"`
	FinalizedAt   *time.Time        `json:"finalizedAt,omitempty"`
	FinalEstimate *float64          `json:"finalEstimate,omitempty"`
	TrackerSync   TrackerSyncStatus `json:"trackerSync,omitempty"`
}

// VoteStatus is the caller's view of the latest round of a story.
type VoteStatus struct {
	Round  *RoundView `json:"round,omitempty"`
	MyVote *Vote      `json:"myVote,omitempty"`
}
