package models

import "time"

// EventType names a broadcast event delivered to session channels.
type EventType string

const (
	EventParticipantJoined EventType = "participant-joined"
	EventParticipantLeft   EventType = "participant-left"
	EventStoryAdded        EventType = "story-added"
	EventStorySelected     EventType = "story-selected"
	EventVoteCast          EventType = "vote-cast"
	EventRoundRevealed     EventType = "round-revealed"
	EventRoundFinalized    EventType = "round-finalized"
	EventRoundRevote       EventType = "round-revote"
	EventSessionEnded      EventType = "session-ended"

	// EventSessionSnapshot is sent only to a newly connected channel and
	// carries the session state at the time it connected.
	EventSessionSnapshot EventType = "session-snapshot"
)

// Event is a domain event fanned out to every channel registered for a
// session. Sequence is assigned by the hub and increases per session.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

type ParticipantPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	IsOnline    bool   `json:"isOnline"`
}

type StoryPayload struct {
	Story *Story `json:"story,omitempty"`
}

// VoteCastPayload never carries the card value.
type VoteCastPayload struct {
	StoryID     string `json:"storyId"`
	RoundNumber int    `json:"roundNumber"`
	UserID      string `json:"userId"`
	HasVoted    bool   `json:"hasVoted"`
	VoteCount   int    `json:"voteCount"`
}

type RoundRevealedPayload struct {
	StoryID     string     `json:"storyId"`
	RoundNumber int        `json:"roundNumber"`
	Votes       []*Vote    `json:"votes"`
	Stats       RoundStats `json:"stats"`
	RevealedAt  time.Time  `json:"revealedAt"`
	VotingMode  VotingMode `json:"votingMode"`
}

type RoundFinalizedPayload struct {
	StoryID       string    `json:"storyId"`
	RoundNumber   int       `json:"roundNumber"`
	FinalEstimate float64   `json:"finalEstimate"`
	FinalizedAt   time.Time `json:"finalizedAt"`
}

type RoundRevotePayload struct {
	StoryID     string `json:"storyId"`
	RoundNumber int    `json:"roundNumber"`
}

type SessionEndedPayload struct {
	Summary *SessionSummary `json:"summary"`
}

type SessionSnapshotPayload struct {
	Session *Session `json:"session"`
}
