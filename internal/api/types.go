package api

import (
	"encoding/json"
	"time"

	"github.com/wolfeidau/planpoker/internal/models"
)

type StoryInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ExternalKey string `json:"externalKey,omitempty"`
	ExternalURL string `json:"externalUrl,omitempty"`
	NotReady    bool   `json:"notReady,omitempty"`
}

type CreateSessionRequest struct {
	Title      string            `json:"title"`
	VotingMode models.VotingMode `json:"votingMode,omitempty"`
	Stories    []StoryInput      `json:"stories,omitempty"`
}

// SessionRequest addresses a session.
type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

// StoryRequest addresses a story within a session.
type StoryRequest struct {
	SessionID string `json:"sessionId"`
	StoryID   string `json:"storyId"`
}

type SessionResponse struct {
	Session *models.Session `json:"session"`
}

type AddStoryRequest struct {
	SessionID string     `json:"sessionId"`
	Story     StoryInput `json:"story"`
}

type AddStoryResponse struct {
	Story *models.Story `json:"story"`
}

type CastVoteRequest struct {
	SessionID string      `json:"sessionId"`
	StoryID   string      `json:"storyId"`
	Value     models.Card `json:"value"`
	Comment   string      `json:"comment,omitempty"`
}

type VoteStatusResponse struct {
	Status *models.VoteStatus `json:"status"`
}

type FinalizeRoundRequest struct {
	SessionID     string  `json:"sessionId"`
	StoryID       string  `json:"storyId"`
	FinalEstimate float64 `json:"finalEstimate"`
}

type RoundResponse struct {
	Round *models.RoundView `json:"round"`
}

type VoteHistoryResponse struct {
	Rounds []*models.RoundView `json:"rounds"`
}

type SummaryResponse struct {
	Summary *models.SessionSummary `json:"summary"`
}

// EventMessage is an event as received by clients. Payload is left encoded
// so callers decode it according to Type.
type EventMessage struct {
	Type      models.EventType `json:"type"`
	SessionID string           `json:"sessionId"`
	Sequence  int64            `json:"sequence"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   json.RawMessage  `json:"payload,omitempty"`
}

// DecodePayload unmarshals the payload into v.
func (m *EventMessage) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
