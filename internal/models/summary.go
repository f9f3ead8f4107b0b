package models

import "time"

// RoundStats are computed over the numeric votes of a round.
type RoundStats struct {
	Average      float64 `json:"average" yaml:"average"`
	Min          float64 `json:"min" yaml:"min"`
	Max          float64 `json:"max" yaml:"max"`
	NumericVotes int     `json:"numericVotes" yaml:"numericVotes"`
	TotalVotes   int     `json:"totalVotes" yaml:"totalVotes"`
}

// StorySummary summarises the latest round of a story.
type StorySummary struct {
	StoryID       string   `json:"storyId" yaml:"storyId"`
	StoryTitle    string   `json:"storyTitle" yaml:"storyTitle"`
	RoundNumber   int      `json:"roundNumber" yaml:"roundNumber"`
	FinalEstimate *float64 `json:"finalEstimate,omitempty" yaml:"finalEstimate,omitempty"`
	Votes         []*Vote  `json:"votes" yaml:"votes"`
	Average       float64  `json:"average" yaml:"average"`
	Min           float64  `json:"min" yaml:"min"`
	Max           float64  `json:"max" yaml:"max"`
}

// SessionSummary is the roll-up produced when a session ends or is exported.
type SessionSummary struct {
	SessionID        string          `json:"sessionId" yaml:"sessionId"`
	Title            string          `json:"title" yaml:"title"`
	Stories          []*StorySummary `json:"stories" yaml:"stories"`
	Participants     []*Participant  `json:"participants" yaml:"participants"`
	ParticipantCount int             `json:"participantCount" yaml:"participantCount"`
	TotalStories     int             `json:"totalStories" yaml:"totalStories"`
	EndedAt          *time.Time      `json:"endedAt,omitempty" yaml:"endedAt,omitempty"`
}
