package models

import (
	"time"
)

type SessionStatus string

const (
	SessionStatusActive   SessionStatus = "active"
	SessionStatusArchived SessionStatus = "archived"
)

// VotingMode is a display policy; it never changes engine rules.
type VotingMode string

const (
	VotingModeAnonymous VotingMode = "anonymous"
	VotingModeOpen      VotingMode = "open"
)

// IsValid reports whether the mode is known.
func (m VotingMode) IsValid() bool {
	return m == VotingModeAnonymous || m == VotingModeOpen
}

type StorySource string

const (
	StorySourceManual          StorySource = "manual"
	StorySourceExternalTracker StorySource = "external-tracker"
)

type StoryStatus string

const (
	StoryStatusReady     StoryStatus = "ready"
	StoryStatusNotReady  StoryStatus = "not-ready"
	StoryStatusEstimated StoryStatus = "estimated"
)

// Participant is a member of a session. Presence is tracked by IsOnline; the
// record itself is never removed.
type Participant struct {
	UserID      string    `json:"userId" yaml:"userId"`
	DisplayName string    `json:"displayName" yaml:"displayName"`
	AvatarURL   string    `json:"avatarUrl,omitempty" yaml:"avatarUrl,omitempty"`
	IsOnline    bool      `json:"isOnline" yaml:"isOnline"`
	JoinedAt    time.Time `json:"joinedAt" yaml:"joinedAt"`
}

// Story is a work item estimated within a session.
type Story struct {
	ID          string      `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Source      StorySource `json:"source" yaml:"source"`
	ExternalKey string      `json:"externalKey,omitempty" yaml:"externalKey,omitempty"`
	ExternalURL string      `json:"externalUrl,omitempty" yaml:"externalUrl,omitempty"`
	Status      StoryStatus `json:"status" yaml:"status"`
	Order       int         `json:"order" yaml:"order"`
}

// IsExternal reports whether the story is linked to an external tracker issue.
func (s *Story) IsExternal() bool {
	return s.Source == StorySourceExternalTracker && s.ExternalKey != ""
}

// Session is a planning poker session.
type Session struct {
	SessionID      string         `json:"sessionId"`
	Title          string         `json:"title"`
	HostID         string         `json:"hostId"`
	Status         SessionStatus  `json:"status"`
	VotingMode     VotingMode     `json:"votingMode"`
	Participants   []*Participant `json:"participants"`
	Stories        []*Story       `json:"stories"`
	CurrentStoryID string         `json:"currentStoryId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	EndedAt        *time.Time     `json:"endedAt,omitempty"`
}

// IsActive returns true if the session still accepts mutations.
func (s *Session) IsActive() bool {
	return s.Status == SessionStatusActive
}

// IsHost returns true if userID hosts the session.
func (s *Session) IsHost(userID string) bool {
	return userID != "" && s.HostID == userID
}

// Participant returns the participant with the given user ID, or nil.
func (s *Session) Participant(userID string) *Participant {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Story returns the story with the given ID, or nil.
func (s *Session) Story(storyID string) *Story {
	for _, st := range s.Stories {
		if st.ID == storyID {
			return st
		}
	}
	return nil
}

// CurrentStory returns the selected story, or nil.
func (s *Session) CurrentStory() *Story {
	if s.CurrentStoryID == "" {
		return nil
	}
	return s.Story(s.CurrentStoryID)
}

// OnlineParticipants returns the participants currently connected.
func (s *Session) OnlineParticipants() []*Participant {
	var online []*Participant
	for _, p := range s.Participants {
		if p.IsOnline {
			online = append(online, p)
		}
	}
	return online
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := *s
	clone.Participants = make([]*Participant, len(s.Participants))
	for i, p := range s.Participants {
		pc := *p
		clone.Participants[i] = &pc
	}
	clone.Stories = make([]*Story, len(s.Stories))
	for i, st := range s.Stories {
		sc := *st
		clone.Stories[i] = &sc
	}
	if s.EndedAt != nil {
		endedAt := *s.EndedAt
		clone.EndedAt = &endedAt
	}
	return &clone
}
