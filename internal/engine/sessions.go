package engine

import (
	"context"
	"errors"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/broadcast"
	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/stats"
)

// MaxTitleLength limits session and story titles.
const MaxTitleLength = 200

// StoryInput describes a story to add to a session.
type StoryInput struct {
	Title       string
	Description string
	// ExternalKey links the story to an issue in the external tracker.
	ExternalKey string
	ExternalURL string
	NotReady    bool
}

// CreateSessionInput describes a new session.
type CreateSessionInput struct {
	Title      string
	VotingMode models.VotingMode
	Stories    []StoryInput
}

// CreateSession creates an active session hosted by host, who becomes its
// first participant.
func (e *Engine) CreateSession(ctx context.Context, host models.Identity, in CreateSessionInput) (session *models.Session, err error) {
	defer e.track(ctx, "create_session")(&err)

	if host.UserID == "" {
		return nil, ErrUnauthenticated
	}
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	if in.VotingMode == "" {
		in.VotingMode = models.VotingModeAnonymous
	}
	if !in.VotingMode.IsValid() {
		return nil, invalidInput("voting mode must be anonymous or open")
	}

	sessionID, err := e.newID()
	if err != nil {
		return nil, err
	}

	now := e.now()
	session = &models.Session{
		SessionID:  sessionID,
		Title:      in.Title,
		HostID:     host.UserID,
		Status:     models.SessionStatusActive,
		VotingMode: in.VotingMode,
		Participants: []*models.Participant{{
			UserID:      host.UserID,
			DisplayName: host.DisplayName,
			AvatarURL:   host.AvatarURL,
			IsOnline:    true,
			JoinedAt:    now,
		}},
		CreatedAt: now,
	}

	for _, si := range in.Stories {
		story, err := e.newStory(si, len(session.Stories))
		if err != nil {
			return nil, err
		}
		session.Stories = append(session.Stories, story)
	}

	if err := e.sessions.CreateSession(ctx, session); err != nil {
		return nil, mapStoreError(err)
	}

	e.metrics.SessionsCreatedTotal.Add(ctx, 1)

	zerolog.Ctx(ctx).Info().
		Str("session_id", session.SessionID).
		Str("host_id", host.UserID).
		Int("stories", len(session.Stories)).
		Msg("Session created")

	return session, nil
}

// JoinSession adds who to the session, or marks them online if they are
// already a participant.
func (e *Engine) JoinSession(ctx context.Context, sessionID string, who models.Identity) (session *models.Session, err error) {
	defer e.track(ctx, "join_session")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	return e.joinLocked(ctx, sessionID, who)
}

// LeaveSession marks the participant offline. The participant record is kept.
func (e *Engine) LeaveSession(ctx context.Context, sessionID, userID string) (session *models.Session, err error) {
	defer e.track(ctx, "leave_session")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	return e.leaveLocked(ctx, sessionID, userID)
}

// Connect registers an event channel for who and joins them to the session.
// The caller must pass the subscription to Disconnect when the channel goes
// away.
func (e *Engine) Connect(ctx context.Context, sessionID string, who models.Identity) (*broadcast.Subscription, *models.Session, error) {
	unlock := e.lockSession(sessionID)
	defer unlock()

	current, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if !current.IsActive() {
		return nil, nil, ErrSessionEnded
	}

	sub, err := e.hub.Register(sessionID, who.UserID)
	if errors.Is(err, broadcast.ErrSessionClosed) {
		return nil, nil, ErrSessionEnded
	}
	if err != nil {
		return nil, nil, err
	}

	session, err := e.joinLocked(ctx, sessionID, who)
	if err != nil {
		e.hub.Unregister(sub)
		return nil, nil, err
	}

	return sub, session, nil
}

// Disconnect unregisters the channel. When it was the user's last channel the
// user is marked offline.
func (e *Engine) Disconnect(ctx context.Context, sub *broadcast.Subscription) {
	unlock := e.lockSession(sub.SessionID)
	defer unlock()

	if remaining := e.hub.Unregister(sub); remaining > 0 {
		return
	}

	_, err := e.leaveLocked(ctx, sub.SessionID, sub.UserID)
	if err != nil && !errors.Is(err, ErrSessionEnded) {
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("session_id", sub.SessionID).
			Str("user_id", sub.UserID).
			Msg("Failed to mark participant offline")
	}
}

func (e *Engine) joinLocked(ctx context.Context, sessionID string, who models.Identity) (*models.Session, error) {
	if who.UserID == "" {
		return nil, ErrUnauthenticated
	}

	changed := false
	session, err := e.updateSession(ctx, sessionID, func(s *models.Session) error {
		if !s.IsActive() {
			return ErrSessionEnded
		}

		p := s.Participant(who.UserID)
		if p == nil {
			s.Participants = append(s.Participants, &models.Participant{
				UserID:      who.UserID,
				DisplayName: who.DisplayName,
				AvatarURL:   who.AvatarURL,
				IsOnline:    true,
				JoinedAt:    e.now(),
			})
			changed = true
			return nil
		}

		if !p.IsOnline {
			p.IsOnline = true
			changed = true
		}
		if who.DisplayName != "" && who.DisplayName != p.DisplayName {
			p.DisplayName = who.DisplayName
			changed = true
		}
		if who.AvatarURL != "" && who.AvatarURL != p.AvatarURL {
			p.AvatarURL = who.AvatarURL
			changed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		e.publish(sessionID, participantEvent(models.EventParticipantJoined, session.Participant(who.UserID)))
	}

	return session, nil
}

func (e *Engine) leaveLocked(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}

	changed := false
	session, err := e.updateSession(ctx, sessionID, func(s *models.Session) error {
		if !s.IsActive() {
			return ErrSessionEnded
		}
		p, err := requireParticipant(s, userID)
		if err != nil {
			return err
		}
		if p.IsOnline {
			p.IsOnline = false
			changed = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		e.publish(sessionID, participantEvent(models.EventParticipantLeft, session.Participant(userID)))
	}

	return session, nil
}

// AddStory appends a story to the session. Host only.
func (e *Engine) AddStory(ctx context.Context, sessionID, callerID string, in StoryInput) (story *models.Story, err error) {
	defer e.track(ctx, "add_story")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	_, err = e.updateSession(ctx, sessionID, func(s *models.Session) error {
		if err := requireHost(s, callerID); err != nil {
			return err
		}
		if err := requireActive(s); err != nil {
			return err
		}

		st, err := e.newStory(in, len(s.Stories))
		if err != nil {
			return err
		}
		s.Stories = append(s.Stories, st)
		story = st
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(sessionID, models.Event{
		Type:    models.EventStoryAdded,
		Payload: models.StoryPayload{Story: cloneStory(story)},
	})

	return story, nil
}

// SelectStory makes storyID the current story. Rounds of the previously
// selected story are left as they are. Host only.
func (e *Engine) SelectStory(ctx context.Context, sessionID, callerID, storyID string) (session *models.Session, err error) {
	defer e.track(ctx, "select_story")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	session, err = e.updateSession(ctx, sessionID, func(s *models.Session) error {
		if err := requireHost(s, callerID); err != nil {
			return err
		}
		if err := requireActive(s); err != nil {
			return err
		}
		if _, err := requireStory(s, storyID); err != nil {
			return err
		}
		s.CurrentStoryID = storyID
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(sessionID, models.Event{
		Type:    models.EventStorySelected,
		Payload: models.StoryPayload{Story: cloneStory(session.CurrentStory())},
	})

	return session, nil
}

// ClearCurrentStory unsets the current story. Host only.
func (e *Engine) ClearCurrentStory(ctx context.Context, sessionID, callerID string) (session *models.Session, err error) {
	defer e.track(ctx, "clear_current_story")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	session, err = e.updateSession(ctx, sessionID, func(s *models.Session) error {
		if err := requireHost(s, callerID); err != nil {
			return err
		}
		if err := requireActive(s); err != nil {
			return err
		}
		s.CurrentStoryID = ""
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.publish(sessionID, models.Event{
		Type:    models.EventStorySelected,
		Payload: models.StoryPayload{},
	})

	return session, nil
}

// EndSession archives the session, broadcasts its summary and closes it to
// further channels. Host only.
func (e *Engine) EndSession(ctx context.Context, sessionID, callerID string) (summary *models.SessionSummary, err error) {
	defer e.track(ctx, "end_session")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireEndable(session, callerID); err != nil {
		return nil, err
	}

	// rounds are read before archiving so a store failure leaves the session
	// active and the call can be retried
	revealed, err := e.revealedRounds(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session, err = e.updateSession(ctx, sessionID, func(s *models.Session) error {
		if err := requireEndable(s, callerID); err != nil {
			return err
		}
		endedAt := e.now()
		s.Status = models.SessionStatusArchived
		s.EndedAt = &endedAt
		for _, p := range s.Participants {
			p.IsOnline = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	summary = e.buildSummary(session, revealed)

	e.publish(sessionID, models.Event{
		Type:    models.EventSessionEnded,
		Payload: models.SessionEndedPayload{Summary: summary},
	})
	e.hub.CloseSession(sessionID)

	e.metrics.SessionsEndedTotal.Add(ctx, 1)

	zerolog.Ctx(ctx).Info().
		Str("session_id", sessionID).
		Int("stories", summary.TotalStories).
		Msg("Session ended")

	e.goSideEffect(ctx, func(ctx context.Context) {
		if err := e.notifier.SessionEnded(ctx, session, summary); err != nil {
			e.metrics.NotificationErrors.Add(ctx, 1)
			log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to dispatch session ended notification")
		}
	})

	return summary, nil
}

// GetSession returns the session. Participants only.
func (e *Engine) GetSession(ctx context.Context, sessionID, callerID string) (*models.Session, error) {
	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireParticipant(session, callerID); err != nil {
		return nil, err
	}
	return session, nil
}

// ExportSession returns the session summary for active or archived sessions.
// Participants only.
func (e *Engine) ExportSession(ctx context.Context, sessionID, callerID string) (*models.SessionSummary, error) {
	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := requireParticipant(session, callerID); err != nil {
		return nil, err
	}
	return e.summarize(ctx, session)
}

func requireEndable(s *models.Session, callerID string) error {
	if err := requireHost(s, callerID); err != nil {
		return err
	}
	if !s.IsActive() {
		return ErrAlreadyEnded
	}
	return nil
}

// summarize builds the session summary from revealed rounds only, so votes of
// rounds still open stay hidden.
func (e *Engine) summarize(ctx context.Context, session *models.Session) (*models.SessionSummary, error) {
	revealed, err := e.revealedRounds(ctx, session.SessionID)
	if err != nil {
		return nil, err
	}
	return e.buildSummary(session, revealed), nil
}

func (e *Engine) revealedRounds(ctx context.Context, sessionID string) ([]*models.Estimate, error) {
	rounds, err := e.rounds.ListSessionRounds(ctx, sessionID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	var revealed []*models.Estimate
	for _, r := range rounds {
		if r.IsRevealed() {
			revealed = append(revealed, r)
		}
	}
	return revealed, nil
}

func (e *Engine) buildSummary(session *models.Session, revealed []*models.Estimate) *models.SessionSummary {
	summary := stats.Summarize(session, revealed, session.EndedAt)
	if session.VotingMode == models.VotingModeAnonymous {
		for _, st := range summary.Stories {
			st.Votes = redactVotes(st.Votes)
		}
	}
	return summary
}

func (e *Engine) newStory(in StoryInput, order int) (*models.Story, error) {
	if err := validateTitle(in.Title); err != nil {
		return nil, err
	}
	id, err := e.newID()
	if err != nil {
		return nil, err
	}

	story := &models.Story{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Source:      models.StorySourceManual,
		Status:      models.StoryStatusReady,
		Order:       order,
	}
	if in.ExternalKey != "" {
		story.Source = models.StorySourceExternalTracker
		story.ExternalKey = in.ExternalKey
		story.ExternalURL = in.ExternalURL
	}
	if in.NotReady {
		story.Status = models.StoryStatusNotReady
	}
	return story, nil
}

func validateTitle(title string) error {
	if title == "" {
		return invalidInput("title is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return invalidInput("title exceeds 200 characters")
	}
	return nil
}

func participantEvent(typ models.EventType, p *models.Participant) models.Event {
	return models.Event{
		Type: typ,
		Payload: models.ParticipantPayload{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			AvatarURL:   p.AvatarURL,
			IsOnline:    p.IsOnline,
		},
	}
}

func cloneStory(s *models.Story) *models.Story {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
