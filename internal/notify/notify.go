// Package notify tells interested parties about session milestones.
package notify

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/planpoker/internal/models"
)

// Dispatcher receives session milestones. Implementations must not block for
// long; callers run them off the request path.
type Dispatcher interface {
	SessionEnded(ctx context.Context, session *models.Session, summary *models.SessionSummary) error
	AllVoted(ctx context.Context, session *models.Session, round *models.Estimate) error
}

// LogDispatcher writes milestones to the log.
type LogDispatcher struct {
	logger zerolog.Logger
}

// NewLogDispatcher creates a dispatcher writing to logger.
func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger.With().Str("component", "notify").Logger()}
}

func (d *LogDispatcher) SessionEnded(_ context.Context, session *models.Session, summary *models.SessionSummary) error {
	d.logger.Info().
		Str("session_id", session.SessionID).
		Str("title", session.Title).
		Str("host_id", session.HostID).
		Int("participants", summary.ParticipantCount).
		Int("stories", summary.TotalStories).
		Msg("Session ended")
	return nil
}

func (d *LogDispatcher) AllVoted(_ context.Context, session *models.Session, round *models.Estimate) error {
	d.logger.Info().
		Str("session_id", session.SessionID).
		Str("story_id", round.StoryID).
		Int("round", round.RoundNumber).
		Int("votes", len(round.Votes)).
		Msg("All online participants have voted")
	return nil
}
