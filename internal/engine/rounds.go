package engine

import (
	"context"
	"errors"
	"math"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/stats"
	"github.com/wolfeidau/planpoker/internal/tracker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CastVoteInput is a participant's vote.
type CastVoteInput struct {
	SessionID string
	StoryID   string
	UserID    string
	Value     models.Card
	Comment   string
}

// CastVote records the caller's vote in the story's open round, creating
// round 1 when the story has no rounds yet. Voting again replaces the
// previous vote.
func (e *Engine) CastVote(ctx context.Context, in CastVoteInput) (status *models.VoteStatus, err error) {
	defer e.track(ctx, "cast_vote")(&err)

	unlock := e.lockSession(in.SessionID)
	defer unlock()

	session, err := e.loadSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := requireActive(session); err != nil {
		return nil, err
	}
	if _, err := requireParticipant(session, in.UserID); err != nil {
		return nil, err
	}
	if _, err := requireStory(session, in.StoryID); err != nil {
		return nil, err
	}
	if !in.Value.IsValid() {
		return nil, ErrInvalidValue
	}
	if utf8.RuneCountInString(in.Comment) > models.MaxCommentLength {
		return nil, ErrCommentTooLong
	}

	var (
		round    *models.Estimate
		newVoter bool
	)
	err = e.updateRounds(ctx, in.SessionID, in.StoryID, func(rounds []*models.Estimate) ([]*models.Estimate, error) {
		now := e.now()

		round = models.OpenRound(rounds)
		if round == nil {
			if len(rounds) > 0 {
				return nil, ErrRoundClosed
			}
			round = models.NewEstimate(in.SessionID, in.StoryID, 1, now)
		}

		_, existed := round.Votes[in.UserID]
		newVoter = !existed
		round.Votes[in.UserID] = &models.Vote{
			UserID:  in.UserID,
			Value:   in.Value,
			Comment: in.Comment,
			VotedAt: now,
		}
		return []*models.Estimate{round}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.VotesCastTotal.Add(ctx, 1)

	e.publish(in.SessionID, models.Event{
		Type: models.EventVoteCast,
		Payload: models.VoteCastPayload{
			StoryID:     in.StoryID,
			RoundNumber: round.RoundNumber,
			UserID:      in.UserID,
			HasVoted:    true,
			VoteCount:   len(round.Votes),
		},
	})

	if newVoter && allOnlineVoted(session, round) {
		e.goSideEffect(ctx, func(ctx context.Context) {
			if err := e.notifier.AllVoted(ctx, session, round); err != nil {
				e.metrics.NotificationErrors.Add(ctx, 1)
				log.Warn().Err(err).Str("session_id", in.SessionID).Msg("Failed to dispatch all voted notification")
			}
		})
	}

	mine := *round.Votes[in.UserID]
	return &models.VoteStatus{
		Round:  newRoundView(round, session.VotingMode),
		MyVote: &mine,
	}, nil
}

// RevealRound freezes the story's open round and broadcasts its votes and
// statistics. Host only. Revealing with no votes is allowed.
func (e *Engine) RevealRound(ctx context.Context, sessionID, storyID, callerID string) (view *models.RoundView, err error) {
	defer e.track(ctx, "reveal_round")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(session, callerID); err != nil {
		return nil, err
	}
	if err := requireActive(session); err != nil {
		return nil, err
	}
	story, err := requireStory(session, storyID)
	if err != nil {
		return nil, err
	}

	var round *models.Estimate
	err = e.updateRounds(ctx, sessionID, storyID, func(rounds []*models.Estimate) ([]*models.Estimate, error) {
		if len(rounds) == 0 {
			return nil, ErrRoundNotFound
		}
		round = models.OpenRound(rounds)
		if round == nil {
			return nil, ErrAlreadyRevealed
		}
		revealedAt := e.now()
		round.RevealedAt = &revealedAt
		return []*models.Estimate{round}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RoundsRevealedTotal.Add(ctx, 1)

	view = newRoundView(round, session.VotingMode)
	e.publish(sessionID, models.Event{
		Type: models.EventRoundRevealed,
		Payload: models.RoundRevealedPayload{
			StoryID:     storyID,
			RoundNumber: round.RoundNumber,
			Votes:       view.Votes,
			Stats:       *view.Stats,
			RevealedAt:  *round.RevealedAt,
			VotingMode:  session.VotingMode,
		},
	})

	if story.IsExternal() {
		if comments := voteComments(round, session); len(comments) > 0 {
			e.goSideEffect(ctx, func(ctx context.Context) {
				e.postComments(ctx, story.ExternalKey, comments)
			})
		}
	}

	return view, nil
}

// FinalizeRound records the agreed estimate on the story's revealed round and
// marks the story estimated. Host only. External stories are synced to the
// tracker in the background; the outcome is kept in the round's TrackerSync.
func (e *Engine) FinalizeRound(ctx context.Context, sessionID, storyID, callerID string, finalEstimate float64) (view *models.RoundView, err error) {
	defer e.track(ctx, "finalize_round")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(session, callerID); err != nil {
		return nil, err
	}
	if err := requireActive(session); err != nil {
		return nil, err
	}
	story, err := requireStory(session, storyID)
	if err != nil {
		return nil, err
	}
	if finalEstimate < 0 || math.IsNaN(finalEstimate) || math.IsInf(finalEstimate, 0) {
		return nil, ErrInvalidEstimate
	}

	var round *models.Estimate
	err = e.updateRounds(ctx, sessionID, storyID, func(rounds []*models.Estimate) ([]*models.Estimate, error) {
		round = models.LatestRound(rounds)
		switch {
		case round == nil:
			return nil, ErrRoundNotFound
		case round.IsFinalized():
			return nil, ErrAlreadyFinalized
		case !round.IsRevealed():
			return nil, ErrRoundNotRevealed
		}

		finalizedAt := e.now()
		round.FinalizedAt = &finalizedAt
		round.FinalEstimate = &finalEstimate
		if story.IsExternal() {
			round.TrackerSync = models.TrackerSyncPending
		}
		return []*models.Estimate{round}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RoundsFinalizedTotal.Add(ctx, 1)

	// the round is authoritative; story status follows it
	_, err = e.updateSession(ctx, sessionID, func(s *models.Session) error {
		if st := s.Story(storyID); st != nil {
			st.Status = models.StoryStatusEstimated
		}
		return nil
	})
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("session_id", sessionID).
			Str("story_id", storyID).
			Msg("Failed to mark story estimated")
	}

	e.publish(sessionID, models.Event{
		Type: models.EventRoundFinalized,
		Payload: models.RoundFinalizedPayload{
			StoryID:       storyID,
			RoundNumber:   round.RoundNumber,
			FinalEstimate: finalEstimate,
			FinalizedAt:   *round.FinalizedAt,
		},
	})

	if story.IsExternal() {
		roundNumber := round.RoundNumber
		e.goSideEffect(ctx, func(ctx context.Context) {
			e.syncEstimate(ctx, sessionID, story, roundNumber, finalEstimate)
		})
	}

	return newRoundView(round, session.VotingMode), nil
}

// StartRevote opens a new round after the latest one was revealed but not
// finalized. Host only. A story gets at most models.MaxRounds rounds.
func (e *Engine) StartRevote(ctx context.Context, sessionID, storyID, callerID string) (view *models.RoundView, err error) {
	defer e.track(ctx, "start_revote")(&err)

	unlock := e.lockSession(sessionID)
	defer unlock()

	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := requireHost(session, callerID); err != nil {
		return nil, err
	}
	if err := requireActive(session); err != nil {
		return nil, err
	}
	if _, err := requireStory(session, storyID); err != nil {
		return nil, err
	}

	var next *models.Estimate
	err = e.updateRounds(ctx, sessionID, storyID, func(rounds []*models.Estimate) ([]*models.Estimate, error) {
		latest := models.LatestRound(rounds)
		switch {
		case latest == nil:
			return nil, ErrRoundNotFound
		case latest.RoundNumber >= models.MaxRounds:
			return nil, ErrMaxRoundsReached
		case latest.IsFinalized():
			return nil, ErrAlreadyFinalized
		case !latest.IsRevealed():
			return nil, ErrRoundNotRevealed
		}

		next = models.NewEstimate(sessionID, storyID, latest.RoundNumber+1, e.now())
		return []*models.Estimate{next}, nil
	})
	if err != nil {
		return nil, err
	}

	e.metrics.RevotesTotal.Add(ctx, 1)

	e.publish(sessionID, models.Event{
		Type: models.EventRoundRevote,
		Payload: models.RoundRevotePayload{
			StoryID:     storyID,
			RoundNumber: next.RoundNumber,
		},
	})

	return newRoundView(next, session.VotingMode), nil
}

// GetVoteStatus returns the latest round of the story and the caller's own
// vote in it. Round is nil when nobody has voted on the story yet.
func (e *Engine) GetVoteStatus(ctx context.Context, sessionID, storyID, callerID string) (*models.VoteStatus, error) {
	session, rounds, err := e.readRounds(ctx, sessionID, storyID, callerID)
	if err != nil {
		return nil, err
	}

	status := &models.VoteStatus{}
	latest := models.LatestRound(rounds)
	if latest == nil {
		return status, nil
	}
	status.Round = newRoundView(latest, session.VotingMode)
	if v, ok := latest.Votes[callerID]; ok {
		mine := *v
		status.MyVote = &mine
	}
	return status, nil
}

// GetVoteHistory returns every round of the story in round order.
func (e *Engine) GetVoteHistory(ctx context.Context, sessionID, storyID, callerID string) ([]*models.RoundView, error) {
	session, rounds, err := e.readRounds(ctx, sessionID, storyID, callerID)
	if err != nil {
		return nil, err
	}

	views := make([]*models.RoundView, 0, len(rounds))
	for _, r := range rounds {
		views = append(views, newRoundView(r, session.VotingMode))
	}
	return views, nil
}

func (e *Engine) readRounds(ctx context.Context, sessionID, storyID, callerID string) (*models.Session, []*models.Estimate, error) {
	session, err := e.loadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := requireParticipant(session, callerID); err != nil {
		return nil, nil, err
	}
	if _, err := requireStory(session, storyID); err != nil {
		return nil, nil, err
	}

	rounds, err := e.rounds.ListRounds(ctx, sessionID, storyID)
	if err != nil {
		return nil, nil, mapStoreError(err)
	}
	return session, rounds, nil
}

func (e *Engine) syncEstimate(ctx context.Context, sessionID string, story *models.Story, roundNumber int, estimate float64) {
	logger := log.With().
		Str("session_id", sessionID).
		Str("story_id", story.ID).
		Str("issue", story.ExternalKey).
		Int("round", roundNumber).
		Logger()

	e.metrics.TrackerSyncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "estimate")))

	status := models.TrackerSyncSynced
	err := e.tracker.SyncEstimate(ctx, story.ExternalKey, estimate)
	switch {
	case errors.Is(err, tracker.ErrNotConfigured):
		logger.Debug().Msg("Tracker not configured, skipping estimate sync")
		status = models.TrackerSyncNone
	case err != nil:
		e.metrics.TrackerSyncErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "estimate")))
		logger.Warn().Err(err).Msg("Failed to sync estimate to tracker")
		status = models.TrackerSyncFailed
	default:
		logger.Info().Float64("estimate", estimate).Msg("Estimate synced to tracker")
	}

	err = e.rounds.UpdateRounds(ctx, sessionID, story.ID, func(rounds []*models.Estimate) ([]*models.Estimate, error) {
		for _, r := range rounds {
			if r.RoundNumber == roundNumber {
				r.TrackerSync = status
				return []*models.Estimate{r}, nil
			}
		}
		return nil, nil
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to record tracker sync status")
	}
}

func (e *Engine) postComments(ctx context.Context, issueKey string, comments []tracker.Comment) {
	e.metrics.TrackerSyncTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "comments")))

	err := e.tracker.PostComments(ctx, issueKey, comments)
	switch {
	case errors.Is(err, tracker.ErrNotConfigured):
		log.Debug().Str("issue", issueKey).Msg("Tracker not configured, skipping comments")
	case err != nil:
		e.metrics.TrackerSyncErrorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "comments")))
		log.Warn().Err(err).Str("issue", issueKey).Msg("Failed to post vote comments to tracker")
	}
}

// newRoundView projects a round for participants. Vote values are only
// exposed once revealed, and voter identities are stripped from revealed
// votes in anonymous mode.
func newRoundView(r *models.Estimate, mode models.VotingMode) *models.RoundView {
	view := &models.RoundView{
		StoryID:     r.StoryID,
		RoundNumber: r.RoundNumber,
		State:       r.State(),
		VoteCount:   len(r.Votes),
		CreatedAt:   r.CreatedAt,
		RevealedAt:  r.RevealedAt,
		FinalizedAt: r.FinalizedAt,
		TrackerSync: r.TrackerSync,
	}
	if r.FinalEstimate != nil {
		f := *r.FinalEstimate
		view.FinalEstimate = &f
	}

	sorted := r.SortedVotes()
	view.Voters = make([]string, 0, len(sorted))
	for _, v := range sorted {
		view.Voters = append(view.Voters, v.UserID)
	}

	if r.IsRevealed() {
		rs := stats.Round(sorted)
		view.Stats = &rs

		votes := make([]*models.Vote, len(sorted))
		for i, v := range sorted {
			vc := *v
			votes[i] = &vc
		}
		if mode == models.VotingModeAnonymous {
			votes = redactVotes(votes)
		}
		view.Votes = votes
	}
	return view
}

// redactVotes strips voter identities. The input is not modified.
func redactVotes(votes []*models.Vote) []*models.Vote {
	out := make([]*models.Vote, len(votes))
	for i, v := range votes {
		vc := *v
		vc.UserID = ""
		out[i] = &vc
	}
	return out
}

func allOnlineVoted(session *models.Session, round *models.Estimate) bool {
	online := session.OnlineParticipants()
	if len(online) == 0 {
		return false
	}
	for _, p := range online {
		if _, ok := round.Votes[p.UserID]; !ok {
			return false
		}
	}
	return true
}

func voteComments(round *models.Estimate, session *models.Session) []tracker.Comment {
	var comments []tracker.Comment
	for _, v := range round.SortedVotes() {
		if v.Comment == "" {
			continue
		}
		c := tracker.Comment{Body: v.Comment}
		if session.VotingMode == models.VotingModeOpen {
			c.Author = v.UserID
			if p := session.Participant(v.UserID); p != nil && p.DisplayName != "" {
				c.Author = p.DisplayName
			}
		}
		comments = append(comments, c)
	}
	return comments
}
