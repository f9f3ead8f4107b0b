package engine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/planpoker/internal/broadcast"
	"github.com/wolfeidau/planpoker/internal/models"
)

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("host is first participant", func(t *testing.T) {
		f := newFixture(t)

		session, err := f.eng.CreateSession(ctx, host, CreateSessionInput{
			Title: "Sprint 42",
			Stories: []StoryInput{
				{Title: "Login page"},
				{Title: "Billing", ExternalKey: "PAY-7", ExternalURL: "https://tracker.example/PAY-7"},
			},
		})
		require.NoError(t, err)
		require.NotEmpty(t, session.SessionID)
		require.Equal(t, models.SessionStatusActive, session.Status)
		require.Equal(t, models.VotingModeAnonymous, session.VotingMode)
		require.Len(t, session.Participants, 1)
		require.Equal(t, host.UserID, session.Participants[0].UserID)
		require.True(t, session.Participants[0].IsOnline)

		require.Len(t, session.Stories, 2)
		require.Equal(t, models.StorySourceManual, session.Stories[0].Source)
		require.Equal(t, models.StorySourceExternalTracker, session.Stories[1].Source)
		require.Equal(t, 1, session.Stories[1].Order)
		require.Equal(t, models.StoryStatusReady, session.Stories[1].Status)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.eng.CreateSession(ctx, models.Identity{}, CreateSessionInput{Title: "x"})
		require.ErrorIs(t, err, ErrUnauthenticated)

		_, err = f.eng.CreateSession(ctx, host, CreateSessionInput{})
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.eng.CreateSession(ctx, host, CreateSessionInput{Title: strings.Repeat("a", 201)})
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.eng.CreateSession(ctx, host, CreateSessionInput{Title: "x", VotingMode: "secret"})
		require.ErrorIs(t, err, ErrInvalidInput)

		_, err = f.eng.CreateSession(ctx, host, CreateSessionInput{Title: "x", Stories: []StoryInput{{}}})
		require.ErrorIs(t, err, ErrInvalidInput)
	})
}

// Scenario D: leaving and rejoining toggles presence without duplicating
// the participant.
func TestJoinLeave_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.newSession(t, models.VotingModeOpen)
	id := session.SessionID

	require.Len(t, session.Participants, 2)

	sub, err := f.hub.Register(id, "observer")
	require.NoError(t, err)

	session, err = f.eng.LeaveSession(ctx, id, alice.UserID)
	require.NoError(t, err)
	require.Len(t, session.Participants, 2)
	require.False(t, session.Participant(alice.UserID).IsOnline)

	session, err = f.eng.JoinSession(ctx, id, alice)
	require.NoError(t, err)
	require.Len(t, session.Participants, 2)
	require.True(t, session.Participant(alice.UserID).IsOnline)

	// already online: no change, no event
	_, err = f.eng.JoinSession(ctx, id, alice)
	require.NoError(t, err)

	events := drainEvents(sub)
	require.Equal(t, []models.EventType{models.EventParticipantLeft, models.EventParticipantJoined}, eventTypes(events))
	require.Equal(t, alice.UserID, events[0].Payload.(models.ParticipantPayload).UserID)
	require.False(t, events[0].Payload.(models.ParticipantPayload).IsOnline)

	t.Run("leave by non participant", func(t *testing.T) {
		_, err := f.eng.LeaveSession(ctx, id, "mallory")
		require.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := f.eng.JoinSession(ctx, "missing", alice)
		require.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestStories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.newSession(t, models.VotingModeAnonymous, StoryInput{Title: "A"}, StoryInput{Title: "B"})
	id := session.SessionID
	storyA, storyB := session.Stories[0].ID, session.Stories[1].ID

	sub, err := f.hub.Register(id, "observer")
	require.NoError(t, err)

	t.Run("host only", func(t *testing.T) {
		_, err := f.eng.SelectStory(ctx, id, alice.UserID, storyA)
		require.ErrorIs(t, err, ErrNotHost)
		_, err = f.eng.ClearCurrentStory(ctx, id, alice.UserID)
		require.ErrorIs(t, err, ErrNotHost)
		_, err = f.eng.AddStory(ctx, id, alice.UserID, StoryInput{Title: "C"})
		require.ErrorIs(t, err, ErrNotHost)
	})

	t.Run("unknown story", func(t *testing.T) {
		_, err := f.eng.SelectStory(ctx, id, host.UserID, "nope")
		require.ErrorIs(t, err, ErrStoryNotFound)
	})

	t.Run("switching stories leaves open rounds alone", func(t *testing.T) {
		_, err := f.eng.SelectStory(ctx, id, host.UserID, storyA)
		require.NoError(t, err)
		_, err = f.eng.CastVote(ctx, CastVoteInput{SessionID: id, StoryID: storyA, UserID: alice.UserID, Value: 5})
		require.NoError(t, err)

		session, err := f.eng.SelectStory(ctx, id, host.UserID, storyB)
		require.NoError(t, err)
		require.Equal(t, storyB, session.CurrentStoryID)
		require.Len(t, session.Stories, 2)

		status, err := f.eng.GetVoteStatus(ctx, id, storyA, alice.UserID)
		require.NoError(t, err)
		require.Equal(t, models.RoundStateOpen, status.Round.State)
		require.Equal(t, 1, status.Round.VoteCount)

		session, err = f.eng.ClearCurrentStory(ctx, id, host.UserID)
		require.NoError(t, err)
		require.Empty(t, session.CurrentStoryID)
	})

	t.Run("add story", func(t *testing.T) {
		story, err := f.eng.AddStory(ctx, id, host.UserID, StoryInput{Title: "C", ExternalKey: "WEB-1"})
		require.NoError(t, err)
		require.Equal(t, 2, story.Order)
		require.True(t, story.IsExternal())

		session, err := f.eng.GetSession(ctx, id, alice.UserID)
		require.NoError(t, err)
		require.Len(t, session.Stories, 3)
	})

	events := drainEvents(sub)
	require.Equal(t, []models.EventType{
		models.EventStorySelected,
		models.EventVoteCast,
		models.EventStorySelected,
		models.EventStorySelected,
		models.EventStoryAdded,
	}, eventTypes(events))
	require.Nil(t, events[3].Payload.(models.StoryPayload).Story)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.newSession(t, models.VotingModeOpen, StoryInput{Title: "A"}, StoryInput{Title: "B"})
	id := session.SessionID
	storyA := session.Stories[0].ID

	_, err := f.eng.CastVote(ctx, CastVoteInput{SessionID: id, StoryID: storyA, UserID: alice.UserID, Value: 3})
	require.NoError(t, err)
	_, err = f.eng.RevealRound(ctx, id, storyA, host.UserID)
	require.NoError(t, err)
	_, err = f.eng.FinalizeRound(ctx, id, storyA, host.UserID, 3)
	require.NoError(t, err)

	sub, _, err := f.eng.Connect(ctx, id, bob)
	require.NoError(t, err)
	drainEvents(sub)

	_, err = f.eng.EndSession(ctx, id, alice.UserID)
	require.ErrorIs(t, err, ErrNotHost)

	summary, err := f.eng.EndSession(ctx, id, host.UserID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalStories)
	require.Equal(t, 3, summary.ParticipantCount)
	require.NotNil(t, summary.EndedAt)
	require.Equal(t, "A", summary.Stories[0].StoryTitle)
	require.Equal(t, 3.0, *summary.Stories[0].FinalEstimate)
	require.Equal(t, alice.UserID, summary.Stories[0].Votes[0].UserID)

	t.Run("terminal event then channel closes", func(t *testing.T) {
		ev, ok := <-sub.Events()
		require.True(t, ok)
		require.Equal(t, models.EventSessionEnded, ev.Type)
		require.Equal(t, summary, ev.Payload.(models.SessionEndedPayload).Summary)

		_, ok = <-sub.Events()
		require.False(t, ok)
		require.Equal(t, broadcast.CloseReasonSessionEnded, sub.Reason())

		// disconnecting after the end is quiet
		f.eng.Disconnect(ctx, sub)
	})

	t.Run("repeat end", func(t *testing.T) {
		_, err := f.eng.EndSession(ctx, id, host.UserID)
		require.ErrorIs(t, err, ErrAlreadyEnded)
	})

	t.Run("archived session rejects joins and mutations", func(t *testing.T) {
		_, err := f.eng.JoinSession(ctx, id, bob)
		require.ErrorIs(t, err, ErrSessionEnded)

		_, _, err = f.eng.Connect(ctx, id, bob)
		require.ErrorIs(t, err, ErrSessionEnded)

		_, err = f.eng.CastVote(ctx, CastVoteInput{SessionID: id, StoryID: storyA, UserID: alice.UserID, Value: 3})
		require.ErrorIs(t, err, ErrSessionInactive)

		_, err = f.eng.SelectStory(ctx, id, host.UserID, storyA)
		require.ErrorIs(t, err, ErrSessionInactive)
	})

	t.Run("export still works", func(t *testing.T) {
		exported, err := f.eng.ExportSession(ctx, id, alice.UserID)
		require.NoError(t, err)
		require.Equal(t, summary.TotalStories, exported.TotalStories)

		_, err = f.eng.ExportSession(ctx, id, "mallory")
		require.ErrorIs(t, err, ErrNotParticipant)
	})

	f.eng.Wait()
	require.Equal(t, []string{id}, f.notifier.ended)
}

func TestEndSession_RoundStoreFailureLeavesSessionActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.newSession(t, models.VotingModeOpen, StoryInput{Title: "A"})
	id := session.SessionID
	storyA := session.Stories[0].ID

	_, err := f.eng.CastVote(ctx, CastVoteInput{SessionID: id, StoryID: storyA, UserID: alice.UserID, Value: 5})
	require.NoError(t, err)
	_, err = f.eng.RevealRound(ctx, id, storyA, host.UserID)
	require.NoError(t, err)

	sub, _, err := f.eng.Connect(ctx, id, alice)
	require.NoError(t, err)
	drainEvents(sub)

	f.rounds.failList(errors.New("connection reset"))

	_, err = f.eng.EndSession(ctx, id, host.UserID)
	require.Error(t, err)
	require.Equal(t, KindInternal, KindOf(err))

	t.Run("session stays active and open to channels", func(t *testing.T) {
		got, err := f.eng.GetSession(ctx, id, host.UserID)
		require.NoError(t, err)
		require.True(t, got.IsActive())
		require.Nil(t, got.EndedAt)
		require.False(t, f.hub.IsClosed(id))
		require.Empty(t, drainEvents(sub))
	})

	f.rounds.failList(nil)

	t.Run("retry ends the session", func(t *testing.T) {
		summary, err := f.eng.EndSession(ctx, id, host.UserID)
		require.NoError(t, err)
		require.Equal(t, 1, summary.TotalStories)

		ev, ok := <-sub.Events()
		require.True(t, ok)
		require.Equal(t, models.EventSessionEnded, ev.Type)

		_, ok = <-sub.Events()
		require.False(t, ok)
		require.Equal(t, broadcast.CloseReasonSessionEnded, sub.Reason())
		require.True(t, f.hub.IsClosed(id))
	})

	f.eng.Wait()
	require.Equal(t, []string{id}, f.notifier.ended)
}

func TestExportSession_HidesOpenRoundsAndAnonymousVoters(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.newSession(t, models.VotingModeAnonymous, StoryInput{Title: "A"}, StoryInput{Title: "B"})
	id := session.SessionID
	storyA, storyB := session.Stories[0].ID, session.Stories[1].ID

	_, err := f.eng.CastVote(ctx, CastVoteInput{SessionID: id, StoryID: storyA, UserID: alice.UserID, Value: 8})
	require.NoError(t, err)
	_, err = f.eng.RevealRound(ctx, id, storyA, host.UserID)
	require.NoError(t, err)
	_, err = f.eng.CastVote(ctx, CastVoteInput{SessionID: id, StoryID: storyB, UserID: alice.UserID, Value: 13})
	require.NoError(t, err)

	summary, err := f.eng.ExportSession(ctx, id, host.UserID)
	require.NoError(t, err)
	require.Nil(t, summary.EndedAt)
	require.Len(t, summary.Stories, 1)
	require.Equal(t, storyA, summary.Stories[0].StoryID)
	require.Len(t, summary.Stories[0].Votes, 1)
	require.Empty(t, summary.Stories[0].Votes[0].UserID)
	require.Equal(t, models.Card(8), summary.Stories[0].Votes[0].Value)
}

func TestConnectDisconnect_Presence(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.newSession(t, models.VotingModeOpen)
	id := session.SessionID

	observer, err := f.hub.Register(id, "observer")
	require.NoError(t, err)

	tab1, snapshot, err := f.eng.Connect(ctx, id, bob)
	require.NoError(t, err)
	require.True(t, snapshot.Participant(bob.UserID).IsOnline)

	tab2, _, err := f.eng.Connect(ctx, id, bob)
	require.NoError(t, err)

	// the joining channel sees its own join
	joined := drainEvents(tab1)
	require.Equal(t, []models.EventType{models.EventParticipantJoined}, eventTypes(joined))

	f.eng.Disconnect(ctx, tab1)
	session, err = f.eng.GetSession(ctx, id, bob.UserID)
	require.NoError(t, err)
	require.True(t, session.Participant(bob.UserID).IsOnline)

	f.eng.Disconnect(ctx, tab2)
	session, err = f.eng.GetSession(ctx, id, bob.UserID)
	require.NoError(t, err)
	require.False(t, session.Participant(bob.UserID).IsOnline)
	require.Len(t, session.Participants, 3)

	require.Equal(t,
		[]models.EventType{models.EventParticipantJoined, models.EventParticipantLeft},
		eventTypes(drainEvents(observer)))

	t.Run("unknown session", func(t *testing.T) {
		_, _, err := f.eng.Connect(ctx, "missing", bob)
		require.ErrorIs(t, err, ErrSessionNotFound)
	})
}

func TestQueries_RequireParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	session := f.newSession(t, models.VotingModeOpen)
	id, storyID := session.SessionID, session.Stories[0].ID

	_, err := f.eng.GetSession(ctx, id, "mallory")
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.eng.GetSession(ctx, id, "")
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, err = f.eng.GetVoteStatus(ctx, id, storyID, "mallory")
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.eng.GetVoteHistory(ctx, id, "nope", alice.UserID)
	require.ErrorIs(t, err, ErrStoryNotFound)

	status, err := f.eng.GetVoteStatus(ctx, id, storyID, alice.UserID)
	require.NoError(t, err)
	require.Nil(t, status.Round)
	require.Nil(t, status.MyVote)
}
