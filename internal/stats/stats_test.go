package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/planpoker/internal/models"
)

func votes(values ...models.Card) []*models.Vote {
	out := make([]*models.Vote, len(values))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		out[i] = &models.Vote{UserID: string(rune('a' + i)), Value: v, VotedAt: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestRound(t *testing.T) {
	t.Run("single vote", func(t *testing.T) {
		st := Round(votes(5))
		require.Equal(t, 5.0, st.Average)
		require.Equal(t, 5.0, st.Min)
		require.Equal(t, 5.0, st.Max)
		require.Equal(t, 1, st.NumericVotes)
	})

	t.Run("average rounds to one decimal", func(t *testing.T) {
		st := Round(votes(1, 2, 2))
		require.Equal(t, 1.7, st.Average)
		require.Equal(t, 1.0, st.Min)
		require.Equal(t, 2.0, st.Max)
	})

	t.Run("sentinels are excluded", func(t *testing.T) {
		st := Round(votes(3, models.CardUnknown, 8, models.CardBreak))
		require.Equal(t, 5.5, st.Average)
		require.Equal(t, 3.0, st.Min)
		require.Equal(t, 8.0, st.Max)
		require.Equal(t, 2, st.NumericVotes)
		require.Equal(t, 4, st.TotalVotes)
	})

	t.Run("only sentinels yields zeros", func(t *testing.T) {
		st := Round(votes(models.CardUnknown, models.CardBreak))
		require.Equal(t, models.RoundStats{TotalVotes: 2}, st)
	})

	t.Run("no votes yields zeros", func(t *testing.T) {
		require.Equal(t, models.RoundStats{}, Round(nil))
	})

	t.Run("zero is a numeric vote", func(t *testing.T) {
		st := Round(votes(0, 13))
		require.Equal(t, 0.0, st.Min)
		require.Equal(t, 13.0, st.Max)
		require.Equal(t, 6.5, st.Average)
	})
}

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	session := &models.Session{
		SessionID: "s1",
		Title:     "Sprint 12",
		Participants: []*models.Participant{
			{UserID: "host"}, {UserID: "p1"},
		},
		Stories: []*models.Story{
			{ID: "x", Title: "Story X"},
			{ID: "y", Title: "Story Y"},
			{ID: "z", Title: "Story Z"},
		},
	}

	final := 8.0
	r1 := models.NewEstimate("s1", "y", 1, now)
	r1.Votes["p1"] = &models.Vote{UserID: "p1", Value: 3, VotedAt: now}
	r1.RevealedAt = &now
	r2 := models.NewEstimate("s1", "y", 2, now)
	r2.Votes["p1"] = &models.Vote{UserID: "p1", Value: 8, VotedAt: now}
	r2.Votes["host"] = &models.Vote{UserID: "host", Value: 5, VotedAt: now.Add(time.Second)}
	r2.RevealedAt = &now
	r2.FinalizedAt = &now
	r2.FinalEstimate = &final
	rx := models.NewEstimate("s1", "x", 1, now)

	ended := now.Add(time.Hour)
	summary := Summarize(session, []*models.Estimate{r2, rx, r1}, &ended)

	require.Equal(t, "s1", summary.SessionID)
	require.Equal(t, 2, summary.ParticipantCount)
	require.Equal(t, 2, summary.TotalStories)
	require.Equal(t, ended, *summary.EndedAt)
	require.Len(t, summary.Stories, 2)

	require.Equal(t, "x", summary.Stories[0].StoryID)
	require.Empty(t, summary.Stories[0].Votes)
	require.Nil(t, summary.Stories[0].FinalEstimate)

	y := summary.Stories[1]
	require.Equal(t, "Story Y", y.StoryTitle)
	require.Equal(t, 2, y.RoundNumber)
	require.Equal(t, 8.0, *y.FinalEstimate)
	require.Equal(t, 6.5, y.Average)
	require.Equal(t, 5.0, y.Min)
	require.Equal(t, 8.0, y.Max)
	require.Len(t, y.Votes, 2)

	t.Run("inputs are not mutated", func(t *testing.T) {
		y.Votes[0].Value = 21
		require.Equal(t, models.Card(8), r2.Votes["p1"].Value)
		again := Summarize(session, []*models.Estimate{r2, rx, r1}, &ended)
		require.Equal(t, 6.5, again.Stories[1].Average)
	})
}
