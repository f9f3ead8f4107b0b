package notify

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/planpoker/internal/models"
)

func TestLogDispatcher(t *testing.T) {
	var buf bytes.Buffer
	d := NewLogDispatcher(zerolog.New(&buf))

	session := &models.Session{SessionID: "s1", Title: "Sprint 9", HostID: "host"}

	t.Run("session ended", func(t *testing.T) {
		buf.Reset()
		err := d.SessionEnded(context.Background(), session, &models.SessionSummary{ParticipantCount: 3, TotalStories: 2})
		require.NoError(t, err)
		require.Contains(t, buf.String(), `"message":"Session ended"`)
		require.Contains(t, buf.String(), `"participants":3`)
	})

	t.Run("all voted", func(t *testing.T) {
		buf.Reset()
		round := &models.Estimate{StoryID: "st1", RoundNumber: 2, Votes: map[string]*models.Vote{"a": {}, "b": {}}}
		require.NoError(t, d.AllVoted(context.Background(), session, round))
		require.Contains(t, buf.String(), `"round":2`)
		require.Contains(t, buf.String(), `"votes":2`)
	})
}
