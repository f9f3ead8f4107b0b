package commands

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/planpoker/cmd/cli/internal/credentials"
	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/auth"
	"github.com/wolfeidau/planpoker/internal/broadcast"
	"github.com/wolfeidau/planpoker/internal/client"
	"github.com/wolfeidau/planpoker/internal/engine"
	"github.com/wolfeidau/planpoker/internal/export"
	"github.com/wolfeidau/planpoker/internal/models"
	"github.com/wolfeidau/planpoker/internal/server"
	memorystore "github.com/wolfeidau/planpoker/internal/store/memory"
)

func TestConnectionFlags_config(t *testing.T) {
	t.Run("no credentials falls back to defaults", func(t *testing.T) {
		f := &ConnectionFlags{CredentialsDir: t.TempDir(), Timeout: time.Second}
		cfg, err := f.config(&Globals{})
		require.NoError(t, err)
		assert.Equal(t, client.DefaultConfig().ServerURL, cfg.ServerURL)
		assert.Equal(t, time.Second, cfg.Timeout)
	})

	t.Run("default credential is used when no flags are set", func(t *testing.T) {
		dir := t.TempDir()
		store, err := credentials.NewStore(dir)
		require.NoError(t, err)
		_, err = store.Save(credentials.Credential{Name: "work", ServerURL: "https://poker.example.com", Token: "tok"})
		require.NoError(t, err)

		f := &ConnectionFlags{CredentialsDir: dir}
		cfg, err := f.config(&Globals{})
		require.NoError(t, err)
		assert.Equal(t, "https://poker.example.com", cfg.ServerURL)
		assert.Equal(t, "tok", cfg.Token)
	})

	t.Run("flags override the named credential", func(t *testing.T) {
		dir := t.TempDir()
		store, err := credentials.NewStore(dir)
		require.NoError(t, err)
		_, err = store.Save(credentials.Credential{Name: "local", ServerURL: "http://localhost:9000", UserID: "alice", DisplayName: "Alice"})
		require.NoError(t, err)

		f := &ConnectionFlags{CredentialsDir: dir, Credential: "local", Token: "override"}
		cfg, err := f.config(&Globals{})
		require.NoError(t, err)
		assert.Equal(t, "http://localhost:9000", cfg.ServerURL)
		assert.Equal(t, "override", cfg.Token)
		assert.Equal(t, "alice", cfg.UserID)
		assert.Equal(t, "Alice", cfg.UserName)
	})

	t.Run("missing named credential fails", func(t *testing.T) {
		f := &ConnectionFlags{CredentialsDir: t.TempDir(), Credential: "nope"}
		_, err := f.config(&Globals{})
		require.ErrorIs(t, err, credentials.ErrCredentialNotFound)
	})
}

func TestCreateCmd_request(t *testing.T) {
	t.Run("yaml plan with flag overrides", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plan.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
title: Sprint 12
votingMode: anonymous
stories:
  - title: Login page
    externalKey: PP-1
    externalUrl: https://tracker.example.com/PP-1
  - title: Spike
    notReady: true
`), 0o600))

		c := &CreateCmd{Plan: path, Mode: "open", Story: []string{"Extra"}}
		req, err := c.request()
		require.NoError(t, err)
		assert.Equal(t, "Sprint 12", req.Title)
		assert.Equal(t, models.VotingModeOpen, req.VotingMode)
		require.Len(t, req.Stories, 3)
		assert.Equal(t, "PP-1", req.Stories[0].ExternalKey)
		assert.True(t, req.Stories[1].NotReady)
		assert.Equal(t, "Extra", req.Stories[2].Title)
	})

	t.Run("json plan", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plan.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"title":"From JSON","stories":[{"title":"A"}]}`), 0o600))

		req, err := (&CreateCmd{Plan: path}).request()
		require.NoError(t, err)
		assert.Equal(t, "From JSON", req.Title)
		require.Len(t, req.Stories, 1)
	})

	t.Run("title is required", func(t *testing.T) {
		_, err := (&CreateCmd{Story: []string{"A"}}).request()
		require.ErrorContains(t, err, "title is required")
	})
}

func TestParseCard(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Card
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "13", want: 13},
		{in: " 8 ", want: 8},
		{in: "?", want: models.CardUnknown},
		{in: "Coffee", want: models.CardBreak},
		{in: "break", want: models.CardBreak},
		{in: "4", wantErr: true},
		{in: "-1", want: models.CardUnknown},
		{in: "big", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseCard(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "?", cardLabel(models.CardUnknown))
	assert.Equal(t, "break", cardLabel(models.CardBreak))
	assert.Equal(t, "21", cardLabel(21))
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name    string
		msg     *api.EventMessage
		payload string
		want    string
	}{
		{
			name:    "vote cast",
			msg:     &api.EventMessage{Type: models.EventVoteCast, Sequence: 4},
			payload: `{"storyId":"st1","roundNumber":1,"userId":"alice","hasVoted":true,"voteCount":2}`,
			want:    "[10:30:00] #4 alice voted on st1 round 1 (2 votes)",
		},
		{
			name:    "revealed",
			msg:     &api.EventMessage{Type: models.EventRoundRevealed, Sequence: 5},
			payload: `{"storyId":"st1","roundNumber":1,"votes":[{"value":3},{"value":-1}],"stats":{"average":3}}`,
			want:    "[10:30:00] #5 revealed st1 round 1: [3 ?] avg 3.0",
		},
		{
			name:    "story cleared",
			msg:     &api.EventMessage{Type: models.EventStorySelected, Sequence: 6},
			payload: `{}`,
			want:    "[10:30:00] #6 current story cleared",
		},
		{
			name:    "snapshot",
			msg:     &api.EventMessage{Type: models.EventSessionSnapshot},
			payload: `{"session":{"title":"Sprint","stories":[{"id":"a"}],"participants":[{"userId":"h","isOnline":true},{"userId":"a"}]}}`,
			want:    `[10:30:00] connected to "Sprint" (1 stories, 1/2 online)`,
		},
		{
			name: "unknown type",
			msg:  &api.EventMessage{Type: "something-new", Sequence: 9},
			want: "[10:30:00] #9 something-new",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.msg.Timestamp = ts
			if tt.payload != "" {
				tt.msg.Payload = []byte(tt.payload)
			}
			assert.Equal(t, tt.want, formatEvent(tt.msg))
		})
	}
}

func TestExportAndVerify(t *testing.T) {
	hub := broadcast.NewHub(broadcast.Config{})
	t.Cleanup(hub.Stop)

	eng, err := engine.New(engine.Config{
		Sessions: memorystore.NewSessionStore(),
		Rounds:   memorystore.NewRoundStore(),
		Hub:      hub,
	})
	require.NoError(t, err)
	t.Cleanup(eng.Wait)

	ts := httptest.NewServer(server.NewServer(eng).Handler(auth.HeaderMiddleware()))
	t.Cleanup(ts.Close)

	ctx := context.Background()
	host := client.NewClient(client.Config{ServerURL: ts.URL, UserID: "host", UserName: "Host"})

	created, err := host.CreateSession(ctx, &api.CreateSessionRequest{
		Title:      "Sprint 12",
		VotingMode: models.VotingModeOpen,
		Stories:    []api.StoryInput{{Title: "Login page"}},
	})
	require.NoError(t, err)
	sessionID := created.Session.SessionID
	storyID := created.Session.Stories[0].ID

	conn := ConnectionFlags{Server: ts.URL, User: "host", Name: "Host", Timeout: 5 * time.Second}
	globals := &Globals{}

	require.NoError(t, (&VoteCmd{Conn: conn, SessionID: sessionID, StoryID: storyID, Card: "5"}).Run(ctx, globals))
	require.NoError(t, (&RevealCmd{Conn: conn, SessionID: sessionID, StoryID: storyID}).Run(ctx, globals))
	require.NoError(t, (&FinalizeCmd{Conn: conn, SessionID: sessionID, StoryID: storyID, Estimate: 5}).Run(ctx, globals))

	path := filepath.Join(t.TempDir(), "sprint.yaml.zst")
	require.NoError(t, (&ExportCmd{Conn: conn, SessionID: sessionID, Output: path}).Run(ctx, globals))
	require.NoError(t, (&VerifyCmd{Path: path}).Run(ctx, globals))

	doc, err := export.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Summary.Stories, 1)
	require.Equal(t, 5.0, *doc.Summary.Stories[0].FinalEstimate)
	require.Equal(t, "host", doc.Summary.Stories[0].Votes[0].UserID)

	err = (&VoteCmd{Conn: conn, SessionID: sessionID, StoryID: storyID, Card: "7"}).Run(ctx, globals)
	require.ErrorContains(t, err, "invalid card")
}
