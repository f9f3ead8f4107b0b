package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"connectrpc.com/connect"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/models"
)

type WatchCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID to watch"`
}

func (w *WatchCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := w.Conn.streamClient(globals)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stream, err := cl.StreamEvents(ctx, &api.SessionRequest{SessionID: w.SessionID})
	if err != nil {
		return fmt.Errorf("failed to create event stream: %w", err)
	}
	defer stream.Close()

	fmt.Printf("Streaming events for session %s:\n", w.SessionID)
	fmt.Println(strings.Repeat("=", 50))

	for stream.Receive() {
		msg := stream.Msg()
		log.Debug().
			Str("type", string(msg.Type)).
			Int64("sequence", msg.Sequence).
			Msg("event received")

		fmt.Println(formatEvent(msg))

		if msg.Type == models.EventSessionEnded {
			return nil
		}
	}

	err = stream.Err()
	switch {
	case err == nil, errors.Is(ctx.Err(), context.Canceled):
		fmt.Println("Watch finished")
		return nil
	case connect.CodeOf(err) == connect.CodeResourceExhausted:
		return fmt.Errorf("stream dropped because this client fell behind, run watch again to resync: %w", err)
	default:
		return fmt.Errorf("stream error: %w", err)
	}
}

func formatEvent(msg *api.EventMessage) string {
	ts := msg.Timestamp.Format("15:04:05")

	switch msg.Type {
	case models.EventSessionSnapshot:
		var p models.SessionSnapshotPayload
		if err := msg.DecodePayload(&p); err == nil && p.Session != nil {
			online := 0
			for _, part := range p.Session.Participants {
				if part.IsOnline {
					online++
				}
			}
			return fmt.Sprintf("[%s] connected to %q (%d stories, %d/%d online)",
				ts, p.Session.Title, len(p.Session.Stories), online, len(p.Session.Participants))
		}

	case models.EventParticipantJoined, models.EventParticipantLeft:
		var p models.ParticipantPayload
		if err := msg.DecodePayload(&p); err == nil {
			verb := "joined"
			if msg.Type == models.EventParticipantLeft {
				verb = "left"
			}
			return fmt.Sprintf("[%s] #%d %s %s", ts, msg.Sequence, p.DisplayName, verb)
		}

	case models.EventStoryAdded, models.EventStorySelected:
		var p models.StoryPayload
		if err := msg.DecodePayload(&p); err == nil {
			if p.Story == nil {
				return fmt.Sprintf("[%s] #%d current story cleared", ts, msg.Sequence)
			}
			verb := "added"
			if msg.Type == models.EventStorySelected {
				verb = "selected"
			}
			return fmt.Sprintf("[%s] #%d story %s: %s", ts, msg.Sequence, verb, p.Story.Title)
		}

	case models.EventVoteCast:
		var p models.VoteCastPayload
		if err := msg.DecodePayload(&p); err == nil {
			return fmt.Sprintf("[%s] #%d %s voted on %s round %d (%d votes)",
				ts, msg.Sequence, p.UserID, p.StoryID, p.RoundNumber, p.VoteCount)
		}

	case models.EventRoundRevealed:
		var p models.RoundRevealedPayload
		if err := msg.DecodePayload(&p); err == nil {
			cards := make([]string, 0, len(p.Votes))
			for _, v := range p.Votes {
				cards = append(cards, cardLabel(v.Value))
			}
			return fmt.Sprintf("[%s] #%d revealed %s round %d: [%s] avg %.1f",
				ts, msg.Sequence, p.StoryID, p.RoundNumber, strings.Join(cards, " "), p.Stats.Average)
		}

	case models.EventRoundFinalized:
		var p models.RoundFinalizedPayload
		if err := msg.DecodePayload(&p); err == nil {
			return fmt.Sprintf("[%s] #%d %s finalized at %g", ts, msg.Sequence, p.StoryID, p.FinalEstimate)
		}

	case models.EventRoundRevote:
		var p models.RoundRevotePayload
		if err := msg.DecodePayload(&p); err == nil {
			return fmt.Sprintf("[%s] #%d revote on %s, round %d", ts, msg.Sequence, p.StoryID, p.RoundNumber)
		}

	case models.EventSessionEnded:
		return fmt.Sprintf("[%s] #%d session ended", ts, msg.Sequence)
	}

	return fmt.Sprintf("[%s] #%d %s", ts, msg.Sequence, msg.Type)
}
