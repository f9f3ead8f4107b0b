package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/models"
)

type VoteCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
	StoryID   string          `arg:"" help:"Story ID"`
	Card      string          `arg:"" help:"Card to play: 0,1,2,3,5,8,13,21, ? or break"`
	Comment   string          `help:"Optional comment shown when votes are revealed"`
}

func (c *VoteCmd) Run(ctx context.Context, globals *Globals) error {
	card, err := parseCard(c.Card)
	if err != nil {
		return err
	}

	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.CastVote(ctx, &api.CastVoteRequest{
		SessionID: c.SessionID,
		StoryID:   c.StoryID,
		Value:     card,
		Comment:   c.Comment,
	})
	if err != nil {
		return fmt.Errorf("failed to cast vote: %w", err)
	}

	round := resp.Status.Round
	fmt.Printf("Voted %s in round %d (%d votes so far)\n", cardLabel(card), round.RoundNumber, round.VoteCount)
	return nil
}

type RevealCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
	StoryID   string          `arg:"" help:"Story ID"`
}

func (c *RevealCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.RevealRound(ctx, &api.StoryRequest{SessionID: c.SessionID, StoryID: c.StoryID})
	if err != nil {
		return fmt.Errorf("failed to reveal round: %w", err)
	}

	printRound(resp.Round)
	return nil
}

type FinalizeCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
	StoryID   string          `arg:"" help:"Story ID"`
	Estimate  float64         `arg:"" help:"Agreed estimate"`
}

func (c *FinalizeCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.FinalizeRound(ctx, &api.FinalizeRoundRequest{
		SessionID:     c.SessionID,
		StoryID:       c.StoryID,
		FinalEstimate: c.Estimate,
	})
	if err != nil {
		return fmt.Errorf("failed to finalize round: %w", err)
	}

	fmt.Printf("Round %d finalized at %g\n", resp.Round.RoundNumber, c.Estimate)
	return nil
}

type RevoteCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
	StoryID   string          `arg:"" help:"Story ID"`
}

func (c *RevoteCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.StartRevote(ctx, &api.StoryRequest{SessionID: c.SessionID, StoryID: c.StoryID})
	if err != nil {
		return fmt.Errorf("failed to start revote: %w", err)
	}

	fmt.Printf("Round %d started (at most %d rounds per story)\n", resp.Round.RoundNumber, models.MaxRounds)
	return nil
}

type HistoryCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
	StoryID   string          `arg:"" help:"Story ID"`
}

func (c *HistoryCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.GetVoteHistory(ctx, &api.StoryRequest{SessionID: c.SessionID, StoryID: c.StoryID})
	if err != nil {
		return fmt.Errorf("failed to get vote history: %w", err)
	}

	if len(resp.Rounds) == 0 {
		fmt.Println("No rounds yet.")
		return nil
	}
	for _, round := range resp.Rounds {
		printRound(round)
		fmt.Println()
	}
	return nil
}

func printRound(r *models.RoundView) {
	if r == nil {
		return
	}

	fmt.Printf("Round %d: %s, %d votes\n", r.RoundNumber, r.State, r.VoteCount)
	if r.Stats != nil {
		fmt.Printf("  average %.1f, min %g, max %g (%d of %d numeric)\n",
			r.Stats.Average, r.Stats.Min, r.Stats.Max, r.Stats.NumericVotes, r.Stats.TotalVotes)
	}
	if r.FinalEstimate != nil {
		fmt.Printf("  final estimate %g\n", *r.FinalEstimate)
	}

	if len(r.Votes) == 0 {
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  VOTER\tCARD\tCOMMENT")
	for _, v := range r.Votes {
		voter := v.UserID
		if voter == "" {
			voter = "(anonymous)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\n", voter, cardLabel(v.Value), v.Comment)
	}
	_ = w.Flush()
}

func parseCard(s string) (models.Card, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "?", "unknown":
		return models.CardUnknown, nil
	case "break", "coffee":
		return models.CardBreak, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !models.Card(n).IsValid() {
		return 0, fmt.Errorf("invalid card %q", s)
	}
	return models.Card(n), nil
}

func cardLabel(c models.Card) string {
	switch c {
	case models.CardUnknown:
		return "?"
	case models.CardBreak:
		return "break"
	default:
		return strconv.Itoa(int(c))
	}
}
