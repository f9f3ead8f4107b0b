package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/models"
)

type JoinCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID to join"`
	Watch     bool            `help:"Watch session events after joining"`
}

func (c *JoinCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.JoinSession(ctx, &api.SessionRequest{SessionID: c.SessionID})
	if err != nil {
		return fmt.Errorf("failed to join session: %w", err)
	}

	fmt.Printf("Joined session %s\n", c.SessionID)
	printSession(resp.Session)

	if c.Watch {
		w := &WatchCmd{Conn: c.Conn, SessionID: c.SessionID}
		return w.Run(ctx, globals)
	}
	return nil
}

type ShowCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
}

func (c *ShowCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.GetSession(ctx, &api.SessionRequest{SessionID: c.SessionID})
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	printSession(resp.Session)
	return nil
}

type AddStoryCmd struct {
	Conn        ConnectionFlags `embed:""`
	SessionID   string          `arg:"" help:"Session ID"`
	Title       string          `arg:"" help:"Story title"`
	Description string          `help:"Story description"`
	ExternalKey string          `help:"Issue key in the external tracker"`
	ExternalURL string          `help:"Issue URL in the external tracker"`
	NotReady    bool            `help:"Add the story as not ready for estimation"`
}

func (c *AddStoryCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.AddStory(ctx, &api.AddStoryRequest{
		SessionID: c.SessionID,
		Story: api.StoryInput{
			Title:       c.Title,
			Description: c.Description,
			ExternalKey: c.ExternalKey,
			ExternalURL: c.ExternalURL,
			NotReady:    c.NotReady,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to add story: %w", err)
	}

	fmt.Printf("Story added with ID: %s\n", resp.Story.ID)
	return nil
}

type SelectCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
	StoryID   string          `arg:"" optional:"" help:"Story ID, omit to clear the current story"`
}

func (c *SelectCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	if c.StoryID == "" {
		if _, err := cl.ClearCurrentStory(ctx, &api.SessionRequest{SessionID: c.SessionID}); err != nil {
			return fmt.Errorf("failed to clear current story: %w", err)
		}
		fmt.Println("Current story cleared")
		return nil
	}

	if _, err := cl.SelectStory(ctx, &api.StoryRequest{SessionID: c.SessionID, StoryID: c.StoryID}); err != nil {
		return fmt.Errorf("failed to select story: %w", err)
	}
	fmt.Printf("Current story set to %s\n", c.StoryID)
	return nil
}

type LeaveCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
}

func (c *LeaveCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	if _, err := cl.LeaveSession(ctx, &api.SessionRequest{SessionID: c.SessionID}); err != nil {
		return fmt.Errorf("failed to leave session: %w", err)
	}
	fmt.Printf("Left session %s\n", c.SessionID)
	return nil
}

type EndCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID"`
	Output    string          `help:"Also write the summary to this file (.json, .yaml, optional .zst)" type:"path"`
}

func (c *EndCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.EndSession(ctx, &api.SessionRequest{SessionID: c.SessionID})
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	fmt.Printf("Session %s ended\n", c.SessionID)
	printSummary(resp.Summary)

	if c.Output != "" {
		return writeSummary(c.Output, resp.Summary)
	}
	return nil
}

func printSession(s *models.Session) {
	if s == nil {
		return
	}

	fmt.Printf("%s (%s, %s voting)\n", s.Title, s.Status, s.VotingMode)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nSTORY\tTITLE\tSTATUS\tCURRENT")
	for _, story := range s.Stories {
		current := ""
		if story.ID == s.CurrentStoryID {
			current = "*"
		}
		title := story.Title
		if story.ExternalKey != "" {
			title = story.ExternalKey + " " + title
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", story.ID, title, story.Status, current)
	}

	fmt.Fprintln(w, "\nPARTICIPANT\tNAME\tONLINE\tHOST")
	for _, p := range s.Participants {
		host := ""
		if p.UserID == s.HostID {
			host = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.UserID, p.DisplayName, p.IsOnline, host)
	}
	_ = w.Flush()
}

func printSummary(s *models.SessionSummary) {
	if s == nil {
		return
	}

	fmt.Printf("%s: %d stories, %d participants\n", s.Title, s.TotalStories, s.ParticipantCount)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STORY\tROUND\tESTIMATE\tAVG\tMIN\tMAX")
	for _, story := range s.Stories {
		estimate := "-"
		if story.FinalEstimate != nil {
			estimate = fmt.Sprintf("%g", *story.FinalEstimate)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%.1f\t%g\t%g\n",
			story.StoryTitle, story.RoundNumber, estimate, story.Average, story.Min, story.Max)
	}
	_ = w.Flush()
}
