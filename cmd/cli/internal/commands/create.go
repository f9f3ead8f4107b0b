package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/models"
	"gopkg.in/yaml.v3"
)

// SessionPlan is a session definition loaded from a YAML or JSON file.
type SessionPlan struct {
	Title      string      `yaml:"title" json:"title"`
	VotingMode string      `yaml:"votingMode" json:"votingMode"`
	Stories    []PlanStory `yaml:"stories" json:"stories"`
}

type PlanStory struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	ExternalKey string `yaml:"externalKey" json:"externalKey"`
	ExternalURL string `yaml:"externalUrl" json:"externalUrl"`
	NotReady    bool   `yaml:"notReady" json:"notReady"`
}

type CreateCmd struct {
	Conn    ConnectionFlags `embed:""`
	Title   string          `help:"Session title"`
	Mode    string          `help:"Voting mode (anonymous or open)"`
	Story   []string        `help:"Story title, repeatable"`
	Plan    string          `help:"YAML/JSON session plan file path"`
	Connect bool            `help:"Watch session events after creating it"`
}

func (c *CreateCmd) Run(ctx context.Context, globals *Globals) error {
	req, err := c.request()
	if err != nil {
		return err
	}

	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.CreateSession(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	session := resp.Session
	fmt.Printf("Session created with ID: %s\n", session.SessionID)
	printSession(session)

	if c.Connect {
		w := &WatchCmd{Conn: c.Conn, SessionID: session.SessionID}
		return w.Run(ctx, globals)
	}
	return nil
}

func (c *CreateCmd) request() (*api.CreateSessionRequest, error) {
	plan := &SessionPlan{}
	if c.Plan != "" {
		loaded, err := loadPlan(c.Plan)
		if err != nil {
			return nil, fmt.Errorf("failed to load plan file: %w", err)
		}
		plan = loaded
	}

	// flags take precedence over the plan file
	if c.Title != "" {
		plan.Title = c.Title
	}
	if c.Mode != "" {
		plan.VotingMode = c.Mode
	}
	for _, title := range c.Story {
		plan.Stories = append(plan.Stories, PlanStory{Title: title})
	}

	if plan.Title == "" {
		return nil, fmt.Errorf("title is required (use --title flag or --plan file)")
	}

	req := &api.CreateSessionRequest{
		Title:      plan.Title,
		VotingMode: models.VotingMode(plan.VotingMode),
	}
	for _, s := range plan.Stories {
		req.Stories = append(req.Stories, api.StoryInput{
			Title:       s.Title,
			Description: s.Description,
			ExternalKey: s.ExternalKey,
			ExternalURL: s.ExternalURL,
			NotReady:    s.NotReady,
		})
	}
	return req, nil
}

func loadPlan(path string) (*SessionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan SessionPlan

	if strings.HasSuffix(strings.ToLower(path), ".json") {
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, fmt.Errorf("failed to parse JSON plan: %w", err)
		}
		return &plan, nil
	}

	// Default to YAML
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse YAML plan: %w", err)
	}
	return &plan, nil
}
