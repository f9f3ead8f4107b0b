package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/export"
	"github.com/wolfeidau/planpoker/internal/models"
)

type ExportCmd struct {
	Conn      ConnectionFlags `embed:""`
	SessionID string          `arg:"" help:"Session ID to export"`
	Output    string          `arg:"" help:"Output file (.json, .yaml, optional .zst suffix)" type:"path"`
}

func (c *ExportCmd) Run(ctx context.Context, globals *Globals) error {
	cl, err := c.Conn.client(globals)
	if err != nil {
		return err
	}

	resp, err := cl.ExportSession(ctx, &api.SessionRequest{SessionID: c.SessionID})
	if err != nil {
		return fmt.Errorf("failed to export session: %w", err)
	}

	return writeSummary(c.Output, resp.Summary)
}

type VerifyCmd struct {
	Path string `arg:"" help:"Export file to verify" type:"existingfile"`
}

func (c *VerifyCmd) Run(ctx context.Context, globals *Globals) error {
	doc, err := export.ReadFile(c.Path)
	if err != nil {
		return err
	}

	fmt.Printf("%s: version %d exported %s\n", c.Path, doc.Version, doc.ExportedAt.Format(time.RFC3339))
	printSummary(doc.Summary)
	return nil
}

func writeSummary(path string, summary *models.SessionSummary) error {
	checksum, err := export.WriteFile(path, export.NewDocument(summary, time.Now()))
	if err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}

	fmt.Printf("Exported to %s (crc64 %s)\n", path, export.FormatChecksum(checksum))
	return nil
}
