// Package tracker pushes estimates and vote comments to an external issue
// tracker.
package tracker

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by syncers that have no tracker endpoint.
var ErrNotConfigured = errors.New("tracker not configured")

// Comment is a vote comment posted against an issue.
type Comment struct {
	Author string `json:"author,omitempty"`
	Body   string `json:"body"`
}

// Syncer is the external tracker collaborator. Calls are made off the
// request path and their failures never affect session state.
type Syncer interface {
	SyncEstimate(ctx context.Context, issueKey string, estimate float64) error
	PostComments(ctx context.Context, issueKey string, comments []Comment) error
}

// Noop discards every sync request.
type Noop struct{}

func (Noop) SyncEstimate(context.Context, string, float64) error {
	return ErrNotConfigured
}

func (Noop) PostComments(context.Context, string, []Comment) error {
	return ErrNotConfigured
}
