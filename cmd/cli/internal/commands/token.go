package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/planpoker/internal/auth"
	"github.com/wolfeidau/planpoker/internal/models"
)

type TokenCmd struct {
	Subject    string        `help:"User id placed in the token subject" required:""`
	Name       string        `help:"Display name" default:""`
	Avatar     string        `help:"Avatar URL" default:""`
	Issuer     string        `help:"Token issuer" default:"planpoker" env:"PLANPOKER_AUTH_ISSUER"`
	TTL        time.Duration `help:"Token lifetime" default:"12h"`
	SigningKey string        `help:"HMAC signing key shared with the server" required:"" env:"PLANPOKER_AUTH_SECRET"`
}

func (t *TokenCmd) Run(ctx context.Context) error {
	token, err := auth.IssueToken(t.SigningKey, t.Issuer, models.Identity{
		UserID:      t.Subject,
		DisplayName: t.Name,
		AvatarURL:   t.Avatar,
	}, t.TTL)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
