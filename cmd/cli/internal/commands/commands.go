package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/planpoker/cmd/cli/internal/credentials"
	"github.com/wolfeidau/planpoker/internal/api"
	"github.com/wolfeidau/planpoker/internal/client"
)

type Globals struct {
	Debug   bool
	Version string
}

// ConnectionFlags selects the server and identity used by a command. Unset
// flags fall back to the saved credential.
type ConnectionFlags struct {
	Server         string        `help:"Server URL" env:"PLANPOKER_SERVER"`
	Token          string        `help:"Bearer token for authentication" env:"PLANPOKER_TOKEN"`
	User           string        `help:"User id sent as an identity header to servers running --no-auth" env:"PLANPOKER_USER"`
	Name           string        `help:"Display name sent with --user" env:"PLANPOKER_NAME"`
	Credential     string        `help:"Saved credential to use instead of the default"`
	CredentialsDir string        `help:"Custom credentials directory" hidden:""`
	Timeout        time.Duration `help:"Request timeout" default:"30s"`
}

func (f *ConnectionFlags) config(globals *Globals) (client.Config, error) {
	cfg := client.DefaultConfig()
	cfg.Timeout = f.Timeout
	cfg.Debug = globals.Debug

	if f.Credential != "" || (f.Server == "" && f.Token == "" && f.User == "") {
		cred, err := f.loadCredential()
		switch {
		case err == nil:
			cfg.ServerURL = cred.ServerURL
			cfg.Token = cred.Token
			cfg.UserID = cred.UserID
			cfg.UserName = cred.DisplayName
		case f.Credential == "" && errors.Is(err, credentials.ErrNoDefaultCredential):
		default:
			return cfg, err
		}
	}

	if f.Server != "" {
		cfg.ServerURL = f.Server
	}
	if f.Token != "" {
		cfg.Token = f.Token
	}
	if f.User != "" {
		cfg.UserID = f.User
		cfg.UserName = f.Name
	}
	return cfg, nil
}

func (f *ConnectionFlags) loadCredential() (*credentials.Credential, error) {
	store, err := credentials.NewStore(f.CredentialsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}
	if f.Credential != "" {
		cred, err := store.Get(f.Credential)
		if err != nil {
			return nil, fmt.Errorf("credential %q: %w", f.Credential, err)
		}
		return cred, nil
	}
	return store.GetDefault()
}

func (f *ConnectionFlags) client(globals *Globals) (*api.Client, error) {
	cfg, err := f.config(globals)
	if err != nil {
		return nil, err
	}
	return client.NewClient(cfg), nil
}

// streamClient disables the request timeout so streams stay open.
func (f *ConnectionFlags) streamClient(globals *Globals) (*api.Client, error) {
	cfg, err := f.config(globals)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = 0
	return client.NewClient(cfg), nil
}
