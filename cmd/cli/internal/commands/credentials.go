package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/wolfeidau/planpoker/cmd/cli/internal/credentials"
)

// CredentialsCmd manages saved server logins.
type CredentialsCmd struct {
	Add        CredentialsAddCmd        `cmd:"" help:"Save a server login"`
	List       CredentialsListCmd       `cmd:"" help:"List saved logins"`
	Delete     CredentialsDeleteCmd     `cmd:"" help:"Delete a saved login"`
	SetDefault CredentialsSetDefaultCmd `cmd:"" name:"set-default" help:"Set the default login"`
}

// CredentialsAddCmd saves a server login.
type CredentialsAddCmd struct {
	Name      string `arg:"" help:"Credential name"`
	Server    string `help:"Server URL" required:""`
	Token     string `help:"Bearer token issued for the server" env:"PLANPOKER_TOKEN"`
	User      string `help:"User id for servers running --no-auth"`
	UserName  string `help:"Display name for servers running --no-auth"`
	Default   bool   `help:"Make this the default login"`
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsAddCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(c.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	cred, err := store.Save(credentials.Credential{
		Name:        c.Name,
		ServerURL:   c.Server,
		Token:       c.Token,
		UserID:      c.User,
		DisplayName: c.UserName,
	})
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	if c.Default {
		if err := store.SetDefault(cred.Name); err != nil {
			return fmt.Errorf("failed to set default credential: %w", err)
		}
	}

	fmt.Printf("Credential %q saved for %s\n", cred.Name, cred.ServerURL)
	return nil
}

// CredentialsListCmd lists all credentials.
type CredentialsListCmd struct {
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsListCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(c.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	creds, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list credentials: %w", err)
	}

	if len(creds) == 0 {
		fmt.Println("No credentials found.")
		fmt.Println()
		fmt.Println("To save a login:")
		fmt.Println("  planpoker credentials add <name> --server <url> --token <token>")
		return nil
	}

	defaultCred, _ := store.GetDefault()
	defaultName := ""
	if defaultCred != nil {
		defaultName = defaultCred.Name
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSERVER\tAUTH\tDEFAULT")

	for _, cred := range creds {
		authMode := "token"
		if cred.Token == "" {
			authMode = "header:" + cred.UserID
		}

		isDefault := ""
		if cred.Name == defaultName {
			isDefault = "*"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", cred.Name, cred.ServerURL, authMode, isDefault)
	}

	return w.Flush()
}

// CredentialsDeleteCmd deletes a credential.
type CredentialsDeleteCmd struct {
	Name      string `arg:"" help:"Credential name"`
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsDeleteCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(c.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	if err := store.Delete(c.Name); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	fmt.Printf("Credential %q deleted\n", c.Name)
	return nil
}

// CredentialsSetDefaultCmd sets the default credential.
type CredentialsSetDefaultCmd struct {
	Name      string `arg:"" help:"Credential name"`
	OutputDir string `help:"Custom credentials directory"`
}

func (c *CredentialsSetDefaultCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(c.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	if err := store.SetDefault(c.Name); err != nil {
		return fmt.Errorf("failed to set default credential: %w", err)
	}

	fmt.Printf("Default credential set to %q\n", c.Name)
	return nil
}
