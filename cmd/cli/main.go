package main

import (
	"context"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/planpoker/cmd/cli/internal/commands"
	"github.com/wolfeidau/planpoker/internal/logger"
)

var (
	version = "dev"
	cli     struct {
		Create      commands.CreateCmd      `cmd:"" help:"Create a session"`
		Join        commands.JoinCmd        `cmd:"" help:"Join a session"`
		Leave       commands.LeaveCmd       `cmd:"" help:"Leave a session"`
		Show        commands.ShowCmd        `cmd:"" help:"Show a session"`
		AddStory    commands.AddStoryCmd    `cmd:"" name:"add-story" help:"Add a story to a session"`
		Select      commands.SelectCmd      `cmd:"" help:"Select the story being estimated"`
		Vote        commands.VoteCmd        `cmd:"" help:"Cast a vote"`
		Reveal      commands.RevealCmd      `cmd:"" help:"Reveal the open round"`
		Finalize    commands.FinalizeCmd    `cmd:"" help:"Record the agreed estimate"`
		Revote      commands.RevoteCmd      `cmd:"" help:"Start another round"`
		History     commands.HistoryCmd     `cmd:"" help:"Show the rounds for a story"`
		End         commands.EndCmd         `cmd:"" help:"End a session"`
		Watch       commands.WatchCmd       `cmd:"" help:"Watch session events"`
		Export      commands.ExportCmd      `cmd:"" help:"Export a session summary to a file"`
		Verify      commands.VerifyCmd      `cmd:"" help:"Verify an exported summary"`
		Token       commands.TokenCmd       `cmd:"" help:"Generate a JWT token"`
		Credentials commands.CredentialsCmd `cmd:"" help:"Manage saved logins"`
		Debug       bool                    `help:"Enable debug mode."`
		Version     kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Name("planpoker"),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))

	log.Logger = logger.Setup(cli.Debug)
	if !cli.Debug {
		log.Logger = log.Logger.Level(zerolog.WarnLevel)
	}

	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
