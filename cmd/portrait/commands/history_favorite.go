package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type HistoryFavoriteCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	entryID string
}

// NewHistoryFavoriteCommand returns the history favorite command.
func NewHistoryFavoriteCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *HistoryFavoriteCommand {
	c := &HistoryFavoriteCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("favorite", "Toggle the favorite flag of a history entry.")
	c.Cmd.Arg("id", "ID of the entry.").Required().StringVar(&c.entryID)

	return c
}

func (c HistoryFavoriteCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryFavoriteCommand) Run(ctx context.Context) error {
	svc, err := newHistoryService(ctx, c.rootCmd, c.rootCmd.Logger)
	if err != nil {
		return err
	}

	favorite, err := svc.ToggleFavorite(ctx, c.entryID)
	if err != nil {
		return fmt.Errorf("could not toggle favorite: %w", err)
	}

	if favorite {
		c.rootCmd.Logger.Infof("Marked history entry %s as favorite", c.entryID)
	} else {
		c.rootCmd.Logger.Infof("Removed favorite from history entry %s", c.entryID)
	}
	return nil
}
