package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type HistoryClearCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	keepFavorites bool
}

// NewHistoryClearCommand returns the history clear command.
func NewHistoryClearCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *HistoryClearCommand {
	c := &HistoryClearCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("clear", "Delete all history entries.")
	c.Cmd.Flag("keep-favorites", "Keep entries marked as favorite.").BoolVar(&c.keepFavorites)

	return c
}

func (c HistoryClearCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryClearCommand) Run(ctx context.Context) error {
	svc, err := newHistoryService(ctx, c.rootCmd, c.rootCmd.Logger)
	if err != nil {
		return err
	}

	if err := svc.Clear(ctx, c.keepFavorites); err != nil {
		return fmt.Errorf("could not clear history: %w", err)
	}

	c.rootCmd.Logger.Infof("Cleared history")
	return nil
}
