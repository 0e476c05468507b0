package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type HistoryRmCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	entryID string
}

// NewHistoryRmCommand returns the history rm command.
func NewHistoryRmCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *HistoryRmCommand {
	c := &HistoryRmCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("rm", "Delete a history entry.")
	c.Cmd.Arg("id", "ID of the entry to delete.").Required().StringVar(&c.entryID)

	return c
}

func (c HistoryRmCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryRmCommand) Run(ctx context.Context) error {
	svc, err := newHistoryService(ctx, c.rootCmd, c.rootCmd.Logger)
	if err != nil {
		return err
	}

	if err := svc.Delete(ctx, c.entryID); err != nil {
		return fmt.Errorf("could not delete history entry: %w", err)
	}

	c.rootCmd.Logger.Infof("Deleted history entry %s", c.entryID)
	return nil
}
