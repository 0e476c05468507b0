package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type HistoryRenameCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	entryID string
	title   string
}

// NewHistoryRenameCommand returns the history rename command.
func NewHistoryRenameCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *HistoryRenameCommand {
	c := &HistoryRenameCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("rename", "Rename a history entry.")
	c.Cmd.Arg("id", "ID of the entry to rename.").Required().StringVar(&c.entryID)
	c.Cmd.Arg("title", "New title.").Required().StringVar(&c.title)

	return c
}

func (c HistoryRenameCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryRenameCommand) Run(ctx context.Context) error {
	svc, err := newHistoryService(ctx, c.rootCmd, c.rootCmd.Logger)
	if err != nil {
		return err
	}

	if err := svc.Rename(ctx, c.entryID, c.title); err != nil {
		return fmt.Errorf("could not rename history entry: %w", err)
	}

	c.rootCmd.Logger.Infof("Renamed history entry %s", c.entryID)
	return nil
}
