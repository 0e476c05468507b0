package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"
)

type HistoryListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	limit  int
	format string
}

// NewHistoryListCommand returns the history list command.
func NewHistoryListCommand(rootCmd *RootCommand, parent *kingpin.CmdClause) *HistoryListCommand {
	c := &HistoryListCommand{rootCmd: rootCmd}

	c.Cmd = parent.Command("list", "List generation history entries.")
	c.Cmd.Flag("limit", "Maximum number of entries to list.").Default("50").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c HistoryListCommand) Name() string { return c.Cmd.FullCommand() }

func (c HistoryListCommand) Run(ctx context.Context) error {
	svc, err := newHistoryService(ctx, c.rootCmd, c.rootCmd.Logger)
	if err != nil {
		return err
	}

	entries, err := svc.List(ctx, c.limit)
	if err != nil {
		return fmt.Errorf("could not list history: %w", err)
	}

	p := newPrinter(c.format, c.rootCmd.Stdout)
	if err := p.PrintHistoryList(entries); err != nil {
		return fmt.Errorf("could not print history: %w", err)
	}

	return nil
}
