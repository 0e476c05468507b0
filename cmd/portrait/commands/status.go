package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
	"github.com/Diffusion-planet/ip-to-portrait/internal/model"
)

type StatusCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	batchID string
	format  string
}

// NewStatusCommand returns the status command.
func NewStatusCommand(rootCmd *RootCommand, app *kingpin.Application) *StatusCommand {
	c := &StatusCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("status", "Show the server-side status of a batch.")
	c.Cmd.Arg("batch-id", "ID of the batch.").Required().StringVar(&c.batchID)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c StatusCommand) Name() string { return c.Cmd.FullCommand() }

func (c StatusCommand) Run(ctx context.Context) error {
	client, err := generation.NewClient(generation.ClientConfig{
		ServerURL: c.rootCmd.ServerURL,
		ClientID:  c.rootCmd.clientID(),
		Logger:    c.rootCmd.Logger,
	})
	if err != nil {
		return fmt.Errorf("could not create generation client: %w", err)
	}

	tasks, err := client.BatchStatus(ctx, c.batchID)
	if err != nil {
		return fmt.Errorf("could not get batch status: %w", err)
	}

	stage := model.BatchStageProcessing
	b := model.Batch{ID: c.batchID, Tasks: tasks, Stage: stage}
	if b.Terminal() {
		b.Stage = model.BatchStageCompleted
	}

	p := newPrinter(c.format, c.rootCmd.Stdout)
	if err := p.PrintBatch(b); err != nil {
		return fmt.Errorf("could not print batch: %w", err)
	}

	return nil
}
