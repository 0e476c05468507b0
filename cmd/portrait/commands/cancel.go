package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
)

type CancelCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	batchID string
}

// NewCancelCommand returns the cancel command.
func NewCancelCommand(rootCmd *RootCommand, app *kingpin.Application) *CancelCommand {
	c := &CancelCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("cancel", "Cancel a running generation batch.")
	c.Cmd.Arg("batch-id", "ID of the batch to cancel.").Required().StringVar(&c.batchID)

	return c
}

func (c CancelCommand) Name() string { return c.Cmd.FullCommand() }

func (c CancelCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	client, err := generation.NewClient(generation.ClientConfig{
		ServerURL: c.rootCmd.ServerURL,
		ClientID:  c.rootCmd.clientID(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create generation client: %w", err)
	}

	if err := client.CancelBatch(ctx, c.batchID); err != nil {
		return fmt.Errorf("could not cancel batch: %w", err)
	}

	logger.Infof("Cancelled batch %s", c.batchID)
	return nil
}
