package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/Diffusion-planet/ip-to-portrait/internal/generation"
)

type RegenerateCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
}

// NewRegenerateCommand returns the regenerate command.
func NewRegenerateCommand(rootCmd *RootCommand, app *kingpin.Application) *RegenerateCommand {
	c := &RegenerateCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("regenerate", "Request a new result for a single task.")
	c.Cmd.Arg("task-id", "ID of the task to regenerate.").Required().StringVar(&c.taskID)

	return c
}

func (c RegenerateCommand) Name() string { return c.Cmd.FullCommand() }

func (c RegenerateCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	client, err := generation.NewClient(generation.ClientConfig{
		ServerURL: c.rootCmd.ServerURL,
		ClientID:  c.rootCmd.clientID(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("could not create generation client: %w", err)
	}

	task, err := client.RegenerateTask(ctx, c.taskID)
	if err != nil {
		return fmt.Errorf("could not regenerate task: %w", err)
	}

	logger.Infof("Regeneration requested for task %s (status %s)", task.ID, task.Status)
	return nil
}
