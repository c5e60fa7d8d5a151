// Package ask implements the one-shot CLI turn: bind a session, optionally
// move into an experiment, ask, print the answer and any notes diffs.
package ask

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lab-notebook/notebook_go/internal/app"
)

var (
	projectRef string
	user       string
	experiment string
)

// AskCmd runs one conversational turn from the command line.
var AskCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Ask the notebook one question or record one result",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		message := strings.Join(args, " ")

		a, err := app.New(ctx, app.OptionsFromViper())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Notebook.StartWorkers(ctx); err != nil {
			return fmt.Errorf("failed to start conversion workers: %w", err)
		}

		session, err := a.Notebook.Sessions().SelectProject(ctx, user, projectRef)
		if err != nil {
			return err
		}
		defer a.Notebook.Sessions().Discard(session.ID)

		if experiment != "" {
			if err := a.Notebook.Sessions().UpdateLocation(ctx, session, experiment); err != nil {
				return err
			}
		}

		answer, err := a.Notebook.Ask(ctx, session, message)
		if err != nil {
			return err
		}

		fmt.Println(answer.Text)
		for _, diff := range answer.MemoryDiffs {
			fmt.Printf("\nNotes of %s changed:\n%s\n", diff.Experiment, diff.Diff)
		}
		return nil
	},
}

func init() {
	AskCmd.Flags().StringVar(&projectRef, "project", "", "project name or id (required)")
	AskCmd.Flags().StringVar(&user, "user", "", "acting user (required)")
	AskCmd.Flags().StringVar(&experiment, "experiment", "", "experiment folder to work in")
	AskCmd.MarkFlagRequired("project")
	AskCmd.MarkFlagRequired("user")
}
