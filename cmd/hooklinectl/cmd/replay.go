package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var replayReason string

// replayCmd enqueues a fresh attempt referencing a previous one
var replayCmd = &cobra.Command{
	Use:   "replay <attempt-id>",
	Short: "Replay a past delivery attempt",
	Long: `Replay inserts a fresh delivery attempt for the same event and
subscription, referencing the source attempt. The new attempt starts ready
and is picked up by the next worker claim in its partition.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		st, cleanup, err := getStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		newID, err := st.Replay(ctx, args[0], replayReason)
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(map[string]string{"attempt_id": newID, "replay_of": args[0]})
			return nil
		}
		fmt.Printf("replayed %s -> new attempt %s\n", args[0], newID)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayReason, "reason", "", "why the delivery is being replayed")
	rootCmd.AddCommand(replayCmd)
}
