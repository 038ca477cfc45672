package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hookline/hookline/internal/store"
)

var (
	listEventID        string
	listSubscriptionID string
	listStatus         string
	listLimit          int
)

// attemptsCmd represents the attempts command group
var attemptsCmd = &cobra.Command{
	Use:   "attempts",
	Short: "Inspect delivery attempts",
	Long:  `List and inspect delivery attempts in the shared attempt store.`,
}

// attemptsListCmd lists attempts with optional filters
var attemptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List delivery attempts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		st, cleanup, err := getStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		attempts, err := st.ListAttempts(ctx, store.ListFilter{
			EventID:        listEventID,
			SubscriptionID: listSubscriptionID,
			Status:         listStatus,
			Limit:          listLimit,
		})
		if err != nil {
			return fmt.Errorf("list attempts: %w", err)
		}

		if outputJSON {
			printOutput(attempts)
			return nil
		}
		if len(attempts) == 0 {
			fmt.Println("no attempts found")
			return nil
		}
		for _, a := range attempts {
			fmt.Println(formatAttempt(a))
		}
		return nil
	},
}

// attemptsShowCmd shows a single attempt by id
var attemptsShowCmd = &cobra.Command{
	Use:   "show <attempt-id>",
	Short: "Show a single delivery attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		st, cleanup, err := getStore(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		a, err := st.GetAttempt(ctx, args[0])
		if err != nil {
			return err
		}

		if outputJSON {
			printOutput(a)
			return nil
		}
		fmt.Println(formatAttempt(*a))
		if a.ReplayOf != "" {
			fmt.Printf("replay of: %s\n", a.ReplayOf)
		}
		return nil
	},
}

func init() {
	attemptsListCmd.Flags().StringVar(&listEventID, "event", "", "filter by event id")
	attemptsListCmd.Flags().StringVar(&listSubscriptionID, "subscription", "", "filter by subscription id")
	attemptsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (pending, succeeded, failed)")
	attemptsListCmd.Flags().IntVar(&listLimit, "limit", 20, "maximum attempts to return")

	attemptsCmd.AddCommand(attemptsListCmd)
	attemptsCmd.AddCommand(attemptsShowCmd)
	rootCmd.AddCommand(attemptsCmd)
}
