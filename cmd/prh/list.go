package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List subscriptions and their counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		subs, err := api.ListSubscriptions(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(subs)
		} else {
			printSubscriptionTable(subs)
		}
		return nil
	},
}
