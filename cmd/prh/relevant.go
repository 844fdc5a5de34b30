package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var relevantCmd = &cobra.Command{
	Use:   "relevant",
	Short: "List items assigned to you or awaiting your review",
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := api.RelevantItems(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printItems(items)
		return nil
	},
}
