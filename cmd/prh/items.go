package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var itemsCmd = &cobra.Command{
	Use:   "items <subscription-id>",
	Short: "List open review items for a subscription",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		items, err := api.ListItems(context.Background(), args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		printItems(items)
		return nil
	},
}
