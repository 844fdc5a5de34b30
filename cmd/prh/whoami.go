package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the GitHub user the gateway is authenticated as",
	RunE: func(cmd *cobra.Command, args []string) error {
		user, err := api.CurrentUser(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if jsonOutput {
			printJSON(user)
		} else {
			fmt.Println(user.Login)
		}
		return nil
	},
}
