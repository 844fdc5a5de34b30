package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nardoguy14/pr-helper/internal/client"
	"github.com/nardoguy14/pr-helper/internal/model"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe to a team or repository",
}

var subscribeTeamCmd = &cobra.Command{
	Use:   "team <org>/<team>",
	Short: "Watch every repository of a GitHub team",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		org, team, ok := strings.Cut(args[0], "/")
		if !ok || org == "" || team == "" {
			return fmt.Errorf("expected <org>/<team>, got %q", args[0])
		}
		return doSubscribe(&client.SubscribeRequest{
			Kind:         model.KindTeam,
			Organization: org,
			TeamName:     team,
		})
	},
}

var subscribeRepoCmd = &cobra.Command{
	Use:   "repo <owner>/<repo>",
	Short: "Watch a single repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, repo, ok := strings.Cut(args[0], "/")
		if !ok || owner == "" || repo == "" {
			return fmt.Errorf("expected <owner>/<repo>, got %q", args[0])
		}
		return doSubscribe(&client.SubscribeRequest{
			Kind:  model.KindRepository,
			Owner: owner,
			Repo:  repo,
		})
	},
}

func doSubscribe(req *client.SubscribeRequest) error {
	sub, err := api.Subscribe(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if jsonOutput {
		printJSON(sub)
	} else {
		fmt.Printf("Subscribed to %s (%s)\n", sub.ID, sub.Kind)
	}
	return nil
}

func init() {
	subscribeCmd.AddCommand(subscribeTeamCmd)
	subscribeCmd.AddCommand(subscribeRepoCmd)
}
