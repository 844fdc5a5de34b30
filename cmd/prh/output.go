package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printSubscriptionTable(subs []*model.Subscription) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tKIND\tENABLED\tOPEN\tASSIGNED\tREVIEW REQS\tLAST POLL")
	for _, s := range subs {
		lastPoll := "-"
		if !s.Stats.LastUpdated.IsZero() {
			lastPoll = s.Stats.LastUpdated.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%d\t%d\t%s\n",
			s.ID,
			s.Kind,
			s.Enabled,
			s.Stats.TotalOpen,
			s.Stats.AssignedToUser,
			s.Stats.ReviewRequests,
			lastPoll,
		)
	}
	w.Flush()
	fmt.Printf("\n%d subscriptions\n", len(subs))
}

func printItemTable(items []*model.ReviewItem) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPO\tNUMBER\tSTATUS\tTITLE\tAUTHOR\tRELEVANCE")
	for _, it := range items {
		title := it.Title
		if len(title) > 50 {
			title = title[:47] + "..."
		}
		fmt.Fprintf(w, "%s\t#%d\t%s\t%s\t%s\t%s\n",
			it.RepoName,
			it.Number,
			ui.RenderStatus(it.Status),
			title,
			it.Author.Login,
			ui.RenderRelevance(it),
		)
	}
	w.Flush()
	fmt.Printf("\n%d items\n", len(items))
}

func printItems(items []*model.ReviewItem) {
	if jsonOutput {
		printJSON(items)
		return
	}
	printItemTable(items)
}
