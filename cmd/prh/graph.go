package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/monitor"
	"github.com/nardoguy14/pr-helper/internal/ui"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Render the subscription graph as a tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		depth, _ := cmd.Flags().GetInt("depth")
		if depth < 1 {
			depth = 1
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		// One-shot session: long intervals, no background polling to speak of.
		sess := monitor.NewSession(api, monitor.WithIntervals(time.Hour, time.Hour))
		if err := sess.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer sess.Close()

		nodes := settle(sess)
		if depth >= 2 {
			for _, n := range nodes {
				if n.Type == model.NodeTeam {
					sess.ToggleExpansion(n.ID)
				}
			}
			nodes = settle(sess)
		}
		if depth >= 3 {
			for _, n := range nodes {
				if n.Type == model.NodeRepository {
					sess.ToggleExpansion(n.ID)
				}
			}
			nodes = settle(sess)
		}

		nodes, edges := sess.Snapshot()
		if jsonOutput {
			printJSON(map[string]any{"nodes": nodes, "edges": edges})
			return nil
		}
		printGraphTree(nodes)
		return nil
	},
}

// settle waits for the layout to stop changing after async expansion toggles.
func settle(sess *monitor.Session) []*model.GraphNode {
	prev := -1
	deadline := time.Now().Add(3 * time.Second)
	for {
		nodes, _ := sess.Snapshot()
		if len(nodes) == prev || time.Now().After(deadline) {
			return nodes
		}
		prev = len(nodes)
		time.Sleep(100 * time.Millisecond)
	}
}

func printGraphTree(nodes []*model.GraphNode) {
	children := make(map[string][]*model.GraphNode)
	var roots []*model.GraphNode
	for _, n := range nodes {
		if n.ParentID == "" {
			roots = append(roots, n)
		} else {
			children[n.ParentID] = append(children[n.ParentID], n)
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i].ID < roots[j].ID })

	var walk func(n *model.GraphNode, indent string)
	walk = func(n *model.GraphNode, indent string) {
		label := n.Label
		if n.Type == model.NodeItem && n.Item != nil {
			label = fmt.Sprintf("#%d %s [%s]", n.Item.Number, n.Item.Title, ui.RenderStatus(n.Item.Status))
		}
		fmt.Printf("%s%s %s\n", indent, label, ui.RenderMuted(fmt.Sprintf("(%.0f, %.0f)", n.X, n.Y)))
		kids := children[n.ID]
		sort.Slice(kids, func(i, j int) bool { return kids[i].ID < kids[j].ID })
		for _, k := range kids {
			walk(k, indent+"  ")
		}
	}
	for _, r := range roots {
		walk(r, "")
	}
	fmt.Printf("\n%d nodes\n", len(nodes))
}

func init() {
	graphCmd.Flags().Int("depth", 2, "graph depth: 1=teams, 2=repositories, 3=items")
}
