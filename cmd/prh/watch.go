package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/nardoguy14/pr-helper/internal/model"
	"github.com/nardoguy14/pr-helper/internal/monitor"
	"github.com/nardoguy14/pr-helper/internal/notify"
	"github.com/nardoguy14/pr-helper/internal/push"
	"github.com/nardoguy14/pr-helper/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run a live monitor session and print notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		authors, _ := cmd.Flags().GetStringSlice("author")
		since, _ := cmd.Flags().GetDuration("since")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sess := monitor.NewSession(api, monitor.WithIntervals(interval, 2*interval))
		sess.OnNotification(printNotification)
		sess.OnConnectionState(func(st push.State) {
			fmt.Println(ui.RenderMuted("push channel: " + string(st)))
		})

		if err := sess.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer sess.Close()

		if len(authors) > 0 || since > 0 {
			f := model.ItemFilter{Authors: authors}
			if since > 0 {
				cutoff := time.Now().Add(-since)
				f.Since = &cutoff
			}
			sess.SetFilter(f)
		}

		user := sess.User()
		fmt.Printf("Watching as %s (ctrl-c to stop)\n", ui.RenderAccent(user.Login))

		<-ctx.Done()
		return nil
	},
}

func printNotification(ev notify.Event) {
	it := ev.Item
	var reason string
	switch ev.Reason {
	case notify.ReasonAssigned:
		reason = "assigned to you"
	case notify.ReasonReviewRequested:
		reason = "review requested"
	}
	fmt.Printf("%s  %s %s#%d  %s\n",
		time.Now().Format("15:04:05"),
		ui.RenderAccent(reason),
		it.RepoName, it.Number,
		it.Title,
	)
}

func init() {
	watchCmd.Flags().Duration("interval", 30*time.Second, "gateway polling interval")
	watchCmd.Flags().StringSlice("author", nil, "only show items by these authors")
	watchCmd.Flags().Duration("since", 0, "only show items updated within this window")
}
