package main

import (
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/csvsink"
	"github.com/jamesprial/go-reddit-harvest/reddit"
)

// bestWindow selects submissions between days+1 days and two hours old, so
// their comments have had time to collect votes.
func bestWindow(now time.Time, days int) harvest.Window {
	return harvest.Window{
		Min: now.Unix() - int64(days+1)*harvest.SecondsInDay,
		Max: now.Add(-2 * time.Hour).Unix(),
	}
}

func (a *app) bestCmd() *cobra.Command {
	var (
		days  int
		score int
	)
	cmd := &cobra.Command{
		Use:   "best SUBREDDIT|user/NAME/m/MULTI",
		Short: "Write the best comments of recent submissions to CSV",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().IntVar(&days, "days", 2, "Look at submissions of the last N days")
	cmd.Flags().IntVar(&score, "score", 0, "Keep comments scoring more than this")

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		name := args[0]
		c, err := a.client(ctx)
		if err != nil {
			return err
		}

		w := bestWindow(a.now(), days)
		subs, err := harvest.Collect(ctx, harvest.Fetch(c.Listing(ctx, name), w))
		if err != nil {
			return err
		}
		a.log.WithField("submissions", len(subs)).Debug("fetching comments")

		var best []*harvest.Comment
		for _, s := range subs {
			if s.NumComments == 0 {
				continue
			}
			thread, err := c.Comments(ctx, s.Subreddit, s.ID)
			if err != nil {
				if !harvest.IsUnreachable(err) {
					return err
				}
				a.log.WithError(err).WithField("submission", s.ID).Warn("skipping comments")
				continue
			}
			for _, cm := range thread {
				if cm.Score > score {
					best = append(best, cm)
				}
			}
		}
		harvest.SortByScore(best)

		display := name
		if reddit.IsMulti(name) {
			display = path.Base(name)
		}
		file := a.output(fmt.Sprintf("comments-%s-%d.csv", display, w.Max))
		if err := csvsink.Create(file, csvsink.Default, csvsink.BestComments, best); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "File written:", file)
		return nil
	})
	return cmd
}
