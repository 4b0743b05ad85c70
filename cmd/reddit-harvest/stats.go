package main

import (
	"fmt"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/csvsink"
)

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats SUBREDDIT VIEW",
		Short: "Write submissions and their comments to CSV",
		Long: `stats selects submissions like dump and also downloads the comments of every
submission that has any. It writes <base>-submissions.csv and <base>-comments.csv.`,
		Args: cobra.ExactArgs(2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			subreddit := args[0]
			v, err := parseView(args[1])
			if err != nil {
				return err
			}
			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			subs, err := v.fetch(ctx, c, subreddit, a.now())
			if err != nil {
				return err
			}
			if len(subs) == 0 {
				a.log.WithField("subreddit", subreddit).Warn("no submissions were found")
				return nil
			}

			var comments []*harvest.Comment
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
				comments = append(comments, thread...)
			}
			harvest.SortByCreated(comments)

			base := a.output(fmt.Sprintf("%s-%d-%s", subreddit, harvest.MaxCreated(subs), args[1]))
			if err := csvsink.Create(base+"-submissions.csv", csvsink.Default, csvsink.StatsSubmissions, subs); err != nil {
				return err
			}
			if err := csvsink.Create(base+"-comments.csv", csvsink.Default, csvsink.StatsComments, comments); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "File written:", base+"-submissions.csv")
			fmt.Fprintln(out, "File written:", base+"-comments.csv")
			return nil
		}),
	}
}
