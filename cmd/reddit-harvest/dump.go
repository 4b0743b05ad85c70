package main

import (
	"fmt"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/csvsink"
)

func (a *app) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump SUBREDDIT VIEW",
		Short: "Write the submissions of a subreddit to CSV",
		Long: `dump writes the submissions of the last VIEW days, or of a top period
(all, day, hour, month, week, year), to <sub>-<newest>-<view>-submissions.csv.`,
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

			name := a.output(fmt.Sprintf("%s-%d-%s-submissions.csv", subreddit, harvest.MaxCreated(subs), args[1]))
			if err := csvsink.Create(name, csvsink.Default, csvsink.DumpSubmissions, subs); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "File written:", name)
			return nil
		}),
	}
}
