package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/notify"
)

func (a *app) notifyCmd() *cobra.Command {
	var (
		limit    int
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "notify SUBREDDIT HOOK_URL",
		Short: "Announce new submissions on a Slack webhook",
		Long: `notify posts the newest submissions of SUBREDDIT that are newer than the
last one announced. The last announced time is kept in the reddit database.
With --interval it keeps polling until interrupted.`,
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().IntVar(&limit, "limit", 3, "Look at the newest N submissions")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Poll again after this long (0 runs once)")

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subreddit, hook := args[0], args[1]
		src, err := a.source(ctx)
		if err != nil {
			return err
		}
		store, err := a.openStore(ctx, "reddit")
		if err != nil {
			return err
		}
		defer store.Close()

		log := a.log.WithField("subreddit", subreddit)
		p := &harvest.Pipeline[*harvest.Submission]{
			Key:    harvest.Key(subreddit, "notify"),
			Source: take(src.New(ctx, subreddit), limit),
			Sink: &notify.SlackSink{
				Slack:  notify.NewSlack(hook),
				Marks:  store,
				Logger: log,
			},
			Logger:  log,
			Metrics: a.metrics,
			Journal: store,
			Now:     a.now,
		}
		run := func(ctx context.Context) error {
			res, err := p.Run(ctx, harvest.RunOptions{UseWatermark: true})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "r/%s: %d announced\n", subreddit, res.Written)
			return nil
		}

		if interval <= 0 {
			return run(ctx)
		}
		err = harvest.Watch(ctx, log, interval, run)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
	return cmd
}
