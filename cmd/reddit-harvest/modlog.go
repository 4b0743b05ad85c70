package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/reddit"
)

func (a *app) modlogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "modlog SUBREDDIT...",
		Short: "Append new bans and removal reasons from the moderation log",
		Long: `modlog stores the ban and removal-reason entries of each subreddit's
moderation log in the users_log database, starting after the newest entry
already stored. Subreddits that do not exist or are not moderated by the
account are skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			store, err := a.openStore(ctx, "users_log")
			if err != nil {
				return err
			}
			defer store.Close()

			for _, subreddit := range args {
				log := a.log.WithField("subreddit", subreddit)
				bans, removals, err := a.modlog(ctx, log, c, store, subreddit)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "r/%s: %d bans, %d removals\n", subreddit, bans, removals)
			}
			return nil
		}),
	}
}

func (a *app) modlog(ctx context.Context, log logrus.FieldLogger, c *reddit.Client, store harvest.Store, subreddit string) (int, int, error) {
	if _, err := c.About(ctx, subreddit); err != nil {
		if harvest.IsUnreachable(err) {
			log.WithError(err).Warn("subreddit not found")
			return 0, 0, nil
		}
		return 0, 0, err
	}

	opts := harvest.RunOptions{UseWatermark: true}
	bans := &harvest.Pipeline[*harvest.Ban]{
		Key:     harvest.Key(subreddit, "banned"),
		Source:  c.Bans(ctx, subreddit),
		Sink:    store.BanSink(),
		Logger:  log,
		Metrics: a.metrics,
		Journal: store,
		Now:     a.now,
	}
	br, err := bans.Run(ctx, opts)
	if err != nil {
		if harvest.IsUnreachable(err) {
			log.WithError(err).Warn("moderation log not accessible")
			return 0, 0, nil
		}
		return 0, 0, err
	}

	removals := &harvest.Pipeline[*harvest.Removal]{
		Key:     harvest.Key(subreddit, "removed"),
		Source:  c.Removals(ctx, subreddit),
		Sink:    store.RemovalSink(),
		Logger:  log,
		Metrics: a.metrics,
		Journal: store,
		Now:     a.now,
	}
	rr, err := removals.Run(ctx, opts)
	if err != nil {
		if harvest.IsUnreachable(err) {
			log.WithError(err).Warn("removal reasons not accessible")
			return br.Written, 0, nil
		}
		return br.Written, 0, err
	}
	return br.Written, rr.Written, nil
}
