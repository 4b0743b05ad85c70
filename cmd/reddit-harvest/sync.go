package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

func (a *app) syncCmd() *cobra.Command {
	var (
		incremental   bool
		refreshErrors string
		noTraffic     bool
	)
	cmd := &cobra.Command{
		Use:   "sync SUBREDDIT DAYS_OLD REFRESH_OLD",
		Short: "Store recent submissions, comments and traffic of a subreddit",
		Long: `sync saves the submissions of the last DAYS_OLD days with their comments into
<data-dir>/SUBREDDIT.db (or Postgres), then re-fetches the submissions stored
REFRESH_OLD days ago so late votes and comments are picked up.`,
		Args: cobra.ExactArgs(3),
	}
	cmd.Flags().BoolVar(&incremental, "incremental", false, "Start from the newest stored submission instead of DAYS_OLD")
	cmd.Flags().StringVar(&refreshErrors, "refresh-errors", "skip-unreachable", "Refresh error policy: skip-unreachable, fail or skip-all")
	cmd.Flags().BoolVar(&noTraffic, "no-traffic", false, "Skip moderator traffic stats")

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subreddit := args[0]
		daysOld, err := strconv.Atoi(args[1])
		if err != nil || daysOld <= 0 {
			return fmt.Errorf("DAYS_OLD must be a positive number, got %q", args[1])
		}
		refreshOld, err := strconv.Atoi(args[2])
		if err != nil || refreshOld < 0 {
			return fmt.Errorf("REFRESH_OLD must be a number of days, got %q", args[2])
		}
		policy, err := harvest.ParseErrorPolicy(refreshErrors)
		if err != nil {
			return err
		}

		src, err := a.source(ctx)
		if err != nil {
			return err
		}
		store, err := a.openStore(ctx, subreddit)
		if err != nil {
			return err
		}
		defer store.Close()

		h := harvest.NewHarvester(src, store,
			harvest.WithLogger(a.log),
			harvest.WithMetrics(a.metrics),
			harvest.WithClock(a.now),
		)
		report, err := h.SyncSubreddit(ctx, subreddit, harvest.SyncOptions{
			DaysOld:        daysOld,
			RefreshOld:     refreshOld,
			Incremental:    incremental,
			RefreshPolicy:  policy,
			IncludeTraffic: !noTraffic,
		})
		if report != nil {
			printReport(cmd, report)
		}
		return err
	})
	return cmd
}

func printReport(cmd *cobra.Command, r *harvest.SyncReport) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "r/%s: %s submissions, %s comments, %s traffic days\n",
		r.Subreddit, humanize.Comma(int64(r.Submissions)), humanize.Comma(int64(r.Comments)), humanize.Comma(int64(r.Traffic)))
	if r.SubmissionMark > 0 {
		fmt.Fprintf(out, "newest submission %s\n", humanize.Time(r.SubmissionMark.Time()))
	}
	if r.Refreshed > 0 || len(r.SkippedRefresh) > 0 {
		fmt.Fprintf(out, "refreshed %s submissions (%d skipped), %s comments\n",
			humanize.Comma(int64(r.Refreshed)), len(r.SkippedRefresh), humanize.Comma(int64(r.RefreshedComments)))
	}
	if len(r.CommentsWithErrors) > 0 {
		fmt.Fprintf(out, "comments unavailable for %d submissions\n", len(r.CommentsWithErrors))
	}
}
