package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/export"
)

const exportPage = 500

func (a *app) exportCmd() *cobra.Command {
	var since, until string
	cmd := &cobra.Command{
		Use:   "export SUBREDDIT FILE",
		Short: "Export stored submissions to a Parquet file",
		Long: `export reads the submissions stored by sync for SUBREDDIT, optionally limited
to those created between --since and --until (YYYY-MM-DD, UTC), and writes them
to FILE in Parquet format.`,
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().StringVar(&since, "since", "", "First day to export (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "Last day to export (YYYY-MM-DD)")

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		subreddit, file := args[0], args[1]

		opts := harvest.QueryOptions{Limit: exportPage, SortBy: "created", SortOrder: "asc"}
		if since != "" {
			t, err := time.Parse(time.DateOnly, since)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			opts.StartDate = t
		}
		if until != "" {
			t, err := time.Parse(time.DateOnly, until)
			if err != nil {
				return fmt.Errorf("invalid --until: %w", err)
			}
			// the whole day
			opts.EndDate = t.AddDate(0, 0, 1).Add(-time.Second)
		}

		store, err := a.openStore(ctx, subreddit)
		if err != nil {
			return err
		}
		defer store.Close()

		var subs []*harvest.Submission
		for {
			page, err := store.GetSubmissions(ctx, subreddit, opts)
			if err != nil {
				return err
			}
			subs = append(subs, page...)
			if len(page) < exportPage {
				break
			}
			opts.Offset += len(page)
		}

		if err := export.WriteSubmissions(file, subs); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d submissions written to %s\n", len(subs), file)
		return nil
	})
	return cmd
}
