package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
)

// runLister is implemented by the relational stores.
type runLister interface {
	Runs(ctx context.Context, key string, limit int) ([]*harvest.Run, error)
}

func (a *app) historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history DATABASE KEY",
		Short: "Show the latest runs recorded for a watermark key",
		Long: `history lists the run journal of KEY (for example "golang/submissions") in
DATABASE, the name the job stores into: the subreddit for sync, users_log for
modlog and reddit for notify.`,
		Args: cobra.ExactArgs(2),
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show")

	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := a.openStore(ctx, args[0])
		if err != nil {
			return err
		}
		defer store.Close()

		lister, ok := store.(runLister)
		if !ok {
			return fmt.Errorf("storage %s has no run journal", a.cfg.Storage.Type)
		}
		runs, err := lister.Runs(ctx, args[1], limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "no runs recorded for %s\n", args[1])
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN\tFINISHED\tTOOK\tFETCHED\tWRITTEN\tWATERMARK\tERROR")
		for _, r := range runs {
			mark := "-"
			if r.Watermark > 0 {
				mark = humanize.Time(r.Watermark.Time())
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				shortID(r.ID),
				humanize.Time(r.FinishedAt),
				r.FinishedAt.Sub(r.StartedAt),
				humanize.Comma(int64(r.Fetched)),
				humanize.Comma(int64(r.Written)),
				mark,
				r.Error,
			)
		}
		return tw.Flush()
	})
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
