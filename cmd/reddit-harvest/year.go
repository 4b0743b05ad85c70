package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/csvsink"
)

// yearRange returns the bounds that select submissions created during year,
// in UTC.
func yearRange(year int) (since, until time.Time) {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(-time.Second), start.AddDate(1, 0, 0).Add(-time.Second)
}

func (a *app) yearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "year SUBREDDIT [YEAR]",
		Short: "Append a year of submissions to year-YEAR.csv",
		Long: `year appends the submissions of YEAR (the current year by default) to
year-YEAR.csv, skipping ids already in the file. Interrupting the run saves
what was collected so far.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			subreddit := args[0]
			year := a.now().UTC().Year()
			if len(args) == 2 {
				y, err := strconv.Atoi(args[1])
				if err != nil || y < 2005 {
					return fmt.Errorf("YEAR must be a year since 2005, got %q", args[1])
				}
				year = y
			}
			since, until := yearRange(year)

			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			name := a.output(fmt.Sprintf("year-%d.csv", year))
			sink, err := csvsink.OpenAppend(name, csvsink.Default, csvsink.YearSubmissions, csvsink.WithLogger(a.log))
			if err != nil {
				return err
			}
			defer sink.Close()

			p := &harvest.Pipeline[*harvest.Submission]{
				Key:     harvest.Key(subreddit, "year"),
				Source:  c.New(ctx, subreddit),
				Sink:    sink,
				Logger:  a.log.WithField("subreddit", subreddit),
				Metrics: a.metrics,
				Now:     a.now,
			}
			res, err := p.Run(ctx, harvest.RunOptions{
				Since:            since,
				Until:            until,
				UseWatermark:     true,
				FlushOnInterrupt: true,
			})
			if err != nil {
				return err
			}
			status := "complete"
			if res.Interrupted {
				status = "interrupted"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d new submissions, %d in file (%s)\n", name, res.Written, sink.Len(), status)
			return nil
		}),
	}
}
