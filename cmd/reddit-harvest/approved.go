package main

import (
	"fmt"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/csvsink"
)

func (a *app) approvedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approved SUBREDDIT",
		Short: "Write the approved submitters of a subreddit to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			subreddit := args[0]
			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			users, err := harvest.Collect(ctx, c.Contributors(ctx, subreddit))
			if err != nil {
				return err
			}
			name := a.output(subreddit + "-approved.csv")
			if err := csvsink.Create(name, csvsink.Default, csvsink.Contributors, users); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d approved users written to %s\n", len(users), name)
			return nil
		}),
	}
}
