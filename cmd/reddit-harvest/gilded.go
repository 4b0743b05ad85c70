package main

import (
	"fmt"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/csvsink"
)

func (a *app) gildedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gilded SUBREDDIT",
		Short: "Write recently gilded submissions and comments to CSV",
		Args:  cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			subreddit := args[0]
			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			items, err := harvest.Collect(ctx, c.Gilded(ctx, subreddit))
			if err != nil {
				return err
			}

			// submissions first, then comments, each in listing order
			var posts, comments []*harvest.Gilded
			for _, g := range items {
				if g.Kind == "t1" {
					comments = append(comments, g)
				} else {
					posts = append(posts, g)
				}
			}

			name := a.output(fmt.Sprintf("%s-%d-gilded.csv", subreddit, a.now().Unix()))
			if err := csvsink.Create(name, csvsink.Default, csvsink.GildedItems, append(posts, comments...)); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "File written:", name)
			return nil
		}),
	}
}
