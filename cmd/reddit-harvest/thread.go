package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesprial/go-reddit-harvest/csvsink"
)

func (a *app) threadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "thread ID text|csv [FILE]",
		Short: "Export the comments of one submission",
		Long: `thread writes every comment of submission ID, breadth first. "text" writes
only the bodies, one per line, to ID.txt; "csv" writes all fields to ID.csv.`,
		Args:      cobra.RangeArgs(2, 3),
		ValidArgs: []string{"text", "csv"},
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := strings.TrimPrefix(args[0], "t3_")
			mode := args[1]
			if mode != "text" && mode != "csv" {
				return fmt.Errorf("unknown mode %q, want text or csv", mode)
			}
			name := id + "." + map[string]string{"text": "txt", "csv": "csv"}[mode]
			if len(args) == 3 {
				name = args[2]
			}
			name = a.output(name)

			c, err := a.client(ctx)
			if err != nil {
				return err
			}
			comments, err := c.Comments(ctx, "", id)
			if err != nil {
				return err
			}

			if mode == "csv" {
				err = csvsink.Create(name, csvsink.Thread, csvsink.ThreadComments, comments)
			} else {
				bodies := make([]string, len(comments))
				for i, cm := range comments {
					bodies[i] = cm.Body
				}
				err = os.WriteFile(name, []byte(strings.Join(bodies, "\n")), 0o644)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d comments written to %s\n", len(comments), name)
			return nil
		}),
	}
}
