package main

import (
	"fmt"

	"github.com/spf13/cobra"

	harvest "github.com/jamesprial/go-reddit-harvest"
	"github.com/jamesprial/go-reddit-harvest/csvsink"
)

func (a *app) usersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "users FILE",
		Short: "Add account details to a CSV of usernames",
		Long: `users reads the usernames in the first column of FILE and rewrites it with
the creation date, karma and verified-email flag of each account. Accounts that
are deleted or suspended get n/a.`,
		Args: cobra.ExactArgs(1),
		RunE: a.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file := args[0]
			rows, err := csvsink.ReadRows(file, csvsink.Default)
			if err != nil {
				return err
			}
			c, err := a.client(ctx)
			if err != nil {
				return err
			}

			out := [][]string{csvsink.UserHeader}
			missing := 0
			for i, row := range rows {
				if len(row) == 0 || row[0] == "" {
					continue
				}
				// the header of a previous run
				if i == 0 && row[0] == csvsink.UserHeader[0] {
					continue
				}
				name := row[0]
				u, err := c.User(ctx, name)
				if err != nil {
					if !harvest.IsUnreachable(err) {
						return err
					}
					a.log.WithField("user", name).Info("account not available")
					missing++
				}
				out = append(out, append([]string{name}, csvsink.UserColumns(u)...))
			}

			if err := csvsink.WriteRows(file, csvsink.Default, out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d users written to %s (%d not available)\n", len(out)-1, file, missing)
			return nil
		}),
	}
}
