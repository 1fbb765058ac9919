package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			viewer, err := wire.Viewer()
			if err != nil {
				return err
			}
			listing, err := wire.Sessions.FetchMySessions(cmd.Context(), viewer)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(listing.Sessions) == 0 {
				fmt.Fprintf(out, "No sessions for %s (%d scanned).\n", viewer.Address.Hex(), listing.Scanned)
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SESSION\tSTATUS\tCREATED")
				for _, s := range listing.Sessions {
					status := "pending"
					if s.ResultReady {
						status = "ready"
					}
					created := "-"
					if s.CreatedAt != nil {
						created = s.CreatedAt.UTC().Format("2006-01-02 15:04")
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, status, created)
				}
				if err := tw.Flush(); err != nil {
					return err
				}
			}
			for _, sk := range listing.Skipped {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped session %s: %v\n", sk.ID, sk.Reason)
			}
			return nil
		},
	}
}
