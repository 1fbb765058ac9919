package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"healthvault/internal/domain"
)

func resultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <session-id>",
		Short: "Decrypt the result of one of your sessions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			caller, err := signer()
			if err != nil {
				return err
			}
			res, err := wire.Sessions.DecryptResult(cmd.Context(), caller, id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if res.Pending {
				fmt.Fprintf(out, "Session %s: result pending, try again later.\n", id)
				return nil
			}
			tier := domain.ClassifyRisk(res)
			fmt.Fprintf(out, "Session %s: result %s (%s risk)\n", id, res, tier)
			if advice := tier.Advice(); advice != "" {
				fmt.Fprintln(out, advice)
			}
			return nil
		},
	}
}
