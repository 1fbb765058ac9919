package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func addressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the owner address",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := wire.Identity.Address()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr.Hex())
			return nil
		},
	}
}
