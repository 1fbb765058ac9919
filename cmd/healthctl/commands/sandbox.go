package commands

import (
	"fmt"
	"math/big"

	"github.com/spf13/cobra"
)

// faucet [amount]: mint fee credits to the owner address.
func faucetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "faucet [amount]",
		Short: "Mint sandbox fee credits to your address (devnet only)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sb, err := wire.RequireSandbox()
			if err != nil {
				return err
			}
			addr, err := wire.Identity.Address()
			if err != nil {
				return err
			}
			amount := wire.Sessions.Config().VisitFee
			if len(args) == 1 {
				v, ok := new(big.Int).SetString(args[0], 10)
				if !ok || v.Sign() <= 0 {
					return fmt.Errorf("invalid amount %q", args[0])
				}
				amount = v
			}
			rcpt, err := sb.Faucet(cmd.Context(), addr, amount)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Minted %s to %s in tx %s\n", amount, addr.Hex(), rcpt.TxHash.Hex())
			return nil
		},
	}
}

// process <id>: compute and store the encrypted result as the backend oracle.
func processCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <session-id>",
		Short: "Run the backend oracle for a session (devnet only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			sb, err := wire.RequireSandbox()
			if err != nil {
				return err
			}
			_, rcpt, err := sb.Process(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Result stored for session %s in tx %s\n", id, rcpt.TxHash.Hex())
			return nil
		},
	}
}
