package commands

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Ledger owner console",
	}
	cmd.AddCommand(adminInfoCmd(), adminStatsCmd(), adminWithdrawCmd(), adminSetOracleCmd())
	return cmd
}

func adminInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show owner, backend oracle, fee balance and session count",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := wire.Admin.Info(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

func adminStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count sessions by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := wire.Admin.Stats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, st)
		},
	}
}

func adminWithdrawCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "withdraw <to-address>",
		Short: "Withdraw collected fees (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			caller, err := signer()
			if err != nil {
				return err
			}
			rcpt, err := wire.Admin.WithdrawFees(cmd.Context(), caller, to)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Fees withdrawn to %s in tx %s\n", to.Hex(), rcpt.TxHash.Hex())
			return nil
		},
	}
}

func adminSetOracleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-oracle <address>",
		Short: "Rotate the backend oracle (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oracle, err := parseAddress(args[0])
			if err != nil {
				return err
			}
			caller, err := signer()
			if err != nil {
				return err
			}
			rcpt, err := wire.Admin.SetBackendOracle(cmd.Context(), caller, oracle)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backend oracle set to %s in tx %s\n", oracle.Hex(), rcpt.TxHash.Hex())
			return nil
		},
	}
}

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid address %q", s)
	}
	return common.HexToAddress(s), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
