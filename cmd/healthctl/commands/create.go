package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"healthvault/internal/domain"
)

// inputFlags binds the four health metrics to cmd.
func inputFlags(cmd *cobra.Command, in *domain.HealthInput) {
	f := cmd.Flags()
	f.Float64Var(&in.Weight, "weight", 0, "weight in kg, up to two decimals")
	f.Float64Var(&in.Height, "height", 0, "height in cm, up to two decimals")
	f.IntVar(&in.Exercise, "exercise", 0, "exercise level, 1 (sedentary) to 5 (very active)")
	f.IntVar(&in.Diet, "diet", 0, "diet quality, 1 (poor) to 10 (excellent)")
	for _, name := range []string{"weight", "height", "exercise", "diet"} {
		_ = cmd.MarkFlagRequired(name)
	}
}

// create --weight W --height H --exercise E --diet D: pay, open a session and submit.
func createCmd() *cobra.Command {
	var in domain.HealthInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Pay the visit fee, open a session and submit encrypted metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			caller, err := signer()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			created, err := wire.Sessions.CreateSessionAndSubmit(cmd.Context(), caller, in)
			if err != nil {
				if created != nil {
					fmt.Fprintf(out, "Session %s was created but its metrics were not submitted.\n", created.ID)
					fmt.Fprintf(out, "Retry with: healthctl submit %s\n", created.ID)
				}
				return err
			}
			if created.Approved {
				fmt.Fprintln(out, "Fee approved.")
			}
			fmt.Fprintf(out, "Session: %s\n", created.ID)
			if created.CreatedAt != nil {
				fmt.Fprintf(out, "Created: %s\n", created.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"))
			}
			fmt.Fprintf(out, "Create tx: %s\nSubmit tx: %s\n", created.CreateTx.Hex(), created.SubmitTx.Hex())
			return nil
		},
	}
	inputFlags(cmd, &in)
	return cmd
}

// submit <id>: finish a session whose create succeeded but whose submission failed.
func submitCmd() *cobra.Command {
	var in domain.HealthInput
	cmd := &cobra.Command{
		Use:   "submit <session-id>",
		Short: "Submit encrypted metrics to an existing session",
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
			rcpt, err := wire.Sessions.SubmitInputs(cmd.Context(), caller, id, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted to session %s in tx %s\n", id, rcpt.TxHash.Hex())
			return nil
		},
	}
	inputFlags(cmd, &in)
	return cmd
}
