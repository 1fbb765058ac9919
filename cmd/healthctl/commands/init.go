package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"healthvault/internal/app"
)

func initCmd() *cobra.Command {
	var importKey string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate the owner key, store it securely and write a default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase == "" {
				return fmt.Errorf("passphrase required (-p)")
			}
			out := cmd.OutOrStdout()
			if importKey != "" {
				addr, err := wire.Identity.ImportIdentity(passphrase, importKey)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Identity imported.\nAddress: %s\n", addr.Hex())
			} else {
				addr, fp, err := wire.Identity.GenerateIdentity(passphrase)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Identity created.\nAddress: %s\nFingerprint: %s\n", addr.Hex(), fp)
			}

			_, err := os.Stat(filepath.Join(home, app.ConfigFile))
			if errors.Is(err, os.ErrNotExist) {
				return wire.Config.Save()
			}
			return err
		},
	}
	cmd.Flags().StringVar(&importKey, "import", "", "hex-encoded secp256k1 private key to import instead of generating one")
	return cmd
}
