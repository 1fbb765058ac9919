package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"healthvault/internal/domain"
)

// watch: print session ids as they are created until interrupted.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream session creation events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			events := make(chan domain.SessionCreatedEvent, 16)
			sub, err := wire.Sessions.WatchCreated(ctx, events)
			if err != nil {
				return err
			}
			defer sub.Unsubscribe()

			out := cmd.OutOrStdout()
			for {
				select {
				case ev := <-events:
					if ev.Removed {
						fmt.Fprintf(out, "session %s removed by reorg (block %d)\n", ev.SessionID, ev.BlockNumber)
						continue
					}
					fmt.Fprintf(out, "session %s created in block %d tx %s\n", ev.SessionID, ev.BlockNumber, ev.TxHash.Hex())
				case err := <-sub.Err():
					return err
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}
