package root

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	draftStore "repsync/internal/adapters/storage/draft"
	"repsync/internal/application/syncer"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync <day-id>",
		Short: "Drain and transmit a day's pending changes once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dayID := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, cleanup, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if _, err := store.Load(context.Background(), dayID); errors.Is(err, draftStore.ErrNotFound) {
				return fmt.Errorf("no draft for day %s", dayID)
			} else if err != nil {
				return err
			}

			engine := syncer.NewSession(store, newTransmitter(cfg), syncer.Config{
				MaxAttempts: cfg.Sync.MaxAttempts,
			})
			engine.Start(dayID)
			defer engine.Stop()

			if err := engine.SyncNow(cmd.Context()); err != nil {
				return fmt.Errorf("sync %s: %w", dayID, err)
			}

			d, err := store.Load(context.Background(), dayID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %s (last synced %s)\n",
				dayID, time.UnixMilli(d.LastSynced).Format("15:04:05"))
			return nil
		},
	}
}
