package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatvault/internal/config"
	"github.com/nextlevelbuilder/chatvault/internal/kv"
)

// reindexCmd rebuilds the derived day-index and roster entries by scanning
// every archived message record. Useful after restoring a partial backup.
func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild chat_index and chat_rel entries from archived messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			store, err := kv.Open(cfg.DBPath, slog.Default())
			if err != nil {
				return err
			}
			defer store.Close()

			rebuilt := 0
			err = store.ScanPrefix([]byte("chat:"), func(key, _ []byte) error {
				chatID, ts, ok := kv.ParseMessageKey(key)
				if !ok {
					return nil
				}
				if err := store.Set(kv.DayIndexKey(chatID, kv.DayOf(ts)), kv.Marker); err != nil {
					return err
				}
				if err := store.Set(kv.ChatRelKey(chatID), kv.Marker); err != nil {
					return err
				}
				rebuilt++
				return nil
			})
			if err != nil {
				return err
			}

			slog.Info("reindex complete", "records", rebuilt)
			return nil
		},
	}
}
