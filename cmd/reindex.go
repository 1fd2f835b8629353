package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ThatCatDev/slusha/server/internal/config"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the memory index of a chat from its stored messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID, _ := cmd.Flags().GetInt64("chat")
		if chatID <= 0 {
			return fmt.Errorf("--chat is required")
		}

		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if !cfg.RAG.Enabled {
			return fmt.Errorf("conversation memory is disabled in config")
		}
		if err := config.EnsureDirs(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		if _, err := a.store.Conversation(ctx, chatID); err != nil {
			return err
		}
		n, err := a.memory.Reindex(ctx, chatID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Reindexed chat %d: %d messages\n", chatID, n)
		return nil
	},
}

func init() {
	reindexCmd.Flags().Int64("chat", 0, "chat id to reindex")
	rootCmd.AddCommand(reindexCmd)
}
