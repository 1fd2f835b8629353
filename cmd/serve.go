package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ThatCatDev/slusha/server/internal/config"
	"github.com/ThatCatDev/slusha/server/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the slusha backend server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if host, _ := cmd.Flags().GetString("host"); host != "" {
			cfg.Host = host
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Port = port
		}
		if cmd.Flags().Changed("rag") {
			cfg.RAG.Enabled, _ = cmd.Flags().GetBool("rag")
		}
		if backend, _ := cmd.Flags().GetString("index-backend"); backend != "" {
			cfg.IndexBackend = backend
		}
		if backend, _ := cmd.Flags().GetString("store-backend"); backend != "" {
			cfg.StoreBackend = backend
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			cfg.DataDir = dir
		}

		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.EnsureDirs(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, log, true)
		if err != nil {
			return err
		}

		srv := server.New(cfg, server.Deps{
			Chat:    a.chat,
			Memory:  a.memory,
			Store:   a.store,
			Closers: a.closers,
		}, log)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("host", "", "bind address (default 0.0.0.0)")
	serveCmd.Flags().Int("port", 0, "listen port (default 8080)")
	serveCmd.Flags().Bool("rag", true, "enable conversation memory")
	serveCmd.Flags().String("index-backend", "", "vector index backend (chromem, pgvector)")
	serveCmd.Flags().String("store-backend", "", "message store backend (memory, postgres)")
	serveCmd.Flags().String("data-dir", "", "data directory")
	rootCmd.AddCommand(serveCmd)
}
