package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThatCatDev/slusha/server/internal/config"
	"github.com/ThatCatDev/slusha/server/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:          "slusha-server",
	Short:        "Slusha backend server",
	Long:         "Slusha backend: character chat with long-term conversation memory and lorebooks.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default $SLUSHA_CONFIG)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the layered config and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, logging.New(cfg.LogLevel, cfg.LogFormat), nil
}
