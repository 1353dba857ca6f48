package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/forge-interview/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "forge-interview",
	Short: "Knowledge-capture interview engine",
	Long:  "Conducts multi-turn expert interviews over text and voice: plans question rounds, streams interviewer turns, validates answers against goals, and extracts discrete knowledge units.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
