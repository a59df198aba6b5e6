package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datagenie/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "datagenie",
	Short: "Natural-language analytics over a SQL warehouse",
	Long:  "Classifies business questions, synthesizes read-only SQL, executes it with one repair attempt, charts the result, and fans broad questions out into dashboards.",
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
