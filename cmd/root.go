package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/config"
)

var (
	cfg           *config.Config
	providersFile string
)

var rootCmd = &cobra.Command{
	Use:   "leadgen",
	Short: "Multi-source local business lead generator",
	Long:  "Collects businesses for a category and location from several place-data providers, merges duplicates, scrapes contact details, scores and stores the leads.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if providersFile != "" {
			if err := config.LoadProviders(providersFile, c); err != nil {
				return fmt.Errorf("load providers: %w", err)
			}
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

func init() {
	rootCmd.PersistentFlags().StringVar(&providersFile, "providers-file", "", "YAML file overlaying provider settings")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
