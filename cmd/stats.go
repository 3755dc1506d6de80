package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/monitoring"
)

var statsLookback int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize recent runs and provider quota, with any alerts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "")
		if err != nil {
			return err
		}
		defer env.Close()

		lookback := statsLookback
		if lookback <= 0 {
			lookback = cfg.Monitoring.LookbackWindowHours
		}
		snap, err := env.Monitor.Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "stats")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(statsReport{
			Snapshot: snap,
			Alerts:   monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap),
		})
	},
}

// statsReport is the body of the stats command and GET /stats.
type statsReport struct {
	*monitoring.Snapshot
	Alerts []monitoring.Alert `json:"alerts"`
}

func init() {
	statsCmd.Flags().IntVar(&statsLookback, "hours", 0, "lookback window in hours (default: monitoring.lookback_window_hours)")
	rootCmd.AddCommand(statsCmd)
}
