package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
)

var (
	runLocation       string
	runCategory       string
	runProviders      []string
	runLimit          int
	runSkipEnrichment bool
	runDraftEmails    bool
	runRequireApprove bool
	runDryRun         bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Collect, merge, enrich and score leads for one location and category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "run")
		if err != nil {
			return err
		}
		defer env.Close()

		req := model.RunRequest{
			Location:       runLocation,
			Category:       runCategory,
			Providers:      runProviders,
			SkipEnrichment: runSkipEnrichment,
			DraftEmails:    cfg.Outreach.Enabled,
			DryRun:         runDryRun,
		}
		req.RequireApproval = cfg.Outreach.RequireApproval
		if cmd.Flags().Changed("require-approval") {
			req.RequireApproval = runRequireApprove
		}
		if cmd.Flags().Changed("draft-emails") {
			req.DraftEmails = runDraftEmails
		}
		if runLimit > 0 {
			req.Limits = make(map[string]int)
			for _, p := range env.Collector.Select(req.Providers) {
				req.Limits[p.ID()] = runLimit
			}
		}

		run, result, err := env.Pipeline.Start(ctx, req)
		if err != nil {
			if run != nil {
				return eris.Wrapf(err, "run %s", run.ID)
			}
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("run complete",
			zap.String("run_id", run.ID),
			zap.Int("raw_leads", result.RawLeads),
			zap.Int("merged_leads", result.MergedLeads),
			zap.Int("enriched", result.Enriched),
			zap.Int("sent", result.Sent),
			zap.Duration("duration", result.Duration),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	runCmd.Flags().StringVar(&runLocation, "location", "", "city or area to search (required)")
	runCmd.Flags().StringVar(&runCategory, "category", "", "business category, e.g. bakery (required)")
	runCmd.Flags().StringSliceVar(&runProviders, "providers", nil, "provider IDs to query (default: collect.default_providers)")
	runCmd.Flags().IntVar(&runLimit, "limit", 0, "max results per provider (default: collect.default_limit)")
	runCmd.Flags().BoolVar(&runSkipEnrichment, "skip-enrichment", false, "do not crawl lead websites")
	runCmd.Flags().BoolVar(&runDraftEmails, "draft-emails", false, "draft outreach emails (default: outreach.enabled)")
	runCmd.Flags().BoolVar(&runRequireApprove, "require-approval", false, "hold drafts until approved (default: outreach.require_approval)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "draft emails but never send them")
	_ = runCmd.MarkFlagRequired("location")
	_ = runCmd.MarkFlagRequired("category")
	rootCmd.AddCommand(runCmd)
}
