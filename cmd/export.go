package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/export"
	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var (
	exportMinScore float64
	exportHasEmail bool
	exportOutput   string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a run's leads to a spreadsheet, Notion or Salesforce",
}

var exportXLSXCmd = &cobra.Command{
	Use:   "xlsx <run-id>",
	Short: "Write leads and drafts to an Excel workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export-xlsx"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := loadExportLeads(ctx, st, args[0])
		if err != nil {
			return err
		}
		drafts, err := st.ListEmailDrafts(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "export xlsx: drafts")
		}

		out := exportOutput
		if out == "" {
			out = fmt.Sprintf("leads_%s.xlsx", args[0])
		}
		if err := export.SaveXLSX(out, leads, drafts); err != nil {
			return err
		}

		zap.L().Info("xlsx export complete",
			zap.String("path", out),
			zap.Int("leads", len(leads)),
			zap.Int("drafts", len(drafts)),
		)
		fmt.Println(out)
		return nil
	},
}

var exportNotionCmd = &cobra.Command{
	Use:   "notion <run-id>",
	Short: "Upsert leads into the Notion leads database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export-notion"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := loadExportLeads(ctx, st, args[0])
		if err != nil {
			return err
		}

		sum, err := export.NewNotionExporter(initNotion(), cfg.Notion.LeadDB).Export(ctx, leads)
		if err != nil {
			return err
		}
		return printSummary("notion", sum)
	},
}

var exportSalesforceCmd = &cobra.Command{
	Use:   "salesforce <run-id>",
	Short: "Create Salesforce Leads, skipping emails that already exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("export-salesforce"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		leads, err := loadExportLeads(ctx, st, args[0])
		if err != nil {
			return err
		}

		sf, err := initSalesforce()
		if err != nil {
			return err
		}

		sum, err := export.NewSalesforceExporter(sf, cfg.Salesforce.LeadSource).Export(ctx, leads)
		if err != nil {
			return err
		}
		return printSummary("salesforce", sum)
	},
}

func init() {
	exportCmd.PersistentFlags().Float64Var(&exportMinScore, "min-score", 0, "only export leads with at least this confidence")
	exportCmd.PersistentFlags().BoolVar(&exportHasEmail, "has-email", false, "only export leads with a best email")
	exportXLSXCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "workbook path (default: leads_<run-id>.xlsx)")

	exportCmd.AddCommand(exportXLSXCmd)
	exportCmd.AddCommand(exportNotionCmd)
	exportCmd.AddCommand(exportSalesforceCmd)
	rootCmd.AddCommand(exportCmd)
}

func loadExportLeads(ctx context.Context, st store.Store, runID string) ([]model.Lead, error) {
	if _, err := st.GetRun(ctx, runID); err != nil {
		return nil, eris.Wrap(err, "export")
	}
	leads, err := st.ListLeads(ctx, runID, store.LeadFilter{
		MinScore: exportMinScore,
		HasEmail: exportHasEmail,
	})
	if err != nil {
		return nil, eris.Wrap(err, "export: list leads")
	}
	if len(leads) == 0 {
		return nil, eris.Errorf("export: run %s has no matching leads", runID)
	}
	return leads, nil
}

func printSummary(target string, sum *export.Summary) error {
	zap.L().Info("export complete",
		zap.String("target", target),
		zap.Int("created", sum.Created),
		zap.Int("updated", sum.Updated),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}
