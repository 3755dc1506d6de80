package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect lead-generation runs",
	Long:  "Commands for listing runs and viewing their logs and leads.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(status),
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run with its log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}
		logs, err := st.ListLogs(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "runs show: logs")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			*model.Run
			Logs []model.LogEntry `json:"logs"`
		}{run, logs})
	},
}

// -- runs leads --

var runsLeadsCmd = &cobra.Command{
	Use:   "leads <run-id>",
	Short: "List the leads of a run, best score first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		minScore, _ := cmd.Flags().GetFloat64("min-score")
		hasEmail, _ := cmd.Flags().GetBool("has-email")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		leads, err := st.ListLeads(ctx, args[0], store.LeadFilter{
			MinScore: minScore,
			HasEmail: hasEmail,
			Limit:    limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs leads")
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(leads)
		}
		if len(leads) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}
		formatLeads(os.Stdout, leads)
		return nil
	},
}

func init() {
	runsListCmd.Flags().String("status", "", "filter by run status (pending, running, completed, failed)")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsLeadsCmd.Flags().Float64("min-score", 0, "only leads with at least this confidence")
	runsLeadsCmd.Flags().Bool("has-email", false, "only leads with a best email")
	runsLeadsCmd.Flags().Int("limit", 100, "max number of leads to display")
	runsLeadsCmd.Flags().Bool("json", false, "print leads as JSON")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsLeadsCmd)
	rootCmd.AddCommand(runsCmd)
}

func formatRunsList(w io.Writer, runs []model.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tLOCATION\tCATEGORY\tLEADS\tCREATED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID,
			r.Status,
			r.Request.Location,
			r.Request.Category,
			r.TotalLeads,
			r.CreatedAt.Format("2006-01-02 15:04"),
			truncate(r.Error, 60),
		)
	}
	_ = tw.Flush()
}

func formatLeads(w io.Writer, leads []model.Lead) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SCORE\tNAME\tEMAIL\tPHONE\tWEBSITE\tSOURCES")
	for _, l := range leads {
		fmt.Fprintf(tw, "%.2f\t%s\t%s\t%s\t%s\t%s\n",
			l.ConfidenceScore,
			truncate(l.Name, 40),
			l.BestEmail,
			l.Phone,
			l.Website,
			strings.Join(l.Sources, ","),
		)
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
