package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/outreach"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var emailsCmd = &cobra.Command{
	Use:   "emails",
	Short: "Review, approve and send outreach drafts",
	Long:  "Commands for listing a run's drafts, approving or suppressing them, sending approved drafts and managing the opt-out list.",
}

// initOutbox opens the store and builds the outbox without the rest of
// the pipeline.
func initOutbox(ctx context.Context) (store.Store, *outreach.Outbox, error) {
	if err := cfg.Validate("emails"); err != nil {
		return nil, nil, err
	}
	st, err := initStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	ob, err := buildOutbox(cfg, st, nil)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	return st, ob, nil
}

// -- emails list --

var emailsListCmd = &cobra.Command{
	Use:   "list <run-id>",
	Short: "List a run's drafts with their status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		drafts, err := st.ListEmailDrafts(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "emails list")
		}
		status, _ := cmd.Flags().GetString("status")
		if status != "" {
			drafts = filterDrafts(drafts, model.EmailStatus(status))
		}
		if len(drafts) == 0 {
			fmt.Fprintln(os.Stderr, "No drafts found.")
			return nil
		}
		formatDrafts(os.Stdout, drafts)
		return nil
	},
}

// -- emails approve / suppress --

var emailsApproveCmd = &cobra.Command{
	Use:   "approve <draft-id>",
	Short: "Approve a held draft and send it unless its run is a dry run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateDraft(cmd.Context(), args[0], (*outreach.Outbox).Approve)
	},
}

var emailsSuppressCmd = &cobra.Command{
	Use:   "suppress <draft-id>",
	Short: "Stop a draft from being sent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateDraft(cmd.Context(), args[0], (*outreach.Outbox).Suppress)
	},
}

func updateDraft(ctx context.Context, id string, op func(*outreach.Outbox, context.Context, string) (*model.EmailDraft, error)) error {
	st, ob, err := initOutbox(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	d, err := op(ob, ctx, id)
	if err != nil {
		return eris.Wrapf(err, "draft %s", id)
	}
	zap.L().Info("draft updated", zap.String("draft_id", d.ID), zap.String("status", string(d.Status)))
	return printJSON(d)
}

// -- emails send --

var emailsSendCmd = &cobra.Command{
	Use:   "send <run-id>",
	Short: "Send a run's approved drafts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, ob, err := initOutbox(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if !ob.CanSend() {
			return eris.New("emails send: sending is not configured, set outreach.smtp_host")
		}
		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "emails send")
		}
		if run.Request.DryRun {
			return eris.Errorf("emails send: run %s is a dry run", run.ID)
		}
		rep, err := ob.SendApproved(ctx, run.ID)
		if err != nil {
			return eris.Wrap(err, "emails send")
		}
		return printJSON(rep)
	},
}

// -- emails optout --

var emailsOptOutCmd = &cobra.Command{
	Use:   "optout <address>...",
	Short: "Add addresses to the opt-out list",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		for _, addr := range args {
			if err := st.AddOptOut(ctx, addr); err != nil {
				return eris.Wrapf(err, "opt out %s", addr)
			}
		}
		fmt.Fprintf(os.Stderr, "Added %d addresses to the opt-out list.\n", len(args))
		return nil
	},
}

func filterDrafts(drafts []model.EmailDraft, status model.EmailStatus) []model.EmailDraft {
	var out []model.EmailDraft
	for _, d := range drafts {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out
}

func formatDrafts(w io.Writer, drafts []model.EmailDraft) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTO\tSUBJECT")
	for _, d := range drafts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, d.Status, d.ToAddress, truncate(d.Subject, 50))
	}
	_ = tw.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	emailsListCmd.Flags().String("status", "", "only drafts with this status")

	emailsCmd.AddCommand(emailsListCmd)
	emailsCmd.AddCommand(emailsApproveCmd)
	emailsCmd.AddCommand(emailsSuppressCmd)
	emailsCmd.AddCommand(emailsSendCmd)
	emailsCmd.AddCommand(emailsOptOutCmd)
	rootCmd.AddCommand(emailsCmd)
}
