package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/cost"
	"github.com/sells-group/leadgen-cli/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List provider adapters with availability and quota",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "")
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Ledger.Report(ctx)
		if err != nil {
			return eris.Wrap(err, "providers")
		}

		formatProviders(os.Stdout, env.Registry.All(), report)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// providerInfo is the listing row shared by the CLI and the API.
type providerInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	RateLimit string `json:"rate_limit"`
	Period    string `json:"quota_period,omitempty"`
	Used      int    `json:"quota_used"`
	Limit     int    `json:"quota_limit"`
	Remaining int    `json:"quota_remaining"`
}

func providerInfos(providers []provider.Provider, report []cost.Status) []providerInfo {
	byID := make(map[string]cost.Status, len(report))
	for _, s := range report {
		byID[s.Provider] = s
	}

	out := make([]providerInfo, 0, len(providers))
	for _, p := range providers {
		st, ok := byID[p.ID()]
		info := providerInfo{
			ID:        p.ID(),
			Name:      p.Name(),
			Available: p.Available(),
			RateLimit: p.RateLimit().String(),
			Remaining: -1,
		}
		if ok {
			info.Period = st.Period
			info.Used = st.Used
			info.Limit = st.Limit
			info.Remaining = st.Remaining()
		}
		out = append(out, info)
	}
	return out
}

func formatProviders(w io.Writer, providers []provider.Provider, report []cost.Status) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tREADY\tRATE\tQUOTA")
	for _, info := range providerInfos(providers, report) {
		quota := "unlimited"
		if info.Limit > 0 {
			quota = fmt.Sprintf("%d/%d %s", info.Used, info.Limit, info.Period)
		}
		ready := "no"
		if info.Available {
			ready = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", info.ID, info.Name, ready, info.RateLimit, quota)
	}
	_ = tw.Flush()
}
