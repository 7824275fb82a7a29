package main

import (
	"fmt"
	"io"

	"account-gateway/internal/config"
	"account-gateway/middleware/ratelimit"
	"account-gateway/middleware/ratelimit/domain"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newPolicyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Validate the configuration and print the effective rate limit policy",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			p, err := cfg.Policy()
			if err != nil {
				return err
			}
			printPolicy(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func printPolicy(w io.Writer, p domain.Policy) {
	fmt.Fprintf(w, "%s: %s\n", ratelimit.HeaderPolicy, p.Name)
	fmt.Fprintf(w, "%s: %s\n", ratelimit.HeaderRules, p.Rules)
	fmt.Fprintf(w, "%s: %s\n", ratelimit.HeaderAccount, p.Tiers)
	fmt.Fprintf(w, "max requests per second: %d\n", p.MaxRequestsPerSecond)
	fmt.Fprintf(w, "retention: %s\n", p.Retention)

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Tier", "Max hits", "Window", "Timeout"})
	for i, tier := range p.Tiers {
		t.AppendRow(table.Row{i, tier.MaxHits, tier.Window, tier.Timeout})
	}
	t.Render()
}
