package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"account-gateway/internal/config"
	"account-gateway/internal/server"
	"account-gateway/middleware/ratelimit/infra"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print rate limit counters recorded in Redis",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runStats(cmd.Context(), cmd.OutOrStdout(), cfg, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "number of most throttled credentials to show")
	return cmd
}

func runStats(ctx context.Context, w io.Writer, cfg config.Config, top int) error {
	if cfg.Stats.RedisAddr == "" {
		return errors.New("RATE_STATS_REDIS_ADDR is required")
	}
	rdb, err := server.NewRedisClient(ctx, cfg.Stats)
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	store := infra.NewRedisStatsStore(rdb, server.RedisStatsOptions(cfg.Stats)...)
	sum, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	offenders, err := store.TopThrottled(ctx, top)
	if err != nil {
		return err
	}
	printStats(w, sum, offenders)
	return nil
}

func printStats(w io.Writer, sum infra.Summary, offenders []infra.Offender) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Result", "Count"})
	t.AppendRow(table.Row{"allowed", sum.Allowed})

	reasons := make([]string, 0, len(sum.Denied))
	for r := range sum.Denied {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		t.AppendRow(table.Row{"denied: " + r, sum.Denied[r]})
	}
	t.Render()

	if len(offenders) == 0 {
		return
	}
	fmt.Fprintln(w)
	ot := table.NewWriter()
	ot.SetOutputMirror(w)
	ot.SetStyle(table.StyleRounded)
	ot.AppendHeader(table.Row{"Credential", "Denied"})
	for _, o := range offenders {
		ot.AppendRow(table.Row{o.Fingerprint, o.Denied})
	}
	ot.Render()
}
