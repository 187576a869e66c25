package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/loganrf/OpenGridGen/internal/history"
	"github.com/loganrf/OpenGridGen/internal/outcome"
)

var (
	historyLimit int
	historyJSON  bool
)

// historyCmd prints recent task outcomes from the journal
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent generation outcomes",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of records")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print records as JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in %s", configPath)
	}
	store, err := history.Open(cfg.History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	records, err := store.Recent(ctx, historyLimit)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if historyJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No outcomes recorded in %s.\n", store.Path())
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tKIND\tSTATUS\tDURATION\tDETAIL")
	for _, r := range records {
		detail := r.Message
		if r.Dims != nil {
			detail = r.Dims.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.CreatedAt.Local().Format(time.DateTime), r.Kind, r.Status, r.Duration.Round(time.Millisecond), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	statuses := make([]string, 0, len(counts))
	for s := range counts {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	fmt.Fprint(out, "\nTotals:")
	for _, s := range statuses {
		fmt.Fprintf(out, " %s=%d", s, counts[outcome.Status(s)])
	}
	fmt.Fprintln(out)
	return nil
}
