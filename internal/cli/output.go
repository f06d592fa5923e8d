package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/PipeOpsHQ/airos/analytics"
	"github.com/PipeOpsHQ/airos/storage"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.####", v)
}

func printTraces(w io.Writer, traces []storage.Trace, now time.Time) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRUN\tNODE\tSTATUS\tATTEMPTS\tTOKENS\tSAVED\tDURATION\tWHEN")
	for _, t := range traces {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
			t.ID,
			shorten(t.RunID, 16),
			t.NodeID,
			t.Status,
			t.RecoveryAttempts,
			humanize.Comma(int64(t.TokenUsage)),
			money(t.SavedCost),
			time.Duration(t.DurationMs*float64(time.Millisecond)).Round(time.Millisecond),
			humanize.RelTime(t.Timestamp, now, "ago", "from now"),
		)
	}
	return tw.Flush()
}

func printReport(w io.Writer, report analytics.Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	c, s, r := report.Counts, report.Savings, report.Reliability
	fmt.Fprintf(tw, "Total runs\t%s\n", humanize.Comma(int64(c.TotalRuns)))
	fmt.Fprintf(tw, "Success\t%s\n", humanize.Comma(int64(c.Success)))
	fmt.Fprintf(tw, "Repaired\t%s\n", humanize.Comma(int64(c.Repaired)))
	fmt.Fprintf(tw, "Failed\t%s\n", humanize.Comma(int64(c.Failed)))
	fmt.Fprintf(tw, "Loops killed\t%s\n", humanize.Comma(int64(s.LoopsKilled)))
	fmt.Fprintf(tw, "Money saved\t%s\n", money(s.TotalMoneySaved))
	fmt.Fprintf(tw, "Total spend\t%s\n", money(s.TotalSpend))
	fmt.Fprintf(tw, "ROI\t%.2fx\n", s.ROIMultiplier)
	fmt.Fprintf(tw, "Labor saved\t%s\n", money(s.LaborSaved))
	fmt.Fprintf(tw, "Infrastructure\t%s\n", money(s.InfrastructureCost))
	fmt.Fprintf(tw, "Reliability\t%.2f%% (last %d of %d)\n", r.Score, r.Sampled, r.Window)
	fmt.Fprintf(tw, "MTTR\t%s\n", time.Duration(r.MTTRMs*float64(time.Millisecond)).Round(time.Millisecond))
	if len(report.RootCauses) > 0 {
		parts := make([]string, 0, len(report.RootCauses))
		for _, rc := range report.RootCauses {
			parts = append(parts, fmt.Sprintf("%s=%d", rc.Cause, rc.Count))
		}
		fmt.Fprintf(tw, "Root causes\t%s\n", strings.Join(parts, " "))
	}
	return tw.Flush()
}

func shorten(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max+1:]
}
