// Package report renders the end-of-run metrics. The table titles, column
// sets and the "Adjusted for Coordinated Omission:" header are a stable
// output contract; change them and downstream parsers break.
package report

import (
	"fmt"
	"io"

	"github.com/BegleyBrothers/swanling/internal/metrics"
)

const nameWidth = 24

func truncate(name string) string {
	if len(name) <= nameWidth {
		return name
	}
	return name[:nameWidth-2] + ".."
}

// Write renders the full tabular report: the request-metrics table and the
// percentile table, each followed by its adjusted variant when any
// back-filled sample exists.
func Write(w io.Writer, snap *metrics.Snapshot) error {
	if err := writeRequestMetrics(w, snap); err != nil {
		return err
	}
	if err := writePercentiles(w, snap); err != nil {
		return err
	}
	return writeOverflow(w, snap)
}

func writeRequestMetrics(w io.Writer, snap *metrics.Snapshot) error {
	fmt.Fprintf(w, " === PER REQUEST METRICS ===\n")
	writeRawTable(w, snap)
	if snap.HasAdjusted {
		fmt.Fprintf(w, "\n Adjusted for Coordinated Omission:\n")
		writeAdjustedTable(w, snap)
	}
	return nil
}

func writeRawTable(w io.Writer, snap *metrics.Snapshot) {
	line := " ------------------------------------------------------------------------------\n"
	fmt.Fprint(w, line)
	fmt.Fprintf(w, " %-*s | %11s | %10s | %10s | %10s\n", nameWidth, "Name", "Avg (ms)", "Min", "Max", "Median")
	fmt.Fprint(w, line)
	for _, row := range snap.Rows {
		fmt.Fprintf(w, " %-*s | %11.2f | %10d | %10d | %10d\n",
			nameWidth, truncate(row.Name), row.Raw.Avg, row.Raw.Min, row.Raw.Max, row.Raw.Median)
	}
	fmt.Fprintf(w, " -------------------------+-------------+------------+------------+------------\n")
	agg := snap.Aggregated
	fmt.Fprintf(w, " %-*s | %11.2f | %10d | %10d | %10d\n",
		nameWidth, agg.Name, agg.Raw.Avg, agg.Raw.Min, agg.Raw.Max, agg.Raw.Median)
}

func writeAdjustedTable(w io.Writer, snap *metrics.Snapshot) {
	line := " ------------------------------------------------------------------------------\n"
	fmt.Fprint(w, line)
	fmt.Fprintf(w, " %-*s | %11s | %10s | %10s | %10s\n", nameWidth, "Name", "Avg (ms)", "Std Dev", "Max", "Median")
	fmt.Fprint(w, line)
	for _, row := range snap.Rows {
		fmt.Fprintf(w, " %-*s | %11.2f | %10.2f | %10d | %10d\n",
			nameWidth, truncate(row.Name), row.Adjusted.Avg, row.StdDev, row.Adjusted.Max, row.Adjusted.Median)
	}
	fmt.Fprintf(w, " -------------------------+-------------+------------+------------+------------\n")
	agg := snap.Aggregated
	fmt.Fprintf(w, " %-*s | %11.2f | %10.2f | %10d | %10d\n",
		nameWidth, agg.Name, agg.Adjusted.Avg, agg.StdDev, agg.Adjusted.Max, agg.Adjusted.Median)
}

func writePercentiles(w io.Writer, snap *metrics.Snapshot) error {
	fmt.Fprintf(w, "\n === Slowest page load within specified percentile ===\n")
	writePercentileTable(w, snap, false)
	if snap.HasAdjusted {
		fmt.Fprintf(w, "\n Adjusted for Coordinated Omission:\n")
		writePercentileTable(w, snap, true)
	}
	return nil
}

func writePercentileTable(w io.Writer, snap *metrics.Snapshot, adjusted bool) {
	line := " ------------------------------------------------------------------------------\n"
	fmt.Fprint(w, line)
	fmt.Fprintf(w, " %-*s | %6s | %6s | %6s | %6s | %6s | %6s\n",
		nameWidth, "Name", "50%", "75%", "98%", "99%", "99.9%", "99.99%")
	fmt.Fprint(w, line)
	for _, row := range snap.Rows {
		writePercentileRow(w, truncate(row.Name), row, adjusted)
	}
	fmt.Fprintf(w, " -------------------------+--------+--------+--------+--------+--------+--------\n")
	writePercentileRow(w, snap.Aggregated.Name, snap.Aggregated, adjusted)
}

func writePercentileRow(w io.Writer, name string, row metrics.Row, adjusted bool) {
	ps := row.Raw.Percentiles
	if adjusted {
		ps = row.Adjusted.Percentiles
	}
	fmt.Fprintf(w, " %-*s | %6d | %6d | %6d | %6d | %6d | %6d\n",
		nameWidth, name, ps[0], ps[1], ps[2], ps[3], ps[4], ps[5])
}

func writeOverflow(w io.Writer, snap *metrics.Snapshot) error {
	if snap.Aggregated.Overflow > 0 {
		fmt.Fprintf(w, "\n %d sample(s) exceeded the maximum tracked value and were clamped\n",
			snap.Aggregated.Overflow)
	}
	return nil
}
