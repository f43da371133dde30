package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/hugh/zerogap/internal/models"
	"github.com/hugh/zerogap/internal/severity"
)

const barWidth = 40

func printProgress(w io.Writer, rec models.ScanRecord) {
	fmt.Fprintf(w, "[*] %s %s %3d%% %s\n", rec.ScanID, rec.Status, rec.Progress, rec.URL)
}

// printRecord prints the scan summary. reportURL is omitted when empty.
func printRecord(w io.Writer, rec models.ScanRecord, reportURL string) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Scan:\t%s\n", rec.ScanID)
	fmt.Fprintf(tw, "Target:\t%s\n", rec.URL)
	fmt.Fprintf(tw, "Status:\t%s (%d%%)\n", rec.Status, rec.Progress)
	if rec.StartedAt != "" {
		fmt.Fprintf(tw, "Started:\t%s\n", rec.StartedAt)
	}
	if rec.CompletedAt != "" {
		fmt.Fprintf(tw, "Completed:\t%s\n", rec.CompletedAt)
	}
	fmt.Fprintf(tw, "Crawled URLs:\t%d\n", rec.CrawledURLsCount)
	fmt.Fprintf(tw, "Forms:\t%d\n", rec.FormsCount)
	fmt.Fprintf(tw, "Vulnerabilities:\t%d\n", rec.TotalVulnerabilities)
	if rec.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", rec.Error)
	}
	if reportURL != "" {
		fmt.Fprintf(tw, "Report:\t%s\n", reportURL)
	}
	tw.Flush()
}

// printChart renders the ring as horizontal bars, one per severity, each
// proportional to its share of the circumference.
func printChart(w io.Writer, chart severity.Chart) {
	if chart.Total == 0 {
		fmt.Fprintln(w, "\nNo vulnerabilities detected.")
		return
	}

	lengths := make(map[severity.Level]float64, len(chart.Segments))
	for _, seg := range chart.Segments {
		lengths[seg.Severity] = seg.Length
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)
	for _, row := range chart.Legend {
		cells := int(math.Round(lengths[row.Severity] / chart.Circumference * barWidth))
		fmt.Fprintf(tw, "%s\t%d\t%s\n", row.Severity, row.Count, strings.Repeat("#", cells))
	}
	tw.Flush()
}

func printFindings(w io.Writer, vulns []models.Vulnerability) {
	if len(vulns) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEVERITY\tFINDING\tURL")
	for _, v := range vulns {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", severity.Normalize(v.Severity), orDash(v.DisplayName()), orDash(v.URL))
	}
	tw.Flush()
}

func printHistory(w io.Writer, entries []models.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No scans in history.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tURL\tDATE\tSTATUS\tVULNS")
	for _, e := range entries {
		when := strings.TrimSpace(e.Date + " " + e.Time)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", e.Key(), e.URL, orDash(when), orDash(string(e.Status)), e.Vulnerabilities)
	}
	tw.Flush()
}

func printStats(w io.Writer, stats models.Statistics) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Total scans:\t%d\n", stats.TotalScans)
	fmt.Fprintf(tw, "Active scans:\t%d\n", stats.ActiveScans)
	fmt.Fprintf(tw, "Total vulnerabilities:\t%d\n", stats.TotalVulnerabilities)
	fmt.Fprintf(tw, "Average per scan:\t%.1f\n", stats.AverageVulnerabilitiesPerScan)
	tw.Flush()
}

func printExplanation(w io.Writer, exp models.Explanation) {
	fmt.Fprintf(w, "%s\n\n%s\n\nRemediation: %s\n", exp.Title, exp.Summary, exp.RemediationShort)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
