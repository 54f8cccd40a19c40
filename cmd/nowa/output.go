package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"nowa-go/internal/database"
	"nowa-go/internal/nowa"
	"nowa-go/internal/verify"
)

var countAligns = []columnAlignment{alignLeft, alignRight}

func count(n int) string {
	return humanize.Comma(int64(n))
}

func renderSessionReport(r *nowa.SessionReport, archive string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s into %s\n", nowa.SessionStamp(r.StartedAt), archive)
	b.WriteString(renderTable(
		[]string{"Result", "Count"},
		[][]string{
			{"Imported", count(r.Stats.Imported)},
			{"Duplicates skipped", count(r.Stats.Duplicates)},
			{"Tags added", count(r.Stats.TagsAdded)},
			{"Errors", count(r.Stats.Errors)},
			{"Missing source roots", count(len(r.MissingRoots))},
			{"Records exported", count(r.Exported)},
		},
		countAligns,
	))
	if r.Phase != nowa.PhaseDone {
		fmt.Fprintf(&b, "\nStopped during %s", r.Phase)
	}
	for _, root := range r.MissingRoots {
		fmt.Fprintf(&b, "\nMissing: %s", root)
	}
	if r.ReviewPath != "" && r.Phase > nowa.PhaseExportReview {
		fmt.Fprintf(&b, "\nTag review: %s", r.ReviewPath)
	}
	if r.LogPath != "" {
		fmt.Fprintf(&b, "\nSession log: %s", r.LogPath)
	}
	return b.String()
}

func renderVerifyResult(r *verify.Result) string {
	var b strings.Builder
	b.WriteString(renderTable(
		[]string{"Check", "Count"},
		[][]string{
			{"Files on disk", count(r.Files)},
			{"Matched", count(len(r.Seen))},
			{"Unknown to the database", count(len(r.Unknown))},
			{"Missing from disk", count(len(r.Missing))},
			{"Duplicate content", count(len(r.Duplicates))},
			{"Unreadable", count(len(r.Errors))},
		},
		countAligns,
	))
	list := func(label string, paths []string) {
		for _, p := range paths {
			fmt.Fprintf(&b, "\n%s: %s", label, p)
		}
	}
	list("unknown", r.Unknown)
	list("missing", r.Missing)
	list("duplicate", r.Duplicates)
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\nerror: %s", e.Error())
	}
	return b.String()
}

func renderHistory(ops []nowa.Operation) string {
	rows := make([][]string, 0, len(ops))
	for _, op := range ops {
		duration := ""
		if op.FinishedAt != nil {
			duration = op.FinishedAt.Sub(op.StartedAt).Truncate(time.Millisecond).String()
		}
		rows = append(rows, []string{
			fmt.Sprintf("#%d", op.ID),
			op.Kind,
			op.StartedAt.Format("2006-01-02 15:04:05"),
			op.Status,
			duration,
			op.Parameters,
		})
	}
	return renderTable(
		[]string{"ID", "Operation", "Started", "Status", "Duration", "Parameters"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

func renderCounts(c nowa.StoreCounts) string {
	return renderTable(
		[]string{"Table", "Rows"},
		[][]string{
			{"Media", humanize.Comma(c.Media)},
			{"Tags", humanize.Comma(c.Tags)},
			{"Source folders", humanize.Comma(c.SourceItems)},
			{"Source links", humanize.Comma(c.SourceLinks)},
			{"Tag links", humanize.Comma(c.TagLinks)},
		},
		countAligns,
	)
}

func renderMergeReport(r *database.MergeReport) string {
	row := func(name string, c database.PhaseCount) []string {
		return []string{name, count(c.Added), count(c.Reused), count(c.Skipped)}
	}
	var b strings.Builder
	b.WriteString(renderTable(
		[]string{"Phase", "Added", "Existing", "Skipped"},
		[][]string{
			row("Tags", r.Tags),
			row("Source folders", r.Sources),
			row("Media", r.Media),
			row("Tag links", r.TagLinks),
			row("Source links", r.SourceLinks),
		},
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
	))
	for _, err := range r.Unmapped {
		fmt.Fprintf(&b, "\nskipped: %v", err)
	}
	return b.String()
}

func renderLegacyReport(r *database.LegacyReport) string {
	var b strings.Builder
	b.WriteString(renderTable(
		[]string{"Migrated", "Count"},
		[][]string{
			{"Media", count(r.Media)},
			{"Source folders", count(r.SourceItems)},
			{"Source links", count(r.SourceLinks)},
			{"Tags", count(r.Tags)},
			{"Tag links", count(r.TagLinks)},
			{"Skipped rows", count(len(r.Unmapped))},
		},
		countAligns,
	))
	for _, err := range r.Unmapped {
		fmt.Fprintf(&b, "\nskipped: %v", err)
	}
	return b.String()
}
