package main

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"nowa-go/internal/database"
	"nowa-go/internal/nowa"
	"nowa-go/internal/verify"
)

func TestRenderTable(t *testing.T) {
	out := renderTable([]string{"Name", "Count"}, [][]string{{"a", "1"}, {"b"}}, countAligns)
	lines := strings.Split(out, "\n")
	assert.Len(t, lines, 6)
	assert.Contains(t, strings.ToUpper(out), "│ NAME │ COUNT │")
	assert.Empty(t, renderTable(nil, nil, nil))
}

func TestRenderSessionReport(t *testing.T) {
	report := &nowa.SessionReport{
		StartedAt:    time.Date(2026, time.March, 15, 14, 25, 1, 0, time.Local),
		Phase:        nowa.PhaseDone,
		MissingRoots: []string{"/media/card"},
		Stats:        nowa.SessionStats{Imported: 1234, Duplicates: 2},
		ReviewPath:   "/archive/data/tag_review_20260315_142501.csv",
		LogPath:      "/archive/logs/session_20260315_142501.txt",
	}
	out := renderSessionReport(report, "/archive")

	assert.True(t, strings.HasPrefix(out, "Session 20260315_142501 into /archive\n"))
	assert.Contains(t, out, "1,234")
	assert.Contains(t, out, "Missing: /media/card")
	assert.Contains(t, out, "Tag review: "+report.ReviewPath)
	assert.NotContains(t, out, "Stopped during")

	report.Phase = nowa.PhaseExportMetadata
	assert.Contains(t, renderSessionReport(report, "/archive"), "Stopped during export_metadata")
}

func TestRenderVerifyResult(t *testing.T) {
	out := renderVerifyResult(&verify.Result{
		Files:   3,
		Seen:    map[string]string{"abc": "2026/03/IMG_1.jpg"},
		Unknown: []string{"2026/03/stray.jpg"},
		Missing: []string{"2025/01/gone.jpg"},
		Errors:  []verify.FileError{{Path: "2026/03/bad.jpg", Err: errors.New("permission denied")}},
	})
	assert.Contains(t, out, "unknown: 2026/03/stray.jpg")
	assert.Contains(t, out, "missing: 2025/01/gone.jpg")
	assert.Contains(t, out, "error: 2026/03/bad.jpg: permission denied")
}

func TestRenderHistory(t *testing.T) {
	started := time.Date(2026, time.March, 15, 14, 25, 1, 0, time.Local)
	finished := started.Add(1500 * time.Millisecond)
	out := renderHistory([]nowa.Operation{
		{ID: 2, Kind: "apply-tags", Parameters: "review.csv", StartedAt: started, Status: nowa.StatusRunning},
		{ID: 1, Kind: "ingest", StartedAt: started, FinishedAt: &finished, Status: nowa.StatusSuccess},
	})
	assert.Contains(t, out, "#2")
	assert.Contains(t, out, "review.csv")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "2026-03-15 14:25:01")
}

func TestRenderMergeReport(t *testing.T) {
	out := renderMergeReport(&database.MergeReport{
		Media:    database.PhaseCount{Added: 10, Reused: 3},
		Unmapped: []error{errors.New("media_tag (9, 1)")},
	})
	assert.Contains(t, out, "Media")
	assert.Contains(t, out, "skipped: media_tag (9, 1)")
}
