package nowa

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// writeSessionLog writes the human-readable summary of a session and
// returns its path.
func (s *Service) writeSessionLog(report *SessionReport) (string, error) {
	if err := os.MkdirAll(s.opts.SessionLogDir, 0755); err != nil {
		return "", fmt.Errorf("%w: creating session log directory: %w", ErrIO, err)
	}
	path := filepath.Join(s.opts.SessionLogDir, "session_"+SessionStamp(report.StartedAt)+".txt")

	if err := os.WriteFile(path, []byte(s.sessionLogText(report)), 0644); err != nil {
		return "", fmt.Errorf("%w: writing session log: %w", ErrIO, err)
	}
	s.logger.Info("session log written", "path", path)
	return path, nil
}

func (s *Service) sessionLogText(report *SessionReport) string {
	stats := report.Stats
	var b strings.Builder
	fmt.Fprintln(&b, "Nowa Photos Ingestion Session")
	fmt.Fprintf(&b, "Timestamp: %s\n", FormatTimestamp(report.StartedAt))
	fmt.Fprintf(&b, "Sources: %s\n", strings.Join(report.Roots, ", "))
	fmt.Fprintf(&b, "Archive: %s\n", s.vault.Root())
	fmt.Fprintf(&b, "Mode: %s\n", s.opts.Mode)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, "Session Summary:")
	fmt.Fprintf(&b, "  Imported: %d\n", stats.Imported)
	fmt.Fprintf(&b, "  Duplicates skipped: %d\n", stats.Duplicates)
	fmt.Fprintf(&b, "  Tags added: %d\n", stats.TagsAdded)
	fmt.Fprintf(&b, "  Errors: %d\n", stats.Errors)

	if len(report.MissingRoots) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Missing sources:")
		for _, r := range report.MissingRoots {
			fmt.Fprintf(&b, "  - %s\n", r)
		}
	}
	if len(stats.ErrorDetails) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Errors:")
		for _, d := range stats.ErrorDetails {
			fmt.Fprintf(&b, "  - %s\n", d)
		}
	}
	return b.String()
}
