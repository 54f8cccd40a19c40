package nowa

import (
	"fmt"

	"nowa-go/internal/errs"
)

// SessionStats accumulates the outcome of one ingestion session.
// It is owned by the session and passed down explicitly.
type SessionStats struct {
	Imported     int
	Duplicates   int
	TagsAdded    int
	Errors       int
	ErrorDetails []string
}

// RecordError counts a per-file failure and keeps a "<path>: <err> [<kind>]"
// line, kind being the errs.Kind of err.
func (s *SessionStats) RecordError(path string, err error) {
	s.Errors++
	s.ErrorDetails = append(s.ErrorDetails, fmt.Sprintf("%s: %v [%s]", path, err, errs.Kind(err)))
}
