// Package errs holds the error kinds shared across the archive.
//
// Callers wrap one of these sentinels with context using fmt.Errorf("...: %w")
// and test for the kind with errors.Is.
package errs

import "errors"

var (
	// ErrNotFound means a file, path, or record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict means a unique key (digest, destination file) is already taken.
	ErrConflict = errors.New("conflict")

	// ErrIO covers filesystem failures that are not a missing path.
	ErrIO = errors.New("i/o error")

	// ErrValidation means a configuration or review file is malformed.
	ErrValidation = errors.New("validation error")

	// ErrIntegrity means a merge or migration met a reference it could not map.
	ErrIntegrity = errors.New("integrity error")
)

// Kind returns the name of the first sentinel err wraps, or "unknown".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrIntegrity):
		return "integrity"
	default:
		return "unknown"
	}
}
