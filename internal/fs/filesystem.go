// Package fs discovers and hashes source media on the local filesystem.
package fs

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"nowa-go/internal/digest"
	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct {
	ignore []string
	logger nowa.Logger
}

// NewOSFilesystemManager creates a filesystem manager. ignorePatterns apply
// to every root in addition to the root's own .nowaignore file.
func NewOSFilesystemManager(ignorePatterns []string, logger nowa.Logger) *OSFilesystemManager {
	if logger == nil {
		logger = nowa.NewNopLogger()
	}
	return &OSFilesystemManager{ignore: ignorePatterns, logger: logger}
}

// Resolve validates a raw path and returns a Path object.
func (m *OSFilesystemManager) Resolve(rawPath string) (*nowa.Path, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, fmt.Errorf("resolving absolute path: %w", err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, absPath)
		}
		return nil, fmt.Errorf("%w: stat path: %w", errs.ErrIO, err)
	}

	mode := info.Mode()
	if mode&os.ModeDevice != 0 {
		return nil, fmt.Errorf("%w: device files not supported: %s", errs.ErrValidation, absPath)
	}
	if mode&os.ModeNamedPipe != 0 {
		return nil, fmt.Errorf("%w: named pipes not supported: %s", errs.ErrValidation, absPath)
	}
	if mode&os.ModeSocket != 0 {
		return nil, fmt.Errorf("%w: sockets not supported: %s", errs.ErrValidation, absPath)
	}

	return nowa.NewPath(absPath, info.IsDir(), info), nil
}

// FindMedia walks root and returns the supported media files below it,
// sorted by path. Hidden files and directories are skipped, as is anything
// matched by the ignore patterns. Unreadable subdirectories are logged and
// skipped.
func (m *OSFilesystemManager) FindMedia(root *nowa.Path) ([]*nowa.Path, error) {
	if !root.IsDir() {
		return nil, fmt.Errorf("%w: path is not a directory: %s", errs.ErrValidation, root.String())
	}

	filePatterns, err := ParseIgnoreFile(filepath.Join(root.String(), IgnoreFileName))
	if err != nil {
		return nil, err
	}
	matcher := NewIgnoreMatcher(append(append([]string{}, m.ignore...), filePatterns...))

	var paths []*nowa.Path
	err = filepath.WalkDir(root.String(), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root.String() {
				return err
			}
			m.logger.Warn("skipping unreadable path", "path", p, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p == root.String() {
			return nil
		}

		rel, err := filepath.Rel(root.String(), p)
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") || matcher.Match(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !nowa.IsMediaFile(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			m.logger.Warn("skipping file", "path", p, "error", err)
			return nil
		}
		paths = append(paths, nowa.NewPath(p, false, info))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: walking directory: %w", errs.ErrIO, err)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return paths, nil
}

// Hash returns the SHA-256 digest of the file's contents.
func (m *OSFilesystemManager) Hash(path *nowa.Path) (string, error) {
	if path.IsDir() {
		return "", fmt.Errorf("%w: cannot hash directory: %s", errs.ErrValidation, path.String())
	}
	return digest.File(path.String())
}

// Compile-time check that OSFilesystemManager implements nowa.FilesystemManager interface
var _ nowa.FilesystemManager = (*OSFilesystemManager)(nil)
