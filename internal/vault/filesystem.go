// Package vault places media files into the archive tree on disk.
package vault

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"nowa-go/internal/digest"
	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

// ArchiveVault is the filesystem archive. Files live at
//
//	<root>/
//	  YYYY/
//	    MM/
//	      <filename>             (first file with this name in the month)
//	      <stem>_<digest8><ext>  (a different file that wanted the same name)
type ArchiveVault struct {
	root string
}

// NewArchiveVault creates a vault rooted at root, creating the directory.
func NewArchiveVault(root string) (*ArchiveVault, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving archive root: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("%w: creating archive root: %w", errs.ErrIO, err)
	}
	return &ArchiveVault{root: abs}, nil
}

// Root returns the absolute archive root.
func (v *ArchiveVault) Root() string {
	return v.root
}

// Place returns root/YYYY/MM/<filename>, dated by capture when present and
// fileTime otherwise. When another file already occupies that name the digest
// prefix is appended to the stem. A destination already holding the same
// content is returned as is, so a file archived by an interrupted session is
// reused rather than duplicated.
func (v *ArchiveVault) Place(filename, dg string, capture *time.Time, fileTime time.Time) (string, error) {
	t := fileTime
	if capture != nil {
		t = *capture
	}
	dir := filepath.Join(v.root, fmt.Sprintf("%04d", t.Year()), fmt.Sprintf("%02d", int(t.Month())))

	dest := filepath.Join(dir, filename)
	free, err := available(dest, dg)
	if err != nil {
		return "", err
	}
	if free {
		return dest, nil
	}

	ext := filepath.Ext(filename)
	alt := filepath.Join(dir, strings.TrimSuffix(filename, ext)+"_"+digest.Short(dg)+ext)
	free, err = available(alt, dg)
	if err != nil {
		return "", err
	}
	if free {
		return alt, nil
	}
	return "", fmt.Errorf("%w: %s and %s are both taken", errs.ErrConflict, dest, alt)
}

// available reports whether dest is unused or already holds content dg.
func available(dest, dg string) (bool, error) {
	info, err := os.Stat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: stat %s: %w", errs.ErrIO, dest, err)
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}
	existing, err := digest.File(dest)
	if err != nil {
		return false, err
	}
	return existing == dg, nil
}

// Commit copies or moves src to dest, creating parent directories.
// A copy keeps the source's permissions and modification time.
func (v *ArchiveVault) Commit(src, dest string, mode nowa.Mode) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: creating archive directory: %w", errs.ErrIO, err)
	}

	switch mode {
	case nowa.ModeCopy:
		return copyFile(src, dest)
	case nowa.ModeMove:
		err := os.Rename(src, dest)
		if err == nil {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: moving %s: %w", errs.ErrNotFound, src, err)
		}
		// Rename fails across filesystems.
		if err := copyFile(src, dest); err != nil {
			return err
		}
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("%w: removing moved source %s: %w", errs.ErrIO, src, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown mode %q", errs.ErrValidation, mode)
	}
}

// Stat returns the size of an archived file.
func (v *ArchiveVault) Stat(dest string) (int64, error) {
	info, err := os.Stat(dest)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", errs.ErrNotFound, dest)
		}
		return 0, fmt.Errorf("%w: stat %s: %w", errs.ErrIO, dest, err)
	}
	return info.Size(), nil
}

// Relative splits dest into its archive-relative directory and filename.
func (v *ArchiveVault) Relative(dest string) (string, string, error) {
	rel, err := filepath.Rel(v.root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s is outside the archive %s", errs.ErrValidation, dest, v.root)
	}
	return filepath.ToSlash(filepath.Dir(rel)), filepath.Base(rel), nil
}

// ValidateSetup verifies that the archive root is a writable directory.
func (v *ArchiveVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: archive root %s", errs.ErrNotFound, v.root)
	}
	if err != nil {
		return fmt.Errorf("%w: archive root not accessible: %w", errs.ErrIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: archive root is not a directory: %s", errs.ErrValidation, v.root)
	}

	check, err := os.CreateTemp(v.root, ".nowa-write-check-*")
	if err != nil {
		return fmt.Errorf("%w: archive root not writable: %w", errs.ErrIO, err)
	}
	check.Close()
	os.Remove(check.Name())
	return nil
}

// copyFile streams src into dest using an atomic write (temp file + rename).
func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: opening %s: %w", errs.ErrNotFound, src, err)
		}
		return fmt.Errorf("%w: opening %s: %w", errs.ErrIO, src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", errs.ErrIO, src, err)
	}

	// Temp file in the destination directory so the rename stays on one filesystem.
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", errs.ErrIO, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, in)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: copying %s: %w", errs.ErrIO, src, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", errs.ErrIO, err)
	}
	if written != info.Size() {
		return fmt.Errorf("%w: size mismatch copying %s: expected %d bytes, got %d", errs.ErrIO, src, info.Size(), written)
	}

	if err := os.Chmod(tmpPath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("%w: preserving permissions: %w", errs.ErrIO, err)
	}
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("%w: preserving modification time: %w", errs.ErrIO, err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("%w: renaming temp file: %w", errs.ErrIO, err)
	}
	success = true
	return nil
}

var _ nowa.Vault = (*ArchiveVault)(nil)
