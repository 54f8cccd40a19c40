package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

// BackupEncryptor turns a plaintext backup into an encrypted one.
type BackupEncryptor interface {
	EncryptFile(src, dst string) error
}

// EncryptedBackupExt is appended to encrypted backup names.
const EncryptedBackupExt = ".age"

// WorkingCopyOptions configures how a working copy is finalized.
type WorkingCopyOptions struct {
	// WorkDir is where the local copy lives; empty means the system temp directory.
	WorkDir string
	// Encryptor, when set, encrypts the backup of the previous archive database.
	Encryptor BackupEncryptor
	Clock     nowa.Clock
	Logger    nowa.Logger
}

// WorkingCopy is a local copy of the archive database that a command works on.
// Finalize puts it back: the previous archive database is kept as a
// timestamped backup, the working copy replaces it and the local files are
// removed. Callers defer Finalize right after a successful acquire so it also
// runs when the command fails.
type WorkingCopy struct {
	archiveDB string
	dir       string
	local     string
	opts      WorkingCopyOptions

	once   sync.Once
	err    error
	backup string
}

// AcquireWorkingCopy copies archiveDB (when it exists) into a fresh directory
// under opts.WorkDir and returns the copy.
func AcquireWorkingCopy(archiveDB string, opts WorkingCopyOptions) (*WorkingCopy, error) {
	if opts.Clock == nil {
		opts.Clock = nowa.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = nowa.NewNopLogger()
	}
	if opts.WorkDir != "" {
		if err := os.MkdirAll(opts.WorkDir, 0755); err != nil {
			return nil, fmt.Errorf("%w: creating work directory: %w", errs.ErrIO, err)
		}
	}
	dir, err := os.MkdirTemp(opts.WorkDir, "nowa-work-*")
	if err != nil {
		return nil, fmt.Errorf("%w: creating working directory: %w", errs.ErrIO, err)
	}

	wc := &WorkingCopy{
		archiveDB: archiveDB,
		dir:       dir,
		local:     filepath.Join(dir, filepath.Base(archiveDB)),
		opts:      opts,
	}

	if _, err := os.Stat(archiveDB); err == nil {
		if err := copyFile(archiveDB, wc.local); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("copying archive database: %w", err)
		}
		opts.Logger.Debug("working copy acquired", "archive_db", archiveDB, "local", wc.local)
	} else if !errors.Is(err, os.ErrNotExist) {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("%w: stat %s: %w", errs.ErrIO, archiveDB, err)
	}
	return wc, nil
}

// Path returns the local database path to open.
func (w *WorkingCopy) Path() string {
	return w.local
}

// BackupPath returns the backup written by Finalize, or "" if none was needed.
func (w *WorkingCopy) BackupPath() string {
	return w.backup
}

// Finalize backs up the previous archive database, moves the working copy
// into its place and removes the working directory. Only the first call does
// any work; later calls return its result.
func (w *WorkingCopy) Finalize() error {
	w.once.Do(func() {
		w.err = w.finalize()
		if err := os.RemoveAll(w.dir); err != nil && w.err == nil {
			w.err = fmt.Errorf("%w: removing working directory: %w", errs.ErrIO, err)
		}
	})
	return w.err
}

func (w *WorkingCopy) finalize() error {
	if _, err := os.Stat(w.local); errors.Is(err, os.ErrNotExist) {
		// Nothing was ever opened; the archive is untouched.
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(w.archiveDB), 0755); err != nil {
		return fmt.Errorf("%w: creating database directory: %w", errs.ErrIO, err)
	}

	if _, err := os.Stat(w.archiveDB); err == nil {
		backup := BackupName(w.archiveDB, w.opts.Clock.Now())
		if w.opts.Encryptor != nil {
			backup += EncryptedBackupExt
			if err := w.opts.Encryptor.EncryptFile(w.archiveDB, backup); err != nil {
				return fmt.Errorf("encrypting database backup: %w", err)
			}
		} else if err := copyFile(w.archiveDB, backup); err != nil {
			return fmt.Errorf("backing up archive database: %w", err)
		}
		w.backup = backup
		w.opts.Logger.Info("archive database backed up", "backup", backup)
	}

	if err := moveFile(w.local, w.archiveDB); err != nil {
		return fmt.Errorf("archiving database: %w", err)
	}
	w.opts.Logger.Info("database archived", "path", w.archiveDB)
	return nil
}

// BackupName returns <stem>_<YYYYMMDD_HHMMSS><ext> next to path.
func BackupName(path string, t time.Time) string {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	return stem + "_" + nowa.SessionStamp(t) + ext
}

// moveFile renames src onto dst, falling back to an atomic copy when the two
// are on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("%w: removing %s: %w", errs.ErrIO, src, err)
	}
	return nil
}

// copyFile writes src to dst through a temp file in dst's directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %w", errs.ErrIO, src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", errs.ErrIO, src, err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
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

	if _, err := io.Copy(tmpFile, in); err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: copying %s: %w", errs.ErrIO, src, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", errs.ErrIO, err)
	}
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("%w: preserving modification time: %w", errs.ErrIO, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("%w: renaming temp file: %w", errs.ErrIO, err)
	}
	success = true
	return nil
}
