package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"nowa-go/internal/config"
	"nowa-go/internal/database"
	"nowa-go/internal/encryption"
	"nowa-go/internal/errs"
	"nowa-go/internal/extract"
	"nowa-go/internal/fs"
	"nowa-go/internal/metadata"
	"nowa-go/internal/nowa"
	"nowa-go/internal/vault"
	"nowa-go/internal/verify"
)

// Options select how an App is opened.
type Options struct {
	// Operation names the CLI command (e.g. "ingest"); Parameters are its
	// arguments as recorded in the operation history.
	Operation  string
	Parameters string

	// ReadOnly opens the archive database in place without the lock or a
	// working copy. The database must already exist.
	ReadOnly bool
	Verbose  bool

	// Clock, IDs and Extractor replace the real ones; used by tests.
	Clock     nowa.Clock
	IDs       nowa.IDGenerator
	Extractor nowa.Extractor
}

// App is the application layer between the CLI and nowa.Service.
// It constructs all dependencies from config, runs mutating commands against
// a working copy of the archive database under the archive lock, and puts
// everything back on Close.
type App struct {
	cfg       *config.Config
	sessionID string
	clock     nowa.Clock

	lock    *ArchiveLock
	wc      *WorkingCopy
	store   *database.SQLiteStore
	vault   *vault.ArchiveVault
	fsmgr   *fs.OSFilesystemManager
	service *nowa.Service
	op      *Operation

	logger  nowa.Logger
	logFile *os.File
}

// NewApp creates a fully wired App from a resolved config.
// The caller must call Close when done, also when a command fails.
func NewApp(cfg *config.Config, opts Options) (a *App, err error) {
	if opts.Clock == nil {
		opts.Clock = nowa.RealClock{}
	}
	if opts.IDs == nil {
		opts.IDs = nowa.UUIDGenerator{}
	}
	a = &App{
		cfg:       cfg,
		sessionID: opts.IDs.New(),
		clock:     opts.Clock,
		op:        NewOperation(opts.Operation, opts.Parameters),
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	sl, logFile, err := newLogger(cfg.LogDir, a.sessionID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a.logger = &slogAdapter{l: sl}
	a.logFile = logFile

	// Release whatever was acquired if wiring fails half way.
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.vault, err = vault.NewArchiveVault(cfg.ArchivePath)
	if err != nil {
		return a, fmt.Errorf("opening archive: %w", err)
	}
	if err = a.vault.ValidateSetup(); err != nil {
		return a, err
	}

	if opts.ReadOnly {
		a.store, err = database.OpenSQLiteStore(cfg.DBPath)
		if err != nil {
			return a, fmt.Errorf("opening database: %w", err)
		}
	} else {
		if err = a.openWorkingCopy(); err != nil {
			return a, err
		}
	}

	a.fsmgr = fs.NewOSFilesystemManager(cfg.Ignore, a.logger)
	extractor := opts.Extractor
	if extractor == nil {
		extractor = extract.New(cfg.FFprobePath, 0, a.logger)
	}
	exporter := metadata.NewJSONLExporter(cfg.MetadataPath)

	a.service = nowa.NewService(a.store, a.vault, a.fsmgr, extractor, exporter, a.logger, a.clock, nowa.Options{
		Roots:         cfg.IngestionPaths,
		Mode:          nowa.Mode(cfg.Mode),
		StopWords:     cfg.TagStopWords,
		ReviewDir:     cfg.ReviewDir(),
		SessionLogDir: cfg.LogDir,
	})
	return a, nil
}

// openWorkingCopy takes the archive lock, copies the database to the work
// directory and opens (and migrates) the copy.
func (a *App) openWorkingCopy() error {
	lock, err := AcquireArchiveLock(a.cfg.ArchivePath)
	if err != nil {
		return err
	}
	a.lock = lock

	wcOpts := WorkingCopyOptions{
		WorkDir: a.cfg.WorkDir,
		Clock:   a.clock,
		Logger:  a.logger,
	}
	if a.cfg.Backup.Encrypt {
		enc, err := backupEncryptor(a.cfg)
		if err != nil {
			return err
		}
		wcOpts.Encryptor = enc
	}

	wc, err := AcquireWorkingCopy(a.cfg.DBPath, wcOpts)
	if err != nil {
		return fmt.Errorf("acquiring working copy: %w", err)
	}
	a.wc = wc

	store, err := database.NewSQLiteStore(wc.Path())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	a.store = store
	return nil
}

func backupEncryptor(cfg *config.Config) (*encryption.AgeEncryptor, error) {
	enc := encryption.NewAgeEncryptor(cfg.Backup.PublicKeyPath, cfg.Backup.PrivateKeyPath)
	if !enc.IsConfigured() {
		return nil, fmt.Errorf("%w: backup encryption is enabled but no key exists at %s (run 'nowa keys init')",
			errs.ErrValidation, cfg.Backup.PublicKeyPath)
	}
	return enc, nil
}

// SessionID identifies this run in the log and the operation history.
func (a *App) SessionID() string {
	return a.sessionID
}

// Logger returns the App's logger.
func (a *App) Logger() nowa.Logger {
	return a.logger
}

// persistOperation records the running command in the operation history.
// Only mutating commands call it.
func (a *App) persistOperation(ctx context.Context) error {
	if a.op.Persisted() {
		return nil
	}
	id, err := a.store.StartOperation(ctx, a.sessionID, a.op.Kind, a.op.Parameters)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = id
	return nil
}

// Ingest runs one ingestion session over the configured roots. A report
// with missing roots or per-file errors marks the operation failed.
func (a *App) Ingest(ctx context.Context) (*nowa.SessionReport, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	report, err := a.service.Ingest(ctx, a.cfg.IngestionPaths)
	if err != nil || report.Failed() {
		a.op.Fail()
	}
	return report, err
}

// ApplyTags applies an edited tag review file.
func (a *App) ApplyTags(ctx context.Context, reviewPath string) (*nowa.OverrideReport, error) {
	if err := a.persistOperation(ctx); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(reviewPath)
	if err != nil {
		a.op.Fail()
		return nil, fmt.Errorf("resolving review file: %w", err)
	}
	report, err := a.service.ApplyTagOverrides(ctx, abs)
	if err != nil {
		a.op.Fail()
	}
	return report, err
}

// Verify checks the archive directory against the store.
func (a *App) Verify(ctx context.Context) (*verify.Result, error) {
	v := verify.New(a.store, a.fsmgr, a.logger, verify.Options{Workers: a.cfg.VerifyWorkers})
	return v.Verify(ctx, a.cfg.ArchivePath)
}

// History returns the most recent recorded operations.
func (a *App) History(ctx context.Context, limit int) ([]nowa.Operation, error) {
	return a.service.GetHistory(ctx, limit)
}

// Counts returns the current size of the store.
func (a *App) Counts(ctx context.Context) (nowa.StoreCounts, error) {
	return a.service.Counts(ctx)
}

// BackupDatabase writes a consistent snapshot of the database to dest,
// age-encrypted when backups are configured to be.
func (a *App) BackupDatabase(dest string) (string, error) {
	dest, err := filepath.Abs(dest)
	if err != nil {
		return "", fmt.Errorf("resolving backup path: %w", err)
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("%w: backup already exists: %s", errs.ErrConflict, dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("%w: creating backup directory: %w", errs.ErrIO, err)
	}

	if !a.cfg.Backup.Encrypt {
		if err := a.store.BackupTo(dest); err != nil {
			return "", err
		}
		a.logger.Info("database backed up", "path", dest)
		return dest, nil
	}

	enc, err := backupEncryptor(a.cfg)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(dest, EncryptedBackupExt) {
		dest += EncryptedBackupExt
	}
	tmp, err := os.CreateTemp("", "nowa-db-backup-*.db")
	if err != nil {
		return "", fmt.Errorf("%w: creating temp file for db backup: %w", errs.ErrIO, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	// VACUUM INTO refuses an existing file.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := a.store.BackupTo(tmpPath); err != nil {
		return "", err
	}
	if err := enc.EncryptFile(tmpPath, dest); err != nil {
		return "", fmt.Errorf("encrypting backup: %w", err)
	}
	a.logger.Info("database backed up", "path", dest, "encrypted", true)
	return dest, nil
}

// Close finishes the operation record, closes the database, puts the
// working copy back and releases the lock. It returns the first error.
func (a *App) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.store != nil {
		if a.op.Persisted() {
			if err := a.store.FinishOperation(context.Background(), a.op.ID, a.op.Status); err != nil {
				keep(fmt.Errorf("finishing operation: %w", err))
			}
		}
		if err := a.store.Close(); err != nil {
			keep(fmt.Errorf("closing database: %w", err))
		}
		a.store = nil
	}

	if a.wc != nil {
		if err := a.wc.Finalize(); err != nil {
			a.logger.Error("finalizing working copy failed", "error", err)
			keep(fmt.Errorf("finalizing working copy: %w", err))
		}
	}

	if a.lock != nil {
		keep(a.lock.Release())
		a.lock = nil
	}

	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
	return firstErr
}

// consoleLogger logs to stderr only, for commands that work outside an
// archive (merge, migrate-legacy, restore).
func consoleLogger(verbose bool) nowa.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slogAdapter{l: slog.New(&nowaHandler{w: os.Stderr, sessionID: "-", level: level})}
}

// MergeDatabases folds the secondary database into the primary one. The
// primary must exist and already be at the latest schema version. When the
// primary is the archive database of cfg (which may be nil), the archive lock
// is held for the whole merge.
func MergeDatabases(ctx context.Context, cfg *config.Config, primaryPath, secondaryPath string, verbose bool) (*database.MergeReport, error) {
	logger := consoleLogger(verbose)

	if cfg != nil && samePath(primaryPath, cfg.DBPath) {
		lock, err := AcquireArchiveLock(cfg.ArchivePath)
		if err != nil {
			return nil, err
		}
		defer lock.Release()
		logger.Debug("archive locked for merge", "archive", cfg.ArchivePath)
	}

	primary, err := database.OpenSQLiteStore(primaryPath)
	if err != nil {
		return nil, fmt.Errorf("opening primary: %w", err)
	}
	defer primary.Close()

	secondary, err := database.OpenExisting(secondaryPath)
	if err != nil {
		return nil, fmt.Errorf("opening secondary: %w", err)
	}
	defer secondary.Close()

	return database.Merge(ctx, primary.DB(), secondary, logger)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// MigrateLegacy converts a flat-schema database into a new normalized one.
func MigrateLegacy(ctx context.Context, sourcePath, destPath string, verbose bool) (*database.LegacyReport, error) {
	return database.MigrateLegacy(ctx, sourcePath, destPath, consoleLogger(verbose))
}

// RestoreBackup writes a database backup to dest. Encrypted backups (".age")
// are decrypted with the private key unlocked by passphrase.
func RestoreBackup(cfg *config.Config, backupPath, dest, passphrase string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("%w: backup not found: %s", errs.ErrNotFound, backupPath)
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("%w: destination already exists: %s", errs.ErrConflict, dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("%w: creating destination directory: %w", errs.ErrIO, err)
	}

	if strings.HasSuffix(backupPath, EncryptedBackupExt) {
		enc := encryption.NewAgeEncryptor(cfg.Backup.PublicKeyPath, cfg.Backup.PrivateKeyPath)
		dec, err := enc.Unlock(passphrase)
		if err != nil {
			return fmt.Errorf("unlocking private key: %w", err)
		}
		if err := dec.DecryptFile(backupPath, dest); err != nil {
			return fmt.Errorf("decrypting backup: %w", err)
		}
	} else if err := copyFile(backupPath, dest); err != nil {
		return fmt.Errorf("restoring backup: %w", err)
	}

	store, err := database.OpenSQLiteStore(dest)
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("restored file is not a usable database: %w", err)
	}
	return store.Close()
}

// NeedsPassphrase reports whether restoring backupPath needs the key passphrase.
func NeedsPassphrase(backupPath string) bool {
	return strings.HasSuffix(backupPath, EncryptedBackupExt)
}

// InitKeys generates the backup key pair at the configured paths, the
// private key protected by passphrase.
func InitKeys(cfg *config.Config, passphrase string) error {
	enc := encryption.NewAgeEncryptor(cfg.Backup.PublicKeyPath, cfg.Backup.PrivateKeyPath)
	if err := enc.Setup(passphrase); err != nil {
		return fmt.Errorf("generating keys: %w", err)
	}
	return nil
}
