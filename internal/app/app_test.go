package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowa-go/internal/config"
	"nowa-go/internal/database"
	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
	"nowa-go/internal/testutil"
)

type appFixture struct {
	cfg    *config.Config
	source string
	ids    *testutil.StubIDGenerator
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "phone")
	mtime := time.Date(2024, time.July, 4, 9, 0, 0, 0, time.Local)
	testutil.WriteFile(t, source, "Trip to Lisbon/IMG_0001.jpg", []byte("photo one"), mtime)
	testutil.WriteFile(t, source, "Trip to Lisbon/IMG_0002.jpg", []byte("photo two"), mtime)

	cfg := config.NewConfig(filepath.Join(dir, "archive"), []string{source}, filepath.Join(dir, "keys"))
	cfg.WorkDir = filepath.Join(dir, "work")
	require.NoError(t, cfg.Resolve())
	return &appFixture{cfg: cfg, source: source, ids: testutil.NewStubIDGenerator()}
}

func (f *appFixture) open(t *testing.T, opts Options) *App {
	t.Helper()
	opts.Clock = testutil.FixedClock()
	opts.IDs = f.ids
	opts.Extractor = testutil.NewStubExtractor()
	a, err := NewApp(f.cfg, opts)
	require.NoError(t, err)
	return a
}

func TestApp_IngestRecordsOperation(t *testing.T) {
	f := newAppFixture(t)
	ctx := context.Background()

	a := f.open(t, Options{Operation: "ingest"})
	report, err := a.Ingest(ctx)
	require.NoError(t, err)
	assert.False(t, report.Failed())
	assert.Equal(t, 2, report.Stats.Imported)
	require.NoError(t, a.Close())

	t.Run("database lands in the archive", func(t *testing.T) {
		_, err := os.Stat(f.cfg.DBPath)
		assert.NoError(t, err)
		_, err = os.Stat(f.cfg.MetadataPath)
		assert.NoError(t, err)
	})

	t.Run("lock is released", func(t *testing.T) {
		lock, err := AcquireArchiveLock(f.cfg.ArchivePath)
		require.NoError(t, err)
		require.NoError(t, lock.Release())
	})

	ro := f.open(t, Options{Operation: "history", ReadOnly: true})
	defer ro.Close()

	ops, err := ro.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "ingest", ops[0].Kind)
	assert.Equal(t, "session-1", ops[0].SessionID)
	assert.Equal(t, nowa.StatusSuccess, ops[0].Status)
	assert.NotNil(t, ops[0].FinishedAt)

	counts, err := ro.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Media)
}

func TestApp_FailedSessionMarksOperation(t *testing.T) {
	f := newAppFixture(t)
	f.cfg.IngestionPaths = append(f.cfg.IngestionPaths, filepath.Join(filepath.Dir(f.source), "camera-card"))
	ctx := context.Background()

	a := f.open(t, Options{Operation: "ingest"})
	report, err := a.Ingest(ctx)
	require.NoError(t, err)
	assert.True(t, report.Failed())
	require.NoError(t, a.Close())

	ro := f.open(t, Options{ReadOnly: true})
	defer ro.Close()
	ops, err := ro.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, nowa.StatusError, ops[0].Status)
}

func TestApp_SecondRunBacksUpDatabase(t *testing.T) {
	f := newAppFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		a := f.open(t, Options{Operation: "ingest"})
		_, err := a.Ingest(ctx)
		require.NoError(t, err)
		require.NoError(t, a.Close())
	}

	backup := BackupName(f.cfg.DBPath, testutil.FixedClock().Now())
	_, err := os.Stat(backup)
	assert.NoError(t, err)
}

func TestApp_ReadOnlyNeedsDatabase(t *testing.T) {
	f := newAppFixture(t)
	_, err := NewApp(f.cfg, Options{ReadOnly: true})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestApp_LockedArchive(t *testing.T) {
	f := newAppFixture(t)
	lock, err := AcquireArchiveLock(f.cfg.ArchivePath)
	require.NoError(t, err)
	defer lock.Release()

	_, err = NewApp(f.cfg, Options{Operation: "ingest"})
	assert.ErrorIs(t, err, errs.ErrConflict)
}

func TestApp_ReadOnlyArchiveRoot(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	f := newAppFixture(t)
	f.cfg.LogDir = filepath.Join(t.TempDir(), "logs")
	require.NoError(t, os.MkdirAll(f.cfg.ArchivePath, 0755))
	require.NoError(t, os.Chmod(f.cfg.ArchivePath, 0555))
	t.Cleanup(func() { os.Chmod(f.cfg.ArchivePath, 0755) })

	_, err := NewApp(f.cfg, Options{Operation: "ingest"})
	assert.ErrorIs(t, err, errs.ErrIO)
}

func TestMergeDatabases_LocksArchive(t *testing.T) {
	f := newAppFixture(t)
	ctx := context.Background()

	a := f.open(t, Options{Operation: "ingest"})
	_, err := a.Ingest(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	secondary := filepath.Join(t.TempDir(), "other.db")
	other, err := database.NewSQLiteStore(secondary)
	require.NoError(t, err)
	require.NoError(t, other.Close())

	lock, err := AcquireArchiveLock(f.cfg.ArchivePath)
	require.NoError(t, err)

	_, err = MergeDatabases(ctx, f.cfg, f.cfg.DBPath, secondary, false)
	assert.ErrorIs(t, err, errs.ErrConflict, "live archive database is locked")

	t.Run("other primaries ignore the lock", func(t *testing.T) {
		primary := filepath.Join(t.TempDir(), "primary.db")
		p, err := database.NewSQLiteStore(primary)
		require.NoError(t, err)
		require.NoError(t, p.Close())

		_, err = MergeDatabases(ctx, f.cfg, primary, secondary, false)
		assert.NoError(t, err)
	})

	require.NoError(t, lock.Release())
	report, err := MergeDatabases(ctx, f.cfg, f.cfg.DBPath, secondary, false)
	require.NoError(t, err)
	assert.Zero(t, report.Media.Added)

	again, err := AcquireArchiveLock(f.cfg.ArchivePath)
	require.NoError(t, err, "merge releases the lock")
	require.NoError(t, again.Release())
}

func TestApp_BackupAndRestore(t *testing.T) {
	f := newAppFixture(t)
	ctx := context.Background()

	a := f.open(t, Options{Operation: "ingest"})
	_, err := a.Ingest(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Close())

	ro := f.open(t, Options{ReadOnly: true})
	dest := filepath.Join(t.TempDir(), "snap.db")
	written, err := ro.BackupDatabase(dest)
	require.NoError(t, err)
	assert.Equal(t, dest, written)

	_, err = ro.BackupDatabase(dest)
	assert.ErrorIs(t, err, errs.ErrConflict)
	require.NoError(t, ro.Close())

	restored := filepath.Join(t.TempDir(), "restored", "nowa_photos.db")
	require.False(t, NeedsPassphrase(written))
	require.NoError(t, RestoreBackup(f.cfg, written, restored, ""))

	assert.ErrorIs(t, RestoreBackup(f.cfg, written, restored, ""), errs.ErrConflict)
	assert.ErrorIs(t, RestoreBackup(f.cfg, filepath.Join(t.TempDir(), "nope.db"), restored+"2", ""), errs.ErrNotFound)
}

func TestApp_EncryptionNeedsKeys(t *testing.T) {
	f := newAppFixture(t)
	f.cfg.Backup.Encrypt = true

	_, err := NewApp(f.cfg, Options{Operation: "ingest"})
	assert.ErrorIs(t, err, errs.ErrValidation)

	t.Run("lock released after failed open", func(t *testing.T) {
		lock, err := AcquireArchiveLock(f.cfg.ArchivePath)
		require.NoError(t, err)
		require.NoError(t, lock.Release())
	})
}

func TestApp_EncryptedBackupRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("scrypt key derivation is slow")
	}
	f := newAppFixture(t)
	f.cfg.Backup.Encrypt = true
	require.NoError(t, InitKeys(f.cfg, "correct horse"))
	ctx := context.Background()

	a := f.open(t, Options{Operation: "ingest"})
	_, err := a.Ingest(ctx)
	require.NoError(t, err)

	written, err := a.BackupDatabase(filepath.Join(t.TempDir(), "snap.db"))
	require.NoError(t, err)
	require.NoError(t, a.Close())
	assert.True(t, NeedsPassphrase(written))

	restored := filepath.Join(t.TempDir(), "nowa_photos.db")
	assert.ErrorIs(t, RestoreBackup(f.cfg, written, restored, "wrong"), errs.ErrValidation)
	require.NoError(t, RestoreBackup(f.cfg, written, restored, "correct horse"))
}
