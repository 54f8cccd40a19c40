package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowa-go/internal/testutil"
)

// prefixEncryptor "encrypts" by prefixing the plaintext.
type prefixEncryptor struct {
	err   error
	calls int
}

func (e *prefixEncryptor) EncryptFile(src, dst string) error {
	e.calls++
	if e.err != nil {
		return e.err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, append([]byte("enc:"), data...), 0600)
}

func readString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func newWorkingCopy(t *testing.T, archiveDB string, enc BackupEncryptor) *WorkingCopy {
	t.Helper()
	wc, err := AcquireWorkingCopy(archiveDB, WorkingCopyOptions{
		WorkDir:   filepath.Join(t.TempDir(), "work"),
		Encryptor: enc,
		Clock:     testutil.FixedClock(),
	})
	require.NoError(t, err)
	return wc
}

func TestWorkingCopy_NewArchive(t *testing.T) {
	archiveDB := filepath.Join(t.TempDir(), "data", "nowa_photos.db")
	wc := newWorkingCopy(t, archiveDB, nil)

	_, err := os.Stat(wc.Path())
	assert.ErrorIs(t, err, os.ErrNotExist, "nothing to copy for a new archive")

	require.NoError(t, os.WriteFile(wc.Path(), []byte("fresh"), 0644))
	require.NoError(t, wc.Finalize())

	assert.Equal(t, "fresh", readString(t, archiveDB))
	assert.Empty(t, wc.BackupPath())
	_, err = os.Stat(filepath.Dir(wc.Path()))
	assert.ErrorIs(t, err, os.ErrNotExist, "working directory removed")
}

func TestWorkingCopy_BacksUpPrevious(t *testing.T) {
	archiveDB := filepath.Join(t.TempDir(), "nowa_photos.db")
	require.NoError(t, os.WriteFile(archiveDB, []byte("old"), 0644))

	wc := newWorkingCopy(t, archiveDB, nil)
	assert.Equal(t, "old", readString(t, wc.Path()))

	require.NoError(t, os.WriteFile(wc.Path(), []byte("new"), 0644))
	require.NoError(t, wc.Finalize())

	assert.Equal(t, "new", readString(t, archiveDB))
	want := filepath.Join(filepath.Dir(archiveDB), "nowa_photos_20260315_142501.db")
	assert.Equal(t, want, wc.BackupPath())
	assert.Equal(t, "old", readString(t, want))
}

func TestWorkingCopy_EncryptedBackup(t *testing.T) {
	archiveDB := filepath.Join(t.TempDir(), "nowa_photos.db")
	require.NoError(t, os.WriteFile(archiveDB, []byte("old"), 0644))

	enc := &prefixEncryptor{}
	wc := newWorkingCopy(t, archiveDB, enc)
	require.NoError(t, os.WriteFile(wc.Path(), []byte("new"), 0644))
	require.NoError(t, wc.Finalize())

	assert.Equal(t, 1, enc.calls)
	assert.Equal(t, archiveDB[:len(archiveDB)-3]+"_20260315_142501.db.age", wc.BackupPath())
	assert.Equal(t, "enc:old", readString(t, wc.BackupPath()))
	assert.Equal(t, "new", readString(t, archiveDB))
}

func TestWorkingCopy_FinalizeFailure(t *testing.T) {
	archiveDB := filepath.Join(t.TempDir(), "nowa_photos.db")
	require.NoError(t, os.WriteFile(archiveDB, []byte("old"), 0644))

	enc := &prefixEncryptor{err: errors.New("no recipient")}
	wc := newWorkingCopy(t, archiveDB, enc)
	require.NoError(t, os.WriteFile(wc.Path(), []byte("new"), 0644))

	err := wc.Finalize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipient")

	t.Run("archive database untouched", func(t *testing.T) {
		assert.Equal(t, "old", readString(t, archiveDB))
	})

	t.Run("working directory removed anyway", func(t *testing.T) {
		_, statErr := os.Stat(filepath.Dir(wc.Path()))
		assert.ErrorIs(t, statErr, os.ErrNotExist)
	})

	t.Run("finalize is idempotent", func(t *testing.T) {
		assert.Equal(t, err, wc.Finalize())
		assert.Equal(t, 1, enc.calls)
	})
}

func TestWorkingCopy_NothingOpened(t *testing.T) {
	archiveDB := filepath.Join(t.TempDir(), "nowa_photos.db")
	wc := newWorkingCopy(t, archiveDB, nil)

	require.NoError(t, wc.Finalize())
	_, err := os.Stat(archiveDB)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBackupName(t *testing.T) {
	at := time.Date(2024, time.July, 4, 9, 5, 0, 0, time.Local)
	assert.Equal(t, "/a/data/nowa_photos_20240704_090500.db", BackupName("/a/data/nowa_photos.db", at))
	assert.Equal(t, "/a/catalog_20240704_090500", BackupName("/a/catalog", at))
}
