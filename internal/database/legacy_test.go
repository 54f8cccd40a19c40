package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

const legacySchema = `
CREATE TABLE media (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    archive_path TEXT NOT NULL,
    media_type TEXT NOT NULL,
    hash_signature TEXT NOT NULL UNIQUE,
    file_size INTEGER NOT NULL,
    duration REAL,
    exif_date TEXT,
    file_date TEXT NOT NULL,
    ingestion_timestamp TEXT NOT NULL
);
CREATE TABLE source (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    media_id INTEGER NOT NULL,
    source_path TEXT NOT NULL
);
CREATE TABLE tags (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    media_id INTEGER NOT NULL,
    tag_value TEXT NOT NULL
);`

// newLegacyDB writes a flat-schema database and returns its path.
func newLegacyDB(t *testing.T, statements ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := OpenConnection(path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(legacySchema)
	require.NoError(t, err)
	for _, stmt := range statements {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	return path
}

func TestMigrateLegacy(t *testing.T) {
	ctx := context.Background()

	t.Run("splits paths and deduplicates sources and tags", func(t *testing.T) {
		src := newLegacyDB(t,
			`INSERT INTO media VALUES (7, '2024/05/a.jpg', 'photo', 'h1', 10, NULL, '2024-05-01T10:00:00', '2024-05-02T11:00:00.250000', '2024-06-01T00:00:00')`,
			`INSERT INTO media VALUES (9, '2024/05/b.mov', 'video', 'h2', 20, 4.5, NULL, '2024-05-03T11:00:00', '2024-06-01T00:00:00')`,
			`INSERT INTO source (media_id, source_path) VALUES (7, '/in/trip/a.jpg'), (9, '/in/trip/b.mov'), (7, '/in/other/a.jpg'), (99, '/in/ghost/z.jpg')`,
			`INSERT INTO tags (media_id, tag_value) VALUES (7, 'trip'), (9, 'trip'), (9, 'video'), (99, 'ghost')`,
		)
		dest := filepath.Join(t.TempDir(), "out", "nowa.db")

		report, err := MigrateLegacy(ctx, src, dest, nowa.NewNopLogger())
		require.NoError(t, err)

		assert.Equal(t, 2, report.Media)
		assert.Equal(t, 3, report.SourceLinks)
		assert.Equal(t, 2, report.SourceItems)
		assert.Equal(t, 3, report.TagLinks)
		assert.Equal(t, 2, report.Tags)
		require.Len(t, report.Unmapped, 2)
		for _, e := range report.Unmapped {
			assert.ErrorIs(t, e, errs.ErrIntegrity)
		}

		s, err := NewSQLiteStore(dest)
		require.NoError(t, err)
		defer s.Close()

		rec, err := s.FindByDigest(ctx, "h1")
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "2024/05", rec.ArchiveDir)
		assert.Equal(t, "a.jpg", rec.ArchiveFilename)

		var fileDate string
		require.NoError(t, s.DB().Get(&fileDate, "SELECT file_date FROM media WHERE hash_signature = 'h1'"))
		assert.Equal(t, "2024-05-02T11:00:00.250000", fileDate)

		ids, err := s.MediaIDsUnderSourceFolder(ctx, "/in", "trip")
		require.NoError(t, err)
		assert.Len(t, ids, 2)

		tags, err := s.TagsFor(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"trip"}, tags)
	})

	t.Run("refuses an existing destination", func(t *testing.T) {
		src := newLegacyDB(t)
		dest := filepath.Join(t.TempDir(), "exists.db")
		require.NoError(t, os.WriteFile(dest, []byte("keep me"), 0644))

		_, err := MigrateLegacy(ctx, src, dest, nowa.NewNopLogger())
		assert.ErrorIs(t, err, errs.ErrConflict)

		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "keep me", string(data))
	})

	t.Run("refuses a missing source", func(t *testing.T) {
		dest := filepath.Join(t.TempDir(), "out.db")
		_, err := MigrateLegacy(ctx, filepath.Join(t.TempDir(), "missing.db"), dest, nowa.NewNopLogger())
		assert.ErrorIs(t, err, errs.ErrNotFound)
		assert.NoFileExists(t, dest)
	})

	t.Run("refuses a normalized source", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "normalized.db")
		s, err := NewSQLiteStore(path)
		require.NoError(t, err)
		require.NoError(t, s.Close())

		dest := filepath.Join(t.TempDir(), "out.db")
		_, err = MigrateLegacy(ctx, path, dest, nowa.NewNopLogger())
		assert.ErrorIs(t, err, errs.ErrValidation)
		assert.NoFileExists(t, dest)
	})

	t.Run("removes the destination when a row fails", func(t *testing.T) {
		src := newLegacyDB(t,
			`INSERT INTO media VALUES (1, '2024/05/a.txt', 'document', 'h1', 10, NULL, NULL, '2024-05-02T11:00:00', '2024-06-01T00:00:00')`,
		)
		dest := filepath.Join(t.TempDir(), "out.db")

		_, err := MigrateLegacy(ctx, src, dest, nowa.NewNopLogger())
		assert.Error(t, err)
		assert.NoFileExists(t, dest)
	})
}
