package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

func TestMerge(t *testing.T) {
	ctx := context.Background()

	t.Run("shared digest maps onto the primary record", func(t *testing.T) {
		a := newTestStore(t)
		b := newTestStore(t)

		shared := insertTestMedia(t, a, "aaaa1111")
		require.NoError(t, a.LinkSource(ctx, shared, "/a/card", "x.jpg"))
		_, err := a.AddTags(ctx, shared, []string{"family"})
		require.NoError(t, err)

		// Different ids on purpose: b inserts an extra record first.
		onlyB := insertTestMedia(t, b, "bbbb2222")
		sharedB := insertTestMedia(t, b, "aaaa1111")
		require.NoError(t, b.LinkSource(ctx, sharedB, "/b/phone", "x.jpg"))
		require.NoError(t, b.LinkSource(ctx, sharedB, "/a/card", "x.jpg"))
		require.NoError(t, b.LinkSource(ctx, onlyB, "/b/phone", "y.jpg"))
		_, err = b.AddTags(ctx, sharedB, []string{"beach", "family"})
		require.NoError(t, err)

		before, err := a.Counts(ctx)
		require.NoError(t, err)

		report, err := Merge(ctx, a.DB(), b.DB(), nowa.NewNopLogger())
		require.NoError(t, err)

		assert.Equal(t, PhaseCount{Added: 1, Reused: 1}, report.Tags)
		assert.Equal(t, PhaseCount{Added: 1, Reused: 1}, report.Sources)
		assert.Equal(t, PhaseCount{Added: 1, Reused: 1}, report.Media)
		assert.Equal(t, PhaseCount{Added: 1, Reused: 1}, report.TagLinks)
		assert.Equal(t, PhaseCount{Added: 2, Reused: 1}, report.SourceLinks)
		assert.Empty(t, report.Unmapped)

		after, err := a.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, before.Media+1, after.Media)

		tags, err := a.TagsFor(ctx, shared)
		require.NoError(t, err)
		assert.Equal(t, []string{"family", "beach"}, tags)

		ids, err := a.MediaIDsUnderSourceFolder(ctx, "/b/phone", ".")
		require.NoError(t, err)
		assert.Len(t, ids, 2)
		assert.Contains(t, ids, shared)
	})

	t.Run("merging twice adds nothing", func(t *testing.T) {
		a := newTestStore(t)
		b := newTestStore(t)
		id := insertTestMedia(t, b, "bbbb2222")
		require.NoError(t, b.LinkSource(ctx, id, "/b", "y.jpg"))

		_, err := Merge(ctx, a.DB(), b.DB(), nowa.NewNopLogger())
		require.NoError(t, err)
		first, err := a.Counts(ctx)
		require.NoError(t, err)

		report, err := Merge(ctx, a.DB(), b.DB(), nowa.NewNopLogger())
		require.NoError(t, err)
		assert.Zero(t, report.Media.Added)
		assert.Zero(t, report.SourceLinks.Added)

		second, err := a.Counts(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("copies column values verbatim", func(t *testing.T) {
		a := newTestStore(t)
		b := newTestStore(t)
		_, err := b.DB().Exec(`INSERT INTO media (archive_path, archive_filename, media_type, hash_signature, file_size, duration, exif_date, file_date, ingestion_timestamp)
			VALUES ('2020/01', 'v.mp4', 'video', 'ffff0000', 10, 3.25, NULL, '2020-01-02T03:04:05.123456', '2020-02-01T00:00:00')`)
		require.NoError(t, err)

		_, err = Merge(ctx, a.DB(), b.DB(), nowa.NewNopLogger())
		require.NoError(t, err)

		var fileDate string
		require.NoError(t, a.DB().Get(&fileDate, "SELECT file_date FROM media WHERE hash_signature = 'ffff0000'"))
		assert.Equal(t, "2020-01-02T03:04:05.123456", fileDate)
	})

	t.Run("unmapped links are skipped and reported", func(t *testing.T) {
		a := newTestStore(t)
		b := newTestStore(t)
		id := insertTestMedia(t, b, "bbbb2222")
		_, err := b.AddTags(ctx, id, []string{"x"})
		require.NoError(t, err)

		// Orphan a link in the secondary.
		_, err = b.DB().Exec("PRAGMA foreign_keys = OFF")
		require.NoError(t, err)
		_, err = b.DB().Exec("INSERT INTO media_tag (media_id, tag_id) VALUES (42, 1)")
		require.NoError(t, err)

		report, err := Merge(ctx, a.DB(), b.DB(), nowa.NewNopLogger())
		require.NoError(t, err)
		assert.Equal(t, 1, report.TagLinks.Added)
		assert.Equal(t, 1, report.TagLinks.Skipped)
		require.Len(t, report.Unmapped, 1)
		assert.ErrorIs(t, report.Unmapped[0], errs.ErrIntegrity)
	})

	t.Run("rejects a secondary without the normalized tables", func(t *testing.T) {
		a := newTestStore(t)
		raw, err := OpenConnection(":memory:")
		require.NoError(t, err)
		defer raw.Close()

		_, err = Merge(ctx, a.DB(), raw, nowa.NewNopLogger())
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}
