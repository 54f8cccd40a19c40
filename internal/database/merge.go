package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

// PhaseCount tallies one merge or migration phase.
// For entity phases Reused counts rows matched to an existing primary row;
// for link phases it counts links the primary already had.
type PhaseCount struct {
	Added   int
	Reused  int
	Skipped int
}

// MergeReport summarizes a Merge.
type MergeReport struct {
	Tags        PhaseCount
	Sources     PhaseCount
	Media       PhaseCount
	TagLinks    PhaseCount
	SourceLinks PhaseCount
	// Unmapped lists the link rows skipped because an endpoint had no mapping.
	// Each wraps errs.ErrIntegrity.
	Unmapped []error
}

// idMap maps secondary ids to primary ids.
type idMap map[int64]int64

var normalizedTables = []string{"media", "tag", "media_tag", "source_item", "media_source"}

// Merge folds secondary into primary without id collisions: tags by value,
// sources by path, media by digest, then the tag and source links through the
// resulting id maps. Each phase commits on its own; a failed phase leaves the
// earlier ones in place. Links whose endpoints are unmapped are skipped and
// reported.
func Merge(ctx context.Context, primary, secondary *sqlx.DB, logger nowa.Logger) (*MergeReport, error) {
	if err := requireTables(ctx, primary, normalizedTables...); err != nil {
		return nil, fmt.Errorf("checking primary: %w", err)
	}
	if err := requireTables(ctx, secondary, normalizedTables...); err != nil {
		return nil, fmt.Errorf("checking secondary: %w", err)
	}

	report := &MergeReport{}

	logger.Info("merging tags")
	tags, err := listTags(ctx, secondary)
	if err != nil {
		return report, fmt.Errorf("reading secondary: %w", err)
	}
	tagMap, err := mergeKeys(ctx, primary, "tag", "value", tags, func(t nowa.Tag) (int64, string) {
		return t.ID, t.Value
	}, &report.Tags)
	if err != nil {
		return report, fmt.Errorf("merging tags: %w", err)
	}
	logger.Info("tags merged", "added", report.Tags.Added, "reused", report.Tags.Reused)

	logger.Info("merging source items")
	sources, err := listSourceItems(ctx, secondary)
	if err != nil {
		return report, fmt.Errorf("reading secondary: %w", err)
	}
	sourceMap, err := mergeKeys(ctx, primary, "source_item", "source_path", sources, func(si nowa.SourceItem) (int64, string) {
		return si.ID, si.Path
	}, &report.Sources)
	if err != nil {
		return report, fmt.Errorf("merging source items: %w", err)
	}
	logger.Info("source items merged", "added", report.Sources.Added, "reused", report.Sources.Reused)

	logger.Info("merging media")
	mediaMap, err := mergeMedia(ctx, primary, secondary, &report.Media)
	if err != nil {
		return report, fmt.Errorf("merging media: %w", err)
	}
	logger.Info("media merged", "added", report.Media.Added, "duplicates", report.Media.Reused)

	logger.Info("merging media-tag links")
	if err := mergeTagLinks(ctx, primary, secondary, mediaMap, tagMap, report, logger); err != nil {
		return report, fmt.Errorf("merging media-tag links: %w", err)
	}
	logger.Info("media-tag links merged", "added", report.TagLinks.Added, "existing", report.TagLinks.Reused, "unmapped", report.TagLinks.Skipped)

	logger.Info("merging media-source links")
	if err := mergeSourceLinks(ctx, primary, secondary, mediaMap, sourceMap, report, logger); err != nil {
		return report, fmt.Errorf("merging media-source links: %w", err)
	}
	logger.Info("media-source links merged", "added", report.SourceLinks.Added, "existing", report.SourceLinks.Reused, "unmapped", report.SourceLinks.Skipped)

	return report, nil
}

// mergeKeys copies the secondary rows of a unique-valued table, mapping each
// secondary id to the primary row with the same value.
func mergeKeys[T any](ctx context.Context, primary *sqlx.DB, table, column string, rows []T, key func(T) (int64, string), count *PhaseCount) (idMap, error) {
	ids := make(idMap, len(rows))
	err := withTx(ctx, primary, func(tx *sqlx.Tx) error {
		cache := NewKeyCache(tx, table, column)
		for _, r := range rows {
			oldID, value := key(r)
			id, inserted, err := cache.Resolve(ctx, value)
			if err != nil {
				return err
			}
			ids[oldID] = id
			if inserted {
				count.Added++
			} else {
				count.Reused++
			}
		}
		return nil
	})
	if err != nil {
		*count = PhaseCount{}
		return nil, err
	}
	return ids, nil
}

// mergeMedia maps secondary media onto primary media by digest, inserting the
// ones the primary does not have. Column values are copied verbatim.
func mergeMedia(ctx context.Context, primary, secondary *sqlx.DB, count *PhaseCount) (idMap, error) {
	var rows []mediaRow
	if err := secondary.SelectContext(ctx, &rows, "SELECT "+mediaColumns+" FROM media ORDER BY id"); err != nil {
		return nil, fmt.Errorf("reading secondary media: %w", err)
	}

	ids := make(idMap, len(rows))
	err := withTx(ctx, primary, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			var existing int64
			err := tx.GetContext(ctx, &existing, "SELECT id FROM media WHERE hash_signature = ?", r.HashSignature)
			if err == nil {
				ids[r.ID] = existing
				count.Reused++
				continue
			}
			if !isNoRows(err) {
				return fmt.Errorf("looking up digest %s: %w", r.HashSignature, err)
			}

			id, err := insertMediaRow(ctx, tx, &r)
			if err != nil {
				return err
			}
			ids[r.ID] = id
			count.Added++
		}
		return nil
	})
	if err != nil {
		*count = PhaseCount{}
		return nil, err
	}
	return ids, nil
}

func insertMediaRow(ctx context.Context, tx *sqlx.Tx, r *mediaRow) (int64, error) {
	query, args, err := sq.Insert("media").
		Columns("archive_path", "archive_filename", "media_type", "hash_signature", "file_size",
			"duration", "exif_date", "file_date", "ingestion_timestamp").
		Values(r.ArchivePath, r.ArchiveFilename, r.MediaType, r.HashSignature, r.FileSize,
			r.Duration, r.ExifDate, r.FileDate, r.IngestionTimestamp).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("inserting media %s: %w", r.HashSignature, classify(err))
	}
	return res.LastInsertId()
}

func mergeTagLinks(ctx context.Context, primary, secondary *sqlx.DB, mediaMap, tagMap idMap, report *MergeReport, logger nowa.Logger) error {
	var rows []struct {
		MediaID int64 `db:"media_id"`
		TagID   int64 `db:"tag_id"`
	}
	if err := secondary.SelectContext(ctx, &rows, "SELECT media_id, tag_id FROM media_tag ORDER BY media_id, tag_id"); err != nil {
		return fmt.Errorf("reading secondary media_tag: %w", err)
	}

	var count PhaseCount
	var unmapped []error
	err := withTx(ctx, primary, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			mediaID, okMedia := mediaMap[r.MediaID]
			tagID, okTag := tagMap[r.TagID]
			if !okMedia || !okTag {
				err := fmt.Errorf("%w: media_tag (%d, %d)", errs.ErrIntegrity, r.MediaID, r.TagID)
				logger.Warn("skipping unmapped link", "error", err)
				unmapped = append(unmapped, err)
				count.Skipped++
				continue
			}
			res, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO media_tag (media_id, tag_id) VALUES (?, ?)", mediaID, tagID)
			if err != nil {
				return fmt.Errorf("linking media %d to tag %d: %w", mediaID, tagID, classify(err))
			}
			tallyLink(res, &count)
		}
		return nil
	})
	if err != nil {
		return err
	}
	report.TagLinks = count
	report.Unmapped = append(report.Unmapped, unmapped...)
	return nil
}

func mergeSourceLinks(ctx context.Context, primary, secondary *sqlx.DB, mediaMap, sourceMap idMap, report *MergeReport, logger nowa.Logger) error {
	var rows []struct {
		MediaID  int64  `db:"media_id"`
		SourceID int64  `db:"source_item_id"`
		Filename string `db:"source_filename"`
	}
	err := secondary.SelectContext(ctx, &rows,
		"SELECT media_id, source_item_id, source_filename FROM media_source ORDER BY media_id, source_item_id, source_filename")
	if err != nil {
		return fmt.Errorf("reading secondary media_source: %w", err)
	}

	var count PhaseCount
	var unmapped []error
	err = withTx(ctx, primary, func(tx *sqlx.Tx) error {
		for _, r := range rows {
			mediaID, okMedia := mediaMap[r.MediaID]
			sourceID, okSource := sourceMap[r.SourceID]
			if !okMedia || !okSource {
				err := fmt.Errorf("%w: media_source (%d, %d)", errs.ErrIntegrity, r.MediaID, r.SourceID)
				logger.Warn("skipping unmapped link", "error", err)
				unmapped = append(unmapped, err)
				count.Skipped++
				continue
			}
			res, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO media_source (media_id, source_item_id, source_filename) VALUES (?, ?, ?)",
				mediaID, sourceID, r.Filename)
			if err != nil {
				return fmt.Errorf("linking media %d to source %d: %w", mediaID, sourceID, classify(err))
			}
			tallyLink(res, &count)
		}
		return nil
	})
	if err != nil {
		return err
	}
	report.SourceLinks = count
	report.Unmapped = append(report.Unmapped, unmapped...)
	return nil
}

// tallyLink counts an INSERT OR IGNORE as added or already present.
func tallyLink(res interface{ RowsAffected() (int64, error) }, count *PhaseCount) {
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		count.Added++
		return
	}
	count.Reused++
}
