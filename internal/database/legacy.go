package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jmoiron/sqlx"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

// legacyTables is the table set of the flat schema, where sources and tags
// are rows keyed by media id and addressed by full path strings.
var legacyTables = []string{"media", "source", "tags"}

// LegacyReport summarizes a MigrateLegacy run.
type LegacyReport struct {
	Media       int
	SourceLinks int
	SourceItems int
	TagLinks    int
	Tags        int
	// Unmapped lists source and tag rows skipped because their media id was
	// unknown. Each wraps errs.ErrIntegrity.
	Unmapped []error
}

type legacyMediaRow struct {
	ID                 int64           `db:"id"`
	ArchivePath        string          `db:"archive_path"`
	MediaType          string          `db:"media_type"`
	HashSignature      string          `db:"hash_signature"`
	FileSize           int64           `db:"file_size"`
	Duration           sql.NullFloat64 `db:"duration"`
	ExifDate           sql.NullString  `db:"exif_date"`
	FileDate           string          `db:"file_date"`
	IngestionTimestamp string          `db:"ingestion_timestamp"`
}

// MigrateLegacy converts a flat-schema database at sourcePath into a new
// normalized database at destPath in a single forward pass. It refuses to
// overwrite destPath and refuses a source whose tables are not the flat
// shape. Source and tag rows pointing at unknown media are skipped and
// reported. On failure the partially written destination is removed.
func MigrateLegacy(ctx context.Context, sourcePath, destPath string, logger nowa.Logger) (*LegacyReport, error) {
	if _, err := os.Stat(destPath); err == nil {
		return nil, fmt.Errorf("%w: output database already exists: %s", errs.ErrConflict, destPath)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: stat %s: %w", errs.ErrIO, destPath, err)
	}

	src, err := OpenExisting(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("opening source database: %w", err)
	}
	defer src.Close()

	if err := checkLegacyShape(ctx, src); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return nil, fmt.Errorf("%w: creating output directory: %w", errs.ErrIO, err)
	}
	dst, err := NewSQLiteStore(destPath)
	if err != nil {
		return nil, fmt.Errorf("creating output database: %w", err)
	}

	report, err := migrateLegacyRows(ctx, src, dst.DB(), logger)
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(destPath)
		return nil, err
	}

	logger.Info("legacy migration complete",
		"media", report.Media,
		"source_links", report.SourceLinks,
		"source_items", report.SourceItems,
		"tag_links", report.TagLinks,
		"tags", report.Tags,
		"unmapped", len(report.Unmapped),
	)
	return report, nil
}

// checkLegacyShape requires that, of the flat schema's table names, the
// source has exactly all of them.
func checkLegacyShape(ctx context.Context, db *sqlx.DB) error {
	have, err := tableNames(ctx, db)
	if err != nil {
		return err
	}
	var found []string
	for _, t := range legacyTables {
		if _, ok := have[t]; ok {
			found = append(found, t)
		}
	}
	if len(found) != len(legacyTables) {
		sort.Strings(found)
		return fmt.Errorf("%w: source database does not have the expected tables: want %v, found %v",
			errs.ErrValidation, legacyTables, found)
	}
	return nil
}

func migrateLegacyRows(ctx context.Context, src, dst *sqlx.DB, logger nowa.Logger) (*LegacyReport, error) {
	var media []legacyMediaRow
	err := src.SelectContext(ctx, &media, `SELECT id, archive_path, media_type, hash_signature, file_size,
		duration, exif_date, file_date, ingestion_timestamp FROM media ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("reading legacy media: %w", err)
	}

	var sources []struct {
		MediaID    int64  `db:"media_id"`
		SourcePath string `db:"source_path"`
	}
	if err := src.SelectContext(ctx, &sources, "SELECT media_id, source_path FROM source ORDER BY id"); err != nil {
		return nil, fmt.Errorf("reading legacy sources: %w", err)
	}

	var tags []struct {
		MediaID int64  `db:"media_id"`
		Value   string `db:"tag_value"`
	}
	if err := src.SelectContext(ctx, &tags, "SELECT media_id, tag_value FROM tags ORDER BY id"); err != nil {
		return nil, fmt.Errorf("reading legacy tags: %w", err)
	}

	report := &LegacyReport{}
	err = withTx(ctx, dst, func(tx *sqlx.Tx) error {
		mediaMap := make(idMap, len(media))
		for i := range media {
			m := &media[i]
			dir, name := filepath.Split(m.ArchivePath)
			id, err := insertMediaRow(ctx, tx, &mediaRow{
				ArchivePath:        filepath.Clean(dir),
				ArchiveFilename:    name,
				MediaType:          m.MediaType,
				HashSignature:      m.HashSignature,
				FileSize:           m.FileSize,
				Duration:           m.Duration,
				ExifDate:           m.ExifDate,
				FileDate:           m.FileDate,
				IngestionTimestamp: m.IngestionTimestamp,
			})
			if err != nil {
				return fmt.Errorf("migrating media %d: %w", m.ID, err)
			}
			mediaMap[m.ID] = id
			report.Media++
		}

		sourceCache := newSourceCache(tx)
		for _, s := range sources {
			mediaID, ok := mediaMap[s.MediaID]
			if !ok {
				err := fmt.Errorf("%w: source %s references unknown media %d", errs.ErrIntegrity, s.SourcePath, s.MediaID)
				logger.Warn("skipping legacy source", "error", err)
				report.Unmapped = append(report.Unmapped, err)
				continue
			}
			dir, name := filepath.Split(s.SourcePath)
			sourceID, err := sourceCache.GetOrInsert(ctx, filepath.Clean(dir))
			if err != nil {
				return fmt.Errorf("resolving source %s: %w", dir, err)
			}
			_, err = tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO media_source (media_id, source_item_id, source_filename) VALUES (?, ?, ?)",
				mediaID, sourceID, name)
			if err != nil {
				return fmt.Errorf("linking source %s: %w", s.SourcePath, classify(err))
			}
			report.SourceLinks++
		}
		report.SourceItems = sourceCache.Len()

		tagCache := newTagCache(tx)
		for _, t := range tags {
			mediaID, ok := mediaMap[t.MediaID]
			if !ok {
				err := fmt.Errorf("%w: tag %q references unknown media %d", errs.ErrIntegrity, t.Value, t.MediaID)
				logger.Warn("skipping legacy tag", "error", err)
				report.Unmapped = append(report.Unmapped, err)
				continue
			}
			tagID, err := tagCache.GetOrInsert(ctx, t.Value)
			if err != nil {
				return fmt.Errorf("resolving tag %q: %w", t.Value, err)
			}
			_, err = tx.ExecContext(ctx, "INSERT OR IGNORE INTO media_tag (media_id, tag_id) VALUES (?, ?)", mediaID, tagID)
			if err != nil {
				return fmt.Errorf("linking tag %q: %w", t.Value, classify(err))
			}
			report.TagLinks++
		}
		report.Tags = tagCache.Len()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
