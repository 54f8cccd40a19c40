package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

const mediaColumns = "id, archive_path, archive_filename, media_type, hash_signature, file_size, duration, exif_date, file_date, ingestion_timestamp"

type mediaRow struct {
	ID                 int64           `db:"id"`
	ArchivePath        string          `db:"archive_path"`
	ArchiveFilename    string          `db:"archive_filename"`
	MediaType          string          `db:"media_type"`
	HashSignature      string          `db:"hash_signature"`
	FileSize           int64           `db:"file_size"`
	Duration           sql.NullFloat64 `db:"duration"`
	ExifDate           sql.NullString  `db:"exif_date"`
	FileDate           string          `db:"file_date"`
	IngestionTimestamp string          `db:"ingestion_timestamp"`
}

func (r *mediaRow) record() (*nowa.MediaRecord, error) {
	rec := &nowa.MediaRecord{
		ID:              r.ID,
		ArchiveDir:      r.ArchivePath,
		ArchiveFilename: r.ArchiveFilename,
		Kind:            nowa.MediaKind(r.MediaType),
		Digest:          r.HashSignature,
		Size:            r.FileSize,
	}

	var err error
	if rec.FileTime, err = nowa.ParseTimestamp(r.FileDate); err != nil {
		return nil, fmt.Errorf("%w: media %d file_date: %w", errs.ErrIntegrity, r.ID, err)
	}
	if rec.IngestedAt, err = nowa.ParseTimestamp(r.IngestionTimestamp); err != nil {
		return nil, fmt.Errorf("%w: media %d ingestion_timestamp: %w", errs.ErrIntegrity, r.ID, err)
	}
	if r.ExifDate.Valid && r.ExifDate.String != "" {
		t, err := nowa.ParseTimestamp(r.ExifDate.String)
		if err != nil {
			return nil, fmt.Errorf("%w: media %d exif_date: %w", errs.ErrIntegrity, r.ID, err)
		}
		rec.CaptureTime = &t
	}
	if r.Duration.Valid {
		d := r.Duration.Float64
		rec.Duration = &d
	}
	return rec, nil
}

// mediaValues returns the insert values for rec in mediaColumns order, minus id.
func mediaValues(rec *nowa.MediaRecord) []any {
	var exif, duration any
	if rec.CaptureTime != nil {
		exif = nowa.FormatTimestamp(*rec.CaptureTime)
	}
	if rec.Duration != nil {
		duration = *rec.Duration
	}
	return []any{
		rec.ArchiveDir,
		rec.ArchiveFilename,
		string(rec.Kind),
		rec.Digest,
		rec.Size,
		duration,
		exif,
		nowa.FormatTimestamp(rec.FileTime),
		nowa.FormatTimestamp(rec.IngestedAt.Truncate(time.Second)),
	}
}

type sourceRow struct {
	MediaID      int64  `db:"media_id"`
	SourcePath   string `db:"source_path"`
	SourceItemID int64  `db:"source_item_id"`
	Filename     string `db:"source_filename"`
}

// keyRow is a row of a unique-valued table (tag, source_item).
type keyRow struct {
	ID    int64  `db:"id"`
	Value string `db:"value"`
}

func listTags(ctx context.Context, q sqlx.QueryerContext) ([]nowa.Tag, error) {
	var rows []keyRow
	if err := sqlx.SelectContext(ctx, q, &rows, "SELECT id, value FROM tag ORDER BY id"); err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	tags := make([]nowa.Tag, len(rows))
	for i, r := range rows {
		tags[i] = nowa.Tag{ID: r.ID, Value: r.Value}
	}
	return tags, nil
}

func listSourceItems(ctx context.Context, q sqlx.QueryerContext) ([]nowa.SourceItem, error) {
	var rows []keyRow
	if err := sqlx.SelectContext(ctx, q, &rows, "SELECT id, source_path AS value FROM source_item ORDER BY id"); err != nil {
		return nil, fmt.Errorf("listing source items: %w", err)
	}
	items := make([]nowa.SourceItem, len(rows))
	for i, r := range rows {
		items[i] = nowa.SourceItem{ID: r.ID, Path: r.Value}
	}
	return items, nil
}

type tagRow struct {
	MediaID int64  `db:"media_id"`
	Value   string `db:"value"`
}

type operationRow struct {
	ID         int64          `db:"id"`
	SessionID  string         `db:"session_id"`
	Operation  string         `db:"operation"`
	Parameters string         `db:"parameters"`
	StartedAt  string         `db:"started_at"`
	FinishedAt sql.NullString `db:"finished_at"`
	Status     string         `db:"status"`
}

func (r *operationRow) operation() nowa.Operation {
	op := nowa.Operation{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Kind:       r.Operation,
		Parameters: r.Parameters,
		Status:     r.Status,
	}
	op.StartedAt, _ = nowa.ParseTimestamp(r.StartedAt)
	if r.FinishedAt.Valid {
		if t, err := nowa.ParseTimestamp(r.FinishedAt.String); err == nil {
			op.FinishedAt = &t
		}
	}
	return op
}
