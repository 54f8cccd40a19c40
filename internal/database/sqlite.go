package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"nowa-go/internal/database/migrations"
	"nowa-go/internal/nowa"
)

// SQLiteStore implements nowa.Store on a SQLite database.
type SQLiteStore struct {
	db   *sqlx.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at path and brings
// its schema up to date. path can be ":memory:".
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// OpenSQLiteStore opens an existing database without touching its schema,
// which must already be at the latest version.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenExisting(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.CheckDBMigrationStatus(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}
	return &SQLiteStore{db: db, path: path, now: time.Now}, nil
}

// Media operations

func (s *SQLiteStore) InsertMedia(ctx context.Context, rec *nowa.MediaRecord) (int64, error) {
	query, args, err := sq.Insert("media").
		Columns("archive_path", "archive_filename", "media_type", "hash_signature", "file_size",
			"duration", "exif_date", "file_date", "ingestion_timestamp").
		Values(mediaValues(rec)...).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("building media insert: %w", err)
	}

	var id int64
	err = withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("inserting media %s: %w", rec.Digest, classify(err))
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	rec.ID = id
	return id, nil
}

func (s *SQLiteStore) FindByDigest(ctx context.Context, digest string) (*nowa.MediaRecord, error) {
	var row mediaRow
	err := s.db.GetContext(ctx, &row, "SELECT "+mediaColumns+" FROM media WHERE hash_signature = ?", digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding media by digest: %w", err)
	}
	return row.record()
}

// Source operations

func (s *SQLiteStore) LinkSource(ctx context.Context, mediaID int64, sourceDir, filename string) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		sourceID, err := newSourceCache(tx).GetOrInsert(ctx, sourceDir)
		if err != nil {
			return fmt.Errorf("resolving source %s: %w", sourceDir, err)
		}
		_, err = tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO media_source (media_id, source_item_id, source_filename) VALUES (?, ?, ?)",
			mediaID, sourceID, filename)
		if err != nil {
			return fmt.Errorf("linking media %d to %s: %w", mediaID, sourceDir, classify(err))
		}
		return nil
	})
}

// Tag operations

func (s *SQLiteStore) AddTags(ctx context.Context, mediaID int64, tags []string) (int, error) {
	if len(tags) == 0 {
		return 0, nil
	}
	var added int
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		n, err := linkTags(ctx, tx, mediaID, tags)
		added = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

func (s *SQLiteStore) ReplaceTags(ctx context.Context, mediaID int64, tags []string) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM media_tag WHERE media_id = ?", mediaID); err != nil {
			return fmt.Errorf("clearing tags for media %d: %w", mediaID, err)
		}
		_, err := linkTags(ctx, tx, mediaID, tags)
		return err
	})
}

// linkTags links each non-empty tag to the media and returns how many links
// were new.
func linkTags(ctx context.Context, tx *sqlx.Tx, mediaID int64, tags []string) (int, error) {
	cache := newTagCache(tx)
	added := 0
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		tagID, err := cache.GetOrInsert(ctx, tag)
		if err != nil {
			return 0, fmt.Errorf("resolving tag %q: %w", tag, err)
		}
		res, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO media_tag (media_id, tag_id) VALUES (?, ?)", mediaID, tagID)
		if err != nil {
			return 0, fmt.Errorf("tagging media %d: %w", mediaID, classify(err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}
	return added, nil
}

func (s *SQLiteStore) TagsFor(ctx context.Context, mediaID int64) ([]string, error) {
	tags := []string{}
	err := s.db.SelectContext(ctx, &tags, `SELECT t.value FROM tag t
		JOIN media_tag mt ON t.id = mt.tag_id
		WHERE mt.media_id = ?
		ORDER BY t.id`, mediaID)
	if err != nil {
		return nil, fmt.Errorf("listing tags for media %d: %w", mediaID, err)
	}
	return tags, nil
}

// Folder lookups

func (s *SQLiteStore) MediaIDsUnderSourceFolder(ctx context.Context, root, relFolder string) ([]int64, error) {
	root = filepath.Clean(root)
	q := sq.Select("ms.media_id").Distinct().
		From("media_source ms").
		Join("source_item si ON ms.source_item_id = si.id").
		OrderBy("ms.media_id")

	if relFolder == "." || relFolder == "" {
		q = q.Where(sq.Eq{"si.source_path": root})
	} else {
		folder := filepath.Join(root, filepath.FromSlash(relFolder))
		prefix := folder + string(filepath.Separator)
		// substr rather than LIKE: paths may contain % or _, and LIKE is
		// case-insensitive for ASCII.
		q = q.Where(sq.Or{
			sq.Eq{"si.source_path": folder},
			sq.Expr("substr(si.source_path, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix),
		})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building folder query: %w", err)
	}
	ids := []int64{}
	if err := s.db.SelectContext(ctx, &ids, query, args...); err != nil {
		return nil, fmt.Errorf("finding media under %s/%s: %w", root, relFolder, err)
	}
	return ids, nil
}

// Export

func (s *SQLiteStore) ExportAll(ctx context.Context) ([]nowa.ExportRecord, error) {
	var media []mediaRow
	if err := s.db.SelectContext(ctx, &media, "SELECT "+mediaColumns+" FROM media ORDER BY id"); err != nil {
		return nil, fmt.Errorf("listing media: %w", err)
	}

	var sources []sourceRow
	err := s.db.SelectContext(ctx, &sources, `SELECT ms.media_id, si.source_path, ms.source_item_id, ms.source_filename
		FROM media_source ms
		JOIN source_item si ON ms.source_item_id = si.id
		ORDER BY ms.media_id, ms.source_item_id, ms.source_filename`)
	if err != nil {
		return nil, fmt.Errorf("listing sources: %w", err)
	}

	var tags []tagRow
	err = s.db.SelectContext(ctx, &tags, `SELECT mt.media_id, t.value
		FROM media_tag mt
		JOIN tag t ON t.id = mt.tag_id
		ORDER BY mt.media_id, t.id`)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	sourcesByMedia := make(map[int64][]nowa.SourceRef)
	for _, r := range sources {
		sourcesByMedia[r.MediaID] = append(sourcesByMedia[r.MediaID], nowa.SourceRef{Dir: r.SourcePath, Filename: r.Filename})
	}
	tagsByMedia := make(map[int64][]string)
	for _, r := range tags {
		tagsByMedia[r.MediaID] = append(tagsByMedia[r.MediaID], r.Value)
	}

	records := make([]nowa.ExportRecord, 0, len(media))
	for i := range media {
		rec, err := media[i].record()
		if err != nil {
			return nil, err
		}
		exp := nowa.ExportRecord{
			Media:   *rec,
			Sources: sourcesByMedia[rec.ID],
			Tags:    tagsByMedia[rec.ID],
		}
		if exp.Sources == nil {
			exp.Sources = []nowa.SourceRef{}
		}
		if exp.Tags == nil {
			exp.Tags = []string{}
		}
		records = append(records, exp)
	}
	return records, nil
}

func (s *SQLiteStore) ArchivedFiles(ctx context.Context) (map[string]string, error) {
	var rows []struct {
		Digest   string `db:"hash_signature"`
		Dir      string `db:"archive_path"`
		Filename string `db:"archive_filename"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT hash_signature, archive_path, archive_filename FROM media"); err != nil {
		return nil, fmt.Errorf("listing archived files: %w", err)
	}
	files := make(map[string]string, len(rows))
	for _, r := range rows {
		files[r.Digest] = r.Dir + "/" + r.Filename
	}
	return files, nil
}

func (s *SQLiteStore) Counts(ctx context.Context) (nowa.StoreCounts, error) {
	return countRows(ctx, s.db)
}

func countRows(ctx context.Context, q sqlx.QueryerContext) (nowa.StoreCounts, error) {
	var c struct {
		Media       int64 `db:"media"`
		Tags        int64 `db:"tags"`
		SourceItems int64 `db:"source_items"`
		SourceLinks int64 `db:"source_links"`
		TagLinks    int64 `db:"tag_links"`
	}
	err := sqlx.GetContext(ctx, q, &c, `SELECT
		(SELECT COUNT(*) FROM media) AS media,
		(SELECT COUNT(*) FROM tag) AS tags,
		(SELECT COUNT(*) FROM source_item) AS source_items,
		(SELECT COUNT(*) FROM media_source) AS source_links,
		(SELECT COUNT(*) FROM media_tag) AS tag_links`)
	if err != nil {
		return nowa.StoreCounts{}, fmt.Errorf("counting rows: %w", err)
	}
	return nowa.StoreCounts(c), nil
}

// Operation history

func (s *SQLiteStore) StartOperation(ctx context.Context, sessionID, kind, parameters string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO operations (session_id, operation, parameters, started_at, status) VALUES (?, ?, ?, ?, ?)",
		sessionID, kind, parameters, nowa.FormatTimestamp(s.now()), nowa.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("creating operation: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) FinishOperation(ctx context.Context, id int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE operations SET finished_at = ?, status = ? WHERE id = ?",
		nowa.FormatTimestamp(s.now()), status, id)
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListOperations(ctx context.Context, limit int) ([]nowa.Operation, error) {
	q := sq.Select("id", "session_id", "operation", "parameters", "started_at", "finished_at", "status").
		From("operations").
		OrderBy("id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building operations query: %w", err)
	}

	var rows []operationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}
	ops := make([]nowa.Operation, len(rows))
	for i := range rows {
		ops[i] = rows[i].operation()
	}
	return ops, nil
}

// Database lifecycle

// DB returns the underlying connection.
func (s *SQLiteStore) DB() *sqlx.DB {
	return s.db
}

// Path returns the database file path (or ":memory:").
func (s *SQLiteStore) Path() string {
	return s.path
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteStore) BackupTo(destPath string) error {
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ nowa.Store = (*SQLiteStore)(nil)
