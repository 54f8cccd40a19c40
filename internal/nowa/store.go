package nowa

import "context"

// Store provides the metadata operations the archive depends on.
// Every mutating method runs in its own transaction and either applies fully
// or not at all.
type Store interface {
	// InsertMedia records new content and returns its id.
	// Fails with errs.ErrConflict if the digest is already stored.
	InsertMedia(ctx context.Context, record *MediaRecord) (int64, error)

	// FindByDigest returns the record for digest, or nil if unknown.
	FindByDigest(ctx context.Context, digest string) (*MediaRecord, error)

	// LinkSource records that the media came from sourceDir/filename.
	// Linking the same triple twice has no further effect.
	LinkSource(ctx context.Context, mediaID int64, sourceDir, filename string) error

	// AddTags adds tags to the media and returns how many links were new.
	AddTags(ctx context.Context, mediaID int64, tags []string) (int, error)

	// ReplaceTags clears the media's tags and sets exactly tags.
	ReplaceTags(ctx context.Context, mediaID int64, tags []string) error

	// TagsFor returns the media's tags in tag creation order.
	TagsFor(ctx context.Context, mediaID int64) ([]string, error)

	// MediaIDsUnderSourceFolder returns media whose source directory is
	// root/relFolder or nested below it. relFolder "." matches root only.
	MediaIDsUnderSourceFolder(ctx context.Context, root, relFolder string) ([]int64, error)

	// ExportAll returns every media record with sources and tags, ordered by id.
	ExportAll(ctx context.Context) ([]ExportRecord, error)

	// ArchivedFiles maps each stored digest to its archive-relative path.
	ArchivedFiles(ctx context.Context) (map[string]string, error)

	// Counts returns row counts for each entity.
	Counts(ctx context.Context) (StoreCounts, error)

	// Operation history

	// StartOperation records the start of a mutating command.
	StartOperation(ctx context.Context, sessionID, kind, parameters string) (int64, error)

	// FinishOperation marks an operation finished with the given status.
	FinishOperation(ctx context.Context, id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(ctx context.Context, limit int) ([]Operation, error)

	// Close closes the underlying database.
	Close() error
}
