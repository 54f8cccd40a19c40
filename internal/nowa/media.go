package nowa

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MediaKind classifies an archived file.
type MediaKind string

const (
	KindPhoto MediaKind = "photo"
	KindVideo MediaKind = "video"
)

// PhotoExtensions and VideoExtensions list the lower-case extensions ingested.
var (
	PhotoExtensions = map[string]struct{}{
		".jpg": {}, ".jpeg": {}, ".png": {}, ".heic": {}, ".tiff": {},
		".bmp": {}, ".gif": {}, ".webp": {}, ".nef": {}, ".nrw": {},
	}
	VideoExtensions = map[string]struct{}{
		".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".wmv": {}, ".m4v": {},
	}
)

// IsMediaFile reports whether name has a supported extension (case-insensitive).
func IsMediaFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if _, ok := PhotoExtensions[ext]; ok {
		return true
	}
	_, ok := VideoExtensions[ext]
	return ok
}

// KindForPath classifies a file by extension. Anything that is not a known
// video extension is treated as a photo.
func KindForPath(name string) MediaKind {
	if _, ok := VideoExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return KindVideo
	}
	return KindPhoto
}

// MediaRecord is one archived piece of content. Digest is unique across the store.
type MediaRecord struct {
	ID              int64
	ArchiveDir      string // relative to the archive root, e.g. "2026/03"
	ArchiveFilename string
	Kind            MediaKind
	Digest          string
	Size            int64
	CaptureTime     *time.Time
	FileTime        time.Time
	Duration        *float64
	IngestedAt      time.Time
}

// ArchivePath joins the archive directory and filename with a forward slash.
func (m *MediaRecord) ArchivePath() string {
	return m.ArchiveDir + "/" + m.ArchiveFilename
}

// SourceItem is a deduplicated source directory.
type SourceItem struct {
	ID   int64
	Path string
}

// SourceRef is one physical origin of a media record.
type SourceRef struct {
	Dir      string
	Filename string
}

// Path returns the full original path.
func (s SourceRef) Path() string {
	return s.Dir + "/" + s.Filename
}

// Tag is a normalized tag value.
type Tag struct {
	ID    int64
	Value string
}

// ExportRecord is a media record with its sources and tags, each in stable order.
type ExportRecord struct {
	Media   MediaRecord
	Sources []SourceRef
	Tags    []string
}

// StoreCounts summarizes the size of a metadata store.
type StoreCounts struct {
	Media       int64
	Tags        int64
	SourceItems int64
	SourceLinks int64
	TagLinks    int64
}

// Operation is a recorded CLI operation that mutated the store.
type Operation struct {
	ID         int64
	SessionID  string
	Kind       string
	Parameters string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
}

// Operation statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// TimestampLayout is how dates are written to the store and the export. The
// fraction is only printed when non-zero.
const TimestampLayout = "2006-01-02T15:04:05.999999"

// FormatTimestamp renders t in the store's wall-clock format.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ParseTimestamp accepts the store's format (with or without fraction) and
// RFC 3339. Zone-less values are read in the local zone.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
