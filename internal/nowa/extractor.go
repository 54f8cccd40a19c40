package nowa

import (
	"context"
	"time"
)

// Extractor reads embedded metadata from media files.
// Implementations degrade to nil on any internal failure.
type Extractor interface {
	// CaptureTime returns the embedded capture timestamp of a photo.
	CaptureTime(ctx context.Context, path string) *time.Time

	// Duration returns the length of a video in seconds.
	Duration(ctx context.Context, path string) *float64
}

// MetadataExporter writes the denormalized store contents somewhere durable.
type MetadataExporter interface {
	Export(ctx context.Context, records []ExportRecord) error
}
