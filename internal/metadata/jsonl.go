// Package metadata writes the denormalized JSON Lines export that sits next to
// the archive, so the archive stays readable without the database.
package metadata

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

// Line is one exported record. Duration is present only for videos that have one.
type Line struct {
	ArchivePath string   `json:"archive_path"`
	Hash        string   `json:"hash"`
	Tags        []string `json:"tags"`
	Sources     []string `json:"sources"`
	ExifDate    *string  `json:"exif_date"`
	FileDate    string   `json:"file_date"`
	IngestedAt  string   `json:"ingested_at"`
	Duration    *float64 `json:"duration,omitempty"`
}

// NewLine flattens an export record.
func NewLine(rec nowa.ExportRecord) Line {
	m := rec.Media
	line := Line{
		ArchivePath: m.ArchivePath(),
		Hash:        m.Digest,
		Tags:        make([]string, 0, len(rec.Tags)),
		Sources:     make([]string, 0, len(rec.Sources)),
		FileDate:    nowa.FormatTimestamp(m.FileTime),
		IngestedAt:  nowa.FormatTimestamp(m.IngestedAt),
	}
	line.Tags = append(line.Tags, rec.Tags...)
	for _, s := range rec.Sources {
		line.Sources = append(line.Sources, s.Path())
	}
	if m.CaptureTime != nil {
		exif := nowa.FormatTimestamp(*m.CaptureTime)
		line.ExifDate = &exif
	}
	if m.Kind == nowa.KindVideo && m.Duration != nil {
		d := *m.Duration
		line.Duration = &d
	}
	return line
}

// JSONLExporter regenerates the whole export file on every call.
type JSONLExporter struct {
	path string
}

// NewJSONLExporter returns an exporter writing to path.
func NewJSONLExporter(path string) *JSONLExporter {
	return &JSONLExporter{path: path}
}

// Path returns the export file location.
func (e *JSONLExporter) Path() string {
	return e.path
}

// Export replaces the export file with one line per record. The file is
// written to a temp file and renamed, so readers never see a partial export.
func (e *JSONLExporter) Export(ctx context.Context, records []nowa.ExportRecord) error {
	dir := filepath.Dir(e.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: creating export directory: %w", errs.ErrIO, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: creating temp file: %w", errs.ErrIO, err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmpFile)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			tmpFile.Close()
			return err
		}
		if err := enc.Encode(NewLine(rec)); err != nil {
			tmpFile.Close()
			return fmt.Errorf("%w: writing record %s: %w", errs.ErrIO, rec.Media.Digest, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("%w: flushing export: %w", errs.ErrIO, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("%w: closing temp file: %w", errs.ErrIO, err)
	}
	if err := os.Rename(tmpPath, e.path); err != nil {
		return fmt.Errorf("%w: renaming temp file: %w", errs.ErrIO, err)
	}
	success = true
	return nil
}

// ReadFile decodes an export file.
func ReadFile(path string) ([]Line, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errs.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: opening export: %w", errs.ErrIO, err)
	}
	defer f.Close()

	var lines []Line
	dec := json.NewDecoder(f)
	for dec.More() {
		var l Line
		if err := dec.Decode(&l); err != nil {
			return nil, fmt.Errorf("%w: decoding export line %d: %w", errs.ErrValidation, len(lines)+1, err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

var _ nowa.MetadataExporter = (*JSONLExporter)(nil)
