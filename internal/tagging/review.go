package tagging

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"nowa-go/internal/errs"
)

var reviewHeader = []string{"folder", "file_count", "tags"}

// ReviewEntry is one row of a review file.
type ReviewEntry struct {
	Folder    string
	FileCount int
	Tags      []string
}

// ReviewFileName returns the name of the review file for a session started at t.
func ReviewFileName(t time.Time) string {
	return "tag_review_" + t.Format("20060102_150405") + ".csv"
}

// Entries turns folder tag and count maps into rows sorted by folder.
func Entries(folderTags map[string][]string, fileCounts map[string]int) []ReviewEntry {
	folders := make([]string, 0, len(folderTags))
	for f := range folderTags {
		folders = append(folders, f)
	}
	sort.Strings(folders)

	entries := make([]ReviewEntry, 0, len(folders))
	for _, f := range folders {
		entries = append(entries, ReviewEntry{Folder: f, FileCount: fileCounts[f], Tags: folderTags[f]})
	}
	return entries
}

// ExportReview writes the header and one row per folder, sorted by folder.
func ExportReview(w io.Writer, folderTags map[string][]string, fileCounts map[string]int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(reviewHeader); err != nil {
		return fmt.Errorf("writing review header: %w", err)
	}
	for _, e := range Entries(folderTags, fileCounts) {
		row := []string{e.Folder, strconv.Itoa(e.FileCount), strings.Join(e.Tags, ",")}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing review row %s: %w", e.Folder, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing review: %w", err)
	}
	return nil
}

// WriteReviewFile writes a review file at path, creating parent directories.
func WriteReviewFile(path string, folderTags map[string][]string, fileCounts map[string]int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("%w: creating review directory: %w", errs.ErrIO, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: creating review file: %w", errs.ErrIO, err)
	}
	if err := ExportReview(f, folderTags, fileCounts); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: closing review file: %w", errs.ErrIO, err)
	}
	return nil
}

// ImportReview parses a review file into folder -> tags. An empty tags cell
// yields an empty list, which clears the folder's tags when applied. Tokens
// are cleaned with CleanTag. Columns are located by header name.
func ImportReview(r io.Reader) (map[string][]string, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: review file is empty", errs.ErrValidation)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading review header: %w", errs.ErrValidation, err)
	}

	folderCol, tagsCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case "folder":
			folderCol = i
		case "tags":
			tagsCol = i
		}
	}
	if folderCol < 0 || tagsCol < 0 {
		return nil, fmt.Errorf("%w: review header must name folder and tags columns, got %v", errs.ErrValidation, header)
	}

	result := make(map[string][]string)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading review row: %w", errs.ErrValidation, err)
		}

		folder := strings.TrimSpace(row[folderCol])
		if folder == "" {
			line, _ := cr.FieldPos(folderCol)
			return nil, fmt.Errorf("%w: empty folder on line %d", errs.ErrValidation, line)
		}

		tags := []string{}
		if raw := strings.TrimSpace(row[tagsCol]); raw != "" {
			tags = CleanTags(strings.Split(raw, ","))
		}
		result[folder] = tags
	}
	return result, nil
}

// ReadReviewFile opens and parses the review file at path.
func ReadReviewFile(path string) (map[string][]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: review file %s", errs.ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening review file: %w", errs.ErrIO, err)
	}
	defer f.Close()
	return ImportReview(f)
}
