// Package digest computes the content checksums used as deduplication keys.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"nowa-go/internal/errs"
)

// ChunkSize is the read buffer size. Memory use is bounded by it regardless
// of file size.
const ChunkSize = 64 * 1024

// ShortLen is the number of hex characters used to disambiguate file names.
const ShortLen = 8

// Reader returns the lowercase hex SHA-256 of everything read from r.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(h, onlyReader{r}, buf); err != nil {
		return "", classify(err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File hashes the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, classify(err))
	}
	defer f.Close()

	sum, err := Reader(f)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return sum, nil
}

// Short returns the prefix of d used in archive file names.
func Short(d string) string {
	if len(d) <= ShortLen {
		return d
	}
	return d[:ShortLen]
}

func classify(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", errs.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", errs.ErrIO, err)
}

// onlyReader hides WriterTo/ReaderFrom so io.CopyBuffer always uses buf.
type onlyReader struct {
	r io.Reader
}

func (o onlyReader) Read(p []byte) (int, error) { return o.r.Read(p) }
