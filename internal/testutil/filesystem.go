package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"nowa-go/internal/errs"
	"nowa-go/internal/fs"
	"nowa-go/internal/nowa"
)

// WriteFile creates root/rel with content and sets its modification time.
// It returns the absolute path.
func WriteFile(t *testing.T, root, rel string, content []byte, modTime time.Time) string {
	t.Helper()

	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(p), err)
	}
	if err := os.WriteFile(p, content, 0644); err != nil {
		t.Fatalf("writing %s: %v", p, err)
	}
	if !modTime.IsZero() {
		if err := os.Chtimes(p, modTime, modTime); err != nil {
			t.Fatalf("setting mtime on %s: %v", p, err)
		}
	}
	return p
}

// FlakyFilesystem wraps the real filesystem manager and injects hashing
// failures by base file name.
type FlakyFilesystem struct {
	nowa.FilesystemManager

	mu sync.Mutex
	// failures makes Hash fail permanently with the given error.
	failures map[string]error
	// vanishing makes Hash report ErrNotFound this many more times.
	vanishing map[string]int
	calls     map[string]int
}

// NewFlakyFilesystem wraps a real OSFilesystemManager.
func NewFlakyFilesystem() *FlakyFilesystem {
	return &FlakyFilesystem{
		FilesystemManager: fs.NewOSFilesystemManager(nil, nil),
		failures:          make(map[string]error),
		vanishing:         make(map[string]int),
		calls:             make(map[string]int),
	}
}

// FailHash makes every Hash of files named name fail with err.
func (f *FlakyFilesystem) FailHash(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[name] = err
}

// VanishFor makes the next n Hash calls for files named name report ErrNotFound.
func (f *FlakyFilesystem) VanishFor(name string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vanishing[name] = n
}

// HashCalls returns how often Hash was called for files named name.
func (f *FlakyFilesystem) HashCalls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *FlakyFilesystem) Hash(p *nowa.Path) (string, error) {
	name := filepath.Base(p.String())

	f.mu.Lock()
	f.calls[name]++
	if err, ok := f.failures[name]; ok {
		f.mu.Unlock()
		return "", err
	}
	if f.vanishing[name] > 0 {
		f.vanishing[name]--
		f.mu.Unlock()
		return "", fmt.Errorf("%w: %s", errs.ErrNotFound, p.String())
	}
	f.mu.Unlock()

	return f.FilesystemManager.Hash(p)
}

var _ nowa.FilesystemManager = (*FlakyFilesystem)(nil)
