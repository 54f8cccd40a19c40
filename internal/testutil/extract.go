package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"nowa-go/internal/nowa"
)

// StubExtractor returns canned capture times and durations by base file name.
type StubExtractor struct {
	mu        sync.Mutex
	captures  map[string]time.Time
	durations map[string]float64
}

func NewStubExtractor() *StubExtractor {
	return &StubExtractor{
		captures:  make(map[string]time.Time),
		durations: make(map[string]float64),
	}
}

// SetCapture makes CaptureTime return t for files named name.
func (e *StubExtractor) SetCapture(name string, t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.captures[name] = t
}

// SetDuration makes Duration return seconds for files named name.
func (e *StubExtractor) SetDuration(name string, seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.durations[name] = seconds
}

func (e *StubExtractor) CaptureTime(_ context.Context, path string) *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.captures[filepath.Base(path)]; ok {
		return &t
	}
	return nil
}

func (e *StubExtractor) Duration(_ context.Context, path string) *float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.durations[filepath.Base(path)]; ok {
		return &d
	}
	return nil
}

var _ nowa.Extractor = (*StubExtractor)(nil)

// MemoryExporter keeps the last exported records.
type MemoryExporter struct {
	mu      sync.Mutex
	records []nowa.ExportRecord
	calls   int
	err     error
}

func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{}
}

// FailWith makes the next exports fail with err.
func (e *MemoryExporter) FailWith(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *MemoryExporter) Export(_ context.Context, records []nowa.ExportRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return e.err
	}
	e.records = append([]nowa.ExportRecord(nil), records...)
	return nil
}

// Records returns the last successful export.
func (e *MemoryExporter) Records() []nowa.ExportRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]nowa.ExportRecord(nil), e.records...)
}

// Calls returns how many times Export was called.
func (e *MemoryExporter) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

var _ nowa.MetadataExporter = (*MemoryExporter)(nil)
