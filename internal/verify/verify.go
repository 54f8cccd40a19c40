// Package verify checks the archive on disk against the metadata store.
package verify

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"nowa-go/internal/errs"
	"nowa-go/internal/nowa"
)

const (
	DefaultWorkers         = 8
	DefaultMaxRetries      = 5
	DefaultInitialInterval = time.Second
)

// Options tunes the worker pool and the retry policy for files that vanish
// between discovery and hashing.
type Options struct {
	Workers         int
	MaxRetries      uint64
	InitialInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = DefaultInitialInterval
	}
	return o
}

// FileError is a file that could not be hashed.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return e.Path + ": " + e.Err.Error() }

// Result is the outcome of one verification pass. Paths are archive-relative
// with forward slashes.
type Result struct {
	Files int
	// Seen maps each stored digest found on disk to where it was found.
	Seen map[string]string
	// Unknown lists files whose content the store does not know.
	Unknown []string
	// Missing lists stored paths whose content was not found on disk.
	Missing []string
	// Duplicates lists files whose content was already seen at another path.
	Duplicates []string
	Errors     []FileError
}

// OK reports whether disk and store agree.
func (r *Result) OK() bool {
	return len(r.Unknown) == 0 && len(r.Missing) == 0 && len(r.Errors) == 0
}

// Verifier hashes every archived file with a bounded pool of workers.
type Verifier struct {
	store  nowa.Store
	fsmgr  nowa.FilesystemManager
	logger nowa.Logger
	opts   Options
}

// New creates a Verifier.
func New(store nowa.Store, fsmgr nowa.FilesystemManager, logger nowa.Logger, opts Options) *Verifier {
	return &Verifier{store: store, fsmgr: fsmgr, logger: logger, opts: opts.withDefaults()}
}

// Verify walks archiveRoot with the ingestion discovery rules, hashes each
// file and compares the digests with the store. Only context cancellation
// and failures to read the root or the store are returned as errors.
func (v *Verifier) Verify(ctx context.Context, archiveRoot string) (*Result, error) {
	root, err := v.fsmgr.Resolve(archiveRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving archive root: %w", err)
	}
	files, err := v.fsmgr.FindMedia(root)
	if err != nil {
		return nil, fmt.Errorf("discovering archive files: %w", err)
	}
	known, err := v.store.ArchivedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stored digests: %w", err)
	}
	v.logger.Info("verifying archive", "files", len(files), "stored", len(known), "workers", v.opts.Workers)

	digests := make([]string, len(files))
	failures := make([]error, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.opts.Workers)
	for i, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			d, err := v.hash(gctx, f)
			if err != nil && gctx.Err() != nil {
				return gctx.Err()
			}
			digests[i], failures[i] = d, err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verification cancelled: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("verification cancelled: %w", err)
	}

	result := &Result{Files: len(files), Seen: make(map[string]string)}
	for i, f := range files {
		rel, err := filepath.Rel(root.String(), f.String())
		if err != nil {
			rel = f.String()
		}
		rel = filepath.ToSlash(rel)

		if failures[i] != nil {
			v.logger.Warn("could not hash archived file", "path", rel, "error", failures[i])
			result.Errors = append(result.Errors, FileError{Path: rel, Err: failures[i]})
			continue
		}
		d := digests[i]
		if _, ok := known[d]; !ok {
			result.Unknown = append(result.Unknown, rel)
			continue
		}
		if _, ok := result.Seen[d]; ok {
			result.Duplicates = append(result.Duplicates, rel)
			continue
		}
		result.Seen[d] = rel
	}
	for d, p := range known {
		if _, ok := result.Seen[d]; !ok {
			result.Missing = append(result.Missing, p)
		}
	}
	sort.Strings(result.Missing)

	v.logger.Info("verification finished",
		"seen", len(result.Seen),
		"unknown", len(result.Unknown),
		"missing", len(result.Missing),
		"duplicates", len(result.Duplicates),
		"errors", len(result.Errors),
	)
	return result, nil
}

// hash retries only while the file is reported missing; any other error is
// final for that file.
func (v *Verifier) hash(ctx context.Context, f *nowa.Path) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = v.opts.InitialInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	var d string
	op := func() error {
		var err error
		d, err = v.fsmgr.Hash(f)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		v.logger.Debug("retrying hash", "path", f.String(), "wait", wait, "error", err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, v.opts.MaxRetries), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return "", err
	}
	return d, nil
}
