package nowa

import (
	"context"
	"fmt"
)

// Options carries the settings the service needs from configuration.
type Options struct {
	// Roots are the configured source roots. ApplyTagOverrides resolves
	// review folder keys against their base names.
	Roots []string

	Mode      Mode
	StopWords []string

	// ReviewDir receives tag review files, SessionLogDir session logs.
	ReviewDir     string
	SessionLogDir string
}

// Service is the orchestration layer that coordinates the store, the vault,
// discovery and extraction to run ingestion sessions and tag overrides.
type Service struct {
	store     Store
	vault     Vault
	fsmgr     FilesystemManager
	extractor Extractor
	exporter  MetadataExporter
	logger    Logger
	clock     Clock
	opts      Options
}

// NewService creates a new Service with the provided dependencies.
func NewService(store Store, vault Vault, fsmgr FilesystemManager, extractor Extractor, exporter MetadataExporter, logger Logger, clock Clock, opts Options) *Service {
	if opts.Mode == "" {
		opts.Mode = ModeCopy
	}
	return &Service{
		store:     store,
		vault:     vault,
		fsmgr:     fsmgr,
		extractor: extractor,
		exporter:  exporter,
		logger:    logger,
		clock:     clock,
		opts:      opts,
	}
}

// ExportMetadata rewrites the metadata export from the store and returns the
// number of records written.
func (s *Service) ExportMetadata(ctx context.Context) (int, error) {
	records, err := s.store.ExportAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading export records: %w", err)
	}
	if err := s.exporter.Export(ctx, records); err != nil {
		return 0, fmt.Errorf("exporting metadata: %w", err)
	}
	s.logger.Info("metadata exported", "records", len(records))
	return len(records), nil
}

// Counts returns the current size of the store.
func (s *Service) Counts(ctx context.Context) (StoreCounts, error) {
	c, err := s.store.Counts(ctx)
	if err != nil {
		return StoreCounts{}, fmt.Errorf("counting store rows: %w", err)
	}
	return c, nil
}
