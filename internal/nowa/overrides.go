package nowa

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"nowa-go/internal/tagging"
)

// OverrideReport summarizes an ApplyTagOverrides run.
type OverrideReport struct {
	Folders  int
	Replaced int
	Skipped  []string // folder keys whose root name is not configured
	Exported int
}

// ApplyTagOverrides reads an edited review file and replaces the tags of
// every media sourced from each listed folder with the file's tags. Folder
// keys whose root name matches no configured root are skipped with a warning.
// The metadata export is rewritten afterwards.
func (s *Service) ApplyTagOverrides(ctx context.Context, reviewPath string) (*OverrideReport, error) {
	folderTags, err := tagging.ReadReviewFile(reviewPath)
	if err != nil {
		return nil, fmt.Errorf("reading review file: %w", err)
	}

	rootsByName := make(map[string]string, len(s.opts.Roots))
	for _, r := range s.opts.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolving root %s: %w", r, err)
		}
		rootsByName[filepath.Base(abs)] = abs
	}

	keys := make([]string, 0, len(folderTags))
	for k := range folderTags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, rel := tagging.SplitFolderKey(key); !insideRoot(rel) {
			return nil, fmt.Errorf("%w: review folder %q leaves its source root", ErrValidation, key)
		}
	}

	report := &OverrideReport{Folders: len(keys)}
	for _, key := range keys {
		rootName, rel := tagging.SplitFolderKey(key)
		root, ok := rootsByName[rootName]
		if !ok {
			s.logger.Warn("unknown source root in review file, skipping", "folder", key, "root", rootName)
			report.Skipped = append(report.Skipped, key)
			continue
		}

		ids, err := s.store.MediaIDsUnderSourceFolder(ctx, root, rel)
		if err != nil {
			return report, fmt.Errorf("finding media under %s: %w", key, err)
		}
		for _, id := range ids {
			if err := s.store.ReplaceTags(ctx, id, folderTags[key]); err != nil {
				return report, fmt.Errorf("replacing tags for media %d: %w", id, err)
			}
			report.Replaced++
		}
		s.logger.Debug("folder tags replaced", "folder", key, "media", len(ids), "tags", len(folderTags[key]))
	}

	n, err := s.ExportMetadata(ctx)
	if err != nil {
		return report, err
	}
	report.Exported = n

	s.logger.Info("tag overrides applied", "folders", report.Folders, "replaced", report.Replaced, "skipped", len(report.Skipped))
	return report, nil
}

// insideRoot reports whether a slash-separated folder relative to a root
// stays under it.
func insideRoot(rel string) bool {
	if strings.HasPrefix(rel, "/") {
		return false
	}
	clean := filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel)))
	return clean != ".." && !strings.HasPrefix(clean, "../")
}
