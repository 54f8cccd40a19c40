package nowa

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"nowa-go/internal/tagging"
)

// Phase is a step of an ingestion session. Each phase covers every source
// root, and sessions move through the phases in declaration order.
type Phase int

const (
	PhaseDiscover Phase = iota
	PhaseProcessFiles
	PhaseApplyFolderTags
	PhaseExportReview
	PhaseExportMetadata
	PhaseWriteSessionLog
	PhaseDone
)

var phaseNames = [...]string{
	"discover", "process_files", "apply_folder_tags", "export_review",
	"export_metadata", "write_session_log", "done",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return fmt.Sprintf("phase(%d)", int(p))
	}
	return phaseNames[p]
}

// SessionReport describes a finished (or aborted) ingestion session.
type SessionReport struct {
	StartedAt    time.Time
	Phase        Phase
	Roots        []string
	MissingRoots []string
	Stats        SessionStats
	ReviewPath   string
	LogPath      string
	Exported     int
}

// Failed reports whether the session should surface as a failure:
// a configured root was missing or a file could not be processed.
func (r *SessionReport) Failed() bool {
	return len(r.MissingRoots) > 0 || r.Stats.Errors > 0
}

// session holds the state of one Ingest call.
type session struct {
	report      *SessionReport
	folderTags  map[string][]string
	folderFiles map[string]int
	rootNames   map[string]string
}

// Ingest runs one session over roots: every supported file is hashed,
// deduplicated, archived if new and recorded. Folder tags, the review file,
// the metadata export and the session log follow once for the whole session.
// Per-file failures are counted in the report and do not stop the session.
// A cancelled context stops it and returns the context error.
func (s *Service) Ingest(ctx context.Context, roots []string) (*SessionReport, error) {
	sess := &session{
		report: &SessionReport{
			StartedAt: s.clock.Now().Truncate(time.Second),
			Roots:     roots,
		},
		folderTags:  make(map[string][]string),
		folderFiles: make(map[string]int),
		rootNames:   make(map[string]string),
	}
	report := sess.report
	stats := &report.Stats

	s.logger.Info("ingestion session started", "roots", len(roots), "mode", string(s.opts.Mode))

	s.advance(report, PhaseDiscover)
	var work []*rootWork
	for _, raw := range roots {
		if w := s.discoverRoot(sess, raw); w != nil {
			work = append(work, w)
		}
	}

	s.advance(report, PhaseProcessFiles)
	for i, w := range work {
		s.logger.Info("processing source root", "root", w.root.String(), "index", i+1, "total", len(work))
		if err := s.processRoot(ctx, sess, w); err != nil {
			return report, err
		}
	}

	s.advance(report, PhaseApplyFolderTags)
	for _, w := range work {
		if err := s.applyFolderTags(ctx, sess, w.root, w.files, w.mediaIDs); err != nil {
			return report, err
		}
	}

	s.advance(report, PhaseExportReview)
	report.ReviewPath = filepath.Join(s.opts.ReviewDir, tagging.ReviewFileName(report.StartedAt))
	if err := tagging.WriteReviewFile(report.ReviewPath, sess.folderTags, sess.folderFiles); err != nil {
		return report, fmt.Errorf("writing tag review: %w", err)
	}

	s.advance(report, PhaseExportMetadata)
	n, err := s.ExportMetadata(ctx)
	if err != nil {
		return report, err
	}
	report.Exported = n

	s.advance(report, PhaseWriteSessionLog)
	logPath, err := s.writeSessionLog(report)
	if err != nil {
		return report, err
	}
	report.LogPath = logPath

	s.advance(report, PhaseDone)
	s.logger.Info("ingestion session finished",
		"imported", stats.Imported,
		"duplicates", stats.Duplicates,
		"tags_added", stats.TagsAdded,
		"errors", stats.Errors,
	)
	return report, nil
}

func (s *Service) advance(report *SessionReport, next Phase) {
	report.Phase = next
	s.logger.Debug("session phase", "phase", next.String())
}

// rootWork carries one available root through the session phases.
type rootWork struct {
	root     *Path
	files    []*Path
	mediaIDs map[string]int64
}

// discoverRoot resolves a root and lists its media. A missing root or a
// failed walk is recorded and yields nil.
func (s *Service) discoverRoot(sess *session, raw string) *rootWork {
	report := sess.report

	root, err := s.fsmgr.Resolve(raw)
	if err != nil || !root.IsDir() {
		if err == nil {
			err = fmt.Errorf("%w: not a directory", ErrValidation)
		}
		s.logger.Warn("source root unavailable", "root", raw, "error", err)
		report.MissingRoots = append(report.MissingRoots, raw)
		return nil
	}

	files, err := s.fsmgr.FindMedia(root)
	if err != nil {
		s.logger.Error("discovery failed", "root", root.String(), "error", err)
		report.Stats.RecordError(root.String(), err)
		return nil
	}
	s.logger.Info("media discovered", "root", root.String(), "files", len(files))
	return &rootWork{root: root, files: files, mediaIDs: make(map[string]int64, len(files))}
}

// processRoot archives and records every file of one root. Only context
// cancellation is returned; everything else is recorded.
func (s *Service) processRoot(ctx context.Context, sess *session, w *rootWork) error {
	report := sess.report
	stats := &report.Stats

	for _, f := range w.files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingestion cancelled: %w", err)
		}
		id, err := s.processFile(ctx, f, report.StartedAt, stats)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("ingestion cancelled: %w", ctx.Err())
			}
			s.logger.Error("processing file failed", "path", f.String(), "error", err)
			stats.RecordError(f.String(), err)
			continue
		}
		w.mediaIDs[f.String()] = id
	}
	return nil
}

// processFile archives and records one file and returns its media id.
func (s *Service) processFile(ctx context.Context, file *Path, ingestedAt time.Time, stats *SessionStats) (int64, error) {
	digest, err := s.fsmgr.Hash(file)
	if err != nil {
		return 0, fmt.Errorf("hashing: %w", err)
	}

	sourceDir := filepath.Dir(file.String())
	filename := filepath.Base(file.String())

	existing, err := s.store.FindByDigest(ctx, digest)
	if err != nil {
		return 0, fmt.Errorf("looking up digest: %w", err)
	}
	if existing != nil {
		stats.Duplicates++
		if err := s.store.LinkSource(ctx, existing.ID, sourceDir, filename); err != nil {
			return 0, fmt.Errorf("linking duplicate source: %w", err)
		}
		if err := s.tagThumbnail(ctx, existing.ID, sourceDir, filename, stats); err != nil {
			return 0, err
		}
		s.logger.Debug("duplicate", "path", file.String(), "media_id", existing.ID)
		return existing.ID, nil
	}

	kind := KindForPath(filename)
	var capture *time.Time
	var duration *float64
	switch kind {
	case KindPhoto:
		capture = s.extractor.CaptureTime(ctx, file.String())
	case KindVideo:
		duration = s.extractor.Duration(ctx, file.String())
	}
	fileTime := file.Info().ModTime()

	dest, err := s.vault.Place(filename, digest, capture, fileTime)
	if err != nil {
		return 0, fmt.Errorf("placing in archive: %w", err)
	}
	if err := s.vault.Commit(file.String(), dest, s.opts.Mode); err != nil {
		return 0, fmt.Errorf("archiving: %w", err)
	}

	size, err := s.vault.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("sizing archived copy: %w", err)
	}
	dir, name, err := s.vault.Relative(dest)
	if err != nil {
		return 0, err
	}

	id, err := s.store.InsertMedia(ctx, &MediaRecord{
		ArchiveDir:      dir,
		ArchiveFilename: name,
		Kind:            kind,
		Digest:          digest,
		Size:            size,
		CaptureTime:     capture,
		FileTime:        fileTime,
		Duration:        duration,
		IngestedAt:      ingestedAt,
	})
	if err != nil {
		return 0, fmt.Errorf("recording media: %w", err)
	}
	if err := s.store.LinkSource(ctx, id, sourceDir, filename); err != nil {
		return 0, fmt.Errorf("linking source: %w", err)
	}
	if err := s.tagThumbnail(ctx, id, sourceDir, filename, stats); err != nil {
		return 0, err
	}

	stats.Imported++
	s.logger.Debug("archived", "path", file.String(), "dest", dir+"/"+name, "media_id", id)
	return id, nil
}

func (s *Service) tagThumbnail(ctx context.Context, mediaID int64, sourceDir, filename string, stats *SessionStats) error {
	if !tagging.IsThumbnail(sourceDir, filename) {
		return nil
	}
	added, err := s.store.AddTags(ctx, mediaID, []string{tagging.ThumbnailTag})
	if err != nil {
		return fmt.Errorf("tagging thumbnail: %w", err)
	}
	stats.TagsAdded += added
	return nil
}

// applyFolderTags adds each folder's tags to the media processed from a root
// and collects the review rows for it.
func (s *Service) applyFolderTags(ctx context.Context, sess *session, root *Path, files []*Path, mediaIDs map[string]int64) error {
	stats := &sess.report.Stats

	filesByFolder := make(map[string][]string)
	for _, f := range files {
		rel, err := filepath.Rel(root.String(), filepath.Dir(f.String()))
		if err != nil {
			continue
		}
		folder := filepath.ToSlash(rel)
		filesByFolder[folder] = append(filesByFolder[folder], f.String())
	}

	folderTags := tagging.FolderTags(filesByFolder, root.String(), s.opts.StopWords)

	for folder, tags := range folderTags {
		if len(tags) == 0 {
			continue
		}
		for _, path := range filesByFolder[folder] {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("ingestion cancelled: %w", err)
			}
			id, ok := mediaIDs[path]
			if !ok {
				continue
			}
			added, err := s.addMissingTags(ctx, id, tags)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("ingestion cancelled: %w", err)
				}
				stats.RecordError(path, err)
				continue
			}
			stats.TagsAdded += added
		}
	}

	rootName := filepath.Base(root.String())
	if prev, ok := sess.rootNames[rootName]; ok && prev != root.String() {
		s.logger.Warn("source roots share a name, review rows will merge", "name", rootName, "first", prev, "second", root.String())
	}
	sess.rootNames[rootName] = root.String()

	for folder, tags := range folderTags {
		key := tagging.FolderKey(rootName, folder)
		sess.folderTags[key] = tags
		sess.folderFiles[key] = len(filesByFolder[folder])
	}
	return nil
}

// addMissingTags adds the tags the media does not carry yet.
func (s *Service) addMissingTags(ctx context.Context, mediaID int64, tags []string) (int, error) {
	existing, err := s.store.TagsFor(ctx, mediaID)
	if err != nil {
		return 0, fmt.Errorf("reading tags: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, t := range existing {
		have[t] = struct{}{}
	}
	var missing []string
	for _, t := range tags {
		if _, ok := have[t]; !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return 0, nil
	}
	added, err := s.store.AddTags(ctx, mediaID, missing)
	if err != nil {
		return 0, fmt.Errorf("adding folder tags: %w", err)
	}
	return added, nil
}
