// Package extract reads capture dates from photos and durations from videos.
// Every failure degrades to an absent value.
package extract

import (
	"context"
	"time"

	"nowa-go/internal/nowa"
)

// DefaultProbeTimeout bounds a single ffprobe run.
const DefaultProbeTimeout = 30 * time.Second

// Extractor combines EXIF decoding and ffprobe.
type Extractor struct {
	ffprobe string
	timeout time.Duration
	logger  nowa.Logger
}

// New returns an Extractor. An empty ffprobePath means "ffprobe" on PATH.
func New(ffprobePath string, timeout time.Duration, logger nowa.Logger) *Extractor {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = nowa.NewNopLogger()
	}
	return &Extractor{ffprobe: ffprobePath, timeout: timeout, logger: logger}
}

// CaptureTime returns the EXIF DateTimeOriginal of the photo at path.
func (e *Extractor) CaptureTime(_ context.Context, path string) *time.Time {
	t, err := ReadCaptureTime(path)
	if err != nil {
		e.logger.Debug("no capture time", "path", path, "error", err)
		return nil
	}
	return &t
}

// Duration returns the container duration of the video at path in seconds.
func (e *Extractor) Duration(ctx context.Context, path string) *float64 {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	d, err := ProbeDuration(ctx, e.ffprobe, path)
	if err != nil {
		e.logger.Debug("no duration", "path", path, "error", err)
		return nil
	}
	return &d
}

var _ nowa.Extractor = (*Extractor)(nil)
