package app

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNowaHandler_Handle(t *testing.T) {
	ts := time.Date(2026, 3, 15, 14, 25, 1, 0, time.UTC)

	tests := []struct {
		name    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "info message",
			level:   slog.LevelInfo,
			message: "ingestion session started",
			want:    "2026-03-15T14:25:01Z\tINFO\tsess-1\tingestion session started\n",
		},
		{
			name:    "with record attrs",
			level:   slog.LevelWarn,
			message: "source root unavailable",
			attrs:   []slog.Attr{slog.String("root", "/photos/old"), slog.Int("index", 2)},
			want:    "2026-03-15T14:25:01Z\tWARN\tsess-1\tsource root unavailable\troot=/photos/old\tindex=2\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &nowaHandler{w: &buf, sessionID: "sess-1"}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			r.AddAttrs(tt.attrs...)

			require.NoError(t, h.Handle(context.Background(), r))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestNowaHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &nowaHandler{w: &buf, sessionID: "sess-1", attrs: []slog.Attr{slog.String("a", "1")}}

	h2 := h.WithAttrs([]slog.Attr{slog.String("command", "ingest")}).(*nowaHandler)
	assert.Len(t, h.attrs, 1)
	assert.Len(t, h2.attrs, 2)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "done", 0)
	r.AddAttrs(slog.String("key", "abc"))
	require.NoError(t, h2.Handle(context.Background(), r))
	assert.Contains(t, buf.String(), "\ta=1\tcommand=ingest\tkey=abc\n")
}

func TestNowaHandler_Enabled(t *testing.T) {
	all := &nowaHandler{}
	assert.True(t, all.Enabled(context.Background(), slog.LevelDebug))

	info := &nowaHandler{level: slog.LevelInfo}
	assert.False(t, info.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, info.Enabled(context.Background(), slog.LevelWarn))
}

func TestNewLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")

	logger, f, err := newLogger(dir, "sess-9", slog.LevelInfo)
	require.NoError(t, err)
	defer f.Close()

	logger.Info("hello", "n", 1)
	logger.Debug("hidden")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\tINFO\tsess-9\thello\tn=1\n")
	assert.NotContains(t, string(data), "hidden")
}
