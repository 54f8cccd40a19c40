package extract

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExifTime(t *testing.T) {
	got, err := ParseExifTime("2026:03:15 14:30:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.March, 15, 14, 30, 0, 0, time.Local), got)

	got, err = ParseExifTime("2019:01:02 03:04:05\x00")
	require.NoError(t, err)
	assert.Equal(t, 2019, got.Year())

	_, err = ParseExifTime("0000:00:00 00:00:00")
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{"duration", `{"format":{"duration":"123.450000"}}`, 123.45, false},
		{"missing", `{"format":{}}`, 0, true},
		{"garbage", `{"format":{"duration":"N/A"}}`, 0, true},
		{"not json", `oops`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDuration([]byte(tt.output))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

// fakeProbe writes an executable that prints output and exits with code.
func fakeProbe(t *testing.T, output string, code int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in for ffprobe")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	script := "#!/bin/sh\ncat <<'JSON'\n" + output + "\nJSON\nexit " + strconv.Itoa(code) + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func TestExtractor_Duration(t *testing.T) {
	ctx := context.Background()

	t.Run("reads format duration", func(t *testing.T) {
		e := New(fakeProbe(t, `{"format":{"duration":"7.25"}}`, 0), time.Second, nil)
		d := e.Duration(ctx, "/videos/clip.mov")
		require.NotNil(t, d)
		assert.Equal(t, 7.25, *d)
	})

	t.Run("non-zero exit is absent", func(t *testing.T) {
		e := New(fakeProbe(t, `{"format":{"duration":"7.25"}}`, 1), time.Second, nil)
		assert.Nil(t, e.Duration(ctx, "/videos/clip.mov"))
	})

	t.Run("missing binary is absent", func(t *testing.T) {
		e := New(filepath.Join(t.TempDir(), "no-ffprobe"), time.Second, nil)
		assert.Nil(t, e.Duration(ctx, "/videos/clip.mov"))
	})
}

func TestExtractor_CaptureTime(t *testing.T) {
	dir := t.TempDir()
	notJPEG := filepath.Join(dir, "fake.jpg")
	require.NoError(t, os.WriteFile(notJPEG, []byte("not an image"), 0644))

	e := New("", 0, nil)
	assert.Nil(t, e.CaptureTime(context.Background(), notJPEG))
	assert.Nil(t, e.CaptureTime(context.Background(), filepath.Join(dir, "missing.jpg")))
}
