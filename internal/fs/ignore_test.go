package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		m := NewIgnoreMatcher([]string{"", "  ", "# screenshots", "Screenshot*"})
		require.Len(t, m.patterns, 1)
		assert.Equal(t, "Screenshot*", m.patterns[0].pattern)
	})

	t.Run("classifies path vs basename patterns", func(t *testing.T) {
		m := NewIgnoreMatcher([]string{"*.gif", "exports/web"})
		assert.False(t, m.patterns[0].matchPath)
		assert.True(t, m.patterns[1].matchPath)
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{"basename glob in root", []string{"*.gif"}, "anim.gif", true},
		{"basename glob in subdirectory", []string{"*.gif"}, filepath.Join("2019", "anim.gif"), true},
		{"basename glob other extension", []string{"*.gif"}, "anim.jpg", false},
		{"exact basename in subdirectory", []string{"Thumbs.db"}, filepath.Join("trip", "Thumbs.db"), true},
		{"path pattern exact", []string{"exports/web"}, filepath.Join("exports", "web"), true},
		{"path pattern wrong parent", []string{"exports/web"}, filepath.Join("raw", "web"), false},
		{"path pattern with glob", []string{"exports/*.jpg"}, filepath.Join("exports", "a.jpg"), true},
		{"character class", []string{"IMG_[0-9]*.png"}, "IMG_7.png", true},
		{"no patterns", nil, "IMG_1.jpg", false},
		{"bad pattern is skipped", []string{"[", "*.mov"}, "clip.mov", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewIgnoreMatcher(tt.patterns)
			assert.Equal(t, tt.want, m.Match(tt.relativePath))
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("reads raw lines", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		require.NoError(t, os.WriteFile(path, []byte("*.gif\n# comment\n\nexports/*\n"), 0644))

		patterns, err := ParseIgnoreFile(path)
		require.NoError(t, err)
		assert.Len(t, patterns, 4)
		assert.Len(t, NewIgnoreMatcher(patterns).patterns, 2)
	})

	t.Run("missing file", func(t *testing.T) {
		patterns, err := ParseIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
		require.NoError(t, err)
		assert.Nil(t, patterns)
	})
}
