package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nowa-go/internal/errs"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/archive", []string{"/photos/phone", "/photos/camera"}, "/home/user/.local/share/nowa/keys")
	original.Ignore = []string{"*.gif", "exports/*"}
	original.VerifyWorkers = 4
	original.Backup.Encrypt = true

	for _, format := range []Format{FormatTOML, FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			m := &Manager{Format: format}
			var buf bytes.Buffer
			require.NoError(t, m.Write(&buf, original))

			got, err := m.Read(&buf)
			require.NoError(t, err)
			assert.Equal(t, original, got)
		})
	}
}

func TestManager_Read_YAML(t *testing.T) {
	m := &Manager{Format: FormatYAML}
	cfg, err := m.Read(bytes.NewBufferString(`
ingestion_path: /photos/old
archive_path: /archive
mode: move
tag_stop_words: []
backup:
  encrypt: false
`))
	require.NoError(t, err)
	assert.Equal(t, "/photos/old", cfg.IngestionPath)
	assert.Equal(t, "move", cfg.Mode)
	assert.NotNil(t, cfg.TagStopWords)
	assert.Empty(t, cfg.TagStopWords)

	_, err = m.Read(bytes.NewBufferString("   \n"))
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = m.Read(bytes.NewBufferString("- just\n- a list\n"))
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestConfig_Resolve(t *testing.T) {
	t.Run("defaults and archive-relative paths", func(t *testing.T) {
		cfg := &Config{IngestionPaths: []string{"/photos/phone"}, ArchivePath: "/archive"}
		require.NoError(t, cfg.Resolve())

		archive, err := filepath.Abs("/archive")
		require.NoError(t, err)
		assert.Equal(t, archive, cfg.ArchivePath)
		assert.Equal(t, filepath.Join(archive, "data", "nowa_photos.db"), cfg.DBPath)
		assert.Equal(t, filepath.Join(archive, "data", "metadata.jsonl"), cfg.MetadataPath)
		assert.Equal(t, filepath.Join(archive, "logs"), cfg.LogDir)
		assert.Equal(t, filepath.Join(archive, "data"), cfg.ReviewDir())
		assert.Equal(t, "copy", cfg.Mode)
		assert.Equal(t, DefaultTagStopWords, cfg.TagStopWords)
	})

	t.Run("absolute paths are not rebased", func(t *testing.T) {
		dbPath, err := filepath.Abs("/custom/db.sqlite")
		require.NoError(t, err)
		cfg := &Config{IngestionPaths: []string{"/photos"}, ArchivePath: "/archive", DBPath: dbPath}
		require.NoError(t, cfg.Resolve())
		assert.Equal(t, dbPath, cfg.DBPath)
	})

	t.Run("legacy single root is appended once", func(t *testing.T) {
		cfg := &Config{
			IngestionPaths: []string{"/photos/phone", "/photos/phone"},
			IngestionPath:  "/photos/old",
			ArchivePath:    "/archive",
		}
		require.NoError(t, cfg.Resolve())
		require.Len(t, cfg.IngestionPaths, 2)
		assert.Equal(t, "old", filepath.Base(cfg.IngestionPaths[1]))
		assert.Empty(t, cfg.IngestionPath)
	})

	t.Run("home directory expansion", func(t *testing.T) {
		home, err := homedir.Dir()
		if err != nil {
			t.Skip("no home directory")
		}
		cfg := &Config{IngestionPaths: []string{"~/Pictures"}, ArchivePath: "~/archive"}
		require.NoError(t, cfg.Resolve())
		assert.Equal(t, filepath.Join(home, "archive"), cfg.ArchivePath)
		assert.Equal(t, filepath.Join(home, "Pictures"), cfg.IngestionPaths[0])
	})

	t.Run("bare ffprobe name stays on PATH", func(t *testing.T) {
		cfg := &Config{IngestionPaths: []string{"/p"}, ArchivePath: "/a", FFprobePath: "ffprobe"}
		require.NoError(t, cfg.Resolve())
		assert.Equal(t, "ffprobe", cfg.FFprobePath)
	})
}

func TestConfig_Resolve_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		message string
	}{
		{"missing archive", Config{IngestionPaths: []string{"/p"}}, "archive_path"},
		{"missing roots", Config{ArchivePath: "/a"}, "ingestion_paths"},
		{"bad mode", Config{IngestionPaths: []string{"/p"}, ArchivePath: "/a", Mode: "delete"}, "mode"},
		{"negative workers", Config{IngestionPaths: []string{"/p"}, ArchivePath: "/a", VerifyWorkers: -1}, "verify_workers"},
		{"encryption without key", Config{IngestionPaths: []string{"/p"}, ArchivePath: "/a", Backup: BackupConfig{Encrypt: true}}, "public_key_path"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := cfg.Resolve()
			require.ErrorIs(t, err, errs.ErrValidation)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("/etc/nowa.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("config.YML"))
	assert.Equal(t, FormatTOML, FormatForPath("nowa.toml"))
	assert.Equal(t, FormatTOML, FormatForPath("nowa"))
}

func TestInitAndReadFromFile(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive")
	cfg := NewConfig(archive, []string{filepath.Join(dir, "photos")}, filepath.Join(dir, "keys"))

	for _, name := range []string{"nowa.toml", "nowa.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "conf", name)
			require.NoError(t, Init(path, cfg))

			err := Init(path, cfg)
			assert.ErrorIs(t, err, errs.ErrConflict)

			got, err := ReadFromFile(path)
			require.NoError(t, err)
			assert.Equal(t, archive, got.ArchivePath)
			assert.Equal(t, filepath.Join(archive, "data", "nowa_photos.db"), got.DBPath)
			assert.Equal(t, filepath.Join(dir, "keys", "nowa.pub"), got.Backup.PublicKeyPath)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := ReadFromFile(filepath.Join(dir, "absent.toml"))
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("archive_path: /a\n"), 0644))
		_, err := ReadFromFile(path)
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}
