// Package config loads and validates the archive configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"nowa-go/internal/errs"
)

// DefaultTagStopWords are folder names that never become tags.
var DefaultTagStopWords = []string{
	"backup", "photos", "images", "media", "camera",
	"dcim", "export", "downloads", "documents",
}

// Defaults for the paths that may be given relative to the archive.
const (
	DefaultDBPath       = "data/nowa_photos.db"
	DefaultMetadataPath = "data/metadata.jsonl"
	DefaultLogDir       = "logs"
	DefaultMode         = "copy"
)

// Config represents the main configuration for nowa.
type Config struct {
	IngestionPaths []string `toml:"ingestion_paths" yaml:"ingestion_paths" validate:"min=1,dive,required"`
	// IngestionPath is the single-root form older configs use. Resolve
	// appends it to IngestionPaths.
	IngestionPath string `toml:"ingestion_path,omitempty" yaml:"ingestion_path,omitempty"`

	ArchivePath  string   `toml:"archive_path" yaml:"archive_path" validate:"required"`
	DBPath       string   `toml:"db_path" yaml:"db_path" validate:"required"`
	MetadataPath string   `toml:"metadata_path" yaml:"metadata_path" validate:"required"`
	LogDir       string   `toml:"log_dir" yaml:"log_dir" validate:"required"`
	Mode         string   `toml:"mode" yaml:"mode" validate:"oneof=copy move"`
	TagStopWords []string `toml:"tag_stop_words" yaml:"tag_stop_words"`

	// WorkDir holds the working copy of the database during a command.
	// Empty means the system temp directory.
	WorkDir       string       `toml:"work_dir,omitempty" yaml:"work_dir,omitempty"`
	Ignore        []string     `toml:"ignore,omitempty" yaml:"ignore,omitempty"`
	VerifyWorkers int          `toml:"verify_workers,omitempty" yaml:"verify_workers,omitempty" validate:"gte=0"`
	FFprobePath   string       `toml:"ffprobe_path,omitempty" yaml:"ffprobe_path,omitempty"`
	Backup        BackupConfig `toml:"backup" yaml:"backup"`
}

// BackupConfig controls the database backups taken when a command finishes.
type BackupConfig struct {
	Encrypt        bool   `toml:"encrypt" yaml:"encrypt"`
	PublicKeyPath  string `toml:"public_key_path,omitempty" yaml:"public_key_path,omitempty" validate:"required_if=Encrypt true"`
	PrivateKeyPath string `toml:"private_key_path,omitempty" yaml:"private_key_path,omitempty"`
}

// NewConfig creates a Config for archivePath and roots with default settings.
// Paths stay relative to the archive so the file remains portable.
func NewConfig(archivePath string, roots []string, keyDir string) *Config {
	return &Config{
		IngestionPaths: roots,
		ArchivePath:    archivePath,
		DBPath:         DefaultDBPath,
		MetadataPath:   DefaultMetadataPath,
		LogDir:         DefaultLogDir,
		Mode:           DefaultMode,
		TagStopWords:   append([]string(nil), DefaultTagStopWords...),
		Backup: BackupConfig{
			PublicKeyPath:  filepath.Join(keyDir, "nowa.pub"),
			PrivateKeyPath: filepath.Join(keyDir, "nowa.key"),
		},
	}
}

// ReviewDir is where tag review files go: next to the metadata export.
// Session logs go to LogDir.
func (c *Config) ReviewDir() string {
	return filepath.Dir(c.MetadataPath)
}

// Resolve applies defaults, expands "~", makes every path absolute (relative
// db, metadata and log paths are taken relative to the archive), folds the
// legacy ingestion_path in and validates the result.
func (c *Config) Resolve() error {
	if c.ArchivePath == "" {
		return fmt.Errorf("%w: missing required config field: archive_path", errs.ErrValidation)
	}
	archive, err := absPath(c.ArchivePath)
	if err != nil {
		return err
	}
	c.ArchivePath = archive

	if c.IngestionPath != "" {
		c.IngestionPaths = append(c.IngestionPaths, c.IngestionPath)
		c.IngestionPath = ""
	}
	roots := make([]string, 0, len(c.IngestionPaths))
	seen := make(map[string]struct{}, len(c.IngestionPaths))
	for _, raw := range c.IngestionPaths {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		root, err := absPath(raw)
		if err != nil {
			return err
		}
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	c.IngestionPaths = roots

	if c.DBPath, err = underArchive(archive, c.DBPath, DefaultDBPath); err != nil {
		return err
	}
	if c.MetadataPath, err = underArchive(archive, c.MetadataPath, DefaultMetadataPath); err != nil {
		return err
	}
	if c.LogDir, err = underArchive(archive, c.LogDir, DefaultLogDir); err != nil {
		return err
	}
	if c.WorkDir != "" {
		if c.WorkDir, err = absPath(c.WorkDir); err != nil {
			return err
		}
	}
	for _, p := range []*string{&c.Backup.PublicKeyPath, &c.Backup.PrivateKeyPath} {
		if *p == "" {
			continue
		}
		if *p, err = absPath(*p); err != nil {
			return err
		}
	}
	// A bare ffprobe name is looked up on PATH.
	if strings.ContainsAny(c.FFprobePath, `/\~`) {
		if c.FFprobePath, err = absPath(c.FFprobePath); err != nil {
			return err
		}
	}

	if c.Mode == "" {
		c.Mode = DefaultMode
	}
	if c.TagStopWords == nil {
		c.TagStopWords = append([]string(nil), DefaultTagStopWords...)
	}
	return c.Validate()
}

// Validate checks the struct constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", errs.ErrValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", errs.ErrValidation, err)
	}
	return nil
}

// validate reports fields by their config key.
var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("toml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required", "required_if":
		return field + " is required"
	case "min":
		return field + " needs at least " + fe.Param() + " entry"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func absPath(raw string) (string, error) {
	expanded, err := homedir.Expand(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: expanding %q: %w", errs.ErrValidation, raw, err)
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("resolving %q: %w", raw, err)
	}
	return abs, nil
}

func underArchive(archive, raw, def string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		raw = def
	}
	expanded, err := homedir.Expand(raw)
	if err != nil {
		return "", fmt.Errorf("%w: expanding %q: %w", errs.ErrValidation, raw, err)
	}
	if filepath.IsAbs(expanded) {
		return filepath.Clean(expanded), nil
	}
	return filepath.Join(archive, expanded), nil
}

// Format is a config file encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatForPath picks YAML for .yaml/.yml files and TOML otherwise.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatTOML
	}
}

// Manager handles reading and writing configuration in one format.
type Manager struct {
	Format Format
}

// Read decodes a Config from the provided reader. It does not resolve it.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	switch m.Format {
	case FormatYAML:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: reading config: %w", errs.ErrIO, err)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, fmt.Errorf("%w: config file is empty", errs.ErrValidation)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to decode config: %w", errs.ErrValidation, err)
		}
	default:
		if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to decode config: %w", errs.ErrValidation, err)
		}
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	switch m.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	default:
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	}
}

// ReadFromFile reads and resolves the Config at path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: config file not found: %s", errs.ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: failed to open config file: %w", errs.ErrIO, err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	if err := cfg.Resolve(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{Format: FormatForPath(path)}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init writes cfg to a new config file at path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: config file already exists at %s", errs.ErrConflict, path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
