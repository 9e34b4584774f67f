package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds mirror and filesystem parameters for the installer.
type Config struct {
	// MirrorHost is the base URL serving release download assets.
	MirrorHost string `yaml:"mirror_host"`
	// MirrorAPI is the base URL of the release metadata API.
	MirrorAPI string `yaml:"mirror_api"`
	// MirrorRepo identifies the release repository as "owner/repo".
	MirrorRepo string `yaml:"mirror_repo"`
	// ToolName is the name of the installed binary and of the entry-point symlink.
	ToolName string `yaml:"tool_name"`
	// BinaryDir is the directory holding the stable entry-point symlink.
	BinaryDir string `yaml:"binary_dir"`
	// LibraryDir is the directory holding versioned install roots.
	LibraryDir string `yaml:"library_dir"`
	// Timeout bounds each individual network call.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for installer settings.
	DefaultConfigFilename = "keep-install.yaml"

	// DefaultMirrorHost serves release download assets.
	DefaultMirrorHost = "https://github.com"

	// DefaultMirrorAPI serves release metadata.
	DefaultMirrorAPI = "https://api.github.com"

	// DefaultMirrorRepo is the canonical release repository.
	DefaultMirrorRepo = "keep-tools/keep"

	// DefaultToolName is the installed binary name.
	DefaultToolName = "keep"

	// DefaultBinaryDir holds the entry-point symlink.
	DefaultBinaryDir = "/usr/local/bin"

	// DefaultLibraryDir holds versioned install roots.
	DefaultLibraryDir = "/usr/local/lib/keep"

	// DefaultTimeout is the default duration for network operations.
	DefaultTimeout = 30 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errInvalidRepo is returned when the mirror repository is not "owner/repo".
	errInvalidRepo = errors.New(`mirror repository must have the form "owner/repo"`)
	// errRelativeDir is returned when a target directory is not absolute.
	errRelativeDir = errors.New("target directory must be an absolute path")
	// errToolNameRequired is returned when the tool name is empty.
	errToolNameRequired = errors.New("tool name must be provided")
)

// Default returns a configuration populated with the canonical mirror and paths.
func Default() *Config {
	return &Config{
		MirrorHost: DefaultMirrorHost,
		MirrorAPI:  DefaultMirrorAPI,
		MirrorRepo: DefaultMirrorRepo,
		ToolName:   DefaultToolName,
		BinaryDir:  DefaultBinaryDir,
		LibraryDir: DefaultLibraryDir,
		Timeout:    DefaultTimeout,
	}
}

// Load reads configuration from the provided path and validates essential fields.
// A missing file at the default path is not an error: the installer runs with defaults.
func Load(path string) (*Config, error) {
	usingDefaultPath := path == ""
	if usingDefaultPath {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if usingDefaultPath && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, fmt.Errorf("read settings: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the provided path with restricted permissions.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings for required fields and formatting.
// Empty fields are filled with defaults.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.MirrorHost == "" {
		cfg.MirrorHost = DefaultMirrorHost
	}

	if cfg.MirrorAPI == "" {
		cfg.MirrorAPI = DefaultMirrorAPI
	}

	if cfg.MirrorRepo == "" {
		cfg.MirrorRepo = DefaultMirrorRepo
	}

	if cfg.ToolName == "" {
		return errToolNameRequired
	}

	if cfg.BinaryDir == "" {
		cfg.BinaryDir = DefaultBinaryDir
	}

	if cfg.LibraryDir == "" {
		cfg.LibraryDir = DefaultLibraryDir
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	for _, base := range []string{cfg.MirrorHost, cfg.MirrorAPI} {
		if _, err := url.ParseRequestURI(base); err != nil {
			return fmt.Errorf("invalid mirror URL %q: %w", base, err)
		}
	}

	parts := strings.Split(cfg.MirrorRepo, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("%q: %w", cfg.MirrorRepo, errInvalidRepo)
	}

	for _, dir := range []string{cfg.BinaryDir, cfg.LibraryDir} {
		if !filepath.IsAbs(dir) {
			return fmt.Errorf("%q: %w", dir, errRelativeDir)
		}
	}

	return nil
}
