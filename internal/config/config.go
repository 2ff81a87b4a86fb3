// Package config loads fqueue's tunables from layered JSONC config files,
// following the precedence defaults -> global -> project -> CLI overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/kronuz/fqueue/pkg/fqueue"
)

// ConfigFileName is the default project config file name, looked up in the
// working directory.
const ConfigFileName = ".fqueue.json"

var (
	errConfigFileNotFound = errors.New("config: file not found")
	errConfigFileRead     = errors.New("config: could not read file")
	errConfigInvalid      = errors.New("config: invalid")
	errBackendInvalid     = errors.New("config: backend must be one of auto, sysv, file")
)

// Config holds the subset of fqueue.Options that the CLI and shell expose as
// configurable, plus where to find the queue itself.
type Config struct {
	Name        string `json:"name,omitempty"`
	BucketSize  int64  `json:"bucket_size,omitempty"`
	SyncAge     uint64 `json:"sync_age,omitempty"`
	Backend     string `json:"backend,omitempty"`      // "auto" | "sysv" | "file"
	Compression string `json:"compression,omitempty"` // "deflate" | "none"
}

// Default returns the zero-value config overlaid with fqueue's own
// defaults, matching what Options.withDefaults would otherwise apply
// silently - spelling them out here lets `fq config` print real
// numbers instead of zeros.
func Default() Config {
	return Config{
		BucketSize:  fqueue.DefaultBucketSize,
		SyncAge:     fqueue.DefaultSyncAge,
		Backend:     "auto",
		Compression: "deflate",
	}
}

// Sources tracks which config files contributed to the final Config.
type Sources struct {
	Global  string
	Project string
}

// Load resolves configuration with precedence (highest wins): defaults,
// global user config ($XDG_CONFIG_HOME/fqueue/config.json, falling back to
// ~/.config/fqueue/config.json), project config (.fqueue.json in workDir,
// or an explicit path via configPath), then cliOverrides field-by-field.
func Load(workDir, configPath string, cliOverrides Config, env []string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}
	sources.Global = globalPath
	cfg = merge(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}
	sources.Project = projectPath
	cfg = merge(cfg, projectCfg)

	cfg = merge(cfg, cliOverrides)

	if err := validate(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "fqueue", "config.json")
		}
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "fqueue", "config.json")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "fqueue", "config.json")
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}
	if !loaded {
		return Config{}, "", nil
	}
	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	mustExist := configPath != ""

	cfgFile := filepath.Join(workDir, ConfigFileName)
	if mustExist {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}
		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}
	if !loaded {
		return Config{}, "", nil
	}
	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}
		return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, true, nil
}

// parseConfig standardizes JSONC (comments, trailing commas) to strict JSON
// via hujson before unmarshaling, so config files can carry comments
// explaining non-obvious tunable choices.
func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.Name != "" {
		base.Name = overlay.Name
	}
	if overlay.BucketSize != 0 {
		base.BucketSize = overlay.BucketSize
	}
	if overlay.SyncAge != 0 {
		base.SyncAge = overlay.SyncAge
	}
	if overlay.Backend != "" {
		base.Backend = overlay.Backend
	}
	if overlay.Compression != "" {
		base.Compression = overlay.Compression
	}
	return base
}

func validate(cfg Config) error {
	switch cfg.Backend {
	case "auto", "sysv", "file":
	default:
		return fmt.Errorf("%w: got %q", errBackendInvalid, cfg.Backend)
	}
	switch cfg.Compression {
	case "deflate", "none":
	default:
		return fmt.Errorf("config: compression must be one of deflate, none: got %q", cfg.Compression)
	}
	return nil
}

// Options converts Config to fqueue.Options, ready for fqueue.Open.
func (c Config) Options() fqueue.Options {
	opts := fqueue.Options{
		Name:       c.Name,
		BucketSize: c.BucketSize,
		SyncAge:    c.SyncAge,
	}

	switch c.Backend {
	case "sysv":
		opts.Backend = fqueue.BackendSysV
	case "file":
		opts.Backend = fqueue.BackendFile
	default:
		opts.Backend = fqueue.BackendAuto
	}

	if c.Compression == "none" {
		opts.Compression = fqueue.CompressionNone
	} else {
		opts.Compression = fqueue.CompressionDeflate
	}

	return opts
}

// Format returns cfg as formatted JSON, for `fq config`.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("format config: %w", err)
	}
	return string(data), nil
}
