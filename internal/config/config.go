// Package config loads editor settings from JSON, YAML or TOML. Values not
// present in the source keep their defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"simplide/internal/grammar"
)

var ErrUnsupportedFormat = errors.New("unsupported config format")

type Config struct {
	// Extensions maps a file extension to a language name or alias.
	Extensions   map[string]string `json:"extensions"    yaml:"extensions"    toml:"extensions"`
	HistoryLimit int               `json:"history_limit" yaml:"history_limit" toml:"history_limit"`
	// FlushInterval is the debounce window for analyzer change notifications.
	FlushInterval Duration `json:"flush_interval" yaml:"flush_interval" toml:"flush_interval"`
	// StalenessThreshold is how many versions diagnostics may lag before
	// they are dropped.
	StalenessThreshold uint64              `json:"staleness_threshold" yaml:"staleness_threshold" toml:"staleness_threshold"`
	CoalesceThreshold  int                 `json:"coalesce_threshold"  yaml:"coalesce_threshold"  toml:"coalesce_threshold"`
	RequestTimeout     Duration            `json:"request_timeout"     yaml:"request_timeout"     toml:"request_timeout"`
	ReconnectInterval  Duration            `json:"reconnect_interval"  yaml:"reconnect_interval"  toml:"reconnect_interval"`
	Analyzers          map[string]Analyzer `json:"analyzers"           yaml:"analyzers"           toml:"analyzers"`
	Journal            Journal             `json:"journal"             yaml:"journal"             toml:"journal"`
	Log                Log                 `json:"log"                 yaml:"log"                 toml:"log"`
}

// Analyzer says how to reach the analyzer for one language: a command to
// spawn, or an address (host:port, unix://path or ws:// URL).
type Analyzer struct {
	Command     []string       `json:"command"      yaml:"command"      toml:"command"`
	Address     string         `json:"address"      yaml:"address"      toml:"address"`
	InitOptions map[string]any `json:"init_options" yaml:"init_options" toml:"init_options"`
}

type Journal struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Path    string `json:"path"    yaml:"path"    toml:"path"`
}

type Log struct {
	Verbosity int    `json:"verbosity" yaml:"verbosity" toml:"verbosity"`
	File      string `json:"file"      yaml:"file"      toml:"file"`
}

// Default returns a fresh default configuration.
func Default() Config {
	return Config{
		Extensions:         map[string]string{},
		HistoryLimit:       1000,
		FlushInterval:      Duration(50 * time.Millisecond),
		StalenessThreshold: 20,
		CoalesceThreshold:  3,
		RequestTimeout:     Duration(5 * time.Second),
		ReconnectInterval:  Duration(2 * time.Second),
		Analyzers:          map[string]Analyzer{},
		Log:                Log{Verbosity: 1},
	}
}

// LoadFromJSON reads JSON from r into a Config.
func LoadFromJSON(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := json.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode json config: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadFromYAML reads YAML from r into a Config.
func LoadFromYAML(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := yaml.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode yaml config: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadFromTOML reads TOML from r into a Config.
func LoadFromTOML(r io.Reader) (Config, error) {
	cfg := Default()

	decoder := toml.NewDecoder(r)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml config: %w", err)
	}

	return cfg, cfg.Validate()
}

// LoadFile picks the decoder from the file extension.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return LoadFromJSON(f)
	case ".yaml", ".yml":
		return LoadFromYAML(f)
	case ".toml":
		return LoadFromTOML(f)
	}
	return Config{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
}

// DefaultPath is $XDG_CONFIG_HOME/simplide/config.toml or the platform
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "simplide", "config.toml"), nil
}

// LoadDefault loads the file at DefaultPath, or the defaults when there is
// none.
func LoadDefault() (Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Default(), nil
	}
	cfg, err := LoadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks ranges and that every extension names a known language.
func (c Config) Validate() error {
	var errs []error
	if c.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("history_limit must not be negative"))
	}
	if c.CoalesceThreshold < 2 {
		errs = append(errs, fmt.Errorf("coalesce_threshold must be at least 2"))
	}
	if c.FlushInterval < 0 || c.RequestTimeout <= 0 || c.ReconnectInterval <= 0 {
		errs = append(errs, fmt.Errorf("durations must be positive"))
	}
	if c.StalenessThreshold == 0 {
		errs = append(errs, fmt.Errorf("staleness_threshold must be positive"))
	}
	if _, err := c.Registry(); err != nil {
		errs = append(errs, err)
	}
	for lang, a := range c.Analyzers {
		if len(a.Command) == 0 && a.Address == "" {
			errs = append(errs, fmt.Errorf("analyzer %q needs a command or an address", lang))
		}
	}
	return errors.Join(errs...)
}

// Registry returns a grammar registry with the extension overrides applied.
func (c Config) Registry() (*grammar.Registry, error) {
	r := grammar.NewRegistry()
	for ext, lang := range c.Extensions {
		if err := r.Override(ext, lang); err != nil {
			return nil, fmt.Errorf("extension %q: %w", ext, err)
		}
	}
	return r, nil
}

// AnalyzerFor finds the analyzer configured for a grammar, by id or alias.
func (c Config) AnalyzerFor(g *grammar.Grammar) (Analyzer, bool) {
	if a, ok := c.Analyzers[g.ID]; ok {
		return a, true
	}
	for _, alias := range g.Aliases {
		if a, ok := c.Analyzers[alias]; ok {
			return a, true
		}
	}
	return Analyzer{}, false
}

// JournalPath is the configured journal path or the default under the
// state directory.
func (c Config) JournalPath() (string, error) {
	if c.Journal.Path != "" {
		return c.Journal.Path, nil
	}
	dir, err := StateDir("simplide")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "journal.db"), nil
}

// StateDir returns $XDG_STATE_HOME/appName, creating it if needed.
func StateDir(appName string) (string, error) {
	xdgStateHome := os.Getenv("XDG_STATE_HOME")
	if xdgStateHome == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}
		xdgStateHome = filepath.Join(homeDir, ".local", "state")
	}

	appStateDir := filepath.Join(xdgStateHome, appName)
	if err := os.MkdirAll(appStateDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}

	return appStateDir, nil
}
