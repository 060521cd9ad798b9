package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "tasks.db"
	EnvConfigPath         = "TASKDASH_CONFIG"
	appDirName            = "taskdash"
)

const (
	BackendCLI    = "cli"
	BackendSQLite = "sqlite"

	ScopeVisible = "visible"
	ScopeAll     = "all"
)

type BackendConfig struct {
	Kind    string   `toml:"kind"`
	TaskBin string   `toml:"task_bin"`
	DBPath  string   `toml:"db_path"`
	Watch   []string `toml:"watch"`
}

type TrackingConfig struct {
	Enabled            bool   `toml:"enabled"`
	TTLSeconds         int    `toml:"ttl_seconds"`
	TimewBin           string `toml:"timew_bin"`
	TagPrefix          string `toml:"tag_prefix"`
	IncludeProject     bool   `toml:"include_project"`
	IncludeDescription bool   `toml:"include_description"`
}

func (t TrackingConfig) TTL() time.Duration {
	return time.Duration(t.TTLSeconds) * time.Second
}

type CompletionConfig struct {
	Scope string `toml:"scope"`
	Fuzzy bool   `toml:"fuzzy"`
}

type BackgroundConfig struct {
	Command       string `toml:"command"`
	PeriodSeconds int    `toml:"period_seconds"`
}

func (b BackgroundConfig) Period() time.Duration {
	return time.Duration(b.PeriodSeconds) * time.Second
}

type Config struct {
	Looping             bool   `toml:"looping"`
	PromptOnDelete      bool   `toml:"prompt_on_delete"`
	PromptOnDone        bool   `toml:"prompt_on_done"`
	PromptOnUndo        bool   `toml:"prompt_on_undo"`
	PromptOnBulkModify  bool   `toml:"prompt_on_bulk_modify"`
	AutoInsertQuotes    bool   `toml:"auto_insert_quotes"`
	ResetFilterOnEscape bool   `toml:"reset_filter_on_escape"`
	TickRateMS          int    `toml:"tick_rate_ms"`
	CommandTimeoutMS    int    `toml:"command_timeout_ms"`
	DefaultFilter       string `toml:"default_filter"`
	Report              string `toml:"report"`
	PreciseDates        bool   `toml:"precise_dates"`

	Backend    BackendConfig     `toml:"backend"`
	Tracking   TrackingConfig    `toml:"tracking"`
	Completion CompletionConfig  `toml:"completion"`
	Background BackgroundConfig  `toml:"background"`
	Shortcuts  map[string]string `toml:"shortcuts"`
	Contexts   map[string]string `toml:"contexts"`
	Keys       Keymap            `toml:"keys"`
}

func (c Config) TickRate() time.Duration {
	return time.Duration(c.TickRateMS) * time.Millisecond
}

func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.CommandTimeoutMS) * time.Millisecond
}

// Validate rejects values the program cannot run with. Keymap conflicts are
// not reported here; see Keymap.Conflicts.
func (c Config) Validate() error {
	var errs []error
	switch c.Backend.Kind {
	case BackendCLI, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("backend.kind: unknown backend %q", c.Backend.Kind))
	}
	switch c.Completion.Scope {
	case ScopeVisible, ScopeAll:
	default:
		errs = append(errs, fmt.Errorf("completion.scope: unknown scope %q", c.Completion.Scope))
	}
	if c.TickRateMS <= 0 {
		errs = append(errs, errors.New("tick_rate_ms must be positive"))
	}
	if c.CommandTimeoutMS <= 0 {
		errs = append(errs, errors.New("command_timeout_ms must be positive"))
	}
	for name := range c.Shortcuts {
		if len(name) != 1 || name[0] < '0' || name[0] > '9' {
			errs = append(errs, fmt.Errorf("shortcuts: %q is not a digit", name))
		}
	}
	return errors.Join(errs...)
}

// ResolveConfigPath picks the config file: explicit flag, then
// $TASKDASH_CONFIG, then the user config directory.
func ResolveConfigPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, appDirName, DefaultConfigFileName), nil
}

// DBPath resolves the sqlite path relative to the config file's directory.
func (c Config) DBPath(configPath string) string {
	p := c.Backend.DBPath
	if p == "" {
		p = DefaultDBName
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

func LoadOrCreate(path string) (Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(data)
}

// Parse decodes a config file over the defaults. Actions missing from [keys]
// keep their default chords.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	cfg.Keys = nil
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Default(), fmt.Errorf("parse config: %w", err)
	}
	cfg.Keys = DefaultKeymap().Merge(cfg.Keys)
	if cfg.Shortcuts == nil {
		cfg.Shortcuts = map[string]string{}
	}
	if cfg.Contexts == nil {
		cfg.Contexts = map[string]string{}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Default() Config {
	return Config{
		Looping:            false,
		PromptOnDelete:     true,
		PromptOnDone:       false,
		PromptOnUndo:       true,
		PromptOnBulkModify: true,
		AutoInsertQuotes:   true,
		TickRateMS:         250,
		CommandTimeoutMS:   10000,
		Report:             "next",
		Backend: BackendConfig{
			Kind:    BackendCLI,
			TaskBin: "task",
		},
		Tracking: TrackingConfig{
			TTLSeconds: 5,
			TimewBin:   "timew",
		},
		Completion: CompletionConfig{Scope: ScopeAll},
		Background: BackgroundConfig{PeriodSeconds: 60},
		Shortcuts:  map[string]string{},
		Contexts:   map[string]string{},
		Keys:       DefaultKeymap(),
	}
}
