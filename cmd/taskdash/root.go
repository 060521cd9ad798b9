package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"taskdash/internal/app"
	"taskdash/internal/backend"
	"taskdash/internal/config"
	"taskdash/internal/storage"
	"taskdash/internal/tracking"
	"taskdash/internal/ui"
)

var runTUI = func(a *app.App, opts ui.Options) error {
	return ui.Run(a, opts)
}

type rootOptions struct {
	configPath string
	backend    string
	logFile    string
	logLevel   string
}

func NewRoot() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "taskdash",
		Short:         "Keyboard-driven dashboard for taskwarrior tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(opts)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default $TASKDASH_CONFIG or <user config dir>/taskdash/config.toml)")
	flags.StringVar(&opts.backend, "backend", "", "backend to use: cli or sqlite (overrides [backend] kind)")
	flags.StringVar(&opts.logFile, "log-file", "", "log file (default <user cache dir>/taskdash/taskdash.log)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")

	root.AddCommand(newDoctorCommand(opts))
	root.AddCommand(newKeysCommand(opts))
	return root
}

type session struct {
	cfg        config.Config
	configPath string
	logger     *slog.Logger
	closers    []io.Closer
}

// load resolves the config file and opens the log. The caller must Close the
// session.
func (o *rootOptions) load() (*session, error) {
	configPath, err := config.ResolveConfigPath(o.configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrCreate(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}
	if o.backend != "" {
		cfg.Backend.Kind = o.backend
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	s := &session{cfg: cfg, configPath: configPath}
	logger, closer, err := openLogger(o.logFile, o.logLevel)
	if err != nil {
		return nil, err
	}
	s.logger = logger
	s.closers = append(s.closers, closer)
	return s, nil
}

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

func openLogger(path, level string) (*slog.Logger, io.Closer, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}
	if path == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, nil, fmt.Errorf("locate cache dir: %w", err)
		}
		path = filepath.Join(dir, "taskdash", "taskdash.log")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: lvl}))
	return logger, f, nil
}

// openBackend returns the configured backend and the paths whose changes
// should trigger a reload.
func (s *session) openBackend() (backend.Backend, []string, error) {
	cfg := s.cfg
	switch cfg.Backend.Kind {
	case config.BackendSQLite:
		dbPath := cfg.DBPath(s.configPath)
		store, err := storage.Open(dbPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, store)
		watch := cfg.Backend.Watch
		if len(watch) == 0 {
			watch = []string{filepath.Dir(dbPath)}
		}
		return store, watch, nil
	default:
		cli := backend.NewCLI(backend.CLIOptions{
			Bin:     cfg.Backend.TaskBin,
			Report:  cfg.Report,
			Timeout: cfg.CommandTimeout(),
			Logger:  s.logger,
		})
		watch := cfg.Backend.Watch
		if len(watch) == 0 {
			if dir := taskDataDir(); dir != "" {
				watch = []string{dir}
			}
		}
		return cli, watch, nil
	}
}

func taskDataDir() string {
	if dir := os.Getenv("TASKDATA"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".task")
}

func (s *session) timew() *tracking.Timew {
	t := s.cfg.Tracking
	return &tracking.Timew{
		Bin:                t.TimewBin,
		TagPrefix:          t.TagPrefix,
		IncludeProject:     t.IncludeProject,
		IncludeDescription: t.IncludeDescription,
		Timeout:            s.cfg.CommandTimeout(),
	}
}

func runRoot(opts *rootOptions) error {
	s, err := opts.load()
	if err != nil {
		return err
	}
	defer s.Close()

	be, watch, err := s.openBackend()
	if err != nil {
		return err
	}

	appOpts := app.Options{
		Config:    s.cfg,
		Backend:   be,
		Runner:    backend.ExecRunner{},
		Clipboard: clipboard.WriteAll,
		Logger:    s.logger,
	}
	if s.cfg.Tracking.Enabled {
		tw := s.timew()
		appOpts.Tracker = tw
		appOpts.Cache = tracking.NewCache(tw, s.cfg.Tracking.TTL(), s.cfg.CommandTimeout(), s.logger)
	}
	s.logger.Info("starting", "config", s.configPath, "backend", s.cfg.Backend.Kind, "watch", watch)

	a := app.New(appOpts)
	if err := a.Load(); err != nil {
		s.logger.Warn("initial load failed", "error", err)
	}
	return runTUI(a, ui.Options{TickRate: s.cfg.TickRate(), Watch: watch, PreciseDates: s.cfg.PreciseDates})
}
