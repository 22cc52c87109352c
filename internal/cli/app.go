package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/veloq/enginesync/internal/config"
	"github.com/veloq/enginesync/internal/engine"
	"github.com/veloq/enginesync/internal/engine/localengine"
	"github.com/veloq/enginesync/internal/section"
	"github.com/veloq/enginesync/internal/syncer"
)

// app is the composed application: one engine, one client, one section
// store, one sync coordinator. Commands build it in their RunE and close it
// on return.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	local  *localengine.Engine
	client *engine.Client
	store  *section.Store
	coord  *syncer.Coordinator
}

func newApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}

	logger := newLogger(cfg, opts.Verbose)

	if err := os.MkdirAll(filepath.Dir(cfg.EngineDB), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "create data directory", err)
	}

	local := localengine.New(logger)
	client := engine.NewClient(engine.NewHandle(local), logger)
	if !client.Init(cfg.EngineDB) {
		local.Close()
		return nil, NewExitError(ExitCommandError, "engine init failed at "+cfg.EngineDB)
	}

	store, err := section.NewStore(cfg.SectionsDir(), logger)
	if err != nil {
		local.Close()
		return nil, WrapExitError(ExitCommandError, "open section store", err)
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		local:  local,
		client: client,
		store:  store,
		coord:  syncer.New(store, client, logger),
	}, nil
}

func (a *app) close() {
	a.local.Close()
}

// newLogger builds the process logger: stderr by default, a rotating file
// when configured. Verbose forces debug level.
func newLogger(cfg config.Config, verbose bool) *slog.Logger {
	var out io.Writer = os.Stderr
	if cfg.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     30, // days
		}
	}

	level := parseLevel(cfg.LogLevel)
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
