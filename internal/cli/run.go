package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/script"
)

// Options contains the flags shared by every command.
type Options struct {
	ConfigPath string
	// ScriptPath overrides the script file named by the configuration.
	ScriptPath string
	Debug      bool
	// LogOutput receives the structured logs. Defaults to os.Stderr.
	LogOutput io.Writer
}

// App is the wired service: configuration, logger, store and engine.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Bundle  *script.Bundle
	Engine  *callflow.Engine
	Metrics *observability.Metrics

	closers []func() error
}

// NewApp loads the configuration and builds everything the commands share.
// Callers must Close the App.
func NewApp(opts Options) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if opts.ScriptPath != "" {
		cfg.Script = opts.ScriptPath
	}
	if opts.Debug {
		cfg.Log.Level = "debug"
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stderr
	}

	logger, err := createLogger(cfg.Log, opts.LogOutput)
	if err != nil {
		return nil, err
	}

	bundle, err := loadBundle(cfg.Script)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Bundle:  bundle,
		Metrics: observability.NewMetrics(),
	}

	p, err := setupPersistence(cfg, logger)
	if err != nil {
		return nil, err
	}
	if p.close != nil {
		app.closers = append(app.closers, p.close)
	}

	app.Engine, err = createEngine(engineParams{
		bundle:  bundle,
		persist: p,
		lockTTL: cfg.Store.LockTTL,
		metrics: app.Metrics,
		logger:  logger,
		debug:   opts.Debug,
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	logger.Debug("Application wired",
		"store", cfg.Store.Backend, "script", cfg.Script, "locking", p.locker != nil)
	return app, nil
}

// Close releases the store connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("close: %w", errors.Join(errs...))
	}
	return nil
}
