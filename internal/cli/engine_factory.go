package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/callflow"
	"github.com/aretw0/callflow/pkg/observability"
	"github.com/aretw0/callflow/pkg/script"
)

type engineParams struct {
	bundle  *script.Bundle
	persist persistence
	lockTTL time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger
	debug   bool
}

// createEngine initializes a callflow engine with standard CLI conventions.
func createEngine(p engineParams) (*callflow.Engine, error) {
	engineOpts, err := p.bundle.EngineOptions()
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}

	// 1. Logger & Hooks
	hooks := p.metrics.Hooks()
	if p.debug {
		hooks = hooks.Merge(observability.LogHooks(p.logger))
	}
	engineOpts = append(engineOpts,
		callflow.WithLogger(p.logger),
		callflow.WithLifecycleHooks(hooks),
	)

	// 2. Persistence
	engineOpts = append(engineOpts, callflow.WithStore(p.persist.store), callflow.WithLockTTL(p.lockTTL))
	if p.persist.locker != nil {
		engineOpts = append(engineOpts, callflow.WithLocker(p.persist.locker))
	}

	// 3. Initialize
	engine, err := callflow.New(engineOpts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return engine, nil
}

// loadBundle reads the script file, or returns the built-in script when path is empty.
func loadBundle(path string) (*script.Bundle, error) {
	if path == "" {
		return script.Default(), nil
	}
	b, err := script.Load(path)
	if err != nil {
		return nil, fmt.Errorf("error loading script: %w", err)
	}
	return b, nil
}
