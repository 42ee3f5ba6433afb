package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/aretw0/callflow/internal/config"
	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/adapters/file"
	"github.com/aretw0/callflow/pkg/adapters/memory"
	"github.com/aretw0/callflow/pkg/adapters/redis"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/persistence/middleware"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/runner"
)

// createLogger configures the application logger.
// Logs go to w (stderr by default) to stay apart from the console transcript.
func createLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithWriter(w, level, cfg.JSON), nil
}

// printSystemMessage writes a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

type persistence struct {
	store  ports.StateStore
	locker ports.DistributedLocker
	close  func() error
}

// setupPersistence builds the configured state store, wrapped in the privacy
// middlewares. Redis also provides the distributed locker.
func setupPersistence(cfg *config.Config, logger *slog.Logger) (persistence, error) {
	var p persistence
	var base ports.StateStore

	switch cfg.Store.Backend {
	case config.BackendFile:
		base = file.New(cfg.Store.Path)
	case config.BackendRedis:
		rc := cfg.Store.Redis
		client := goredis.NewClient(&goredis.Options{
			Addr:     rc.Addr,
			Password: rc.Password,
			DB:       rc.DB,
		})
		base = redis.NewFromClient(client, redis.WithPrefix(rc.Prefix+"call:"), redis.WithTTL(rc.TTL))
		p.locker = redis.NewLocker(client, rc.Prefix)
		p.close = client.Close
	default:
		base = memory.NewStore()
	}

	var mws []middleware.Middleware
	if cfg.Privacy.MaskPII {
		pii := middleware.DefaultPIIConfig()
		pii.KeyPatterns = append(pii.KeyPatterns, cfg.Privacy.KeyPatterns...)
		pii.ValuePatterns = append(pii.ValuePatterns, cfg.Privacy.ValuePatterns...)
		mw, err := middleware.NewPIIMiddleware(pii)
		if err != nil {
			return p, closeOnError(p, fmt.Errorf("privacy: %w", err))
		}
		mws = append(mws, mw)
	}

	active, fallback, err := cfg.EncryptionKeys()
	if err != nil {
		return p, closeOnError(p, err)
	}
	if active != nil {
		// Masking runs first so only masked data is encrypted.
		mw, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			return p, closeOnError(p, fmt.Errorf("privacy: %w", err))
		}
		mws = append(mws, mw)
	}

	p.store = middleware.Chain(base, mws...)
	logger.Debug("State store ready",
		"backend", cfg.Store.Backend, "mask_pii", cfg.Privacy.MaskPII, "encrypted", active != nil)
	return p, nil
}

func closeOnError(p persistence, err error) error {
	if p.close != nil {
		if cerr := p.close(); cerr != nil {
			return errors.Join(err, cerr)
		}
	}
	return err
}

// isInterrupted reports whether err only means the user stopped the call.
func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, runner.ErrHangup)
}

// handleExecutionError turns interruptions into a clean exit.
func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}

// logCompletion prints where a rehearsal stopped.
func logCompletion(w io.Writer, res *domain.FlowResult, err error) {
	stages := 0
	if res != nil {
		stages = res.Len()
	}
	switch {
	case err == nil:
		printSystemMessage(w, "Call finished with %d stages recorded.", stages)
	case errors.Is(err, runner.ErrHangup):
		printSystemMessage(w, "Caller hung up after %d stages.", stages)
	case isInterrupted(err):
		printSystemMessage(w, "Interrupted after %d stages.", stages)
	default:
		printSystemMessage(w, "Call ended (%v) after %d stages.", err, stages)
	}
}
