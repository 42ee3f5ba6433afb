package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/lifecycle"
	"github.com/go-chi/chi/v5"

	httpAdapter "github.com/aretw0/callflow/pkg/adapters/http"
	"github.com/aretw0/callflow/pkg/adapters/mcp"
	"github.com/aretw0/callflow/pkg/adapters/webhook"
	"github.com/aretw0/callflow/pkg/session"
)

// ShutdownTimeout bounds the graceful shutdown of the HTTP server.
const ShutdownTimeout = 5 * time.Second

// ServeOptions configures RunServe.
type ServeOptions struct {
	// Listen overrides the configured address.
	Listen string
	// MCP mounts the model tools over SSE next to the HTTP API.
	MCP bool
	// PublicURL is the address MCP clients post messages to.
	// Defaults to http://localhost plus the listen port.
	PublicURL string
}

// NewHandler wires the HTTP API, and optionally the MCP SSE transport, around
// one directory of live calls. The returned stop function hangs up every live
// call; call it after the listener is closed.
func NewHandler(ctx context.Context, app *App, opts ServeOptions) (http.Handler, func()) {
	directory := session.NewDirectory()

	serverOpts := []httpAdapter.Option{
		httpAdapter.WithDirectory(directory),
		httpAdapter.WithMetrics(app.Metrics),
		httpAdapter.WithWatchdog(app.Config.WatchdogTimings()),
		httpAdapter.WithLogger(app.Logger),
		httpAdapter.WithBaseContext(ctx),
	}
	if url := app.Config.Webhook.URL; url != "" {
		serverOpts = append(serverOpts, httpAdapter.WithReporter(webhook.NewReporter(url,
			webhook.WithTimeout(app.Config.Webhook.Timeout),
			webhook.WithLogger(app.Logger),
		)))
	}
	api := httpAdapter.NewServer(app.Engine, serverOpts...)

	r := chi.NewRouter()
	if opts.MCP {
		tools := mcp.NewServer(app.Engine, directory, mcp.WithLogger(app.Logger))
		sse, message := tools.SSEHandlers(publicURL(app, opts))
		r.Handle("/sse", sse)
		r.Handle("/message", message)
	}
	r.Mount("/", api.Handler())
	return r, api.Close
}

func publicURL(app *App, opts ServeOptions) string {
	if opts.PublicURL != "" {
		return opts.PublicURL
	}
	return "http://localhost" + listenAddr(app, opts)
}

func listenAddr(app *App, opts ServeOptions) string {
	if opts.Listen != "" {
		return opts.Listen
	}
	return app.Config.Listen
}

// RunServe serves the HTTP API until ctx is cancelled.
func RunServe(ctx context.Context, app *App, opts ServeOptions) error {
	handler, stop := NewHandler(ctx, app, opts)

	srv := &http.Server{
		Addr:              listenAddr(app, opts),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	lifecycle.Go(ctx, func(ctx context.Context) error {
		app.Logger.Info("Starting callflow server", "address", srv.Addr, "mcp", opts.MCP)
		serverErrors <- srv.ListenAndServe()
		return nil
	})

	select {
	case err := <-serverErrors:
		stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case <-ctx.Done():
		app.Logger.Info("Start shutdown", "cause", context.Cause(ctx))

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()

		// SSE streams never finish on their own, so a timeout falls back to Close.
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			if err := srv.Close(); err != nil {
				app.Logger.Error("Error killing server", "err", err)
			}
		}
		stop()
		app.Logger.Info("callflow server stopped gracefully")
		return nil
	}
}

// RunMCP serves the stateless model tools on stdin and stdout.
// Stage completion needs live calls and is only offered by RunServe.
func RunMCP(app *App) error {
	srv := mcp.NewServer(app.Engine, nil, mcp.WithLogger(app.Logger))
	app.Logger.Info("Starting callflow MCP server (stdio)")
	if err := srv.ServeStdio(); err != nil {
		return fmt.Errorf("MCP server execution failed: %w", err)
	}
	return nil
}
