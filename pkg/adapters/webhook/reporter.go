// Package webhook posts session-end reports to an HTTP endpoint.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aretw0/callflow/internal/logging"
	"github.com/aretw0/callflow/pkg/domain"
)

// DefaultTimeout bounds one delivery.
const DefaultTimeout = 15 * time.Second

// ErrRejected is returned when the endpoint answers with a status >= 400.
var ErrRejected = errors.New("webhook rejected report")

// Reporter posts each report once as JSON. Failed deliveries are not retried.
type Reporter struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithClient replaces the HTTP client.
func WithClient(c *http.Client) Option {
	return func(r *Reporter) {
		r.client = c
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// NewReporter creates a Reporter for url.
func NewReporter(url string, opts ...Option) *Reporter {
	r := &Reporter{
		url:     url,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Report posts report to the endpoint.
func (r *Reporter) Report(ctx context.Context, report *domain.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode)
	}
	r.logger.Debug("session report delivered", "room", report.RoomName, "status", resp.StatusCode)
	return nil
}
