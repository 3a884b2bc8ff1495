// Package sentry wraps Sentry SDK initialization for error tracking via
// Better Stack's Sentry-compatible ingest endpoint.
package sentry

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/hermod-chat/hermod/internal/ctxutil"
)

// Config holds Sentry configuration.
type Config struct {
	// Token is the Better Stack Errors application token.
	Token string

	// Host is the error ingesting host (e.g. "errors.betterstack.com").
	Host string

	// Environment identifies the deployment environment.
	Environment string

	// Release identifies the application release version.
	Release string

	// SampleRate controls error sampling (0.0-1.0, default 1.0).
	SampleRate float64

	// Debug enables Sentry SDK debug logging.
	Debug bool
}

// Initialize sets up the Sentry SDK. If Token is empty, Sentry is disabled
// and nil is returned. The DSN is constructed as https://$TOKEN@$HOST/1;
// the project ID suffix is required by the SDK but ignored by the backend.
func Initialize(cfg Config) error {
	if cfg.Token == "" {
		return nil // disabled
	}

	if cfg.Host == "" {
		return fmt.Errorf("sentry host is required when token is provided")
	}

	dsn := fmt.Sprintf("https://%s@%s/1", cfg.Token, cfg.Host)

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      cfg.Environment,
		Release:          cfg.Release,
		SampleRate:       sampleRate,
		Debug:            cfg.Debug,
		AttachStacktrace: true,
	})
}

// Flush waits for buffered events to be sent to the server.
// Returns true if all events were sent within the timeout.
func Flush(timeout time.Duration) bool {
	return sentry.Flush(timeout)
}

// IsEnabled returns true if Sentry is initialized and active.
func IsEnabled() bool {
	return sentry.CurrentHub().Client() != nil
}

// CaptureException captures an error and sends it to Sentry.
func CaptureException(err error) {
	sentry.CaptureException(err)
}

// CaptureDispatchError captures a processing failure tagged with the
// request identity carried in ctx (bot namespace, user ID, request ID) so
// failures can be correlated with the webhook delivery that produced them.
func CaptureDispatchError(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		if ns := ctxutil.GetNamespace(ctx); ns != "" {
			scope.SetTag("namespace", ns)
		}
		if uid := ctxutil.GetUserID(ctx); uid != "" {
			scope.SetTag("user_id", uid)
		}
		if rid := ctxutil.GetRequestID(ctx); rid != "" {
			scope.SetTag("request_id", rid)
		}
		hub.CaptureException(err)
	})
}

// CaptureMessage captures a message and sends it to Sentry.
func CaptureMessage(message string) {
	sentry.CaptureMessage(message)
}
