// Package config provides centralized timeout constants for the application.
//
// These values are tuned around the Messenger platform's expectations (the
// webhook must be acknowledged quickly; actual processing happens off the
// request path via the durable queue) and SQLite characteristics (WAL mode,
// busy timeout).
package config

import "time"

// Webhook timeouts
const (
	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Platform callbacks are small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout. The webhook path
	// only enqueues, so responses are immediate.
	WebhookHTTPWrite = 15 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// Dispatch timeouts
const (
	// NLUQuery bounds a single NLU provider round-trip. Worst-case latency
	// for one entry is NLUQuery times the attempt bound.
	NLUQuery = 10 * time.Second

	// PlatformDelivery bounds a single outbound delivery call (messages,
	// typing indicators). A stuck delivery must not hang a worker.
	PlatformDelivery = 15 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is SQLite busy_timeout pragma value.
	// Handles concurrent pop contention across worker invocations.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	// Allows queued worker runs to finish before forceful termination.
	GracefulShutdown = 30 * time.Second
)
