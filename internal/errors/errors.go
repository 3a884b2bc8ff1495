// Package errors provides domain-specific error types and sentinel errors
// for improved error handling across the application.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common scenarios.
// Use errors.Is() to check these errors in your code.
var (
	// ErrQueueEmpty indicates a pop was attempted on an empty queue.
	ErrQueueEmpty = errors.New("queue empty")

	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidRequest indicates a request was constructed without a
	// required field.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidEvent indicates an inbound platform event could not be
	// normalized.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")
)

// StorageError represents a failed durable-store operation. The core does not
// retry these; callers log and abort the current operation.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error (op=%s, key=%s): %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error (op=%s): %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error.
func NewStorageError(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}

// QueryError represents an NLU provider that was unreachable or erroring
// after bounded retries. Workers log it and skip dispatch for the entry.
type QueryError struct {
	Provider string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("nlu query failed (provider=%s): %v", e.Provider, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError creates a new NLU query error.
func NewQueryError(provider string, err error) *QueryError {
	return &QueryError{Provider: provider, Err: err}
}

// ActionNotRegisteredError indicates the router has no route for an action
// and no fulfillment fallback applies. It propagates out of Handle so that
// infra-level retry/alerting can react.
type ActionNotRegisteredError struct {
	Action string
}

func (e *ActionNotRegisteredError) Error() string {
	return fmt.Sprintf("no route registered for action %q", e.Action)
}

// NewActionNotRegisteredError creates an error for an unrouteable action.
func NewActionNotRegisteredError(action string) *ActionNotRegisteredError {
	return &ActionNotRegisteredError{Action: action}
}

// Configuration errors raised at bot-definition resolution time. Fatal at
// startup, never per-request.
var (
	// ErrNoRouterRegistered indicates a bot type was registered without a router.
	ErrNoRouterRegistered = errors.New("no router registered for bot type")

	// ErrNoUserStoreRegistered indicates a bot type was registered without a
	// user store.
	ErrNoUserStoreRegistered = errors.New("no user store registered for bot type")
)
