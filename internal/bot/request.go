// Package bot defines the canonical dispatch unit, the action router, and
// the registry of configured bots.
package bot

import (
	"context"
	"encoding/json"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/nlu"
	"github.com/hermod-chat/hermod/internal/users"
)

// Handler processes one dispatched request.
type Handler interface {
	Handle(ctx context.Context, req *Request) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) error {
	return f(ctx, req)
}

// Route is a resolved routing decision: the action name and the handler it
// maps to. A Request constructed with a non-nil Route bypasses router
// lookup, which is how a dialog resume re-enters its own handler.
type Route struct {
	Name     string
	Handler  Handler
	Metadata map[string]string
}

// Request is the canonical dispatch unit, built fresh for every popped
// queue entry (or redirect) and never persisted.
type Request struct {
	// User is the resolved user handle. Always present.
	User *users.User

	// Message is the original platform event, when there was one.
	Message json.RawMessage

	// Intent is the NLU-classified semantic label, when classification ran.
	Intent string

	// Action is the routing key. Non-empty by the time Router.Handle runs.
	Action string

	// Parameters are the classified or payload-supplied arguments.
	Parameters map[string]string

	// Response is the provider-suggested reply text, when present.
	Response string

	// Fulfillment is rich provider response content, used as the router's
	// last-resort fallback for unregistered actions.
	Fulfillment nlu.Fulfillment

	// Route, when set, is a pre-resolved routing decision.
	Route *Route
}

// NewRequest builds a validated request. User and action are mandatory:
// a request without them is a bug in the caller, not a routable unit.
func NewRequest(user *users.User, action string) (*Request, error) {
	if user == nil || action == "" {
		return nil, domerrors.ErrInvalidRequest
	}
	return &Request{
		User:       user,
		Action:     action,
		Parameters: map[string]string{},
	}, nil
}

// Validate checks the invariants NewRequest establishes, for requests
// assembled field-by-field.
func (r *Request) Validate() error {
	if r.User == nil || r.Action == "" {
		return domerrors.ErrInvalidRequest
	}
	return nil
}

// Param returns the named parameter, with ok reporting presence.
func (r *Request) Param(name string) (string, bool) {
	v, ok := r.Parameters[name]
	return v, ok
}
