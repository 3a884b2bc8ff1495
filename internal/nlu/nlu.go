// Package nlu provides intent classification for free-text messages.
//
// The primary gateway speaks the Dialogflow-style HTTP query protocol; LLM
// classifiers (OpenAI-compatible and Gemini) implement the same Gateway
// contract and can be chained as fallbacks. All gateways share the same
// resolution policy: a matched intent with no action routes by intent name,
// the provider's "unrecognized" sentinel routes to the default action, and
// blank parameters are stripped.
package nlu

import (
	"context"
	"encoding/json"
)

const (
	// DefaultIntent is the intent reported when the provider could not
	// classify the input.
	DefaultIntent = "DEFAULT"

	// DefaultAction is the reserved action name that routes unclassified
	// input to the application's generic fallback handler.
	DefaultAction = "default"

	// UnknownActionSentinel is Dialogflow's action name for an unmatched
	// query. It is never dispatched as-is.
	UnknownActionSentinel = "input.unknown"
)

// Fulfillment is rich provider response content beyond a plain
// intent/action match: a suggested speech reply plus optional structured
// messages (cards, quick replies) in the provider's own schema.
type Fulfillment struct {
	Speech   string            `json:"speech"`
	Messages []json.RawMessage `json:"messages,omitempty"`
}

// NotEmpty reports whether the fulfillment carries any renderable content.
func (f Fulfillment) NotEmpty() bool {
	return f.Speech != "" || len(f.Messages) > 0
}

// Classification is the result of one NLU query.
type Classification struct {
	Intent      string
	Action      string
	Parameters  map[string]string
	Response    string
	Fulfillment Fulfillment
}

// Gateway classifies free text into an (intent, action, parameters) triple.
// sessionID scopes multi-turn context on providers that support it and may
// be empty.
type Gateway interface {
	Query(ctx context.Context, text, sessionID string) (*Classification, error)
	Provider() string
}

// ContextQuerier is implemented by gateways that can scope a query with a
// provider-side context name. Handlers arm the context by writing
// UserContextKey into the user's context map; the worker sends it with the
// next query and clears it on success.
type ContextQuerier interface {
	QueryWithContext(ctx context.Context, text, sessionID, contextName string) (*Classification, error)
}

// UserContextKey is the user-context map key holding the pending context
// name for the user's next query.
const UserContextKey = "nlu_context"

// DefaultClassification is returned when the provider answered but could
// not classify the input. It routes to the default action rather than
// surfacing an error to the user.
func DefaultClassification() *Classification {
	return &Classification{
		Intent:     DefaultIntent,
		Action:     DefaultAction,
		Parameters: map[string]string{},
	}
}

// ResolveAction applies the shared action-name policy: no action means the
// intent name routes directly, and the provider's unmatched sentinel maps
// to the default action.
func ResolveAction(intent, action string) string {
	switch action {
	case "":
		return intent
	case UnknownActionSentinel:
		return DefaultAction
	}
	return action
}

// StripBlankParameters drops parameters whose value is empty so handlers
// can distinguish "absent" from "present but blank".
func StripBlankParameters(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
