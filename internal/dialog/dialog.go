// Package dialog implements the per-user pending-prompt state machine.
//
// A handler asks a question and suspends; the state recorded here makes the
// user's next inbound message resume that handler directly instead of going
// through NLU classification. The resume path itself is owned by the
// dispatch worker: this package only stores, reads, and clears.
package dialog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hermod-chat/hermod/internal/bot"
	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/metrics"
	"github.com/hermod-chat/hermod/internal/users"
)

// Context keys holding the pending prompt in the user's context map.
const (
	keyHandler    = "dialog_handler"
	keyController = "dialog_controller"
	keyParameters = "dialog_parameters"
)

// Pending is a stored prompt: the handler to resume, the controller scope
// it was asked under, and the parameters captured at ask time.
type Pending struct {
	Handler    string
	Controller string
	Parameters map[string]string
}

// Prompt stores and clears pending prompts and emits the question through
// the delivery sink.
type Prompt struct {
	users   *users.Store
	sink    bot.Sink
	metrics *metrics.Metrics
}

// New creates a prompt API over the given user store and delivery sink.
func New(store *users.Store, sink bot.Sink, m *metrics.Metrics) *Prompt {
	return &Prompt{users: store, sink: sink, metrics: m}
}

// Ask persists the pending prompt for the user and sends question. A new
// prompt fully overwrites any previous one; prompts never nest. The state
// is persisted before the question is sent so a delivery failure cannot
// leave an un-resumable question on the user's screen.
func (p *Prompt) Ask(ctx context.Context, user *users.User, question, handler, controller string, params map[string]string) error {
	if user == nil || handler == "" {
		return domerrors.ErrInvalidRequest
	}
	if params == nil {
		params = map[string]string{}
	}

	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode prompt parameters: %w", err)
	}

	if err := p.users.SetContext(ctx, user.ID, keyHandler, handler); err != nil {
		return err
	}
	if err := p.users.SetContext(ctx, user.ID, keyController, controller); err != nil {
		return err
	}
	if err := p.users.SetContext(ctx, user.ID, keyParameters, string(encoded)); err != nil {
		return err
	}

	p.metrics.RecordDialogPrompt("ask")

	if question == "" {
		return nil
	}
	return p.sink.SendText(ctx, user.PlatformID, question)
}

// Get returns the user's pending prompt, or ok=false when none is set.
func (p *Prompt) Get(ctx context.Context, userID int64) (*Pending, bool, error) {
	handler, err := p.users.GetContext(ctx, userID, keyHandler)
	if errors.Is(err, domerrors.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	pending := &Pending{Handler: handler, Parameters: map[string]string{}}

	if controller, err := p.users.GetContext(ctx, userID, keyController); err == nil {
		pending.Controller = controller
	} else if !errors.Is(err, domerrors.ErrNotFound) {
		return nil, false, err
	}

	if raw, err := p.users.GetContext(ctx, userID, keyParameters); err == nil {
		if err := json.Unmarshal([]byte(raw), &pending.Parameters); err != nil {
			// Corrupt stored parameters should not wedge the user; resume
			// with none.
			pending.Parameters = map[string]string{}
		}
	} else if !errors.Is(err, domerrors.ErrNotFound) {
		return nil, false, err
	}

	return pending, true, nil
}

// Clear removes the pending prompt. Clearing when nothing is pending is a
// no-op, which keeps redundant resumes harmless.
func (p *Prompt) Clear(ctx context.Context, userID int64) error {
	return p.users.DeleteContext(ctx, userID, keyHandler, keyController, keyParameters)
}
