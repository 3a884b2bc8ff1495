// Package worker implements the drain-and-dispatch loop and its scheduler.
//
// A worker run drains one user's queue of one kind until empty. Runs are
// idempotent: invoking a worker against an already-drained queue is a safe
// no-op, which is what makes fire-and-forget scheduling with at-least-once
// retry correct.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hermod-chat/hermod/internal/bot"
	"github.com/hermod-chat/hermod/internal/config"
	"github.com/hermod-chat/hermod/internal/deadletter"
	"github.com/hermod-chat/hermod/internal/dialog"
	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/event"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
	"github.com/hermod-chat/hermod/internal/nlu"
	"github.com/hermod-chat/hermod/internal/queue"
	"github.com/hermod-chat/hermod/internal/users"
)

// Worker drains per-user queues and dispatches each entry through the
// bot's router.
type Worker struct {
	queue      *queue.Queue
	gateway    nlu.Gateway
	deadletter *deadletter.Archive
	log        *logger.Logger
	metrics    *metrics.Metrics
	nluTimeout time.Duration
}

// New creates a worker. archive may be nil to disable dead-letter capture.
func New(q *queue.Queue, gateway nlu.Gateway, archive *deadletter.Archive, log *logger.Logger, m *metrics.Metrics) *Worker {
	return &Worker{
		queue:      q,
		gateway:    gateway,
		deadletter: archive,
		log:        log.WithModule("worker"),
		metrics:    m,
		nluTimeout: config.NLUQuery,
	}
}

// SetNLUTimeout overrides the per-entry NLU deadline.
func (w *Worker) SetNLUTimeout(d time.Duration) {
	if d > 0 {
		w.nluTimeout = d
	}
}

// Run drains the (namespace, userID, kind) queue until empty. Classification
// errors on a single entry are logged and skipped; handler errors propagate
// to the scheduler after the failing entry is captured to the dead-letter
// archive, since a popped entry cannot be re-queued.
func (w *Worker) Run(ctx context.Context, b *bot.Bot, userID string, kind queue.Kind) error {
	key := queue.Key(b.Namespace, userID, kind)
	log := w.log.WithFields(map[string]any{"key": key, "bot": b.ID})
	prompt := dialog.New(b.Users, b.Sink, w.metrics)

	start := time.Now()
	drained := 0

	for {
		entry, err := w.queue.Pop(ctx, key)
		if errors.Is(err, domerrors.ErrQueueEmpty) {
			status := "drained"
			if drained == 0 {
				status = "noop"
			}
			w.metrics.RecordWorkerRun(string(kind), status, time.Since(start).Seconds())
			return nil
		}
		if err != nil {
			w.metrics.RecordWorkerRun(string(kind), "error", time.Since(start).Seconds())
			return err
		}

		evt, err := event.Decode(entry)
		if err != nil {
			log.WithError(err).Errorf("undecodable queue entry, skipping")
			w.metrics.RecordEntryDrained(string(kind), "skipped")
			drained++
			continue
		}

		user, err := b.Users.FindOrCreate(ctx, b.Namespace, evt.SenderID)
		if err != nil {
			w.metrics.RecordWorkerRun(string(kind), "error", time.Since(start).Seconds())
			return err
		}

		req, branch, err := w.classify(ctx, b, prompt, user, evt)
		if err != nil {
			// NLU exhausted its retries; this entry is skipped but the
			// drain continues.
			log.WithError(err).Warnf("classification failed, skipping entry")
			w.metrics.RecordEntryDrained(string(kind), "skipped")
			drained++
			continue
		}
		w.metrics.RecordEntryDrained(string(kind), branch)
		drained++

		if err := b.Router.Handle(ctx, req); err != nil {
			w.capture(ctx, key, entry, err)
			w.metrics.RecordWorkerRun(string(kind), "error", time.Since(start).Seconds())
			return fmt.Errorf("dispatch %s: %w", req.Action, err)
		}
	}
}

// classify builds the Request for one event. Priority order: structured
// payload, coordinates, pending dialog prompt, NLU free text.
func (w *Worker) classify(ctx context.Context, b *bot.Bot, prompt *dialog.Prompt, user *users.User, evt *event.Event) (*bot.Request, string, error) {
	switch {
	case evt.Payload != nil:
		req, err := bot.NewRequest(user, evt.Payload.Action)
		if err != nil {
			return nil, "", err
		}
		req.Intent = evt.Payload.Intent
		if req.Intent == "" {
			req.Intent = evt.Payload.Action
		}
		for k, v := range evt.Payload.Params {
			req.Parameters[k] = v
		}
		req.Message = evt.Raw
		return req, "payload", nil

	case evt.Coordinates != nil:
		req, err := bot.NewRequest(user, bot.ActionHandleCoordinates)
		if err != nil {
			return nil, "", err
		}
		req.Intent = bot.ActionHandleCoordinates
		req.Parameters[bot.ParamLat] = strconv.FormatFloat(evt.Coordinates.Lat, 'f', -1, 64)
		req.Parameters[bot.ParamLong] = strconv.FormatFloat(evt.Coordinates.Long, 'f', -1, 64)
		req.Message = evt.Raw
		return req, "coordinates", nil
	}

	pending, ok, err := prompt.Get(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	if ok {
		// Clear before the handler runs so a handler failure cannot
		// re-trigger the same prompt loop.
		if err := prompt.Clear(ctx, user.ID); err != nil {
			return nil, "", err
		}
		w.metrics.RecordDialogPrompt("resume")

		req, err := bot.NewRequest(user, pending.Handler)
		if err != nil {
			return nil, "", err
		}
		req.Intent = pending.Handler
		for k, v := range pending.Parameters {
			req.Parameters[k] = v
		}
		req.Message = evt.Raw
		if route, found := b.Router.Resolve(pending.Handler); found {
			req.Route = &bot.Route{
				Name:     route.Name,
				Handler:  route.Handler,
				Metadata: map[string]string{"controller": pending.Controller},
			}
		}
		return req, "dialog", nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, w.nluTimeout)
	defer cancel()

	contextName, err := b.Users.GetContext(ctx, user.ID, nlu.UserContextKey)
	if err != nil && !errors.Is(err, domerrors.ErrNotFound) {
		return nil, "", err
	}

	var cls *nlu.Classification
	if cq, ok := w.gateway.(nlu.ContextQuerier); ok && contextName != "" {
		cls, err = cq.QueryWithContext(queryCtx, evt.Text, user.PlatformID, contextName)
	} else {
		cls, err = w.gateway.Query(queryCtx, evt.Text, user.PlatformID)
	}
	if err != nil {
		return nil, "", err
	}

	// The armed context scopes one query only.
	if contextName != "" {
		if derr := b.Users.DeleteContext(ctx, user.ID, nlu.UserContextKey); derr != nil {
			w.log.Warnf("failed to clear nlu context for user %d: %v", user.ID, derr)
		}
	}

	req, err := bot.NewRequest(user, cls.Action)
	if err != nil {
		return nil, "", err
	}
	req.Intent = cls.Intent
	for k, v := range cls.Parameters {
		req.Parameters[k] = v
	}
	req.Response = cls.Response
	req.Fulfillment = cls.Fulfillment
	req.Message = evt.Raw
	return req, "nlu", nil
}

// capture archives a dropped entry. The reason separates configuration
// errors (unregistered action) from handler failures.
func (w *Worker) capture(ctx context.Context, key string, entry []byte, cause error) {
	if w.deadletter == nil {
		return
	}
	reason := deadletter.ReasonHandlerError
	var nre *domerrors.ActionNotRegisteredError
	if errors.As(cause, &nre) {
		reason = deadletter.ReasonActionNotRegistered
	}
	w.deadletter.Capture(ctx, reason, key, entry, cause)
}
