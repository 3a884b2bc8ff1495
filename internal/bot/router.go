package bot

import (
	"context"
	"encoding/json"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
)

// Sink delivers outbound content to a user. The platform client implements
// it; tests inject a recorder.
type Sink interface {
	SendText(ctx context.Context, recipientID, text string) error
	SendRaw(ctx context.Context, recipientID string, message json.RawMessage) error
}

// fallbackReply is sent by the built-in default handler when neither the
// classification nor the fulfillment suggested anything better.
const fallbackReply = "Sorry, I didn't catch that."

// Router maps action names to handlers. The route table is built once at
// startup and never mutated from request-handling code, so lookups need no
// locking.
type Router struct {
	routes  map[string]*Route
	sink    Sink
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewRouter creates a router with the reserved internal actions
// pre-registered to built-in handlers. Applications may override them with
// Register.
func NewRouter(sink Sink, log *logger.Logger, m *metrics.Metrics) *Router {
	r := &Router{
		routes:  make(map[string]*Route),
		sink:    sink,
		log:     log.WithModule("router"),
		metrics: m,
	}

	r.Register(ActionDefault, HandlerFunc(r.handleDefault))
	r.Register(ActionDisplayChunk, HandlerFunc(r.handleDisplayChunk))
	r.Register(ActionHandleCoordinates, HandlerFunc(func(ctx context.Context, req *Request) error {
		// Location events are app-specific; the built-in route only keeps
		// them from raising an unregistered-action error.
		return nil
	}))

	return r
}

// Register binds an action name to a handler. Call at bot-definition time
// only; the table is static once the process starts serving.
func (r *Router) Register(action string, h Handler) {
	r.routes[action] = &Route{Name: action, Handler: h}
}

// Resolve returns the route for an action name without dispatching.
// Workers use it to pre-resolve a dialog resume.
func (r *Router) Resolve(action string) (*Route, bool) {
	route, ok := r.routes[action]
	return route, ok
}

// Handle dispatches a request. A pre-resolved route is used directly;
// otherwise the action is looked up in the table. An unregistered action
// falls back to rendering the request's fulfillment content when there is
// any, and raises ActionNotRegisteredError when there is not.
func (r *Router) Handle(ctx context.Context, req *Request) error {
	if err := req.Validate(); err != nil {
		return err
	}

	if req.Route != nil && req.Route.Handler != nil {
		err := req.Route.Handler.Handle(ctx, req)
		r.metrics.RecordDispatch("route", statusOf(err))
		return err
	}

	route, ok := r.routes[req.Action]
	if !ok {
		if req.Fulfillment.NotEmpty() {
			err := r.respondFulfillment(ctx, req)
			r.metrics.RecordDispatch("fulfillment", statusOf(err))
			return err
		}
		r.metrics.RecordDispatch("table", "unregistered")
		return domerrors.NewActionNotRegisteredError(req.Action)
	}

	req.Route = route
	err := route.Handler.Handle(ctx, req)
	r.metrics.RecordDispatch("table", statusOf(err))
	return err
}

// Redirect re-enters the router from inside a handler with a synthetic
// action, carrying the same user and message. It runs a fresh lookup, so a
// redirect to an unregistered action fails the same way a dispatch would.
func (r *Router) Redirect(ctx context.Context, req *Request, action string, params map[string]string) error {
	if params == nil {
		params = map[string]string{}
	}
	next := &Request{
		User:       req.User,
		Message:    req.Message,
		Intent:     action,
		Action:     action,
		Parameters: params,
	}
	return r.Handle(ctx, next)
}

// respondFulfillment renders provider fulfillment content directly to the
// user: the speech line first, then any structured messages as-is.
func (r *Router) respondFulfillment(ctx context.Context, req *Request) error {
	r.log.WithField("action", req.Action).
		Debugf("no route, rendering fulfillment for user %s", req.User.PlatformID)

	if req.Fulfillment.Speech != "" {
		if err := r.sink.SendText(ctx, req.User.PlatformID, req.Fulfillment.Speech); err != nil {
			return err
		}
	}
	for _, msg := range req.Fulfillment.Messages {
		if err := r.sink.SendRaw(ctx, req.User.PlatformID, msg); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) handleDefault(ctx context.Context, req *Request) error {
	reply := req.Response
	if reply == "" {
		reply = req.Fulfillment.Speech
	}
	if reply == "" {
		reply = fallbackReply
	}
	return r.sink.SendText(ctx, req.User.PlatformID, reply)
}

func (r *Router) handleDisplayChunk(ctx context.Context, req *Request) error {
	chunk, ok := req.Param(ParamChunk)
	if !ok || chunk == "" {
		return domerrors.ErrInvalidRequest
	}
	return r.sink.SendRaw(ctx, req.User.PlatformID, json.RawMessage(chunk))
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
