// Package intake translates raw platform events into queue pushes and
// worker scheduling calls, exactly once per received event.
//
// Intake never propagates errors to the webhook caller: platform delivery
// must be acked regardless of what happens here, so every failure path
// logs and returns.
package intake

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"

	"github.com/hermod-chat/hermod/internal/bot"
	"github.com/hermod-chat/hermod/internal/event"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
	"github.com/hermod-chat/hermod/internal/queue"
	"github.com/hermod-chat/hermod/internal/worker"
)

// Typing sends the best-effort typing indicator. The platform client
// implements it.
type Typing interface {
	ShowTyping(ctx context.Context, recipientID, accessToken string) error
}

// Message is one normalized inbound message event from the webhook layer.
type Message struct {
	SenderID    string
	Text        string
	Payload     string // quick-reply payload, JSON-encoded, optional
	Coordinates *event.Coordinates
	Raw         json.RawMessage
}

// Intake enqueues normalized events and schedules worker runs.
type Intake struct {
	queue     *queue.Queue
	scheduler *worker.Scheduler
	registry  *bot.Registry
	typing    Typing
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// New creates an intake. typing may be nil to disable indicators.
func New(q *queue.Queue, s *worker.Scheduler, registry *bot.Registry, typing Typing, log *logger.Logger, m *metrics.Metrics) *Intake {
	return &Intake{
		queue:     q,
		scheduler: s,
		registry:  registry,
		typing:    typing,
		log:       log.WithModule("intake"),
		metrics:   m,
	}
}

// OnMessage enqueues a message event and schedules a message worker run.
func (i *Intake) OnMessage(ctx context.Context, botID string, msg Message) {
	if msg.SenderID == "" {
		i.log.Warnf("message event without sender, dropping")
		return
	}

	e := event.New(msg.SenderID)
	e.Text = sanitizeText(msg.Text)
	e.Coordinates = msg.Coordinates
	e.Raw = msg.Raw
	if msg.Payload != "" {
		e.Payload = parsePayload(msg.Payload)
		e.Text = ""
	}

	i.enqueue(ctx, botID, msg.SenderID, queue.KindMessage, e)
}

// OnPostback enqueues a structured postback event and schedules a postback
// worker run. payload is the JSON-encoded string embedded in the event.
func (i *Intake) OnPostback(ctx context.Context, botID, senderID, payload string, raw json.RawMessage) {
	if senderID == "" {
		i.log.Warnf("postback event without sender, dropping")
		return
	}

	e := event.New(senderID)
	e.Payload = parsePayload(payload)
	e.Raw = raw

	i.enqueue(ctx, botID, senderID, queue.KindPostback, e)
}

// OnReferral is OnPostback for referral events, whose payload is
// URL-encoded before the JSON layer.
func (i *Intake) OnReferral(ctx context.Context, botID, senderID, ref string, raw json.RawMessage) {
	decoded, err := url.QueryUnescape(ref)
	if err != nil {
		i.log.WithError(err).Warnf("undecodable referral payload from %s", senderID)
		decoded = ref
	}
	i.OnPostback(ctx, botID, senderID, decoded, raw)
}

func (i *Intake) enqueue(ctx context.Context, botID, senderID string, kind queue.Kind, e *event.Event) {
	b, err := i.registry.Resolve(botID)
	if err != nil {
		i.log.WithError(err).Errorf("event for unknown bot %s", botID)
		return
	}

	// Typing indicator is best effort; failure must not block the enqueue.
	if i.typing != nil {
		if err := i.typing.ShowTyping(ctx, senderID, b.AccessToken); err != nil {
			i.log.WithError(err).Debugf("typing indicator failed for %s", senderID)
		}
	}

	data, err := e.Encode()
	if err != nil {
		i.log.WithError(err).Errorf("encode event from %s", senderID)
		return
	}

	key := queue.Key(b.Namespace, senderID, kind)
	if err := i.queue.Push(ctx, key, data); err != nil {
		i.metrics.RecordQueueOp("push", string(kind), "error")
		i.log.WithError(err).Errorf("enqueue for %s failed", key)
		return
	}
	i.metrics.RecordQueueOp("push", string(kind), "success")

	i.scheduler.Schedule(botID, senderID, kind)
}

// parsePayload decodes a structured payload string. A payload that is not
// the JSON envelope is treated as a bare action name, which is how simple
// menu buttons are wired.
func parsePayload(payload string) *event.Payload {
	var p event.Payload
	if err := json.Unmarshal([]byte(payload), &p); err == nil && p.Action != "" {
		return &p
	}
	return &event.Payload{Action: strings.TrimSpace(payload)}
}

// sanitizeText normalizes inbound text: Unicode NFC, fullwidth forms
// narrowed, surrounding whitespace dropped.
func sanitizeText(text string) string {
	text = norm.NFC.String(text)
	text = width.Narrow.String(text)
	return strings.TrimSpace(text)
}
