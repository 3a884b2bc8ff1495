package intake

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermod-chat/hermod/internal/bot"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
	"github.com/hermod-chat/hermod/internal/nlu"
	"github.com/hermod-chat/hermod/internal/queue"
	"github.com/hermod-chat/hermod/internal/storage"
	"github.com/hermod-chat/hermod/internal/users"
	"github.com/hermod-chat/hermod/internal/worker"
)

type nullSink struct{}

func (nullSink) SendText(ctx context.Context, r, t string) error              { return nil }
func (nullSink) SendRaw(ctx context.Context, r string, m json.RawMessage) error { return nil }

type stubGateway struct{}

func (stubGateway) Query(ctx context.Context, text, sessionID string) (*nlu.Classification, error) {
	return nlu.DefaultClassification(), nil
}
func (stubGateway) Provider() string { return "stub" }

type typingRecorder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (t *typingRecorder) ShowTyping(ctx context.Context, recipientID, accessToken string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	return t.err
}

func (t *typingRecorder) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

type intakeFixture struct {
	intake    *Intake
	queue     *queue.Queue
	scheduler *worker.Scheduler
	typing    *typingRecorder
	handled   *handledRecorder
}

type handledRecorder struct {
	mu   sync.Mutex
	reqs []*bot.Request
}

func (h *handledRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reqs)
}

func newIntakeFixture(t *testing.T) *intakeFixture {
	t.Helper()

	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.New("error")
	m := metrics.New(prometheus.NewRegistry())
	q := queue.New(db)
	sink := nullSink{}

	router := bot.NewRouter(sink, log, m)
	handled := &handledRecorder{}
	record := func(ctx context.Context, req *bot.Request) error {
		handled.mu.Lock()
		defer handled.mu.Unlock()
		handled.reqs = append(handled.reqs, req)
		return nil
	}
	router.Register("orderPizza", bot.HandlerFunc(record))
	router.Register(bot.ActionDefault, bot.HandlerFunc(record))

	registry := bot.NewRegistry()
	b := &bot.Bot{
		ID:          "pizzabot",
		Namespace:   "pizzabot",
		AccessToken: "token",
		Router:      router,
		Users:       users.New(db),
		Sink:        sink,
	}
	if err := registry.Register(b); err != nil {
		t.Fatal(err)
	}

	w := worker.New(q, stubGateway{}, nil, log, m)
	sched := worker.NewScheduler(w, registry, 4, 1, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Shutdown(ctx)
	})

	typing := &typingRecorder{}
	return &intakeFixture{
		intake:    New(q, sched, registry, typing, log, m),
		queue:     q,
		scheduler: sched,
		typing:    typing,
		handled:   handled,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestOnMessageEnqueuesAndSchedules(t *testing.T) {
	f := newIntakeFixture(t)

	f.intake.OnMessage(context.Background(), "pizzabot", Message{
		SenderID: "42",
		Text:     "  hello　world  ", // fullwidth space inside
	})

	waitFor(t, func() bool { return f.handled.count() == 1 })
	if f.typing.count() != 1 {
		t.Errorf("typing calls = %d, want 1", f.typing.count())
	}
}

func TestOnMessageQuickReplyPayload(t *testing.T) {
	f := newIntakeFixture(t)

	f.intake.OnMessage(context.Background(), "pizzabot", Message{
		SenderID: "7",
		Text:     "Large",
		Payload:  `{"action":"orderPizza","params":{"size":"large"}}`,
	})

	waitFor(t, func() bool { return f.handled.count() == 1 })

	req := f.handled.reqs[0]
	if req.Action != "orderPizza" || req.Parameters["size"] != "large" {
		t.Errorf("request = %+v", req)
	}
}

func TestOnPostback(t *testing.T) {
	f := newIntakeFixture(t)

	f.intake.OnPostback(context.Background(), "pizzabot", "7",
		`{"action":"orderPizza","params":{"size":"small"}}`, nil)

	waitFor(t, func() bool { return f.handled.count() == 1 })
	if f.handled.reqs[0].Parameters["size"] != "small" {
		t.Errorf("request = %+v", f.handled.reqs[0])
	}
}

func TestOnReferralURLDecodes(t *testing.T) {
	f := newIntakeFixture(t)

	f.intake.OnReferral(context.Background(), "pizzabot", "7",
		"%7B%22action%22%3A%22orderPizza%22%7D", nil)

	waitFor(t, func() bool { return f.handled.count() == 1 })
	if f.handled.reqs[0].Action != "orderPizza" {
		t.Errorf("action = %q", f.handled.reqs[0].Action)
	}
}

func TestBarePayloadIsActionName(t *testing.T) {
	f := newIntakeFixture(t)

	f.intake.OnPostback(context.Background(), "pizzabot", "7", "orderPizza", nil)

	waitFor(t, func() bool { return f.handled.count() == 1 })
	if f.handled.reqs[0].Action != "orderPizza" {
		t.Errorf("action = %q", f.handled.reqs[0].Action)
	}
}

func TestTypingFailureDoesNotBlockEnqueue(t *testing.T) {
	f := newIntakeFixture(t)
	f.typing.err = context.DeadlineExceeded

	f.intake.OnMessage(context.Background(), "pizzabot", Message{SenderID: "42", Text: "hi"})

	waitFor(t, func() bool { return f.handled.count() == 1 })
}

func TestUnknownBotDropped(t *testing.T) {
	f := newIntakeFixture(t)

	f.intake.OnMessage(context.Background(), "ghostbot", Message{SenderID: "42", Text: "hi"})
	f.intake.OnMessage(context.Background(), "pizzabot", Message{SenderID: "", Text: "hi"})

	// Neither event should reach a handler.
	time.Sleep(50 * time.Millisecond)
	if f.handled.count() != 0 {
		t.Errorf("handled = %d, want 0", f.handled.count())
	}
}

func TestSanitizeText(t *testing.T) {
	got := sanitizeText("　ｈｅｌｌｏ  ")
	if got != "hello" {
		t.Errorf("sanitizeText = %q, want hello", got)
	}
}

func TestParsePayload(t *testing.T) {
	p := parsePayload(`{"action":"a","intent":"b","params":{"k":"v"}}`)
	if p.Action != "a" || p.Intent != "b" || p.Params["k"] != "v" {
		t.Errorf("parsed = %+v", p)
	}

	bare := parsePayload("MENU_MAIN")
	if bare.Action != "MENU_MAIN" {
		t.Errorf("bare = %+v", bare)
	}
}
