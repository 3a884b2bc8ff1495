package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermod-chat/hermod/internal/bot"
	"github.com/hermod-chat/hermod/internal/intake"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
	"github.com/hermod-chat/hermod/internal/nlu"
	"github.com/hermod-chat/hermod/internal/queue"
	"github.com/hermod-chat/hermod/internal/storage"
	"github.com/hermod-chat/hermod/internal/users"
	"github.com/hermod-chat/hermod/internal/worker"
)

type nullSink struct{}

func (nullSink) SendText(ctx context.Context, r, t string) error                { return nil }
func (nullSink) SendRaw(ctx context.Context, r string, m json.RawMessage) error { return nil }

type stubGateway struct{}

func (stubGateway) Query(ctx context.Context, text, sessionID string) (*nlu.Classification, error) {
	return &nlu.Classification{Intent: "greet", Action: "greet", Parameters: map[string]string{}}, nil
}
func (stubGateway) Provider() string { return "stub" }

type webhookFixture struct {
	router   *gin.Engine
	handled  chan *bot.Request
	handler  *Handler
}

func newWebhookFixture(t *testing.T, appSecret string) *webhookFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.New("error")
	m := metrics.New(prometheus.NewRegistry())
	q := queue.New(db)
	sink := nullSink{}

	handled := make(chan *bot.Request, 16)
	record := bot.HandlerFunc(func(ctx context.Context, req *bot.Request) error {
		handled <- req
		return nil
	})

	botRouter := bot.NewRouter(sink, log, m)
	botRouter.Register("greet", record)
	botRouter.Register("orderPizza", record)

	registry := bot.NewRegistry()
	if err := registry.Register(&bot.Bot{
		ID:        "pizzabot",
		Namespace: "pizzabot",
		Router:    botRouter,
		Users:     users.New(db),
		Sink:      sink,
	}); err != nil {
		t.Fatal(err)
	}

	w := worker.New(q, stubGateway{}, nil, log, m)
	sched := worker.NewScheduler(w, registry, 4, 1, log)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		sched.Shutdown(ctx)
	})

	in := intake.New(q, sched, registry, nil, log, m)
	h := New("verify-token", appSecret, in, log, m)

	r := gin.New()
	r.GET("/webhook/:bot", h.Verify)
	r.POST("/webhook/:bot", h.Receive)

	return &webhookFixture{router: r, handled: handled, handler: h}
}

func (f *webhookFixture) waitHandled(t *testing.T) *bot.Request {
	t.Helper()
	select {
	case req := <-f.handled:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("no request dispatched in time")
		return nil
	}
}

func TestVerifyHandshake(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook/pizzabot?hub.mode=subscribe&hub.verify_token=verify-token&hub.challenge=12345", nil)
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "12345" {
		t.Errorf("verify = %d %q", rec.Code, rec.Body.String())
	}
}

func TestVerifyBadToken(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhook/pizzabot?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("code = %d, want 403", rec.Code)
	}
}

func TestReceiveMessage(t *testing.T) {
	f := newWebhookFixture(t, "")

	body := `{"object":"page","entry":[{"messaging":[{"sender":{"id":"42"},"message":{"text":"hi"}}]}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/pizzabot", bytes.NewBufferString(body))
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	got := f.waitHandled(t)
	if got.Action != "greet" || got.User.PlatformID != "42" {
		t.Errorf("request = action %q user %+v", got.Action, got.User)
	}
}

func TestReceivePostback(t *testing.T) {
	f := newWebhookFixture(t, "")

	body := `{"object":"page","entry":[{"messaging":[{"sender":{"id":"7"},"postback":{"payload":"{\"action\":\"orderPizza\",\"params\":{\"size\":\"large\"}}"}}]}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/pizzabot", bytes.NewBufferString(body))
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}

	got := f.waitHandled(t)
	if got.Action != "orderPizza" || got.Parameters["size"] != "large" {
		t.Errorf("request = %+v", got)
	}
}

func TestReceiveGarbageStillAcks(t *testing.T) {
	f := newWebhookFixture(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/pizzabot", bytes.NewBufferString("not json"))
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("code = %d, webhook must always ack", rec.Code)
	}
}

func TestSignatureValidation(t *testing.T) {
	f := newWebhookFixture(t, "app-secret")

	body := []byte(`{"object":"page","entry":[{"messaging":[{"sender":{"id":"42"},"message":{"text":"hi"}}]}]}`)

	// Unsigned request is rejected.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/pizzabot", bytes.NewReader(body))
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("unsigned: code = %d, want 403", rec.Code)
	}

	// Correctly signed request is accepted.
	mac := hmac.New(sha256.New, []byte("app-secret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook/pizzabot", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", sig)
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("signed: code = %d, want 200", rec.Code)
	}
	f.waitHandled(t)
}

func TestReceiveLocationAttachment(t *testing.T) {
	f := newWebhookFixture(t, "")

	body := `{"object":"page","entry":[{"messaging":[{"sender":{"id":"42"},"message":{"attachments":[{"type":"location","payload":{"coordinates":{"lat":25.0,"long":121.5}}}]}}]}]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/pizzabot", bytes.NewBufferString(body))
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	// Coordinate events route to the reserved handler, which is a no-op by
	// default; nothing should reach the recording handlers.
	select {
	case req := <-f.handled:
		t.Errorf("unexpected dispatch %+v", req)
	case <-time.After(100 * time.Millisecond):
	}
}
