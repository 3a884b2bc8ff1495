package messenger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
)

type capturedRequest struct {
	path  string
	query string
	body  deliveryBody
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	return New("page-token", srv.URL, 1000, logger.New("error"), m)
}

func TestSendText(t *testing.T) {
	var got capturedRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.query = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(http.StatusOK)
	})

	if err := c.SendText(context.Background(), "42", "hello"); err != nil {
		t.Fatal(err)
	}

	if got.path != "/me/messages" {
		t.Errorf("path = %q", got.path)
	}
	if got.query != "access_token=page-token" {
		t.Errorf("query = %q", got.query)
	}
	if got.body.Recipient.ID != "42" {
		t.Errorf("recipient = %+v", got.body.Recipient)
	}

	var msg map[string]string
	if err := json.Unmarshal(got.body.Message, &msg); err != nil || msg["text"] != "hello" {
		t.Errorf("message = %s", got.body.Message)
	}
}

func TestShowTyping(t *testing.T) {
	var got capturedRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got.query = r.URL.RawQuery
		json.NewDecoder(r.Body).Decode(&got.body)
		w.WriteHeader(http.StatusOK)
	})

	if err := c.ShowTyping(context.Background(), "42", "other-token"); err != nil {
		t.Fatal(err)
	}
	if got.body.SenderAction != "typing_on" {
		t.Errorf("sender_action = %q", got.body.SenderAction)
	}
	if got.query != "access_token=other-token" {
		t.Errorf("query = %q, want per-call token", got.query)
	}

	if err := c.ShowTyping(context.Background(), "42", ""); err != nil {
		t.Fatal(err)
	}
	if got.query != "access_token=page-token" {
		t.Errorf("query = %q, want client default token", got.query)
	}
}

func TestSendErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid token"}}`, http.StatusUnauthorized)
	})

	if err := c.SendText(context.Background(), "42", "hello"); err == nil {
		t.Fatal("non-2xx must surface as an error")
	}
}

func TestSubscribe(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})

	if err := c.Subscribe(context.Background()); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/me/subscribed_apps" {
		t.Errorf("path = %q", gotPath)
	}
}
