// Package messenger is the platform delivery boundary: a Graph-API-style
// HTTP client for outbound messages, sender actions, and webhook
// subscription.
package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hermod-chat/hermod/internal/config"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
	"github.com/hermod-chat/hermod/internal/ratelimit"
)

const defaultBaseURL = "https://graph.facebook.com/v2.6"

// Client sends to one bot's page. It implements the delivery sink and the
// typing-indicator boundary.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	limiter     *ratelimit.Limiter
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// New creates a client for the given page access token. rateRPS bounds
// outbound sends per second; baseURL overrides the Graph API endpoint and
// may be empty.
func New(accessToken, baseURL string, rateRPS float64, log *logger.Logger, m *metrics.Metrics) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if rateRPS <= 0 {
		rateRPS = 100
	}
	return &Client{
		httpClient:  &http.Client{Timeout: config.PlatformDelivery},
		baseURL:     baseURL,
		accessToken: accessToken,
		limiter:     ratelimit.New(rateRPS, rateRPS),
		log:         log.WithModule("messenger"),
		metrics:     m,
	}
}

// SetTimeout overrides the per-delivery HTTP timeout.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

type recipient struct {
	ID string `json:"id"`
}

type deliveryBody struct {
	Recipient    recipient       `json:"recipient"`
	Message      json.RawMessage `json:"message,omitempty"`
	SenderAction string          `json:"sender_action,omitempty"`
}

// SendText delivers a plain text reply.
func (c *Client) SendText(ctx context.Context, recipientID, text string) error {
	msg, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encode text message: %w", err)
	}
	return c.SendRaw(ctx, recipientID, msg)
}

// SendRaw delivers a pre-built message object (template, quick replies).
func (c *Client) SendRaw(ctx context.Context, recipientID string, message json.RawMessage) error {
	err := c.deliver(ctx, deliveryBody{
		Recipient: recipient{ID: recipientID},
		Message:   message,
	}, c.accessToken)
	c.metrics.RecordDelivery("message", statusOf(err))
	return err
}

// ShowTyping sends the typing-on sender action. accessToken overrides the
// client's own token when a shared client serves multiple bots; pass ""
// to use the client default.
func (c *Client) ShowTyping(ctx context.Context, recipientID, accessToken string) error {
	if accessToken == "" {
		accessToken = c.accessToken
	}
	err := c.deliver(ctx, deliveryBody{
		Recipient:    recipient{ID: recipientID},
		SenderAction: "typing_on",
	}, accessToken)
	c.metrics.RecordDelivery("typing", statusOf(err))
	return err
}

// Subscribe registers the app for webhook delivery. Called once at boot.
func (c *Client) Subscribe(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/me/subscribed_apps?access_token=%s", c.baseURL, url.QueryEscape(c.accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *Client) deliver(ctx context.Context, body deliveryBody, accessToken string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}

	endpoint := fmt.Sprintf("%s/me/messages?access_token=%s", c.baseURL, url.QueryEscape(accessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("platform returned HTTP %d: %s", resp.StatusCode, body)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
