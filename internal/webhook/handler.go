// Package webhook receives platform callbacks and feeds them to intake.
//
// Delivery must always be acked: the POST handler answers 200 regardless
// of what happens during normalization, because the platform retries
// non-2xx deliveries and a poisonous event would otherwise be redelivered
// forever.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hermod-chat/hermod/internal/ctxutil"
	"github.com/hermod-chat/hermod/internal/event"
	"github.com/hermod-chat/hermod/internal/intake"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
)

// Handler terminates the platform webhook.
type Handler struct {
	verifyToken string
	appSecret   string
	intake      *intake.Intake
	log         *logger.Logger
	metrics     *metrics.Metrics
}

// New creates a webhook handler. appSecret enables signature validation;
// empty disables it (local development).
func New(verifyToken, appSecret string, in *intake.Intake, log *logger.Logger, m *metrics.Metrics) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		intake:      in,
		log:         log.WithModule("webhook"),
		metrics:     m,
	}
}

// Verify handles the platform's GET verification handshake: echo
// hub.challenge when the verify token matches.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		c.String(http.StatusOK, challenge)
		return
	}

	h.log.Warnf("webhook verification failed for mode %q", mode)
	c.String(http.StatusForbidden, "verification failed")
}

// envelope is the platform's POST body.
type envelope struct {
	Object string `json:"object"`
	Entry  []struct {
		Messaging []messagingEvent `json:"messaging"`
	} `json:"entry"`
}

type messagingEvent struct {
	Sender struct {
		ID string `json:"id"`
	} `json:"sender"`
	Message *struct {
		Text       string `json:"text"`
		QuickReply *struct {
			Payload string `json:"payload"`
		} `json:"quick_reply"`
		Attachments []struct {
			Type    string `json:"type"`
			Payload struct {
				Coordinates *struct {
					Lat  float64 `json:"lat"`
					Long float64 `json:"long"`
				} `json:"coordinates"`
			} `json:"payload"`
		} `json:"attachments"`
	} `json:"message"`
	Postback *struct {
		Payload string `json:"payload"`
	} `json:"postback"`
	Referral *struct {
		Ref string `json:"ref"`
	} `json:"referral"`
}

// Receive handles POSTed events. The bot type is the :bot route parameter;
// the response is always 200 once the body has been read.
func (h *Handler) Receive(c *gin.Context) {
	start := time.Now()
	botID := c.Param("bot")

	requestID := uuid.NewString()
	ctx := ctxutil.WithRequestID(c.Request.Context(), requestID)
	ctx = ctxutil.WithBotID(ctx, botID)
	log := h.log.WithRequestID(requestID)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.WithError(err).Errorf("read webhook body")
		h.metrics.RecordWebhook("unknown", "read_error", time.Since(start).Seconds())
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	if !h.validSignature(c.GetHeader("X-Hub-Signature-256"), body) {
		log.Warnf("webhook signature mismatch")
		h.metrics.RecordWebhook("unknown", "bad_signature", time.Since(start).Seconds())
		c.String(http.StatusForbidden, "invalid signature")
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.WithError(err).Errorf("undecodable webhook body")
		h.metrics.RecordWebhook("unknown", "decode_error", time.Since(start).Seconds())
		c.String(http.StatusOK, "EVENT_RECEIVED")
		return
	}

	for _, entry := range env.Entry {
		for _, ev := range entry.Messaging {
			h.dispatch(ctx, botID, ev, start)
		}
	}

	c.String(http.StatusOK, "EVENT_RECEIVED")
}

func (h *Handler) dispatch(ctx context.Context, botID string, ev messagingEvent, start time.Time) {
	raw, _ := json.Marshal(ev)

	switch {
	case ev.Message != nil:
		msg := intake.Message{
			SenderID: ev.Sender.ID,
			Text:     ev.Message.Text,
			Raw:      raw,
		}
		if ev.Message.QuickReply != nil {
			msg.Payload = ev.Message.QuickReply.Payload
		}
		for _, att := range ev.Message.Attachments {
			if att.Type == "location" && att.Payload.Coordinates != nil {
				msg.Coordinates = &event.Coordinates{
					Lat:  att.Payload.Coordinates.Lat,
					Long: att.Payload.Coordinates.Long,
				}
			}
		}
		h.intake.OnMessage(ctx, botID, msg)
		h.metrics.RecordWebhook("message", "success", time.Since(start).Seconds())

	case ev.Postback != nil:
		h.intake.OnPostback(ctx, botID, ev.Sender.ID, ev.Postback.Payload, raw)
		h.metrics.RecordWebhook("postback", "success", time.Since(start).Seconds())

	case ev.Referral != nil:
		h.intake.OnReferral(ctx, botID, ev.Sender.ID, ev.Referral.Ref, raw)
		h.metrics.RecordWebhook("referral", "success", time.Since(start).Seconds())

	default:
		h.metrics.RecordWebhook("other", "ignored", time.Since(start).Seconds())
	}
}

// validSignature checks the sha256 HMAC header. An empty app secret
// disables validation.
func (h *Handler) validSignature(header string, body []byte) bool {
	if h.appSecret == "" {
		return true
	}

	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(sig), []byte(expected))
}
