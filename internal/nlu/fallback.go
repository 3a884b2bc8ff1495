package nlu

import (
	"context"
	"errors"
	"time"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
	"github.com/hermod-chat/hermod/internal/logger"
	"github.com/hermod-chat/hermod/internal/metrics"
)

// FallbackGateway chains providers: each query tries them in order, moving
// on when a provider fails after its own retries. A provider that answers
// with the default classification still counts as an answer — fallback is
// for unreachable providers, not unmatched intents.
type FallbackGateway struct {
	providers []Gateway
	log       *logger.Logger
	metrics   *metrics.Metrics
}

// NewFallbackGateway chains the given providers. Nil providers are skipped
// so callers can pass optional classifiers unconditionally.
func NewFallbackGateway(log *logger.Logger, m *metrics.Metrics, providers ...Gateway) *FallbackGateway {
	active := make([]Gateway, 0, len(providers))
	for _, p := range providers {
		if p == nil {
			continue
		}
		active = append(active, p)
	}
	return &FallbackGateway{
		providers: active,
		log:       log.WithModule("nlu"),
		metrics:   m,
	}
}

// Provider identifies the chain in logs and metrics.
func (g *FallbackGateway) Provider() string {
	return "fallback"
}

// Query tries each provider in order and returns the first answer. When
// every provider fails the last QueryError is returned.
func (g *FallbackGateway) Query(ctx context.Context, text, sessionID string) (*Classification, error) {
	return g.query(ctx, text, sessionID, "")
}

// QueryWithContext scopes the query with a provider-side context name.
// Providers that do not support context scoping answer the plain query.
func (g *FallbackGateway) QueryWithContext(ctx context.Context, text, sessionID, contextName string) (*Classification, error) {
	return g.query(ctx, text, sessionID, contextName)
}

func (g *FallbackGateway) query(ctx context.Context, text, sessionID, contextName string) (*Classification, error) {
	if len(g.providers) == 0 {
		return nil, domerrors.NewQueryError("fallback", errors.New("no providers configured"))
	}

	var lastErr error
	for i, p := range g.providers {
		start := time.Now()
		var cls *Classification
		var err error
		if cq, ok := p.(ContextQuerier); ok && contextName != "" {
			cls, err = cq.QueryWithContext(ctx, text, sessionID, contextName)
		} else {
			cls, err = p.Query(ctx, text, sessionID)
		}
		duration := time.Since(start).Seconds()

		if err == nil {
			status := "success"
			if cls.Action == DefaultAction && cls.Intent == DefaultIntent {
				status = "default"
			}
			g.metrics.RecordNLUQuery(p.Provider(), status, duration)
			return cls, nil
		}

		lastErr = err
		g.metrics.RecordNLUQuery(p.Provider(), "error", duration)
		if i < len(g.providers)-1 {
			g.log.WithError(err).Warnf("provider %s failed, trying %s", p.Provider(), g.providers[i+1].Provider())
		}

		if ctx.Err() != nil {
			break
		}
	}

	return nil, lastErr
}
