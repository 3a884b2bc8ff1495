package nlu

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
)

// GeminiClassifier classifies text with a Gemini model constrained to JSON
// output. It shares the prompt and resolution policy with the
// OpenAI-compatible classifier.
type GeminiClassifier struct {
	client *genai.Client
	model  string
	retry  RetryConfig
}

// NewGeminiClassifier creates a classifier. Returns nil when apiKey is
// empty (provider disabled).
func NewGeminiClassifier(ctx context.Context, apiKey, model string, retry RetryConfig) (*GeminiClassifier, error) {
	if apiKey == "" {
		return nil, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}

	return &GeminiClassifier{
		client: client,
		model:  model,
		retry:  retry,
	}, nil
}

// Provider identifies this gateway in logs and metrics.
func (c *GeminiClassifier) Provider() string {
	return "gemini"
}

// Query classifies text.
func (c *GeminiClassifier) Query(ctx context.Context, text, sessionID string) (*Classification, error) {
	if c == nil {
		return nil, domerrors.NewQueryError("gemini", errors.New("classifier not configured"))
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(classifierSystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       genai.Ptr[float32](0.1),
		MaxOutputTokens:   512,
	}

	var result *genai.GenerateContentResponse
	err := withRetry(ctx, c.retry, nil, func() error {
		var reqErr error
		result, reqErr = c.client.Models.GenerateContent(ctx, c.model, genai.Text(text), cfg)
		return reqErr
	})
	if err != nil {
		return nil, domerrors.NewQueryError(c.Provider(), err)
	}

	if result == nil || len(result.Candidates) == 0 {
		return DefaultClassification(), nil
	}

	return parseModelClassification(result.Text())
}
