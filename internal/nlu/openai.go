package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	domerrors "github.com/hermod-chat/hermod/internal/errors"
)

const classifierSystemPrompt = `You classify chat messages for a bot. Respond with a single JSON object:
{"intent": "<intent name>", "action": "<action name>", "parameters": {"<name>": "<string value>"}, "response": "<optional suggested reply>"}
Use intent "DEFAULT" and action "default" when the message does not match any known intent. Output only the JSON object.`

// OpenAIClassifier classifies text via an OpenAI-compatible chat completion
// endpoint. It prompts the model for a JSON classification and applies the
// shared action-resolution policy to the result.
type OpenAIClassifier struct {
	client openai.Client
	model  string
	retry  RetryConfig
}

// NewOpenAIClassifier creates a classifier. endpoint overrides the base URL
// for OpenAI-compatible providers and may be empty for the hosted API.
// Returns nil when apiKey is empty (provider disabled).
func NewOpenAIClassifier(apiKey, endpoint, model string, retry RetryConfig) *OpenAIClassifier {
	if apiKey == "" {
		return nil
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if endpoint != "" {
		opts = append(opts, option.WithBaseURL(endpoint))
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}

	return &OpenAIClassifier{
		client: openai.NewClient(opts...),
		model:  model,
		retry:  retry,
	}
}

// Provider identifies this gateway in logs and metrics.
func (c *OpenAIClassifier) Provider() string {
	return "openai"
}

// Query classifies text. The sessionID is folded into the prompt so the
// model can keep multi-turn queries from different users apart.
func (c *OpenAIClassifier) Query(ctx context.Context, text, sessionID string) (*Classification, error) {
	if c == nil {
		return nil, domerrors.NewQueryError("openai", errors.New("classifier not configured"))
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifierSystemPrompt),
			openai.UserMessage(text),
		},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(512),
	}
	if sessionID != "" {
		params.User = openai.String(sessionID)
	}

	var resp *openai.ChatCompletion
	err := withRetry(ctx, c.retry, nil, func() error {
		var reqErr error
		resp, reqErr = c.client.Chat.Completions.New(ctx, params)
		return reqErr
	})
	if err != nil {
		return nil, domerrors.NewQueryError(c.Provider(), err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return DefaultClassification(), nil
	}

	return parseModelClassification(resp.Choices[0].Message.Content)
}

type modelClassification struct {
	Intent     string            `json:"intent"`
	Action     string            `json:"action"`
	Parameters map[string]string `json:"parameters"`
	Response   string            `json:"response"`
}

// parseModelClassification decodes the JSON object an LLM classifier was
// prompted to emit. Unparseable output degrades to the default
// classification rather than erroring: the model answered, it just
// answered badly.
func parseModelClassification(content string) (*Classification, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var mc modelClassification
	if err := json.Unmarshal([]byte(content), &mc); err != nil || mc.Intent == "" {
		return DefaultClassification(), nil
	}

	cls := &Classification{
		Intent:     mc.Intent,
		Action:     ResolveAction(mc.Intent, mc.Action),
		Parameters: StripBlankParameters(mc.Parameters),
		Response:   mc.Response,
	}
	if mc.Response != "" {
		cls.Fulfillment = Fulfillment{Speech: mc.Response}
	}
	return cls, nil
}
