package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hermod-chat/hermod/internal/config"
	domerrors "github.com/hermod-chat/hermod/internal/errors"
)

const dialogflowProtocolVersion = "20150910"

// DialogflowClient queries a Dialogflow v1-compatible HTTP endpoint.
type DialogflowClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
	lang       string
	retry      RetryConfig

	// RetryHook, when set, is called before each re-attempt. Used to feed
	// retry counters.
	RetryHook func(attempt int, err error)
}

// NewDialogflowClient creates a client for the given endpoint. baseURL
// defaults to the hosted Dialogflow API when empty.
func NewDialogflowClient(token, baseURL string, retry RetryConfig) *DialogflowClient {
	if baseURL == "" {
		baseURL = "https://api.dialogflow.com/v1"
	}
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	return &DialogflowClient{
		httpClient: &http.Client{Timeout: config.NLUQuery},
		baseURL:    baseURL,
		token:      token,
		lang:       "en",
		retry:      retry,
	}
}

// Provider identifies this gateway in logs and metrics.
func (c *DialogflowClient) Provider() string {
	return "dialogflow"
}

type dialogflowQuery struct {
	Query     string              `json:"query"`
	SessionID string              `json:"sessionId"`
	Lang      string              `json:"lang"`
	Contexts  []dialogflowContext `json:"contexts,omitempty"`
}

type dialogflowContext struct {
	Name string `json:"name"`
}

type dialogflowResponse struct {
	Result struct {
		Metadata struct {
			IntentName string `json:"intentName"`
		} `json:"metadata"`
		Action      string                     `json:"action"`
		Fulfillment Fulfillment                `json:"fulfillment"`
		Parameters  map[string]json.RawMessage `json:"parameters"`
	} `json:"result"`
	Status struct {
		Code      int    `json:"code"`
		ErrorType string `json:"errorType"`
	} `json:"status"`
}

// Query classifies text within the given session. Transport failures are
// retried up to the configured bound and then surfaced as a QueryError; a
// provider-reported non-success status yields the default classification
// instead of an error.
func (c *DialogflowClient) Query(ctx context.Context, text, sessionID string) (*Classification, error) {
	return c.QueryWithContext(ctx, text, sessionID, "")
}

// QueryWithContext is Query with an explicit session context name for
// multi-turn disambiguation.
func (c *DialogflowClient) QueryWithContext(ctx context.Context, text, sessionID, contextName string) (*Classification, error) {
	payload := dialogflowQuery{
		Query:     text,
		SessionID: sessionID,
		Lang:      c.lang,
	}
	if contextName != "" {
		payload.Contexts = []dialogflowContext{{Name: contextName}}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, domerrors.NewQueryError(c.Provider(), err)
	}

	var resp dialogflowResponse
	err = withRetry(ctx, c.retry, c.RetryHook, func() error {
		return c.doQuery(ctx, body, &resp)
	})
	if err != nil {
		return nil, domerrors.NewQueryError(c.Provider(), err)
	}

	if resp.Status.Code != http.StatusOK {
		return DefaultClassification(), nil
	}

	intent := resp.Result.Metadata.IntentName
	return &Classification{
		Intent:      intent,
		Action:      ResolveAction(intent, resp.Result.Action),
		Parameters:  StripBlankParameters(decodeParameters(resp.Result.Parameters)),
		Response:    resp.Result.Fulfillment.Speech,
		Fulfillment: resp.Result.Fulfillment,
	}, nil
}

func (c *DialogflowClient) doQuery(ctx context.Context, body []byte, out *dialogflowResponse) error {
	url := fmt.Sprintf("%s/query?v=%s", c.baseURL, dialogflowProtocolVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("query returned HTTP %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeParameters flattens provider parameter values to strings. String
// values are used as-is; anything structured keeps its compact JSON form.
func decodeParameters(raw map[string]json.RawMessage) map[string]string {
	params := make(map[string]string, len(raw))
	for k, v := range raw {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			params[k] = s
			continue
		}
		params[k] = string(bytes.TrimSpace(v))
	}
	return params
}
