// Package chatgpt implements the OpenAI chat completions provider.
package chatgpt

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/upb/agency-llm-client/services/providers"
)

// Kind is the provider name this adapter is registered under
const Kind = "chatgpt"

const defaultBaseURL = "https://api.openai.com/v1"

// Adapter implements providers.Provider for OpenAI
type Adapter struct {
	settings providers.Settings
	baseURL  string
	client   *http.Client
}

// New is a providers.Builder
func New(settings providers.Settings) (providers.Provider, error) {
	return NewAdapter(settings), nil
}

// NewAdapter creates a new OpenAI adapter
func NewAdapter(settings providers.Settings) *Adapter {
	baseURL := settings.Endpoint.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Adapter{
		settings: settings,
		baseURL:  baseURL,
		client:   settings.Endpoint.Client(),
	}
}

// Name returns the provider name
func (a *Adapter) Name() string {
	if a.settings.Name != "" {
		return a.settings.Name
	}
	return Kind
}

// Model returns the configured model
func (a *Adapter) Model() string {
	return a.settings.Config.Model
}

// Call performs a chat completion. The system prompt becomes the first message.
func (a *Adapter) Call(ctx context.Context, messages []providers.Message, systemPrompt string, maxTokens int) (*providers.APIResponse, error) {
	req := a.buildRequest(messages, systemPrompt, a.settings.MaxTokens(maxTokens))

	var resp chatResponse
	if err := providers.PostJSON(ctx, a.client, a.Name(), a.baseURL+"/chat/completions", a.headers(), req, &resp, decodeError); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "response has no choices", 200, false, nil)
	}

	cost, err := a.CalculateCost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	if err != nil {
		return nil, err
	}

	return &providers.APIResponse{
		Content:      resp.Choices[0].Message.Content,
		Model:        a.Model(),
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		CostUSD:      cost,
		Provider:     a.Name(),
	}, nil
}

// CalculateCost prices a call from the configured billing rates
func (a *Adapter) CalculateCost(inputTokens, outputTokens int) (float64, error) {
	return providers.CalculateCost(a.settings.Config.Billing, inputTokens, outputTokens)
}

// ValidateAPIKey makes a 10-token call
func (a *Adapter) ValidateAPIKey(ctx context.Context) bool {
	_, err := a.Call(ctx, []providers.Message{{Role: "user", Content: "test"}}, "", 10)
	return err == nil
}

func (a *Adapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.settings.APIKey}
}

func (a *Adapter) buildRequest(messages []providers.Message, systemPrompt string, maxTokens int) *chatRequest {
	req := &chatRequest{
		Model:     a.Model(),
		MaxTokens: maxTokens,
		Messages:  make([]chatMessage, 0, len(messages)+1),
	}
	if systemPrompt != "" {
		req.Messages = append(req.Messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: msg.Role, Content: msg.Content})
	}
	return req
}

func decodeError(body []byte) (string, string, bool) {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return "", "", false
	}
	code := errResp.Error.Type
	if code == "" {
		code = errResp.Error.Code
	}
	return code, errResp.Error.Message, true
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
