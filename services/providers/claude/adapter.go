// Package claude implements the Anthropic Messages API provider.
package claude

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/upb/agency-llm-client/services/providers"
)

// Kind is the provider name this adapter is registered under
const Kind = "claude"

const (
	defaultBaseURL   = "https://api.anthropic.com"
	anthropicVersion = "2023-06-01"
)

// Adapter implements providers.Provider for Anthropic
type Adapter struct {
	settings providers.Settings
	baseURL  string
	client   *http.Client
}

// New is a providers.Builder
func New(settings providers.Settings) (providers.Provider, error) {
	return NewAdapter(settings), nil
}

// NewAdapter creates a new Anthropic adapter
func NewAdapter(settings providers.Settings) *Adapter {
	baseURL := strings.TrimSuffix(settings.Endpoint.BaseURL, "/")
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

// Call sends a Messages API request. The system prompt travels in the
// top-level system field.
func (a *Adapter) Call(ctx context.Context, messages []providers.Message, systemPrompt string, maxTokens int) (*providers.APIResponse, error) {
	req := &messagesRequest{
		Model:     a.Model(),
		MaxTokens: a.settings.MaxTokens(maxTokens),
		System:    systemPrompt,
		Messages:  make([]message, len(messages)),
	}
	for i, msg := range messages {
		req.Messages[i] = message{Role: msg.Role, Content: msg.Content}
	}

	var resp messagesResponse
	if err := providers.PostJSON(ctx, a.client, a.Name(), a.baseURL+"/v1/messages", a.headers(), req, &resp, decodeError); err != nil {
		return nil, err
	}

	var (
		content strings.Builder
		blocks  int
	)
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
			blocks++
		}
	}
	if blocks == 0 {
		return nil, providers.NewProviderError(a.Name(), "EMPTY_RESPONSE", "response has no text content", http.StatusOK, false, nil)
	}

	cost, err := a.CalculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens)
	if err != nil {
		return nil, err
	}

	return &providers.APIResponse{
		Content:      content.String(),
		Model:        a.Model(),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
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
	return map[string]string{
		"x-api-key":         a.settings.APIKey,
		"anthropic-version": anthropicVersion,
	}
}

func decodeError(body []byte) (string, string, bool) {
	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return "", "", false
	}
	return errResp.Error.Type, errResp.Error.Message, true
}

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      usage          `json:"usage"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type errorResponse struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
