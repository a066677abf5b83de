package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/agency-llm-client/config"
	"github.com/upb/agency-llm-client/services"
)

func rate(v float64) *float64 { return &v }

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name    string
		billing *config.Billing
		in, out int
		want    float64
		wantErr bool
	}{
		{
			name:    "per-mille of million scaling",
			billing: &config.Billing{InputPerMTok: rate(3), OutputPerMTok: rate(15)},
			in:      1000, out: 500,
			want: 10.5,
		},
		{
			name:    "zero tokens",
			billing: &config.Billing{InputPerMTok: rate(3), OutputPerMTok: rate(15)},
			want:    0,
		},
		{
			name:    "rounded to six decimals",
			billing: &config.Billing{InputPerMTok: rate(0.8), OutputPerMTok: rate(4)},
			in:      1, out: 1,
			want: 0.0048,
		},
		{name: "nil billing", billing: nil, in: 1, wantErr: true},
		{name: "missing output rate", billing: &config.Billing{InputPerMTok: rate(3)}, in: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateCost(tt.billing, tt.in, tt.out)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, services.IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestAPIResponse_TotalTokens(t *testing.T) {
	resp := &APIResponse{InputTokens: 12, OutputTokens: 30}
	assert.Equal(t, 42, resp.TotalTokens())
}

func TestProviderError(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewProviderError("claude", "HTTP_ERROR", "HTTP request failed", 0, true, cause)

	assert.Equal(t, "claude: HTTP request failed: connection reset", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, services.ErrProvider)
	assert.True(t, services.IsProviderError(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsRetryable(cause))

	withStatus := NewProviderError("chatgpt", "rate_limit", "slow down", 429, true, errors.New("slow down"))
	assert.Equal(t, "chatgpt: slow down (status 429)", withStatus.Error())
}

func TestNotImplementedError(t *testing.T) {
	err := NewNotImplementedError("grok")

	assert.True(t, IsNotImplemented(err))
	assert.False(t, IsRetryable(err))
	assert.True(t, services.IsProviderError(err))
	assert.False(t, IsNotImplemented(errors.New("other")))
}

type echoResponse struct {
	Echo string `json:"echo"`
}

func decodeTestError(body []byte) (string, string, bool) {
	if string(body) == `{"error":"quota"}` {
		return "quota", "quota exhausted", true
	}
	return "", "", false
}

func TestPostJSON(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          string
		wantErr       bool
		wantRetryable bool
		wantCode      string
	}{
		{name: "success", status: http.StatusOK, body: `{"echo":"hi"}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":"quota"}`, wantErr: true, wantRetryable: true, wantCode: "quota"},
		{name: "server error", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantErr: true, wantRetryable: true, wantCode: "UNKNOWN_ERROR"},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"error":"quota"}`, wantErr: true, wantCode: "quota"},
		{name: "malformed body", status: http.StatusOK, body: `{"echo":`, wantErr: true, wantCode: "UNMARSHAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
				assert.Equal(t, "secret", r.Header.Get("X-Key"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			var out echoResponse
			err := PostJSON(context.Background(), server.Client(), "test", server.URL,
				map[string]string{"X-Key": "secret"}, map[string]string{"q": "hi"}, &out, decodeTestError)

			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, "hi", out.Echo)
				return
			}

			var provErr *ProviderError
			require.ErrorAs(t, err, &provErr)
			assert.Equal(t, tt.wantRetryable, provErr.Retryable)
			assert.Equal(t, tt.wantCode, provErr.Code)
			assert.Equal(t, "test", provErr.Provider)
		})
	}
}

func TestPostJSON_TransportErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := PostJSON(context.Background(), &http.Client{Timeout: time.Second}, "test", url, nil, struct{}{}, &echoResponse{}, nil)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestPostJSON_CanceledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := PostJSON(ctx, server.Client(), "test", server.URL, nil, struct{}{}, &echoResponse{}, nil)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.ErrorIs(t, err, context.Canceled)
}
