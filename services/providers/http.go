package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody caps how much of a failed response is kept in the error
const maxErrorBody = 4 << 10

// ErrorDecoder extracts a vendor error code and message from a non-2xx body
type ErrorDecoder func(body []byte) (code, message string, ok bool)

// PostJSON sends body as JSON and decodes a 2xx response into out.
// Transport failures, 429 and 5xx come back as retryable ProviderErrors.
func PostJSON(ctx context.Context, client *http.Client, provider, url string, headers map[string]string, body, out interface{}, decodeErr ErrorDecoder) error {
	reqBody, err := json.Marshal(body)
	if err != nil {
		return NewProviderError(provider, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return NewProviderError(provider, "REQUEST_ERROR", "failed to create request", 0, false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NewProviderError(provider, "CANCELED", "request canceled", 0, false, ctxErr)
		}
		return NewProviderError(provider, "HTTP_ERROR", "HTTP request failed", 0, true, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return NewProviderError(provider, "READ_ERROR", "failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return handleErrorResponse(provider, httpResp.StatusCode, respBody, decodeErr)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return NewProviderError(provider, "UNMARSHAL_ERROR", "failed to unmarshal response", httpResp.StatusCode, false, err)
	}
	return nil
}

func handleErrorResponse(provider string, statusCode int, body []byte, decodeErr ErrorDecoder) error {
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	if decodeErr != nil {
		if code, message, ok := decodeErr(body); ok {
			return NewProviderError(provider, code, message, statusCode, retryable, errors.New(message))
		}
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return NewProviderError(provider, "UNKNOWN_ERROR", fmt.Sprintf("unexpected response: %s", bytes.TrimSpace(body)), statusCode, retryable, nil)
}
