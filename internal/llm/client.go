package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/policyvoice/server/internal/metrics"
)

const (
	maxRetries     = 3
	requestTimeout = 30 * time.Second
)

// Client calls an OpenAI-compatible chat-completions endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new completions client for the given endpoint.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

// Invoke performs a completion call, retrying transient failures with backoff.
func (c *Client) Invoke(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	start := time.Now()
	for attempt := 1; attempt <= maxRetries; attempt++ {
		resp, err := c.call(ctx, req)
		if err == nil {
			metrics.ObserveLLMRequest(req.Task, "ok", time.Since(start))
			return resp, nil
		}

		lastErr = err

		if isRetryableError(err) && attempt < maxRetries {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-time.After(backoff):
				continue
			case <-ctx.Done():
				metrics.ObserveLLMRequest(req.Task, "cancelled", time.Since(start))
				return nil, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
			}
		}
		break
	}

	metrics.ObserveLLMRequest(req.Task, "error", time.Since(start))
	return nil, lastErr
}

// call makes a single API call.
func (c *Client) call(ctx context.Context, req Request) (*Response, error) {
	payload := map[string]interface{}{
		"model":    req.Model,
		"messages": req.Messages,
		"stream":   false,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.ResponseFormat != nil {
		payload["response_format"] = map[string]interface{}{
			"type": "json_schema",
			"json_schema": map[string]interface{}{
				"name":   req.ResponseFormat.Name,
				"strict": true,
				"schema": req.ResponseFormat.Schema,
			},
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call LLM at %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LLM returned %d: %s (url: %s, model: %s)",
			resp.StatusCode, string(respBody), url, req.Model)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode response: %w (body: %s)", err, string(respBody))
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response (body: %s)", string(respBody))
	}

	return &Response{Content: result.Choices[0].Message.Content}, nil
}

// isRetryableError checks if an error is transient and worth retrying.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	retryablePatterns := []string{
		"timeout", "timed out", "connection refused", "connection reset",
		"no such host", "EOF", "503", "502", "504", "429", "500",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
