package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func completionResponse(content string) string {
	return `{"choices":[{"message":{"content":` + string(mustJSON(content)) + `}}]}`
}

func mustJSON(v interface{}) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func TestInvokeSuccess(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected authorization header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Write([]byte(completionResponse("Voice Assistant Setup")))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	resp, err := client.Invoke(context.Background(), Request{
		Task:        "title",
		Model:       "gpt-4o-mini",
		MaxTokens:   50,
		Temperature: 0.7,
		Messages:    []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Voice Assistant Setup" {
		t.Errorf("unexpected content %q", resp.Content)
	}

	if captured["model"] != "gpt-4o-mini" {
		t.Errorf("unexpected model %v", captured["model"])
	}
	if captured["stream"] != false {
		t.Errorf("expected stream=false, got %v", captured["stream"])
	}
	if captured["max_tokens"] != float64(50) {
		t.Errorf("unexpected max_tokens %v", captured["max_tokens"])
	}
}

func TestInvokeSendsResponseFormat(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.Write([]byte(completionResponse(`{"suggestions":[]}`)))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.Invoke(context.Background(), Request{
		Task:     "tag_suggestions",
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
		ResponseFormat: &JSONSchemaFormat{
			Name:   "tag_suggestions",
			Schema: map[string]interface{}{"type": "object"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	format, ok := captured["response_format"].(map[string]interface{})
	if !ok {
		t.Fatal("response_format missing from payload")
	}
	if format["type"] != "json_schema" {
		t.Errorf("unexpected response_format type %v", format["type"])
	}
	schema, ok := format["json_schema"].(map[string]interface{})
	if !ok {
		t.Fatal("json_schema missing from response_format")
	}
	if schema["name"] != "tag_suggestions" || schema["strict"] != true {
		t.Errorf("unexpected json_schema envelope %v", schema)
	}
}

func TestInvokeRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(completionResponse("After Retry")))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	resp, err := client.Invoke(context.Background(), Request{
		Task:     "title",
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "After Retry" {
		t.Errorf("unexpected content %q", resp.Content)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 calls, got %d", got)
	}
}

func TestInvokeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-key")
	_, err := client.Invoke(context.Background(), Request{
		Task:     "title",
		Model:    "gpt-4o-mini",
		Messages: []Message{{Role: RoleUser, Content: "hello"}},
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 call, got %d", got)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("request timeout"), true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
		{"rate limited", errors.New("LLM returned 429: too many requests"), true},
		{"server error", errors.New("LLM returned 500: internal"), true},
		{"bad gateway", errors.New("LLM returned 502: upstream"), true},
		{"client error", errors.New("LLM returned 400: bad request"), false},
		{"unrelated", errors.New("something else"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableError(tt.err); got != tt.want {
				t.Errorf("isRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
