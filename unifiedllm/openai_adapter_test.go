package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "gpt-4o",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": null,
      "tool_calls": [{
        "id": "call_abc",
        "type": "function",
        "function": {"name": "createFile", "arguments": "{\"filePath\":\"hello.txt\",\"content\":\"hi\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15, "completion_tokens_details": {"reasoning_tokens": 3}}
}`

func newOpenAITestServer(t *testing.T, handler http.HandlerFunc) *OpenAIAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIAdapter("test-key", WithBaseURL(srv.URL))
}

func TestOpenAIAdapterCompleteToolCall(t *testing.T) {
	var body map[string]interface{}
	adapter := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallCompletion)
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Messages: []Message{
			SystemMessage("You are vox."),
			UserMessage("create hello.txt"),
		},
		ToolDefs: []ToolDefinition{{
			Name:        "createFile",
			Description: "Create a file",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"filePath":{"type":"string"},"content":{"type":"string"}}}`),
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body["model"] != DefaultOpenAIModel {
		t.Errorf("expected default model in request, got %v", body["model"])
	}
	tools, _ := body["tools"].([]interface{})
	if len(tools) != 1 {
		t.Fatalf("expected 1 tool in request, got %d", len(tools))
	}
	messages, _ := body["messages"].([]interface{})
	if len(messages) != 2 {
		t.Errorf("expected 2 messages in request, got %d", len(messages))
	}

	calls := resp.ToolCallsFromResponse()
	if len(calls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(calls))
	}
	if calls[0].ID != "call_abc" || calls[0].Name != "createFile" {
		t.Errorf("unexpected tool call %+v", calls[0])
	}
	var args map[string]string
	if err := json.Unmarshal(calls[0].Arguments, &args); err != nil {
		t.Fatalf("arguments are not JSON: %v", err)
	}
	if args["filePath"] != "hello.txt" {
		t.Errorf("expected filePath hello.txt, got %q", args["filePath"])
	}
	if resp.FinishReason.Reason != "tool_calls" {
		t.Errorf("expected finish reason tool_calls, got %q", resp.FinishReason.Reason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
	if r := resp.Usage.ReasoningTokens; r == nil || *r != 3 {
		t.Errorf("expected 3 reasoning tokens, got %v", r)
	}
}

func TestOpenAIAdapterReplaysToolHistory(t *testing.T) {
	var body struct {
		Messages []map[string]interface{} `json:"messages"`
	}
	adapter := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"c2","object":"chat.completion","model":"gpt-4o","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Done."}}]}`)
	})

	resp, err := adapter.Complete(context.Background(), Request{
		Model: "gpt-4o-mini",
		Messages: []Message{
			UserMessage("create hello.txt"),
			{Role: RoleAssistant, Content: []ContentPart{ToolCallPart("call_abc", "createFile", json.RawMessage(`{"filePath":"hello.txt"}`))}},
			ToolResultMessage("call_abc", "File created", false),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Done." {
		t.Errorf("expected text %q, got %q", "Done.", resp.Text())
	}

	if len(body.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(body.Messages))
	}
	if body.Messages[1]["role"] != "assistant" || body.Messages[1]["tool_calls"] == nil {
		t.Errorf("expected assistant tool call message, got %v", body.Messages[1])
	}
	if body.Messages[2]["role"] != "tool" || body.Messages[2]["tool_call_id"] != "call_abc" {
		t.Errorf("expected tool message for call_abc, got %v", body.Messages[2])
	}
}

func TestOpenAIAdapterErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		check     func(error) bool
	}{
		{http.StatusUnauthorized, false, func(err error) bool { _, ok := err.(*AuthenticationError); return ok }},
		{http.StatusTooManyRequests, true, func(err error) bool { _, ok := err.(*RateLimitError); return ok }},
		{http.StatusBadGateway, true, func(err error) bool { _, ok := err.(*ServerError); return ok }},
	}

	for _, tt := range tests {
		adapter := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(tt.status)
			_, _ = io.WriteString(w, `{"error":{"message":"nope","type":"test","code":"test"}}`)
		})
		_, err := adapter.Complete(context.Background(), Request{Messages: []Message{UserMessage("hi")}})
		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if !tt.check(err) {
			t.Errorf("status %d: unexpected error type %T", tt.status, err)
		}
		if IsRetryable(err) != tt.retryable {
			t.Errorf("status %d: expected retryable=%v", tt.status, tt.retryable)
		}
	}
}

func TestOpenAIAdapterCancelled(t *testing.T) {
	adapter := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapter.Complete(ctx, Request{Messages: []Message{UserMessage("hi")}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if IsRetryable(err) {
		t.Error("cancelled requests must not be retried")
	}
}

func TestOpenAIAdapterTranscribe(t *testing.T) {
	adapter := newOpenAITestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/audio/transcriptions") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart body: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected whisper-1, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" create a file named hello.txt "}`)
	})

	text, err := adapter.Transcribe(context.Background(), strings.NewReader("RIFF...."), "clip.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "create a file named hello.txt" {
		t.Errorf("unexpected transcription %q", text)
	}
}
