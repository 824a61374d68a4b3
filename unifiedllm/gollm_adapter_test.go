package unifiedllm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewGollmAdapterDefaultModel(t *testing.T) {
	adapter, err := NewGollmAdapter("anthropic", GollmAPIKey("test-key-not-real"))
	if err != nil {
		t.Skipf("gollm refused to build a client offline: %v", err)
	}
	if adapter.Name() != "anthropic" {
		t.Errorf("expected name anthropic, got %q", adapter.Name())
	}
	if adapter.model != "claude-sonnet-4-5" {
		t.Errorf("expected catalog default, got %q", adapter.model)
	}
}

func TestNewGollmAdapterUnknownProvider(t *testing.T) {
	_, err := NewGollmAdapter("nobody")
	var cfg *ConfigurationError
	if !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if !strings.Contains(err.Error(), `"nobody"`) {
		t.Errorf("error should name the provider: %v", err)
	}
}

func TestGollmAdapterClassify(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}

	tests := []struct {
		msg       string
		want      string
		retryable bool
	}{
		{"401 Unauthorized", "*unifiedllm.AuthenticationError", false},
		{"invalid API key provided", "*unifiedllm.AuthenticationError", false},
		{"request forbidden", "*unifiedllm.AccessDeniedError", false},
		{"model not found", "*unifiedllm.NotFoundError", false},
		{"status 429: slow down", "*unifiedllm.RateLimitError", true},
		{"context length exceeded", "*unifiedllm.ContextLengthError", false},
		{"API error 529 overloaded", "*unifiedllm.ServerError", true},
		{"internal server error", "*unifiedllm.ServerError", true},
		{"timeout waiting for response", "*unifiedllm.RequestTimeoutError", true},
		{"blocked by safety settings", "*unifiedllm.ContentFilterError", false},
		{"max tokens 4096 reached unexpectedly", "*unifiedllm.ProviderError", true},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			cause := errors.New(tt.msg)
			err := adapter.classify(cause)
			if got := typeName(err); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("expected retryable=%v", tt.retryable)
			}
			if !errors.Is(err, cause) {
				t.Error("classified error should wrap the gollm error")
			}
		})
	}
}

func TestGollmAdapterSupportsToolChoice(t *testing.T) {
	tests := []struct {
		provider string
		mode     string
		want     bool
	}{
		{"anthropic", "auto", true},
		{"anthropic", "none", true},
		{"anthropic", "required", true},
		{"anthropic", "named", true},
		{"anthropic", "sometimes", false},
		{"gemini", "named", false},
		{"gemini", "auto", true},
	}
	for _, tt := range tests {
		adapter := &GollmAdapter{provider: tt.provider}
		if got := adapter.SupportsToolChoice(tt.mode); got != tt.want {
			t.Errorf("%s/%s: expected %v, got %v", tt.provider, tt.mode, tt.want, got)
		}
	}
}

func TestTranscript(t *testing.T) {
	got := transcript([]Message{
		SystemMessage("You are vox."),
		UserMessage("create hello.txt"),
		{Role: RoleAssistant, Content: []ContentPart{
			TextPart("on it"),
			ToolCallPart("call_1", "createFile", json.RawMessage(`{"filePath":"hello.txt"}`)),
		}},
		ToolResultMessage("call_1", "File created", false),
		ToolResultMessage("call_2", "boom", true),
	})

	want := strings.Join([]string{
		"create hello.txt",
		"[Assistant]: on it",
		`[Tool Call]: createFile {"filePath":"hello.txt"}`,
		"[Tool Result]: File created",
		"[Tool Error]: boom",
	}, "\n")
	if got != want {
		t.Errorf("transcript mismatch:\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestGollmAdapterPrompt(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}
	prompt := adapter.prompt(Request{
		Messages: []Message{SystemMessage("You are vox.")},
		ToolDefs: []ToolDefinition{{Name: "createFile", Description: "Create a file"}},
	})
	if prompt == nil {
		t.Fatal("expected a prompt")
	}
}

func TestSplitToolCalls(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		before string
		names  []string
	}{
		{"plain text", "All done.", "All done.", nil},
		{"bare list", `[{"name":"readFile","arguments":{"filePath":"a"}}]`, "", []string{"readFile"}},
		{"wrapped", `Let me look. {"tool_calls":[{"name":"listFiles"},{"name":"readFile","arguments":{}}]} thanks`, "Let me look.", []string{"listFiles", "readFile"}},
		{"unrelated json", `Result: {"ok":true}`, `Result: {"ok":true}`, nil},
		{"nameless entries dropped", `[{"arguments":{}},{"name":"npmInit"}]`, "", []string{"npmInit"}},
		{"broken json", `[{"name":"readFile"`, `[{"name":"readFile"`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, calls := splitToolCalls(tt.text)
			if before != tt.before {
				t.Errorf("expected text %q, got %q", tt.before, before)
			}
			if len(calls) != len(tt.names) {
				t.Fatalf("expected %d calls, got %d", len(tt.names), len(calls))
			}
			for i, c := range calls {
				if c.Name != tt.names[i] {
					t.Errorf("call %d: expected %s, got %s", i, tt.names[i], c.Name)
				}
				if !json.Valid(c.Arguments) {
					t.Errorf("call %d: invalid arguments %q", i, c.Arguments)
				}
			}
		})
	}
}

func TestGollmAdapterResponseWithToolCalls(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic", model: "claude-sonnet-4-5"}
	resp := adapter.response(Request{}, `[{"name":"readFile","arguments":{"filePath":"hello.txt"}}]`)

	calls := resp.ToolCallsFromResponse()
	if len(calls) != 1 || calls[0].Name != "readFile" {
		t.Fatalf("unexpected tool calls %+v", calls)
	}
	if !strings.HasPrefix(calls[0].ID, "call_") {
		t.Errorf("expected generated call id, got %q", calls[0].ID)
	}
	if resp.FinishReason.Reason != "tool_calls" {
		t.Errorf("expected finish reason tool_calls, got %q", resp.FinishReason.Reason)
	}
	if resp.Model != "claude-sonnet-4-5" {
		t.Errorf("expected adapter default model, got %q", resp.Model)
	}
	if resp.Text() != "" {
		t.Errorf("expected no text, got %q", resp.Text())
	}
}

func TestGollmAdapterResponsePlainText(t *testing.T) {
	adapter := &GollmAdapter{provider: "anthropic"}
	resp := adapter.response(Request{Model: "claude-haiku-4-5", Messages: []Message{UserMessage("hi")}}, "All done.")
	if resp.Text() != "All done." {
		t.Errorf("expected text %q, got %q", "All done.", resp.Text())
	}
	if resp.Model != "claude-haiku-4-5" {
		t.Errorf("request model should win, got %q", resp.Model)
	}
	if resp.Usage.TotalTokens != resp.Usage.InputTokens+resp.Usage.OutputTokens || resp.Usage.InputTokens < 1 {
		t.Errorf("inconsistent usage %+v", resp.Usage)
	}
}

func typeName(v any) string { return fmt.Sprintf("%T", v) }
