package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/martinemde/vox/unifiedllm"
	"github.com/martinemde/vox/workspace"
)

type step func(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)

// scriptedAdapter answers model calls from a fixed script. Once the script
// runs out, fallback decides; without a fallback the call fails.
type scriptedAdapter struct {
	mu       sync.Mutex
	steps    []step
	fallback step
	requests []unifiedllm.Request
}

func (a *scriptedAdapter) Name() string { return "scripted" }

func (a *scriptedAdapter) Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error) {
	a.mu.Lock()
	a.requests = append(a.requests, req)
	idx := len(a.requests) - 1
	var next step
	if idx < len(a.steps) {
		next = a.steps[idx]
	} else {
		next = a.fallback
	}
	a.mu.Unlock()

	if next == nil {
		return nil, fmt.Errorf("unexpected model call %d", idx+1)
	}
	return next(ctx, req)
}

func (a *scriptedAdapter) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.requests)
}

func (a *scriptedAdapter) request(i int) unifiedllm.Request {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.requests[i]
}

func reply(resp *unifiedllm.Response) step {
	return func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error) {
		return resp, nil
	}
}

func fail(err error) step {
	return func(context.Context, unifiedllm.Request) (*unifiedllm.Response, error) {
		return nil, err
	}
}

func textResponse(text string) *unifiedllm.Response {
	return &unifiedllm.Response{
		ID:           "resp_text",
		Model:        "test-model",
		Provider:     "scripted",
		Message:      unifiedllm.AssistantMessage(text),
		FinishReason: unifiedllm.FinishReason{Reason: "stop"},
	}
}

func toolResponse(calls ...unifiedllm.ToolCall) *unifiedllm.Response {
	msg := unifiedllm.Message{Role: unifiedllm.RoleAssistant}
	for _, c := range calls {
		msg.Content = append(msg.Content, unifiedllm.ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	return &unifiedllm.Response{
		ID:           "resp_tools",
		Model:        "test-model",
		Provider:     "scripted",
		Message:      msg,
		FinishReason: unifiedllm.FinishReason{Reason: "tool_calls"},
	}
}

func toolCall(id, name string, args any) unifiedllm.ToolCall {
	var raw json.RawMessage
	switch v := args.(type) {
	case string:
		raw = json.RawMessage(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		raw = b
	}
	return unifiedllm.ToolCall{ID: id, Name: name, Arguments: raw}
}

func testConfig() SessionConfig {
	cfg := DefaultSessionConfig()
	cfg.RetryPolicy = unifiedllm.RetryPolicy{MaxRetries: 2}
	cfg.ToolTimeout = 10 * time.Second
	cfg.ModelTimeout = 0
	return cfg
}

func testClient(adapter unifiedllm.ProviderAdapter) *unifiedllm.Client {
	return unifiedllm.NewClient(unifiedllm.WithProvider("scripted", adapter))
}

func testProfile() ProviderProfile {
	return NewProviderProfile("scripted", "test-model")
}

func newTestSandbox(t *testing.T) *workspace.Sandbox {
	t.Helper()
	sb, err := workspace.Create(t.TempDir())
	if err != nil {
		t.Fatalf("create workspace: %v", err)
	}
	return sb
}

// newTestSession builds a session over a fresh workspace with the workspace
// tools registered. extra tools are registered after them.
func newTestSession(t *testing.T, adapter *scriptedAdapter, cfg SessionConfig, extra ...RegisteredTool) *Session {
	t.Helper()
	sb := newTestSandbox(t)
	reg := NewToolRegistry()
	if err := RegisterWorkspaceTools(reg, sb, 10*time.Second); err != nil {
		t.Fatalf("register tools: %v", err)
	}
	for _, tool := range extra {
		if err := reg.Register(tool); err != nil {
			t.Fatalf("register %s: %v", tool.Definition.Name, err)
		}
	}
	s := NewSession(testProfile(), sb, reg, WithClient(testClient(adapter)), WithSessionConfig(cfg))
	t.Cleanup(s.Close)
	return s
}

// drainEvents closes the session and collects every buffered event.
func drainEvents(s *Session) []SessionEvent {
	s.Close()
	var events []SessionEvent
	for ev := range s.Events() {
		events = append(events, ev)
	}
	return events
}

func eventKinds(events []SessionEvent) []EventKind {
	kinds := make([]EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func turnKinds(turns []Turn) []TurnKind {
	kinds := make([]TurnKind, len(turns))
	for i, t := range turns {
		kinds[i] = t.Kind
	}
	return kinds
}
