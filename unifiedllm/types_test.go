package unifiedllm

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role Role
		text string
	}{
		{"system", SystemMessage("You are vox."), RoleSystem, "You are vox."},
		{"user", UserMessage("make a page"), RoleUser, "make a page"},
		{"assistant", AssistantMessage("done"), RoleAssistant, "done"},
		{"tool result", ToolResultMessage("call_1", "File created", false), RoleTool, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Role != tt.role {
				t.Errorf("expected role %q, got %q", tt.role, tt.msg.Role)
			}
			if got := tt.msg.TextContent(); got != tt.text {
				t.Errorf("expected text %q, got %q", tt.text, got)
			}
		})
	}
}

func TestToolResultMessage(t *testing.T) {
	msg := ToolResultMessage("call_1", "no such file", true)
	want := Message{
		Role:       RoleTool,
		ToolCallID: "call_1",
		Content: []ContentPart{{
			Kind:       ContentToolResult,
			ToolResult: &ToolResultData{ToolCallID: "call_1", Content: "no such file", IsError: true},
		}},
	}
	if diff := cmp.Diff(want, msg); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

func TestMixedContent(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			TextPart("Writing "),
			ToolCallPart("call_1", "createFile", json.RawMessage(`{"filePath":"a.html"}`)),
			TextPart("two files."),
			ToolCallPart("call_2", "createFile", json.RawMessage(`{"filePath":"b.html"}`)),
		},
	}

	if got := msg.TextContent(); got != "Writing two files." {
		t.Errorf("text should skip tool calls, got %q", got)
	}

	want := []ToolCallData{
		{ID: "call_1", Name: "createFile", Arguments: json.RawMessage(`{"filePath":"a.html"}`), Type: "function"},
		{ID: "call_2", Name: "createFile", Arguments: json.RawMessage(`{"filePath":"b.html"}`), Type: "function"},
	}
	if diff := cmp.Diff(want, msg.ToolCalls()); diff != "" {
		t.Errorf("tool calls mismatch (-want +got):\n%s", diff)
	}

	resp := Response{Message: msg}
	calls := resp.ToolCallsFromResponse()
	if len(calls) != 2 || calls[1].ID != "call_2" || string(calls[1].Arguments) != `{"filePath":"b.html"}` {
		t.Errorf("unexpected response tool calls %+v", calls)
	}
	if resp.Text() != msg.TextContent() {
		t.Errorf("response text should match message text")
	}
}

func TestUsageAdd(t *testing.T) {
	n := func(v int) *int { return &v }

	tests := []struct {
		name string
		a, b Usage
		want Usage
	}{
		{
			"counts",
			Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
			Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20},
			Usage{InputTokens: 15, OutputTokens: 35, TotalTokens: 50},
		},
		{
			"reasoning on both",
			Usage{ReasoningTokens: n(5)},
			Usage{ReasoningTokens: n(10)},
			Usage{ReasoningTokens: n(15)},
		},
		{
			"reasoning on one side",
			Usage{},
			Usage{ReasoningTokens: n(7)},
			Usage{ReasoningTokens: n(7)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.a.Add(tt.b)); diff != "" {
				t.Errorf("sum mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestToolDefinitionParametersMap(t *testing.T) {
	tests := []struct {
		name   string
		params string
		want   map[string]interface{}
	}{
		{
			"schema kept",
			`{"type":"object","properties":{"filePath":{"type":"string"}},"required":["filePath"]}`,
			map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"filePath": map[string]interface{}{"type": "string"}},
				"required":   []interface{}{"filePath"},
			},
		},
		{"empty schema", "", map[string]interface{}{"type": "object"}},
		{"type filled in", `{"properties":{}}`, map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := ToolDefinition{Name: "readFile", Parameters: json.RawMessage(tt.params)}
			if diff := cmp.Diff(tt.want, def.ParametersMap()); diff != "" {
				t.Errorf("parameters mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
