package agentloop

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/martinemde/vox/unifiedllm"
)

func TestConversationAppendOrder(t *testing.T) {
	c := NewConversation()
	c.AppendUser("make a file")
	c.AppendToolCall("", unifiedllm.ToolCall{ID: "c1", Name: ToolCreateFile, Arguments: json.RawMessage(`{"filePath":"a"}`)})
	c.AppendToolResult(ToolCreateFile, "c1", "File created at /w/a", false)
	c.AppendAssistant("done")

	want := []Turn{
		{Kind: TurnUser, Content: "make a file"},
		{Kind: TurnAssistant, ToolName: ToolCreateFile, ToolCallID: "c1",
			ToolCall: &unifiedllm.ToolCall{ID: "c1", Name: ToolCreateFile, Arguments: json.RawMessage(`{"filePath":"a"}`)}},
		{Kind: TurnToolResult, ToolName: ToolCreateFile, ToolCallID: "c1", Content: "File created at /w/a"},
		{Kind: TurnAssistant, Content: "done"},
	}
	got := c.Snapshot()
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(Turn{}, "Timestamp")); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("turn %d timestamp goes backwards", i)
		}
	}
}

func TestConversationSnapshotIsDeepCopy(t *testing.T) {
	c := NewConversation()
	args := json.RawMessage(`{"filePath":"a"}`)
	c.AppendToolCall("", unifiedllm.ToolCall{ID: "c1", Name: ToolReadFile, Arguments: args})
	args[2] = 'X'

	snap := c.Snapshot()
	snap[0].Content = "mutated"
	snap[0].ToolCall.Arguments[2] = 'Y'
	snap[0].ToolCall.Name = "other"

	again := c.Snapshot()
	if again[0].Content != "" || again[0].ToolCall.Name != ToolReadFile {
		t.Errorf("snapshot mutation leaked into history: %+v", again[0])
	}
	if string(again[0].ToolCall.Arguments) != `{"filePath":"a"}` {
		t.Errorf("arguments were aliased: %s", again[0].ToolCall.Arguments)
	}
}

func TestConversationConcurrentReaders(t *testing.T) {
	c := NewConversation()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = c.Snapshot()
				_ = c.Len()
			}
		}()
	}
	for j := 0; j < 100; j++ {
		c.AppendUser("x")
	}
	wg.Wait()
	if c.Len() != 100 {
		t.Errorf("expected 100 turns, got %d", c.Len())
	}
}

func TestConvertHistoryToMessages(t *testing.T) {
	c := NewConversation()
	c.AppendUser("hi")
	c.AppendToolCall("let me look", unifiedllm.ToolCall{ID: "c1", Name: ToolListWorkingDirectory, Arguments: json.RawMessage(`{}`)})
	c.AppendToolResult(ToolListWorkingDirectory, "c1", `["a.txt"]`, false)
	c.AppendToolCall("", unifiedllm.ToolCall{ID: "c2", Name: ToolReadFile, Arguments: json.RawMessage(`{"filePath":"b"}`)})
	c.AppendToolResult(ToolReadFile, "c2", "Error executing readFile: missing", true)
	c.AppendAssistant("bye")

	msgs := ConvertHistoryToMessages(c.Snapshot())
	if len(msgs) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(msgs))
	}

	if msgs[1].TextContent() != "let me look" || len(msgs[1].ToolCalls()) != 1 {
		t.Errorf("assistant tool call with prose mismatch: %+v", msgs[1])
	}
	if len(msgs[3].Content) != 1 || msgs[3].Content[0].Kind != unifiedllm.ContentToolCall {
		t.Errorf("tool call without prose should carry only the call: %+v", msgs[3])
	}
	result := msgs[4]
	if result.Role != unifiedllm.RoleTool || result.ToolCallID != "c2" {
		t.Errorf("unexpected tool message %+v", result)
	}
	if tr := result.Content[0].ToolResult; tr == nil || !tr.IsError {
		t.Errorf("expected error flag on tool result, got %+v", result.Content[0])
	}
}
