package agentloop

import (
	"slices"
	"sync"
	"time"

	"github.com/martinemde/vox/unifiedllm"
)

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnSystem     TurnKind = "system"
	TurnUser       TurnKind = "user"
	TurnAssistant  TurnKind = "assistant"
	TurnToolResult TurnKind = "tool_result"
)

// Turn is a single entry in the conversation history. An assistant turn
// with a non-nil ToolCall is the model's request to run a tool; the
// tool_result turn that follows answers it.
type Turn struct {
	Kind       TurnKind             `json:"kind"`
	Timestamp  time.Time            `json:"timestamp"`
	Content    string               `json:"content,omitempty"`
	ToolName   string               `json:"tool_name,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	ToolCall   *unifiedllm.ToolCall `json:"tool_call,omitempty"`
	IsError    bool                 `json:"is_error,omitempty"`
}

func (t Turn) clone() Turn {
	if t.ToolCall != nil {
		call := *t.ToolCall
		call.Arguments = slices.Clone(call.Arguments)
		t.ToolCall = &call
	}
	return t
}

// Conversation is the append-only, ordered turn log of one session.
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation creates an empty conversation.
func NewConversation() *Conversation {
	return &Conversation{}
}

func (c *Conversation) append(t Turn) {
	t.Timestamp = time.Now()
	c.mu.Lock()
	c.turns = append(c.turns, t)
	c.mu.Unlock()
}

// AppendUser records user input.
func (c *Conversation) AppendUser(text string) {
	c.append(Turn{Kind: TurnUser, Content: text})
}

// AppendAssistant records a final assistant answer.
func (c *Conversation) AppendAssistant(text string) {
	c.append(Turn{Kind: TurnAssistant, Content: text})
}

// AppendToolCall records the model's request to run call. text is any
// prose the model sent alongside it.
func (c *Conversation) AppendToolCall(text string, call unifiedllm.ToolCall) {
	call.Arguments = slices.Clone(call.Arguments)
	c.append(Turn{Kind: TurnAssistant, Content: text, ToolName: call.Name, ToolCallID: call.ID, ToolCall: &call})
}

// AppendToolResult records the outcome of a tool call.
func (c *Conversation) AppendToolResult(name, callID, content string, isError bool) {
	c.append(Turn{Kind: TurnToolResult, ToolName: name, ToolCallID: callID, Content: content, IsError: isError})
}

// Snapshot returns a deep copy of the history.
func (c *Conversation) Snapshot() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	for i, t := range c.turns {
		out[i] = t.clone()
	}
	return out
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// ConvertHistoryToMessages converts the turn-based history into LLM messages.
func ConvertHistoryToMessages(history []Turn) []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(history))
	for _, turn := range history {
		switch turn.Kind {
		case TurnSystem:
			messages = append(messages, unifiedllm.SystemMessage(turn.Content))
		case TurnUser:
			messages = append(messages, unifiedllm.UserMessage(turn.Content))
		case TurnAssistant:
			msg := unifiedllm.AssistantMessage(turn.Content)
			if turn.Content == "" {
				msg.Content = nil
			}
			if turn.ToolCall != nil {
				msg.Content = append(msg.Content,
					unifiedllm.ToolCallPart(turn.ToolCall.ID, turn.ToolCall.Name, turn.ToolCall.Arguments))
			}
			messages = append(messages, msg)
		case TurnToolResult:
			messages = append(messages,
				unifiedllm.ToolResultMessage(turn.ToolCallID, turn.Content, turn.IsError))
		}
	}
	return messages
}
