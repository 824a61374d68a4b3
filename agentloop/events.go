package agentloop

import (
	"sync"
	"time"
)

// EventKind identifies the type of session event.
type EventKind string

const (
	EventSessionStart     EventKind = "session_start"
	EventSessionEnd       EventKind = "session_end"
	EventUserInput        EventKind = "user_input"
	EventAssistantTextEnd EventKind = "assistant_text_end"
	EventToolCallStart    EventKind = "tool_call_start"
	EventToolCallEnd      EventKind = "tool_call_end"
	EventIgnoredToolCalls EventKind = "ignored_tool_calls"
	EventLoopDetection    EventKind = "loop_detection"
	EventTurnLimit        EventKind = "turn_limit"
	EventWarning          EventKind = "warning"
	EventError            EventKind = "error"
)

// SessionEvent is a typed event emitted by the agent loop.
type SessionEvent struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Data      map[string]any `json:"data,omitempty"`
}

// String returns a string field of the event data, or "".
func (e SessionEvent) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// EventEmitter delivers events to the host over a buffered channel. Emit
// never blocks; events are dropped when the buffer is full.
type EventEmitter struct {
	sessionID string
	ch        chan SessionEvent
	closed    bool
	dropped   int
	mu        sync.Mutex
}

// DefaultEventBuffer is the channel capacity used when none is given.
const DefaultEventBuffer = 256

// NewEventEmitter creates a new EventEmitter with a buffered channel.
func NewEventEmitter(sessionID string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = DefaultEventBuffer
	}
	return &EventEmitter{
		sessionID: sessionID,
		ch:        make(chan SessionEvent, bufferSize),
	}
}

// Emit sends an event. After Close it is a no-op.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	event := SessionEvent{
		Kind:      kind,
		Timestamp: time.Now(),
		SessionID: e.sessionID,
		Data:      data,
	}
	select {
	case e.ch <- event:
	default:
		e.dropped++
	}
}

// Dropped returns how many events were discarded because nobody was
// reading fast enough.
func (e *EventEmitter) Dropped() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dropped
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan SessionEvent {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}
