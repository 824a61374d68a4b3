package agentloop

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/martinemde/vox/unifiedllm"
	"github.com/martinemde/vox/workspace"
)

// SessionState represents the current lifecycle state of a session.
type SessionState string

const (
	StateAwaitingInput SessionState = "awaiting_input"
	StateModelDeciding SessionState = "model_deciding"
	StateToolDispatch  SessionState = "tool_dispatch"
	StateFinished      SessionState = "finished"
	StateExhausted     SessionState = "exhausted"
	StateClosed        SessionState = "closed"
)

// DefaultMaxIterations is the number of model calls one Run may make.
const DefaultMaxIterations = 20

// MaxIterationsMessage is returned by Run when the iteration ceiling is hit
// before the model produced a final answer.
const MaxIterationsMessage = "The maximum number of iterations has been met without a suitable answer. Please try again with a more specific input."

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	MaxIterations       int
	ToolTimeout         time.Duration // per tool invocation; 0 disables
	ModelTimeout        time.Duration // per model call attempt; 0 disables
	RetryPolicy         unifiedllm.RetryPolicy
	Temperature         *float64
	ToolOutputLimits    map[string]int
	ToolLineLimits      map[string]int
	EnableLoopDetection bool
	LoopDetectionWindow int
	EventBuffer         int
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxIterations:       DefaultMaxIterations,
		ToolTimeout:         5 * time.Minute,
		ModelTimeout:        2 * time.Minute,
		RetryPolicy:         unifiedllm.DefaultRetryPolicy(),
		EnableLoopDetection: true,
		LoopDetectionWindow: 6,
		EventBuffer:         DefaultEventBuffer,
	}
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithClient sets the model client. The default client is used otherwise.
func WithClient(client *unifiedllm.Client) SessionOption {
	return func(s *Session) { s.client = client }
}

// WithSessionConfig replaces the default configuration.
func WithSessionConfig(cfg SessionConfig) SessionOption {
	return func(s *Session) { s.config = cfg }
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// Session is one conversation bound to one workspace. Run calls are
// serialized; different sessions share nothing mutable.
type Session struct {
	id           string
	profile      ProviderProfile
	sandbox      *workspace.Sandbox
	tools        *ToolRegistry
	conversation *Conversation
	emitter      *EventEmitter
	config       SessionConfig
	client       *unifiedllm.Client
	logger       *zap.Logger

	runMu sync.Mutex
	mu    sync.Mutex
	state SessionState
	usage unifiedllm.Usage
}

// NewSession creates a session over sb that may call the tools in reg.
func NewSession(profile ProviderProfile, sb *workspace.Sandbox, reg *ToolRegistry, opts ...SessionOption) *Session {
	s := &Session{
		id:           uuid.New().String(),
		profile:      profile,
		sandbox:      sb,
		tools:        reg,
		conversation: NewConversation(),
		config:       DefaultSessionConfig(),
		logger:       zap.NewNop(),
		state:        StateAwaitingInput,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tools == nil {
		s.tools = NewToolRegistry()
	}
	if s.config.MaxIterations <= 0 {
		s.config.MaxIterations = DefaultMaxIterations
	}
	if s.config.LoopDetectionWindow <= 0 {
		s.config.EnableLoopDetection = false
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	s.emitter = NewEventEmitter(s.id, s.config.EventBuffer)
	s.emitter.Emit(EventSessionStart, map[string]any{
		"workspace": sb.Root(),
		"model":     profile.Model,
	})
	s.logger.Info("session started", zap.String("workspace", sb.Root()), zap.String("model", profile.Model))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Sandbox returns the session's workspace.
func (s *Session) Sandbox() *workspace.Sandbox { return s.sandbox }

// Tools returns the session's tool registry.
func (s *Session) Tools() *ToolRegistry { return s.tools }

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		s.state = state
	}
}

// History returns a copy of the conversation history.
func (s *Session) History() []Turn {
	return s.conversation.Snapshot()
}

// Events returns the event channel for the host application.
func (s *Session) Events() <-chan SessionEvent {
	return s.emitter.Events()
}

// Usage returns the tokens spent by every model call so far.
func (s *Session) Usage() unifiedllm.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage
}

// Close ends the session. The workspace stays on disk.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()

	usage := s.Usage()
	s.emitter.Emit(EventSessionEnd, map[string]any{
		"turns":        s.conversation.Len(),
		"total_tokens": usage.TotalTokens,
	})
	s.emitter.Close()
	s.logger.Info("session closed",
		zap.Int("input_tokens", usage.InputTokens),
		zap.Int("output_tokens", usage.OutputTokens),
		zap.Int("dropped_events", s.emitter.Dropped()))
}

// Run feeds userText to the model and dispatches the tools it asks for
// until it answers, the iteration ceiling is reached, or ctx is done.
//
// Only the first tool call of a response is dispatched; any others are
// dropped and reported with an ignored_tool_calls event. Hitting the
// ceiling returns MaxIterationsMessage and a nil error. Model failures that
// survive the retry policy are returned as *unifiedllm.GatewayError.
func (s *Session) Run(ctx context.Context, userText string) (string, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.State() == StateClosed {
		return "", ErrSessionClosed
	}
	if s.client == nil {
		s.client = unifiedllm.GetDefaultClient()
	}

	s.conversation.AppendUser(userText)
	s.emitter.Emit(EventUserInput, map[string]any{"content": userText})

	systemPrompt := s.profile.BuildSystemPrompt(s.sandbox.Root())
	toolDefs := s.tools.LLMDefinitions()

	for iteration := 0; iteration < s.config.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return "", s.cancelled(err)
		}

		s.setState(StateModelDeciding)
		response, err := s.complete(ctx, systemPrompt, toolDefs)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", s.cancelled(ctxErr)
			}
			s.setState(StateAwaitingInput)
			s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
			s.logger.Error("model call failed", zap.Error(err))
			return "", err
		}

		calls := response.ToolCallsFromResponse()
		if len(calls) == 0 {
			text := response.Text()
			s.conversation.AppendAssistant(text)
			s.emitter.Emit(EventAssistantTextEnd, map[string]any{"text": text})
			s.checkContextUsage()
			s.setState(StateFinished)
			return text, nil
		}

		call := calls[0]
		if len(calls) > 1 {
			s.reportIgnored(call, calls[1:])
		}

		s.setState(StateToolDispatch)
		s.conversation.AppendToolCall(response.Text(), call)
		content, isError := s.dispatch(ctx, call)
		s.conversation.AppendToolResult(call.Name, call.ID, content, isError)

		s.checkLoop()
		s.checkContextUsage()
	}

	if err := ctx.Err(); err != nil {
		return "", s.cancelled(err)
	}
	s.setState(StateExhausted)
	s.emitter.Emit(EventTurnLimit, map[string]any{"iterations": s.config.MaxIterations})
	s.logger.Warn("iteration ceiling reached", zap.Int("max_iterations", s.config.MaxIterations))
	return MaxIterationsMessage, nil
}

func (s *Session) cancelled(err error) error {
	s.setState(StateAwaitingInput)
	s.emitter.Emit(EventError, map[string]any{"error": err.Error()})
	s.logger.Info("run cancelled", zap.Error(err))
	return err
}

// complete makes one model call under the retry policy.
func (s *Session) complete(ctx context.Context, systemPrompt string, toolDefs []unifiedllm.ToolDefinition) (*unifiedllm.Response, error) {
	messages := append([]unifiedllm.Message{unifiedllm.SystemMessage(systemPrompt)},
		ConvertHistoryToMessages(s.conversation.Snapshot())...)

	request := unifiedllm.Request{
		Model:       s.profile.Model,
		Provider:    s.profile.Provider,
		Messages:    messages,
		ToolDefs:    toolDefs,
		ToolChoice:  &unifiedllm.ToolChoice{Mode: "auto"},
		Temperature: s.config.Temperature,
		Metadata:    map[string]string{"session_id": s.id},
	}
	if len(toolDefs) == 0 {
		request.ToolChoice = nil
	}

	policy := s.config.RetryPolicy
	onRetry := policy.OnRetry
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		s.logger.Warn("retrying model call", zap.Error(err), zap.Int("attempt", attempt), zap.Duration("delay", delay))
		if onRetry != nil {
			onRetry(err, attempt, delay)
		}
	}

	response, attempts, err := unifiedllm.Retry(ctx, policy, func(ctx context.Context) (*unifiedllm.Response, error) {
		if s.config.ModelTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.config.ModelTimeout)
			defer cancel()
		}
		return s.client.Complete(ctx, request)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &unifiedllm.GatewayError{
			Provider: s.profile.Provider,
			Model:    s.profile.Model,
			Attempts: attempts,
			Err:      err,
		}
	}

	s.mu.Lock()
	s.usage = s.usage.Add(response.Usage)
	s.mu.Unlock()
	return response, nil
}

type toolOutcome struct {
	output string
	err    error
}

// dispatch invokes one tool call and renders its outcome for the model.
// Failures never abort the run; they become error results.
func (s *Session) dispatch(ctx context.Context, call unifiedllm.ToolCall) (string, bool) {
	s.emitter.Emit(EventToolCallStart, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"arguments": string(call.Arguments),
	})
	log := s.logger.With(zap.String("tool", call.Name), zap.String("call_id", call.ID))

	toolCtx := ctx
	if s.config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, s.config.ToolTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan toolOutcome, 1)
	go func() {
		output, err := s.tools.Invoke(toolCtx, call.Name, call.Arguments)
		done <- toolOutcome{output: output, err: err}
	}()

	var outcome toolOutcome
	select {
	case outcome = <-done:
	case <-toolCtx.Done():
		select {
		case outcome = <-done:
		default:
			outcome = toolOutcome{err: toolCtx.Err()}
		}
	}
	if outcome.err != nil && errors.Is(toolCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		outcome.err = fmt.Errorf("%w after %s", ErrToolTimeout, s.config.ToolTimeout)
	}

	elapsed := time.Since(start)
	if outcome.err != nil {
		message := fmt.Sprintf("Error executing %s: %v", call.Name, outcome.err)
		log.Warn("tool failed", zap.Error(outcome.err), zap.Duration("elapsed", elapsed))
		s.emitter.Emit(EventToolCallEnd, map[string]any{
			"tool_name": call.Name,
			"call_id":   call.ID,
			"error":     message,
		})
		return message, true
	}

	log.Debug("tool completed", zap.Duration("elapsed", elapsed), zap.Int("output_bytes", len(outcome.output)))
	s.emitter.Emit(EventToolCallEnd, map[string]any{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"output":    outcome.output,
	})
	return TruncateToolOutput(outcome.output, call.Name, s.config.ToolOutputLimits, s.config.ToolLineLimits), false
}

func (s *Session) reportIgnored(dispatched unifiedllm.ToolCall, ignored []unifiedllm.ToolCall) {
	names := make([]string, len(ignored))
	for i, c := range ignored {
		names[i] = c.Name
	}
	s.logger.Warn("dropping extra tool calls",
		zap.String("dispatched", dispatched.Name),
		zap.Strings("ignored", names))
	s.emitter.Emit(EventIgnoredToolCalls, map[string]any{
		"dispatched": dispatched.Name,
		"ignored":    names,
	})
}

func (s *Session) checkLoop() {
	if !s.config.EnableLoopDetection {
		return
	}
	window := s.config.LoopDetectionWindow
	if cycle, ok := DetectLoop(s.conversation.Snapshot(), window); ok {
		message := fmt.Sprintf("Loop detected: the last %d tool calls repeat a cycle of %d.", window, cycle)
		s.logger.Warn("loop detected", zap.Int("window", window), zap.Int("cycle", cycle))
		s.emitter.Emit(EventLoopDetection, map[string]any{"message": message, "cycle": cycle})
	}
}

// checkContextUsage emits a warning if the history approaches the model's
// context window, estimated at four characters per token.
func (s *Session) checkContextUsage() {
	contextWindow := s.profile.ContextWindow
	if contextWindow <= 0 {
		return
	}

	totalChars := 0
	for _, turn := range s.conversation.Snapshot() {
		totalChars += len(turn.Content)
		if turn.ToolCall != nil {
			totalChars += len(turn.ToolCall.Arguments)
		}
	}

	approxTokens := totalChars / 4
	threshold := int(float64(contextWindow) * 0.8)
	if approxTokens > threshold {
		pct := int(float64(approxTokens) / float64(contextWindow) * 100)
		s.emitter.Emit(EventWarning, map[string]any{
			"message": fmt.Sprintf("Context usage at ~%d%% of context window", pct),
		})
	}
}
