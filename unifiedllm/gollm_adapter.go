package unifiedllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter reaches providers without a native adapter through gollm.
//
// gollm has no structured message list or tool call results, so the
// conversation is flattened into a labelled transcript and tool calls are
// read back out of the reply text as JSON.
//
// gollm keeps model and sampling options on the LLM value itself, so calls
// are serialized to keep one request's options out of another's.
type GollmAdapter struct {
	provider string
	model    string
	llm      gollm.LLM
	mu       sync.Mutex
}

// GollmOption configures NewGollmAdapter.
type GollmOption func(*gollmSettings)

type gollmSettings struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
}

// GollmAPIKey sets the key explicitly. Without it gollm reads the
// provider's usual environment variable.
func GollmAPIKey(key string) GollmOption {
	return func(s *gollmSettings) { s.apiKey = key }
}

// GollmModel sets the model used when a request names none.
func GollmModel(model string) GollmOption {
	return func(s *gollmSettings) { s.model = model }
}

// GollmMaxTokens sets the default completion limit.
func GollmMaxTokens(n int) GollmOption {
	return func(s *gollmSettings) { s.maxTokens = n }
}

// NewGollmAdapter creates an adapter for provider. The default model is the
// newest catalog entry for the provider.
func NewGollmAdapter(provider string, opts ...GollmOption) (*GollmAdapter, error) {
	s := gollmSettings{maxTokens: 4096, temperature: 0.7}
	for _, opt := range opts {
		opt(&s)
	}
	if s.model == "" {
		info := GetLatestModel(provider, "")
		if info == nil {
			return nil, &ConfigurationError{SDKError: SDKError{
				Message: fmt.Sprintf("no default model known for provider %q", provider),
			}}
		}
		s.model = info.ID
	}

	config := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(s.model),
		gollm.SetMaxTokens(s.maxTokens),
		gollm.SetTemperature(s.temperature),
		gollm.SetMaxRetries(0), // Client retries
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if s.apiKey != "" {
		config = append(config, gollm.SetAPIKey(s.apiKey))
	}

	llm, err := gollm.NewLLM(config...)
	if err != nil {
		return nil, &ConfigurationError{SDKError: SDKError{
			Message: "create gollm client for " + provider,
			Cause:   err,
		}}
	}
	return &GollmAdapter{provider: provider, model: s.model, llm: llm}, nil
}

func (a *GollmAdapter) Name() string {
	return a.provider
}

// Complete renders the request as a gollm prompt and parses the reply.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	prompt := a.prompt(req)

	a.mu.Lock()
	defer a.mu.Unlock()

	if req.Model != "" {
		a.llm.SetOption("model", req.Model)
	}
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}

	text, err := a.llm.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AbortError{SDKError: SDKError{Message: "request cancelled", Cause: ctx.Err()}}
		}
		return nil, a.classify(err)
	}
	return a.response(req, text), nil
}

// SupportsToolChoice reports the tool choice modes gollm can pass through.
// Gemini has no named tool choice.
func (a *GollmAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required":
		return true
	case "named":
		return a.provider != "gemini"
	}
	return false
}

// transcript flattens the non-system messages into one labelled block of
// text.
func transcript(messages []Message) string {
	var b strings.Builder
	line := func(label, text string) {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if label != "" {
			b.WriteString("[" + label + "]: ")
		}
		b.WriteString(text)
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			line("", msg.TextContent())
		case RoleAssistant:
			if text := msg.TextContent(); text != "" {
				line("Assistant", text)
			}
			for _, call := range msg.ToolCalls() {
				line("Tool Call", call.Name+" "+string(call.Arguments))
			}
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				label := "Tool Result"
				if part.ToolResult.IsError {
					label = "Tool Error"
				}
				line(label, part.ToolResult.Content)
			}
		}
	}
	return b.String()
}

func (a *GollmAdapter) prompt(req Request) *gollm.Prompt {
	var system []string
	for _, msg := range req.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.TextContent())
		}
	}

	var opts []gollm.PromptOption
	if len(system) > 0 {
		opts = append(opts, gollm.WithSystemPrompt(strings.Join(system, "\n"), gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, len(req.ToolDefs))
		for i, def := range req.ToolDefs {
			tools[i] = gollm.Tool{
				Type: "function",
				Function: gollm.Function{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.ParametersMap(),
				},
			}
		}
		opts = append(opts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		opts = append(opts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}

	text := transcript(req.Messages)
	if text == "" {
		text = "Hello"
	}
	return gollm.NewPrompt(text, opts...)
}

type replyCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// splitToolCalls finds the first JSON value in text that decodes as a list
// of tool calls, either bare or under a "tool_calls" key. It returns the
// calls and the text before them.
func splitToolCalls(text string) (string, []replyCall) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}

		var raw json.RawMessage
		if json.NewDecoder(strings.NewReader(text[i:])).Decode(&raw) != nil {
			continue
		}

		var calls []replyCall
		if raw[0] == '{' {
			var wrapped struct {
				ToolCalls []replyCall `json:"tool_calls"`
			}
			if json.Unmarshal(raw, &wrapped) != nil {
				continue
			}
			calls = wrapped.ToolCalls
		} else if json.Unmarshal(raw, &calls) != nil {
			continue
		}

		calls = namedCalls(calls)
		if len(calls) > 0 {
			return strings.TrimSpace(text[:i]), calls
		}
	}
	return text, nil
}

func namedCalls(calls []replyCall) []replyCall {
	kept := calls[:0]
	for _, c := range calls {
		if c.Name == "" {
			continue
		}
		if len(bytes.TrimSpace(c.Arguments)) == 0 {
			c.Arguments = json.RawMessage(`{}`)
		}
		kept = append(kept, c)
	}
	return kept
}

func (a *GollmAdapter) response(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}

	before, calls := splitToolCalls(text)
	var parts []ContentPart
	if before != "" || len(calls) == 0 {
		parts = append(parts, TextPart(before))
	}
	for _, c := range calls {
		parts = append(parts, ToolCallPart("call_"+uuid.NewString()[:8], c.Name, c.Arguments))
	}

	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	// gollm reports no usage; approximate at four bytes a token.
	in, out := approxTokens(req), len(text)/4
	return &Response{
		ID:           "resp_" + uuid.NewString()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      Message{Role: RoleAssistant, Content: parts},
		FinishReason: finish,
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

func approxTokens(req Request) int {
	n := 0
	for _, msg := range req.Messages {
		n += len(msg.TextContent()) / 4
	}
	return max(n, 1)
}

var statusInMessage = regexp.MustCompile(`\b([45]\d\d)\b`)

// errorPhrases classify gollm errors that carry no status code.
var errorPhrases = []struct {
	phrase string
	status int
}{
	{"invalid api key", 401},
	{"unauthorized", 401},
	{"forbidden", 403},
	{"not found", 404},
	{"context length", 413},
	{"too many tokens", 413},
	{"rate limit", 429},
	{"internal server", 500},
	{"overloaded", 503},
}

// classify maps a gollm error, which only carries text, onto the error
// hierarchy. A status code in the message wins over known phrases.
func (a *GollmAdapter) classify(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	status := 0
	if m := statusInMessage.FindStringSubmatch(msg); m != nil {
		status, _ = strconv.Atoi(m[1])
	}
	for _, p := range errorPhrases {
		if status != 0 {
			break
		}
		if strings.Contains(lower, p.phrase) {
			status = p.status
		}
	}

	switch {
	case status != 0:
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return &RequestTimeoutError{SDKError: SDKError{Message: msg, Cause: err}}
	case strings.Contains(lower, "content filter"), strings.Contains(lower, "safety"):
		return &ContentFilterError{ProviderError: ProviderError{
			SDKError: SDKError{Message: msg, Cause: err},
			Provider: a.provider,
		}}
	default:
		return &ProviderError{SDKError: SDKError{Message: msg, Cause: err}, Provider: a.provider, Retryable: true}
	}

	return withCause(ErrorFromStatusCode(status, msg, a.provider, "", nil, 0), err)
}
