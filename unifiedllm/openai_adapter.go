package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// DefaultOpenAIModel is used when a request does not name a model.
const DefaultOpenAIModel = "gpt-4o"

// OpenAIAdapter talks to the OpenAI chat completions API with native tool
// calling. It also implements Transcriber through the audio API.
type OpenAIAdapter struct {
	client             openai.Client
	model              string
	transcriptionModel openai.AudioModel
}

// OpenAIAdapterOption configures an OpenAIAdapter.
type OpenAIAdapterOption func(*openAIAdapterConfig)

type openAIAdapterConfig struct {
	baseURL            string
	model              string
	transcriptionModel string
	requestOpts        []option.RequestOption
}

// WithBaseURL points the adapter at a different OpenAI-compatible endpoint.
func WithBaseURL(url string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.baseURL = url
	}
}

// WithDefaultModel sets the model used when a request leaves Model empty.
func WithDefaultModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.model = model
	}
}

// WithTranscriptionModel sets the audio model used by Transcribe.
func WithTranscriptionModel(model string) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.transcriptionModel = model
	}
}

// WithRequestOptions adds extra openai-go request options.
func WithRequestOptions(opts ...option.RequestOption) OpenAIAdapterOption {
	return func(c *openAIAdapterConfig) {
		c.requestOpts = append(c.requestOpts, opts...)
	}
}

// NewOpenAIAdapter creates an adapter authenticated with apiKey.
func NewOpenAIAdapter(apiKey string, opts ...OpenAIAdapterOption) *OpenAIAdapter {
	cfg := &openAIAdapterConfig{
		model:              DefaultOpenAIModel,
		transcriptionModel: string(openai.AudioModelWhisper1),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	requestOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(apiKey)),
		option.WithMaxRetries(0), // We handle retries ourselves.
	}
	if cfg.baseURL != "" {
		requestOpts = append(requestOpts, option.WithBaseURL(cfg.baseURL))
	}
	requestOpts = append(requestOpts, cfg.requestOpts...)

	return &OpenAIAdapter{
		client:             openai.NewClient(requestOpts...),
		model:              cfg.model,
		transcriptionModel: openai.AudioModel(cfg.transcriptionModel),
	}
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string {
	return "openai"
}

// Complete sends one chat completion request.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: buildOpenAIMessages(req.Messages),
	}
	if tools := buildOpenAITools(req.ToolDefs); len(tools) > 0 {
		params.Tools = tools
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.ToolChoice != nil {
		switch req.ToolChoice.Mode {
		case "auto", "none", "required":
			params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(req.ToolChoice.Mode),
			}
		}
	}

	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(model, resp), nil
}

// Transcribe sends recorded audio to the transcription endpoint.
func (a *OpenAIAdapter) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := a.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(audio, filename, ""),
		Model: a.transcriptionModel,
	})
	if err != nil {
		return "", a.translateError(err)
	}
	return strings.TrimSpace(resp.Text), nil
}

// SupportsToolChoice reports whether the adapter supports a particular tool choice mode.
func (a *OpenAIAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required":
		return true
	default:
		return false
	}
}

func buildOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		fn := shared.FunctionDefinitionParam{
			Name:        def.Name,
			Description: openai.String(def.Description),
			Parameters:  shared.FunctionParameters(def.ParametersMap()),
		}
		out = append(out, openai.ChatCompletionToolParam{Function: fn})
	}
	return out
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(msg.TextContent()))
		case RoleUser:
			out = append(out, openai.UserMessage(msg.TextContent()))
		case RoleTool:
			for _, part := range msg.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.ToolCallID))
				}
			}
		case RoleAssistant:
			calls := msg.ToolCalls()
			if len(calls) == 0 {
				out = append(out, openai.AssistantMessage(msg.TextContent()))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(calls))
			for _, call := range calls {
				args := string(call.Arguments)
				if args == "" {
					args = "{}"
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			assistant := openai.ChatCompletionAssistantMessageParam{ToolCalls: toolCalls}
			if text := msg.TextContent(); text != "" {
				assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(text)}
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		}
	}
	return out
}

func (a *OpenAIAdapter) buildResponse(model string, resp *openai.ChatCompletion) *Response {
	id := resp.ID
	if id == "" {
		id = "resp_" + uuid.New().String()[:8]
	}
	if resp.Model != "" {
		model = resp.Model
	}

	var parts []ContentPart
	finish := FinishReason{Reason: "other"}
	if len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		finish = mapOpenAIFinishReason(choice.FinishReason)
		if text := choice.Message.Content; text != "" {
			parts = append(parts, TextPart(text))
		}
		for i, tc := range choice.Message.ToolCalls {
			callID := tc.ID
			if callID == "" {
				callID = fmt.Sprintf("call_%d", i+1)
			}
			args := json.RawMessage(tc.Function.Arguments)
			if !json.Valid(args) {
				// Keep the raw text so argument binding can report it.
				args, _ = json.Marshal(tc.Function.Arguments)
			}
			parts = append(parts, ToolCallPart(callID, tc.Function.Name, args))
		}
		if len(choice.Message.ToolCalls) > 0 {
			finish = FinishReason{Reason: "tool_calls", Raw: choice.FinishReason}
		}
	}

	usage := Usage{
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:  int(resp.Usage.TotalTokens),
	}
	if n := int(resp.Usage.CompletionTokensDetails.ReasoningTokens); n > 0 {
		usage.ReasoningTokens = &n
	}

	return &Response{
		ID:       id,
		Model:    model,
		Provider: a.Name(),
		Message: Message{
			Role:    RoleAssistant,
			Content: parts,
		},
		FinishReason: finish,
		Usage:        usage,
	}
}

func mapOpenAIFinishReason(raw string) FinishReason {
	switch raw {
	case "stop", "length", "tool_calls", "content_filter":
		return FinishReason{Reason: raw, Raw: raw}
	case "function_call":
		return FinishReason{Reason: "tool_calls", Raw: raw}
	default:
		return FinishReason{Reason: "other", Raw: raw}
	}
}

// translateError maps openai-go API errors onto the unified hierarchy by
// status code. Transport failures become NetworkError.
func (a *OpenAIAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &RequestTimeoutError{SDKError: SDKError{Message: "openai request interrupted", Cause: err}}
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		msg := apierr.Message
		if msg == "" {
			msg = fmt.Sprintf("openai returned status %d", apierr.StatusCode)
		}
		var retryAfter time.Duration
		if apierr.Response != nil {
			retryAfter = parseRetryAfter(apierr.Response.Header.Get("Retry-After"))
		}
		return withCause(ErrorFromStatusCode(apierr.StatusCode, msg, a.Name(), apierr.Code, nil, retryAfter), err)
	}
	return &NetworkError{SDKError: SDKError{Message: "openai request failed", Cause: err}}
}

// parseRetryAfter reads a Retry-After header given in whole seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
