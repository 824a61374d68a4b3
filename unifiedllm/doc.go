// Package unifiedllm is the model gateway used by the agent loop. It presents
// one provider-agnostic request/response shape over the hosted chat APIs the
// agent can drive.
//
// # Architecture
//
// The package is layered:
//
//   - ProviderAdapter and the shared Message/Request/Response types
//   - Provider utilities: Retry with exponential backoff, error classification
//   - Client: provider routing, middleware, transcription
//
// # Adapters
//
// OpenAIAdapter speaks the OpenAI chat completions API directly
// (github.com/openai/openai-go) with native tool calls, and implements
// Transcriber on top of the audio transcription endpoint. GollmAdapter wraps
// github.com/teilomillet/gollm for the remaining providers.
//
//	client := unifiedllm.NewClient(
//	    unifiedllm.WithProvider("openai", unifiedllm.NewOpenAIAdapter(os.Getenv("OPENAI_API_KEY"))),
//	    unifiedllm.WithMiddleware(unifiedllm.LoggingMiddleware(logger)),
//	)
//
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "gpt-4o",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//
// # Errors
//
// Provider failures are mapped onto a small hierarchy (AuthenticationError,
// RateLimitError, ServerError, ...). IsRetryable decides what Retry may
// repeat. Callers that give up wrap the last error in a GatewayError, which
// matches ErrModelGateway under errors.Is.
//
// # Model Catalog
//
//	info := unifiedllm.GetModelInfo("gpt-4o")
//	models := unifiedllm.ListModels("openai")
package unifiedllm
