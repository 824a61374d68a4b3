package unifiedllm

import (
	"context"
	"io"
)

// ProviderAdapter is the interface every provider backend must implement.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "anthropic").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// OptionalAdapter methods that adapters may implement.

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// ToolChoiceSupporter is implemented by adapters that can report tool choice support.
type ToolChoiceSupporter interface {
	SupportsToolChoice(mode string) bool
}

// Transcriber is implemented by adapters that can turn recorded speech into
// text. filename is only a hint for the audio container format.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}
