// Package llm defines the Provider interface for completion-service backends.
//
// An LLM provider wraps a hosted model API (Azure OpenAI, OpenAI, Anthropic,
// a local Ollama instance, ...) and exposes a uniform interface for lesson
// generation and companion chat without coupling to any specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation. The last message is typically from
	// the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero leaves the
	// provider default in place.
	Temperature float64

	// TopP is the nucleus sampling mass. Zero leaves the provider default.
	TopP float64

	// MaxTokens caps the number of completion tokens. Zero means provider default.
	MaxTokens int

	// SystemPrompt is an optional instruction sent ahead of Messages. Providers
	// without a dedicated system field prepend it as a "system"-role message.
	SystemPrompt string
}

// CompletionResponse is the result of a completion call.
type CompletionResponse struct {
	// Content is the text of the first candidate. Empty when the backend
	// returned no candidates.
	Content string

	// FinishReason reports why generation stopped ("stop", "length", ...).
	FinishReason string

	Usage Usage
}

// Provider is the abstraction over any completion backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() ModelCapabilities
}
