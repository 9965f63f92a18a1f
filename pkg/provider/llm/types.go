package llm

// Roles accepted in a conversation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a single message in a conversation history.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser] or [RoleAssistant].
	Role string `json:"role"`

	// Content is the text content of the message.
	Content string `json:"content"`
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	// Zero means unknown.
	MaxOutputTokens int
}

// ClampMaxTokens returns requested limited to the model's output ceiling when
// one is known.
func (c ModelCapabilities) ClampMaxTokens(requested int) int {
	if c.MaxOutputTokens > 0 && requested > c.MaxOutputTokens {
		return c.MaxOutputTokens
	}
	return requested
}
