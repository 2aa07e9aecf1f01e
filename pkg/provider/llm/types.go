package llm

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user" or "assistant".
	Role string

	// Content is the text content of the message.
	Content string

	// Images are image inputs attached to a user message, as http(s) URLs
	// or data URLs (data:image/jpeg;base64,...). Only honoured by providers
	// whose Capabilities report SupportsVision.
	Images []string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one completion.
	MaxOutputTokens int

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool
}

// UserMessage builds a user message with optional image attachments.
func UserMessage(text string, images ...string) Message {
	return Message{Role: "user", Content: text, Images: images}
}
