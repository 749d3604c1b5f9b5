package chat

// Request defaults for the OpenAI-compatible chat completions API.
const (
	defaultTemperature    = 0.7
	defaultShortMaxTokens = 150
	defaultLongMaxTokens  = 300
)

type ChatModel string

const (
	ChatModelGemma ChatModel = "gemma2-9b-it"
	ChatModelLlama ChatModel = "llama-3.1-8b-instant"
)

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
	ChatRoleSystem    ChatRole = "system"
)

// ResponseMode selects the response length bound.
type ResponseMode int

const (
	ModeShort ResponseMode = iota
	ModeLong
)

// MaxTokens returns the token bound for the mode.
func (m ResponseMode) MaxTokens() int64 {
	if m == ModeLong {
		return defaultLongMaxTokens
	}
	return defaultShortMaxTokens
}

type ChatRequest struct {
	Model    ChatModel     `json:"model"`
	Messages []ChatMessage `json:"messages"`
	ChatOptions
}

// NewChatRequest builds a request for the model in the given mode.
func NewChatRequest(model ChatModel, messages []ChatMessage, mode ResponseMode, stream bool) *ChatRequest {
	return &ChatRequest{
		Model:    model,
		Messages: messages,
		ChatOptions: ChatOptions{
			Temperature: defaultTemperature,
			MaxTokens:   mode.MaxTokens(),
			Stream:      stream,
		},
	}
}

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

type ChatOptions struct {
	Temperature float64 `json:"temperature"`
	MaxTokens   int64   `json:"max_tokens"`
	Stream      bool    `json:"stream,omitempty"`
}

type ChatResponseUsage struct {
	PromptTokens     int32 `json:"prompt_tokens"`
	CompletionTokens int32 `json:"completion_tokens"`
	TotalTokens      int32 `json:"total_tokens"`
}

type ChatResponseChoice struct {
	Index        int32       `json:"index"`
	Message      ChatMessage `json:"message"`
	Delta        ChatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

// ChatResponse is both the full response and a single stream chunk; chunks
// carry text in Delta, full responses in Message.
type ChatResponse struct {
	ID      string               `json:"id"`
	Choices []ChatResponseChoice `json:"choices"`
	Created int64                `json:"created"`
	Model   ChatModel            `json:"model"`
	Object  string               `json:"object"`
	Usage   *ChatResponseUsage   `json:"usage,omitempty"`
}

// Content returns the text of the first choice.
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

// DeltaContent returns the incremental text of the first choice.
func (r *ChatResponse) DeltaContent() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Delta.Content
}
