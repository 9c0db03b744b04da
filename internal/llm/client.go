package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client generates one tutor turn from a prompt stack. Implementations
// wrap a single provider; the offline tutor backend is the consumer.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
