package llm

import "context"

// Message is one turn of model input. ImageURLs may hold https URLs or
// data URIs; when present the message is sent as multi-part vision content.
type Message struct {
	Role      string
	Content   string
	ImageURLs []string
}

// Completion is a model response.
type Completion struct {
	Content      string
	TokensUsed   int
	FinishReason string
}

// Client is the text-generation surface the rest of the app depends on.
// Production uses the OpenRouter implementation; tests substitute fakes.
type Client interface {
	Chat(ctx context.Context, model string, msgs []Message) (*Completion, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Models names the configured model for each purpose.
type Models struct {
	Chat      string
	Premium   string
	Vision    string
	Embedding string
}

// IsPremium reports whether the given model is billed against the
// premium-call quota.
func (m Models) IsPremium(model string) bool {
	return model == m.Premium
}
