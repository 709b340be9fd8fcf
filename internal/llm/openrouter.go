package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/metrics"
)

// OpenRouter talks to the OpenRouter API (or any OpenAI-compatible
// endpoint) through the go-openai client.
type OpenRouter struct {
	client         *openai.Client
	embeddingModel string
}

// NewOpenRouter creates a client for the configured gateway.
func NewOpenRouter(cfg config.OpenRouterConfig) *OpenRouter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{
		Timeout: 90 * time.Second,
		Transport: &attributionTransport{
			base:    http.DefaultTransport,
			appURL:  cfg.AppURL,
			appName: cfg.AppName,
		},
	}

	return &OpenRouter{
		client:         openai.NewClientWithConfig(clientCfg),
		embeddingModel: cfg.EmbeddingModel,
	}
}

// Chat sends a completion request. Messages carrying image URLs are sent
// as multi-part content so vision-capable models can read them.
func (o *OpenRouter) Chat(ctx context.Context, model string, msgs []Message) (*Completion, error) {
	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: toOpenAIMessages(msgs),
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	metrics.LLMRequestDuration.WithLabelValues("chat").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	slog.Debug("chat completion",
		"model", model,
		"tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Completion{
		Content:      resp.Choices[0].Message.Content,
		TokensUsed:   resp.Usage.TotalTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

// Embed returns the embedding vector for a single text.
func (o *OpenRouter) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	metrics.LLMRequestDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("creating embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("creating embedding: empty response")
	}
	return resp.Data[0].Embedding, nil
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if len(m.ImageURLs) == 0 {
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
			continue
		}

		parts := []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: m.Content},
		}
		for _, u := range m.ImageURLs {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: u},
			})
		}
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, MultiContent: parts})
	}
	return out
}

// attributionTransport adds the OpenRouter app-attribution headers.
type attributionTransport struct {
	base    http.RoundTripper
	appURL  string
	appName string
}

func (t *attributionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.appURL != "" {
		req.Header.Set("HTTP-Referer", t.appURL)
	}
	if t.appName != "" {
		req.Header.Set("X-Title", t.appName)
	}
	return t.base.RoundTrip(req)
}
