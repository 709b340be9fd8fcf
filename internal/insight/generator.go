package insight

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aether-labs/aether/internal/llm"
)

const (
	modelConfidence    = 0.85
	fallbackConfidence = 0.4
)

var categoryTitles = map[Category]string{
	CategoryCommunication: "Communication Style",
	CategoryPersonality:   "Personality Snapshot",
	CategoryBehavioral:    "Behavioral Patterns",
	CategoryEmotional:     "Emotional Landscape",
	CategoryGrowth:        "Growth Opportunities",
}

var categoryPrompts = map[Category]string{
	CategoryCommunication: "Analyze how this user communicates: tone, directness, question style, and how they respond to suggestions.",
	CategoryPersonality:   "Describe the personality traits visible in this user's messages: curiosity, openness, humor, and decision style.",
	CategoryBehavioral:    "Identify recurring behavioral patterns in this user's conversations: habits, routines, and how they approach problems.",
	CategoryEmotional:     "Describe the emotional tone of this user's recent conversations and any shifts over time.",
	CategoryGrowth:        "Suggest areas where this user could grow, based on the goals and frustrations visible in their conversations.",
}

var fallbackBodies = map[Category]string{
	CategoryCommunication: "You communicate with a clear, engaged style. Keep the conversation going and a fuller picture of your communication patterns will emerge.",
	CategoryPersonality:   "Your personality comes through in every conversation. As you chat more, a richer profile of your traits will take shape.",
	CategoryBehavioral:    "Patterns take time to surface. Continue your conversations and recurring habits and routines will become visible.",
	CategoryEmotional:     "Your emotional landscape is still coming into focus. More conversation history will sharpen this picture.",
	CategoryGrowth:        "Growth insights build on what you share over time. Keep exploring topics that matter to you.",
}

// Generator produces insights from a conversation profile, retrying
// transient model failures with exponential backoff.
type Generator struct {
	client         llm.Client
	model          string
	maxAttempts    int
	baseDelay      time.Duration
	attemptTimeout time.Duration
	now            func() time.Time
}

// NewGenerator creates a Generator.
func NewGenerator(client llm.Client, model string, maxAttempts int, baseDelay, attemptTimeout time.Duration) *Generator {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Generator{
		client:         client,
		model:          model,
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		attemptTimeout: attemptTimeout,
		now:            time.Now,
	}
}

// Generate asks the model for an insight. Each attempt runs under its own
// timeout; the delay between attempts doubles. The caller decides what to
// do when every attempt fails.
func (g *Generator) Generate(ctx context.Context, category Category, profile string) (*Insight, error) {
	msgs := []llm.Message{
		{Role: "system", Content: "You are an analyst writing short, warm, second-person insights about a user based on their chat history. Respond with two to four sentences of plain prose."},
		{Role: "user", Content: categoryPrompts[category] + "\n\n" + profile},
	}

	var lastErr error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, g.attemptTimeout)
		completion, err := g.client.Chat(attemptCtx, g.model, msgs)
		cancel()

		if err == nil {
			body := strings.TrimSpace(completion.Content)
			if body != "" {
				return &Insight{
					Category:    category,
					Title:       categoryTitles[category],
					Body:        body,
					Confidence:  modelConfidence,
					Source:      "model",
					GeneratedAt: g.now().UTC(),
				}, nil
			}
			err = fmt.Errorf("empty completion")
		}

		lastErr = err
		slog.Warn("insight: generation attempt failed",
			"category", category, "attempt", attempt, "error", err)

		if attempt == g.maxAttempts {
			break
		}
		delay := g.baseDelay << (attempt - 1)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("generating %s insight after %d attempts: %w", category, g.maxAttempts, lastErr)
}

// Fallback returns the deterministic insight used when generation fails.
// Its confidence is deliberately lower than model output so clients can
// render it differently.
func (g *Generator) Fallback(category Category) *Insight {
	return &Insight{
		Category:    category,
		Title:       categoryTitles[category],
		Body:        fallbackBodies[category],
		Confidence:  fallbackConfidence,
		Source:      "fallback",
		GeneratedAt: g.now().UTC(),
	}
}
