package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aether-labs/aether/internal/events"
	"github.com/aether-labs/aether/internal/llm"
	"github.com/aether-labs/aether/internal/tier"
)

const (
	embedTimeout = 30 * time.Second

	systemPrompt = "You are Aether, a thoughtful AI companion. Be warm, concise, and concrete. Remember details the user has shared earlier in the conversation."
)

// Service orchestrates the chat flow: quota, context assembly, model call,
// persistence, and background embedding.
type Service struct {
	repo      Repository
	shortTerm *ShortTermStore
	client    llm.Client
	models    llm.Models
	usage     *tier.Service
	publisher *events.Publisher

	now func() time.Time
}

// NewService creates a conversation Service.
func NewService(repo Repository, shortTerm *ShortTermStore, client llm.Client, models llm.Models, usage *tier.Service, publisher *events.Publisher) *Service {
	return &Service{
		repo:      repo,
		shortTerm: shortTerm,
		client:    client,
		models:    models,
		usage:     usage,
		publisher: publisher,
		now:       time.Now,
	}
}

// CreateConversation starts a new thread.
func (s *Service) CreateConversation(ctx context.Context, userID uuid.UUID, title string) (*Conversation, error) {
	if title == "" {
		title = "New conversation"
	}
	conv := &Conversation{UserID: userID, Title: title}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// GetConversation returns one thread, or ErrNotFound.
func (s *Service) GetConversation(ctx context.Context, id, userID uuid.UUID) (*Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	return conv, nil
}

// ListConversations returns a page of the user's threads plus the total.
func (s *Service) ListConversations(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Conversation, int64, error) {
	convs, err := s.repo.ListConversations(ctx, userID, page, pageSize)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.CountConversations(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	return convs, total, nil
}

// RenameConversation updates the thread title.
func (s *Service) RenameConversation(ctx context.Context, id, userID uuid.UUID, title string) error {
	return s.repo.UpdateTitle(ctx, id, userID, title)
}

// DeleteConversation removes the thread and its cached context. Messages go
// with it via the FK cascade.
func (s *Service) DeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	if err := s.repo.DeleteConversation(ctx, id, userID); err != nil {
		return err
	}
	if err := s.shortTerm.Clear(ctx, id); err != nil {
		slog.Warn("chat: clearing context cache", "error", err, "conversation_id", id)
	}
	return nil
}

// ListMessages returns a page of a thread's messages.
func (s *Service) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, page, pageSize int) ([]Message, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}
	return s.repo.ListMessages(ctx, conversationID, userID, page, pageSize)
}

// SendMessage runs one chat turn. Every turn consumes one responses unit;
// premium model turns additionally consume one premium_calls unit. Both
// consumptions happen before the model is called, so a denied request
// never reaches the model.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string, imageURLs []string, premium bool) (*ChatReply, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrNotFound
	}

	model := s.models.Chat
	switch {
	case len(imageURLs) > 0:
		model = s.models.Vision
	case premium:
		model = s.models.Premium
	}

	decision := s.usage.TryConsume(ctx, userID, tier.ResourceResponses)
	s.publishUsage(ctx, userID, tier.ResourceResponses, decision)
	if !decision.Allowed {
		if decision.Reason == tier.ReasonUnavailable {
			return nil, ErrUsageUnavailable
		}
		return nil, &tier.QuotaError{Usage: decision.Usage, Err: ErrResponseQuota}
	}

	if s.models.IsPremium(model) {
		premiumDecision := s.usage.TryConsume(ctx, userID, tier.ResourcePremiumCalls)
		s.publishUsage(ctx, userID, tier.ResourcePremiumCalls, premiumDecision)
		if !premiumDecision.Allowed {
			if premiumDecision.Reason == tier.ReasonUnavailable {
				return nil, ErrUsageUnavailable
			}
			return nil, &tier.QuotaError{Usage: premiumDecision.Usage, Err: ErrPremiumQuota}
		}
	}

	prompt, err := s.buildPrompt(ctx, conversationID, content, imageURLs)
	if err != nil {
		return nil, err
	}

	userMsg := &Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           RoleUser,
		Content:        content,
		ImageURLs:      imageURLs,
	}
	if err := s.repo.InsertMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persisting user message: %w", err)
	}

	completion, err := s.client.Chat(ctx, model, prompt)
	if err != nil {
		return nil, fmt.Errorf("chat turn: %w", err)
	}

	assistantMsg := &Message{
		ConversationID: conversationID,
		UserID:         userID,
		Role:           RoleAssistant,
		Content:        completion.Content,
		TokensUsed:     completion.TokensUsed,
	}
	if err := s.repo.InsertMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persisting assistant message: %w", err)
	}

	if err := s.repo.TouchConversation(ctx, conversationID); err != nil {
		slog.Warn("chat: touching conversation", "error", err, "conversation_id", conversationID)
	}

	for _, entry := range []ContextEntry{
		{Role: RoleUser, Content: content},
		{Role: RoleAssistant, Content: completion.Content},
	} {
		if err := s.shortTerm.Append(ctx, conversationID, entry); err != nil {
			slog.Warn("chat: caching context", "error", err, "conversation_id", conversationID)
			break
		}
	}

	s.embedAsync(userMsg.ID, content)
	s.embedAsync(assistantMsg.ID, completion.Content)

	return &ChatReply{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Model:            model,
	}, nil
}

// Search ranks the user's messages by semantic similarity to the query.
func (s *Service) Search(ctx context.Context, userID uuid.UUID, query string, limit int) ([]SearchResult, error) {
	embedding, err := s.client.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.repo.SearchSimilar(ctx, userID, embedding, limit)
}

// RecentMessages returns the user's latest turns in model-message form.
func (s *Service) RecentMessages(ctx context.Context, userID uuid.UUID, limit int) ([]llm.Message, error) {
	msgs, err := s.repo.RecentMessagesByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

// CountMessages returns the user's lifetime message count.
func (s *Service) CountMessages(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountMessagesByUser(ctx, userID)
}

func (s *Service) buildPrompt(ctx context.Context, conversationID uuid.UUID, content string, imageURLs []string) ([]llm.Message, error) {
	msgs := []llm.Message{{Role: "system", Content: systemPrompt}}

	entries, err := s.shortTerm.Recent(ctx, conversationID)
	if err != nil {
		// Context loss degrades the reply, it must not block it.
		slog.Warn("chat: loading context", "error", err, "conversation_id", conversationID)
		entries = nil
	}
	for _, e := range entries {
		msgs = append(msgs, llm.Message{Role: e.Role, Content: e.Content})
	}

	msgs = append(msgs, llm.Message{Role: RoleUser, Content: content, ImageURLs: imageURLs})
	return msgs, nil
}

// embedAsync computes and stores the message embedding off the request
// path. A fresh context detaches it from the request lifetime.
func (s *Service) embedAsync(messageID uuid.UUID, content string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), embedTimeout)
		defer cancel()

		embedding, err := s.client.Embed(ctx, content)
		if err != nil {
			slog.Warn("chat: embedding message", "error", err, "message_id", messageID)
			return
		}
		if err := s.repo.SetMessageEmbedding(ctx, messageID, embedding); err != nil {
			slog.Warn("chat: storing embedding", "error", err, "message_id", messageID)
		}
	}()
}

func (s *Service) publishUsage(ctx context.Context, userID uuid.UUID, resource tier.Resource, decision tier.Decision) {
	event := events.UsageEvent{
		UserID:    userID,
		Resource:  string(resource),
		Allowed:   decision.Allowed,
		Reason:    decision.Reason,
		Timestamp: s.now().UTC(),
	}
	if decision.Usage != nil {
		event.Used = decision.Usage.Used
		event.Limit = decision.Usage.Limit
		event.Unlimited = decision.Usage.Unlimited
	}
	s.publisher.PublishUsageEvent(ctx, event)
}
