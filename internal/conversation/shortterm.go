package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// ContextEntry is one turn in the short-term Redis context window.
type ContextEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ShortTermStore keeps the rolling prompt context per conversation in a
// Redis list. It is a cache over the messages table: losing it costs model
// context quality, never data.
type ShortTermStore struct {
	client goredis.Cmdable
	maxLen int
	ttl    time.Duration
}

// NewShortTermStore creates a short-term context store.
func NewShortTermStore(client goredis.Cmdable, maxLen int, ttl time.Duration) *ShortTermStore {
	return &ShortTermStore{client: client, maxLen: maxLen, ttl: ttl}
}

func contextKey(conversationID uuid.UUID) string {
	return fmt.Sprintf("chat:ctx:%s", conversationID.String())
}

// Recent returns the last maxLen context entries for the conversation.
func (s *ShortTermStore) Recent(ctx context.Context, conversationID uuid.UUID) ([]ContextEntry, error) {
	key := contextKey(conversationID)

	vals, err := s.client.LRange(ctx, key, int64(-s.maxLen), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	entries := make([]ContextEntry, 0, len(vals))
	for _, v := range vals {
		var entry ContextEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			return nil, fmt.Errorf("unmarshaling context entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Append pushes a turn onto the context window, trimming and refreshing the
// TTL in one round trip.
func (s *ShortTermStore) Append(ctx context.Context, conversationID uuid.UUID, entry ContextEntry) error {
	key := contextKey(conversationID)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling context entry: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, string(data))
	pipe.LTrim(ctx, key, int64(-s.maxLen), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// Clear drops the context window, e.g. when the conversation is deleted.
func (s *ShortTermStore) Clear(ctx context.Context, conversationID uuid.UUID) error {
	if err := s.client.Del(ctx, contextKey(conversationID)).Err(); err != nil {
		return fmt.Errorf("clearing context: %w", err)
	}
	return nil
}
