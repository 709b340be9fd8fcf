package conversation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors the HTTP layer maps to status codes.
var (
	ErrNotFound         = errors.New("conversation: not found")
	ErrResponseQuota    = errors.New("conversation: response quota exhausted")
	ErrPremiumQuota     = errors.New("conversation: premium quota exhausted")
	ErrUsageUnavailable = errors.New("conversation: usage unavailable")
)

// Roles stored on message rows and sent to the model.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Conversation is a chat thread owned by one user.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one persisted turn. Embedding is populated asynchronously and
// never serialized to clients.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ImageURLs      []string  `json:"image_urls,omitempty"`
	Embedding      []float32 `json:"-"`
	TokensUsed     int       `json:"tokens_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// SearchResult is a message ranked by semantic similarity to a query.
type SearchResult struct {
	Message    Message `json:"message"`
	Similarity float64 `json:"similarity"`
}

// ChatReply is what SendMessage returns to the client.
type ChatReply struct {
	UserMessage      *Message `json:"user_message"`
	AssistantMessage *Message `json:"assistant_message"`
	Model            string   `json:"model"`
}
