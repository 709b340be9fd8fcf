package conversation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Repository defines conversation persistence operations.
type Repository interface {
	CreateConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id, userID uuid.UUID) (*Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Conversation, error)
	CountConversations(ctx context.Context, userID uuid.UUID) (int64, error)
	UpdateTitle(ctx context.Context, id, userID uuid.UUID, title string) error
	DeleteConversation(ctx context.Context, id, userID uuid.UUID) error
	TouchConversation(ctx context.Context, id uuid.UUID) error

	InsertMessage(ctx context.Context, msg *Message) error
	ListMessages(ctx context.Context, conversationID, userID uuid.UUID, page, pageSize int) ([]Message, error)
	CountMessagesByUser(ctx context.Context, userID uuid.UUID) (int, error)
	RecentMessagesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Message, error)
	SetMessageEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
	SearchSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]SearchResult, error)
}

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new conversation repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateConversation(ctx context.Context, conv *Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, user_id, title)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		conv.ID, conv.UserID, conv.Title,
	).Scan(&conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetConversation(ctx context.Context, id, userID uuid.UUID) (*Conversation, error) {
	var conv Conversation
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations
		 WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation: %w", err)
	}
	return &conv, nil
}

func (r *PostgresRepository) ListConversations(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Conversation, error) {
	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, title, created_at, updated_at
		 FROM conversations
		 WHERE user_id = $1
		 ORDER BY updated_at DESC
		 LIMIT $2 OFFSET $3`,
		userID, pageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var conv Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

func (r *PostgresRepository) CountConversations(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM conversations WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, err
}

func (r *PostgresRepository) UpdateTitle(ctx context.Context, id, userID uuid.UUID, title string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE conversations SET title = $3, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`,
		id, userID, title,
	)
	if err != nil {
		return fmt.Errorf("updating conversation title: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteConversation(ctx context.Context, id, userID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) TouchConversation(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

func (r *PostgresRepository) InsertMessage(ctx context.Context, msg *Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, user_id, role, content, image_urls, tokens_used)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING created_at`,
		msg.ID, msg.ConversationID, msg.UserID, msg.Role, msg.Content, msg.ImageURLs, msg.TokensUsed,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, page, pageSize int) ([]Message, error) {
	offset := (page - 1) * pageSize
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, role, content, image_urls, tokens_used, created_at
		 FROM messages
		 WHERE conversation_id = $1 AND user_id = $2
		 ORDER BY created_at ASC
		 LIMIT $3 OFFSET $4`,
		conversationID, userID, pageSize, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *PostgresRepository) CountMessagesByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_id = $1`, userID,
	).Scan(&count)
	return count, err
}

func (r *PostgresRepository) RecentMessagesByUser(ctx context.Context, userID uuid.UUID, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, role, content, image_urls, tokens_used, created_at
		 FROM (
		     SELECT id, conversation_id, user_id, role, content, image_urls, tokens_used, created_at
		     FROM messages
		     WHERE user_id = $1
		     ORDER BY created_at DESC
		     LIMIT $2
		 ) recent
		 ORDER BY created_at ASC`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("loading recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *PostgresRepository) SetMessageEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error {
	vec := pgvector.NewVector(embedding)
	_, err := r.pool.Exec(ctx,
		`UPDATE messages SET embedding = $2 WHERE id = $1`, id, vec,
	)
	if err != nil {
		return fmt.Errorf("setting message embedding: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SearchSimilar(ctx context.Context, userID uuid.UUID, embedding []float32, limit int) ([]SearchResult, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.pool.Query(ctx,
		`SELECT id, conversation_id, user_id, role, content, image_urls, tokens_used, created_at,
		        1 - (embedding <=> $1) AS similarity
		 FROM messages
		 WHERE user_id = $2 AND embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching similar messages: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var m Message
		var similarity float64
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content,
			&m.ImageURLs, &m.TokensUsed, &m.CreatedAt, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, SearchResult{Message: m, Similarity: similarity})
	}
	return results, rows.Err()
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.UserID, &m.Role, &m.Content,
			&m.ImageURLs, &m.TokensUsed, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
