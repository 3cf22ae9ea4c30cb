package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tablechat/tablechat/internal/chat"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping chat store db: %w", err)
	}
	return nil
}

func (r *Repository) CreateConversation(ctx context.Context, in chat.CreateConversationInput) (chat.Conversation, error) {
	conversation := chat.Conversation{
		ID:    uuid.NewString(),
		Title: in.Title,
	}

	query := `
INSERT INTO conversation (conversation_id, title)
VALUES ($1, $2)
RETURNING created_at, updated_at`
	if err := r.db.QueryRowContext(ctx, query, conversation.ID, conversation.Title).Scan(&conversation.CreatedAt, &conversation.UpdatedAt); err != nil {
		return chat.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return conversation, nil
}

func (r *Repository) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	query := `
SELECT conversation_id, title, created_at, updated_at
FROM conversation
WHERE conversation_id = $1`

	var conversation chat.Conversation
	if err := r.db.QueryRowContext(ctx, query, conversationID).Scan(
		&conversation.ID,
		&conversation.Title,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Conversation{}, chat.ErrNotFound
		}
		return chat.Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return conversation, nil
}

func (r *Repository) ListConversations(ctx context.Context) ([]chat.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT conversation_id, title, created_at, updated_at
FROM conversation
ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	conversations := make([]chat.Conversation, 0)
	for rows.Next() {
		var conversation chat.Conversation
		if err := rows.Scan(&conversation.ID, &conversation.Title, &conversation.CreatedAt, &conversation.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		conversations = append(conversations, conversation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows: %w", err)
	}
	return conversations, nil
}

// DeleteConversation removes the conversation and, through the FK cascade,
// every message it owns.
func (r *Repository) DeleteConversation(ctx context.Context, conversationID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM conversation WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete conversation rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) CreateMessage(ctx context.Context, in chat.CreateMessageInput) (chat.Message, error) {
	if !in.Role.Valid() {
		return chat.Message{}, fmt.Errorf("invalid message role %q", in.Role)
	}
	if in.Kind != nil && !in.Kind.Valid() {
		return chat.Message{}, fmt.Errorf("invalid message kind %q", *in.Kind)
	}

	message := chat.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		Role:           in.Role,
		Kind:           in.Kind,
		Content:        in.Content,
		Results:        in.Results,
		SQL:            in.SQL,
		ResponseToID:   in.ResponseToID,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return chat.Message{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var kind *string
	if in.Kind != nil {
		value := string(*in.Kind)
		kind = &value
	}
	var results *string
	if in.Results != nil {
		value := string(in.Results)
		results = &value
	}

	query := `
INSERT INTO message (message_id, conversation_id, role, kind, content, results, sql_text, response_to_id)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
RETURNING created_at, updated_at`
	if err := tx.QueryRowContext(ctx, query,
		message.ID,
		message.ConversationID,
		string(message.Role),
		kind,
		message.Content,
		results,
		message.SQL,
		message.ResponseToID,
	).Scan(&message.CreatedAt, &message.UpdatedAt); err != nil {
		return chat.Message{}, fmt.Errorf("create message: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE conversation SET updated_at = NOW() WHERE conversation_id = $1`, message.ConversationID); err != nil {
		return chat.Message{}, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return chat.Message{}, fmt.Errorf("commit message: %w", err)
	}
	return message, nil
}

func (r *Repository) GetMessage(ctx context.Context, conversationID, messageID string) (chat.Message, error) {
	query := `
SELECT message_id, conversation_id, role, kind, content, results, sql_text, response_to_id, created_at, updated_at
FROM message
WHERE conversation_id = $1 AND message_id = $2`

	message, err := scanMessage(r.db.QueryRowContext(ctx, query, conversationID, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return chat.Message{}, chat.ErrNotFound
		}
		return chat.Message{}, fmt.Errorf("get message: %w", err)
	}
	return message, nil
}

// ListMessages returns the conversation history in chronological order.
func (r *Repository) ListMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT message_id, conversation_id, role, kind, content, results, sql_text, response_to_id, created_at, updated_at
FROM message
WHERE conversation_id = $1
ORDER BY created_at ASC, message_id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return messages, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (chat.Message, error) {
	var message chat.Message
	var role string
	var kind sql.NullString
	var results sql.NullString
	var sqlText sql.NullString
	var responseTo sql.NullString

	if err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&role,
		&kind,
		&message.Content,
		&results,
		&sqlText,
		&responseTo,
		&message.CreatedAt,
		&message.UpdatedAt,
	); err != nil {
		return chat.Message{}, err
	}

	message.Role = chat.Role(role)
	if kind.Valid {
		value := chat.Kind(kind.String)
		message.Kind = &value
	}
	if results.Valid {
		message.Results = []byte(results.String)
	}
	if sqlText.Valid {
		message.SQL = &sqlText.String
	}
	if responseTo.Valid {
		message.ResponseToID = &responseTo.String
	}
	return message, nil
}
