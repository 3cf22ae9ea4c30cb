package chat

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("chat: not found")

// Role is the author of a message. Chart replies carry their own role so the
// presentation layer can pick a renderer without inspecting the payload.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
	RoleSystem    Role = "SYSTEM"
	RoleChart     Role = "CHART"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem, RoleChart:
		return true
	default:
		return false
	}
}

// Kind is the presentation shape of an answer.
type Kind string

const (
	KindTable Kind = "TABLE"
	KindChart Kind = "CHART"
	KindText  Kind = "TEXT"
)

func (k Kind) Valid() bool {
	switch k {
	case KindTable, KindChart, KindText:
		return true
	default:
		return false
	}
}

type Conversation struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a conversation. Results holds a serialized row-set
// or chart spec; SQL holds the statement that produced it. ResponseToID only
// ever references an earlier message in the same conversation, so the reply
// relation is acyclic by construction.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Kind           *Kind
	Content        string
	Results        []byte
	SQL            *string
	ResponseToID   *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type CreateConversationInput struct {
	Title string
}

type CreateMessageInput struct {
	ConversationID string
	Role           Role
	Kind           *Kind
	Content        string
	Results        []byte
	SQL            *string
	ResponseToID   *string
}

type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateConversation(ctx context.Context, in CreateConversationInput) (Conversation, error)
	GetConversation(ctx context.Context, conversationID string) (Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	DeleteConversation(ctx context.Context, conversationID string) (bool, error)
	CreateMessage(ctx context.Context, in CreateMessageInput) (Message, error)
	GetMessage(ctx context.Context, conversationID, messageID string) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

func KindPtr(k Kind) *Kind {
	return &k
}

func StringPtr(s string) *string {
	return &s
}
