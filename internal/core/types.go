package core

import (
	"context"
	"time"

	"tadaa_concierge/pkg"
)

// ModelClient sends the instruction set and transcript to the chat model and
// returns the raw reply text
type ModelClient interface {
	Complete(ctx context.Context, system string, history []pkg.Message) (string, error)
}

// PromptBuilder renders the system instruction set for a turn
type PromptBuilder interface {
	SystemPrompt(now time.Time) string
}

// ConversationStore persists whole conversation documents. Missing ids
// report pkg.ErrDocumentNotFound.
type ConversationStore interface {
	GetConversation(ctx context.Context, id string) (*pkg.Conversation, error)
	PutConversation(ctx context.Context, conv *pkg.Conversation) error
	ListConversations(ctx context.Context, userID string, limit int) ([]*pkg.Conversation, error)
}

// CollectionStore holds committed records grouped by collection name
type CollectionStore interface {
	Insert(ctx context.Context, collection string, doc pkg.Document) (string, error)
	Find(ctx context.Context, collection string, match func(pkg.Document) bool) ([]pkg.Document, error)
	Delete(ctx context.Context, collection, id string) error
}

// Store is the document store used by the processor
type Store interface {
	ConversationStore
	CollectionStore
	Ping(ctx context.Context) error
}

// Locker serialises work on one key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Options tunes the processor
type Options struct {
	// HistoryWindow limits the replayed transcript; 0 replays everything
	HistoryWindow int
	ModelTimeout  time.Duration
	DefaultUserID string
	ListLimit     int
}

// ConversationSummary is a list entry for a user's conversations
type ConversationSummary struct {
	ID             string    `json:"id"`
	MessageCount   int       `json:"message_count"`
	ExtractedCount int       `json:"extracted_count"`
	LastMessage    string    `json:"last_message,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Summarize builds the list entry for conv
func Summarize(conv *pkg.Conversation) ConversationSummary {
	summary := ConversationSummary{
		ID:             conv.ID,
		MessageCount:   len(conv.Messages),
		ExtractedCount: len(conv.ExtractedItems),
		CreatedAt:      conv.CreatedAt,
		UpdatedAt:      conv.UpdatedAt,
	}
	if n := len(conv.Messages); n > 0 {
		summary.LastMessage = conv.Messages[n-1].Content
	}
	return summary
}
