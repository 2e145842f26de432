package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tadaa_concierge/pkg"
)

// MemoryStore is an in-memory document store for development and tests.
// Values are copied on the way in and out so callers never share state with
// the store.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*pkg.Conversation
	collections   map[string]map[string]pkg.Document
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*pkg.Conversation),
		collections:   make(map[string]map[string]pkg.Document),
	}
}

// GetConversation retrieves a conversation by id
func (m *MemoryStore) GetConversation(ctx context.Context, id string) (*pkg.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, exists := m.conversations[id]
	if !exists {
		return nil, fmt.Errorf("%w: conversation %s", pkg.ErrDocumentNotFound, id)
	}
	return cloneConversation(conv), nil
}

// PutConversation saves or replaces a conversation
func (m *MemoryStore) PutConversation(ctx context.Context, conv *pkg.Conversation) error {
	if conv.ID == "" {
		return fmt.Errorf("conversation ID cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

// ListConversations returns up to limit of the user's conversations, most
// recently updated first
func (m *MemoryStore) ListConversations(ctx context.Context, userID string, limit int) ([]*pkg.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	convs := make([]*pkg.Conversation, 0)
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			convs = append(convs, cloneConversation(conv))
		}
	}

	sort.Slice(convs, func(i, j int) bool {
		if convs[i].UpdatedAt.Equal(convs[j].UpdatedAt) {
			return convs[i].ID > convs[j].ID
		}
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs, nil
}

// Insert stores doc in collection under a new id
func (m *MemoryStore) Insert(ctx context.Context, collection string, doc pkg.Document) (string, error) {
	id := uuid.NewString()

	record := cloneDocument(doc)
	record[pkg.DocumentIDField] = id

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]pkg.Document)
	}
	m.collections[collection][id] = record
	return id, nil
}

// Find returns the records of collection accepted by match, ordered by id
func (m *MemoryStore) Find(ctx context.Context, collection string, match func(pkg.Document) bool) ([]pkg.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	records := m.collections[collection]
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]pkg.Document, 0, len(ids))
	for _, id := range ids {
		doc := cloneDocument(records[id])
		if match == nil || match(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Delete removes a record
func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.collections[collection][id]; !exists {
		return fmt.Errorf("%w: %s/%s", pkg.ErrDocumentNotFound, collection, id)
	}
	delete(m.collections[collection], id)
	return nil
}

// Ping always succeeds
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func cloneConversation(conv *pkg.Conversation) *pkg.Conversation {
	out := *conv
	out.Messages = append([]pkg.Message{}, conv.Messages...)
	out.Deletions = append([]pkg.DeletionState(nil), conv.Deletions...)
	out.ExtractedItems = make([]pkg.ExtractedItem, len(conv.ExtractedItems))
	for i, item := range conv.ExtractedItems {
		item.ExtractedData = cloneMap(item.ExtractedData)
		item.MissingFields = append([]string{}, item.MissingFields...)
		if item.SavedAt != nil {
			savedAt := *item.SavedAt
			item.SavedAt = &savedAt
		}
		out.ExtractedItems[i] = item
	}
	return &out
}

func cloneDocument(doc pkg.Document) pkg.Document {
	return pkg.Document(cloneMap(doc))
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case pkg.Document:
		return cloneDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	default:
		return val
	}
}
