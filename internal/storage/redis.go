package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tadaa_concierge/internal/config"
	"tadaa_concierge/pkg"
)

// RedisStore keeps conversations and committed records in Redis.
//
//	{prefix}:conversation:{id}          JSON document, no TTL
//	{prefix}:user:{uid}:conversations   ZSET of ids scored by updated_at
//	{prefix}:collection:{name}          HASH of record id -> JSON record
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(ctx context.Context, cfg config.RedisConfig) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Test connection
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisStoreFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tadaa"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Client exposes the underlying client for the lock manager
func (r *RedisStore) Client() *redis.Client {
	return r.client
}

// Prefix returns the key prefix
func (r *RedisStore) Prefix() string {
	return r.prefix
}

func (r *RedisStore) conversationKey(id string) string {
	return fmt.Sprintf("%s:conversation:%s", r.prefix, id)
}

func (r *RedisStore) userIndexKey(userID string) string {
	return fmt.Sprintf("%s:user:%s:conversations", r.prefix, userID)
}

func (r *RedisStore) collectionKey(name string) string {
	return fmt.Sprintf("%s:collection:%s", r.prefix, name)
}

// GetConversation loads a conversation document
func (r *RedisStore) GetConversation(ctx context.Context, id string) (*pkg.Conversation, error) {
	data, err := r.client.Get(ctx, r.conversationKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: conversation %s", pkg.ErrDocumentNotFound, id)
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	var conv pkg.Conversation
	if err := sonic.UnmarshalString(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation: %w", err)
	}
	return &conv, nil
}

// PutConversation replaces the conversation document and refreshes the
// owner's index in one transaction
func (r *RedisStore) PutConversation(ctx context.Context, conv *pkg.Conversation) error {
	if conv.ID == "" {
		return fmt.Errorf("conversation ID cannot be empty")
	}

	data, err := sonic.MarshalString(conv)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.conversationKey(conv.ID), data, 0)
		pipe.ZAdd(ctx, r.userIndexKey(conv.UserID), redis.Z{
			Score:  float64(conv.UpdatedAt.UnixMilli()),
			Member: conv.ID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put conversation: %w", err)
	}
	return nil
}

// ListConversations returns up to limit of the user's conversations, most
// recently updated first
func (r *RedisStore) ListConversations(ctx context.Context, userID string, limit int) ([]*pkg.Conversation, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	ids, err := r.client.ZRevRange(ctx, r.userIndexKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation index: %w", err)
	}
	if len(ids) == 0 {
		return []*pkg.Conversation{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.conversationKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conversations: %w", err)
	}

	convs := make([]*pkg.Conversation, 0, len(values))
	for i, value := range values {
		data, ok := value.(string)
		if !ok {
			// index entry without a document
			continue
		}
		var conv pkg.Conversation
		if err := sonic.UnmarshalString(data, &conv); err != nil {
			return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", ids[i], err)
		}
		convs = append(convs, &conv)
	}
	return convs, nil
}

// Insert stores doc in collection under a new id
func (r *RedisStore) Insert(ctx context.Context, collection string, doc pkg.Document) (string, error) {
	id := uuid.NewString()

	record := make(pkg.Document, len(doc)+1)
	for k, v := range doc {
		record[k] = v
	}
	record[pkg.DocumentIDField] = id

	data, err := sonic.MarshalString(record)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record: %w", err)
	}

	if err := r.client.HSet(ctx, r.collectionKey(collection), id, data).Err(); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", collection, err)
	}
	return id, nil
}

// Find returns the records of collection accepted by match, ordered by id
func (r *RedisStore) Find(ctx context.Context, collection string, match func(pkg.Document) bool) ([]pkg.Document, error) {
	entries, err := r.client.HGetAll(ctx, r.collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", collection, err)
	}

	ids := make([]string, 0, len(entries))
	for id := range entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	docs := make([]pkg.Document, 0, len(ids))
	for _, id := range ids {
		var doc pkg.Document
		if err := sonic.UnmarshalString(entries[id], &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record %s: %w", id, err)
		}
		if match == nil || match(doc) {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Delete removes a record
func (r *RedisStore) Delete(ctx context.Context, collection, id string) error {
	n, err := r.client.HDel(ctx, r.collectionKey(collection), id).Result()
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", collection, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", pkg.ErrDocumentNotFound, collection, id)
	}
	return nil
}

// Ping tests Redis connection
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (r *RedisStore) Close() error {
	return r.client.Close()
}
