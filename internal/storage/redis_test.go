package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tadaa_concierge/internal/config"
	"tadaa_concierge/pkg"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStoreFromClient(client, "test"), mr
}

func sampleConversation(id, userID string, updated time.Time) *pkg.Conversation {
	conv := pkg.NewConversation(userID, updated.Add(-time.Minute))
	conv.ID = id
	conv.UpdatedAt = updated
	conv.Messages = append(conv.Messages,
		pkg.Message{Role: pkg.RoleUser, Content: "pay electricity", Timestamp: updated},
		pkg.Message{Role: pkg.RoleAssistant, Content: "which category?", Timestamp: updated},
	)
	conv.ExtractedItems = append(conv.ExtractedItems, pkg.ExtractedItem{
		ID:            "item_1",
		ItemType:      pkg.KindBill,
		Status:        pkg.StatusIncomplete,
		ExtractedData: map[string]any{"name": "Electricity Bill", "amount": 150},
		MissingFields: []string{"dueDate", "category"},
		CreatedAt:     updated,
		UpdatedAt:     updated,
	})
	return conv
}

func TestRedisStoreConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestRedisStore(t)
	updated := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.PutConversation(ctx, sampleConversation("c-1", "u-1", updated)))

	assert.True(t, mr.Exists("test:conversation:c-1"))
	assert.Equal(t, 0*time.Second, mr.TTL("test:conversation:c-1"))

	got, err := store.GetConversation(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", got.UserID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, pkg.RoleAssistant, got.Messages[1].Role)
	require.Len(t, got.ExtractedItems, 1)
	assert.Equal(t, "Electricity Bill", got.ExtractedItems[0].ExtractedData["name"])
	assert.EqualValues(t, 150, got.ExtractedItems[0].ExtractedData["amount"])
	assert.True(t, updated.Equal(got.UpdatedAt))
}

func TestRedisStoreMissingConversation(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.GetConversation(context.Background(), "nope")
	assert.ErrorIs(t, err, pkg.ErrDocumentNotFound)
}

func TestRedisStoreListConversationsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)
	base := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.PutConversation(ctx, sampleConversation("old", "u-1", base)))
	require.NoError(t, store.PutConversation(ctx, sampleConversation("new", "u-1", base.Add(time.Hour))))
	require.NoError(t, store.PutConversation(ctx, sampleConversation("mid", "u-1", base.Add(time.Minute))))
	require.NoError(t, store.PutConversation(ctx, sampleConversation("other", "u-2", base.Add(2*time.Hour))))

	convs, err := store.ListConversations(ctx, "u-1", 10)
	require.NoError(t, err)
	var ids []string
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"new", "mid", "old"}, ids)

	convs, err = store.ListConversations(ctx, "u-1", 2)
	require.NoError(t, err)
	assert.Len(t, convs, 2)

	convs, err = store.ListConversations(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestRedisStoreCollections(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestRedisStore(t)

	id, err := store.Insert(ctx, "bills", pkg.Document{"name": "Electricity Bill", "user_id": "u-1"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, "bills", pkg.Document{"name": "Water Bill", "user_id": "u-2"})
	require.NoError(t, err)

	docs, err := store.Find(ctx, "bills", func(d pkg.Document) bool { return d["user_id"] == "u-1" })
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID())
	assert.Equal(t, "Electricity Bill", docs[0]["name"])

	all, err := store.Find(ctx, "bills", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, store.Delete(ctx, "bills", id))
	assert.ErrorIs(t, store.Delete(ctx, "bills", id), pkg.ErrDocumentNotFound)

	empty, err := store.Find(ctx, "errands", nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisStorePingAndConnect(t *testing.T) {
	store, mr := newTestRedisStore(t)
	assert.NoError(t, store.Ping(context.Background()))

	connected, err := NewRedisStore(context.Background(), config.RedisConfig{URL: "redis://" + mr.Addr() + "/0", KeyPrefix: "x"})
	require.NoError(t, err)
	defer connected.Close()
	assert.Equal(t, "x", connected.Prefix())

	_, err = NewRedisStore(context.Background(), config.RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestRedisLockerSerialises(t *testing.T) {
	store, _ := newTestRedisStore(t)
	locker := NewRedisLocker(store.Client(), "test", 2*time.Second)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "conversation:c-1")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(short, "conversation:c-1")
	assert.Error(t, err)

	// a different key is independent
	unlockOther, err := locker.Lock(ctx, "conversation:c-2")
	require.NoError(t, err)
	unlockOther()

	unlock()
	unlockAgain, err := locker.Lock(ctx, "conversation:c-1")
	require.NoError(t, err)
	unlockAgain()
}
