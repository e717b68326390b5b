package chatstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub-backend/internal/chat"
	"schoolhub-backend/internal/database"
	"schoolhub-backend/internal/models"
)

func newRedisStore(t *testing.T) *RedisStore {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, time.Hour)
}

func newSQLiteStore(t *testing.T) *SQLiteStore {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func sampleChat(title string, createdAt time.Time) models.Chat {
	return models.Chat{
		ID:        uuid.New(),
		Title:     title,
		CreatedAt: createdAt,
		Messages: []models.ChatMessage{
			{ID: uuid.New(), Role: models.RoleUser, Content: title, Timestamp: createdAt},
		},
		LastMessage: title,
	}
}

func runStoreContract(t *testing.T, store chat.Store) {
	ctx := context.Background()

	t.Run("absent key", func(t *testing.T) {
		chats, ok, err := store.Load(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, chats)
	})

	t.Run("save then load", func(t *testing.T) {
		base := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
		chats := []models.Chat{sampleChat("math", base), sampleChat("سلام", base.Add(time.Minute))}
		require.NoError(t, store.Save(ctx, "s1", chats))

		got, ok, err := store.Load(ctx, "s1")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got, 2)
		assert.Equal(t, chats[0].ID, got[0].ID)
		assert.Equal(t, "سلام", got[1].Messages[0].Content)
	})

	t.Run("empty list is present", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "s-empty", []models.Chat{}))
		got, ok, err := store.Load(ctx, "s-empty")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, got)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		c := sampleChat("history", time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC))
		require.NoError(t, store.Upsert(ctx, "s2", c))

		c.Messages = append(c.Messages, models.ChatMessage{ID: uuid.New(), Role: models.RoleAssistant, Content: "answer"})
		require.NoError(t, store.Upsert(ctx, "s2", c))

		got, ok, err := store.Load(ctx, "s2")
		require.NoError(t, err)
		require.True(t, ok)
		require.Len(t, got, 1)
		assert.Len(t, got[0].Messages, 2)
	})

	t.Run("concurrent writers of different chats", func(t *testing.T) {
		const writers = 8
		var wg sync.WaitGroup
		errs := make(chan error, writers)
		base := time.Date(2026, 9, 3, 8, 0, 0, 0, time.UTC)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.Upsert(ctx, "shared", sampleChat(fmt.Sprintf("chat-%d", i), base.Add(time.Duration(i)*time.Second)))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, ok, err := store.Load(ctx, "shared")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Len(t, got, writers)
	})
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, newRedisStore(t))
}

func TestSQLiteStore(t *testing.T) {
	runStoreContract(t, newSQLiteStore(t))
}
