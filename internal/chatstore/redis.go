package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolhub-backend/internal/chat"
	"schoolhub-backend/internal/models"
)

const upsertRetries = 10

// RedisStore keeps each session's chats as one JSON array under chat_sessions:<key>.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(key string) string {
	return "chat_sessions:" + key
}

func (s *RedisStore) Load(ctx context.Context, key string) ([]models.Chat, bool, error) {
	return loadChats(ctx, s.client, redisKey(key))
}

func (s *RedisStore) Save(ctx context.Context, key string, chats []models.Chat) error {
	data, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("failed to encode chats: %w", err)
	}
	return s.client.Set(ctx, redisKey(key), data, s.ttl).Err()
}

// Upsert merges chat into the stored array under WATCH, retrying when another
// writer changed the key in between.
func (s *RedisStore) Upsert(ctx context.Context, key string, c models.Chat) error {
	rk := redisKey(key)

	txf := func(tx *redis.Tx) error {
		chats, _, err := loadChats(ctx, tx, rk)
		if err != nil {
			return err
		}
		data, err := json.Marshal(chat.MergeChat(chats, c))
		if err != nil {
			return fmt.Errorf("failed to encode chats: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, data, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < upsertRetries; i++ {
		err := s.client.Watch(ctx, txf, rk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to upsert chat %s: too much contention on %s", c.ID, rk)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadChats(ctx context.Context, cmd getter, key string) ([]models.Chat, bool, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}

	var chats []models.Chat
	if err := json.Unmarshal(data, &chats); err != nil {
		return nil, false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return chats, true, nil
}
