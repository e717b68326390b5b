package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"schoolhub-backend/internal/models"
)

// UserChannel is the pub/sub channel the websocket hub relays to a user's sockets.
func UserChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

// PublishUpdate sends a WebSocket update via Redis pub/sub
func (p *RedisPublisher) PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("WARN: failed to encode %s update: %v", msg.Type, err)
		return
	}
	if err := p.redis.Publish(ctx, UserChannel(userID), data).Err(); err != nil {
		log.Printf("WARN: failed to publish %s update for user %s: %v", msg.Type, userID, err)
	}
}
