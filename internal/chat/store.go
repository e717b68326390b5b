package chat

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"schoolhub-backend/internal/models"
)

// Store persists the chats of one session key. Upsert replaces a single chat
// atomically so sessions writing different chats never overwrite each other.
type Store interface {
	Load(ctx context.Context, key string) ([]models.Chat, bool, error)
	Save(ctx context.Context, key string, chats []models.Chat) error
	Upsert(ctx context.Context, key string, chat models.Chat) error
}

// FindChat loads the chat with the given id from store.
func FindChat(ctx context.Context, store Store, key string, id uuid.UUID) (*models.Chat, error) {
	chats, ok, err := store.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no chats stored for %q", key)
	}
	for i := range chats {
		if chats[i].ID == id {
			return &chats[i], nil
		}
	}
	return nil, fmt.Errorf("chat %s not found", id)
}

// MergeChat returns chats with chat inserted or replaced by id.
func MergeChat(chats []models.Chat, chat models.Chat) []models.Chat {
	for i := range chats {
		if chats[i].ID == chat.ID {
			out := append([]models.Chat(nil), chats...)
			out[i] = chat
			return out
		}
	}
	return append(append([]models.Chat(nil), chats...), chat)
}
