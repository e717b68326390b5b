package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"schoolhub-backend/internal/middleware"
	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/services"
)

const (
	maxChatBodyBytes = 1 << 20
	maxChatTurns     = 200
)

type ChatHandler struct {
	tokens services.TokenSource
}

func NewChatHandler(tokens services.TokenSource) *ChatHandler {
	return &ChatHandler{tokens: tokens}
}

// Stream answers a conversation with a plain-text body written token by
// token. Headers are committed with the first token; a failure before that
// is reported as JSON, a failure after it aborts the connection.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	var req models.ChatStreamRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	if fields := validateTurns(req.Messages); len(fields) > 0 {
		handleServiceError(w, r, &services.ValidationError{Fields: fields})
		return
	}

	userID := middleware.GetUserID(r.Context())
	flusher, _ := w.(http.Flusher)
	started := false
	commit := func() {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		started = true
	}

	err := h.tokens.StreamReply(r.Context(), req.Messages, func(delta string) error {
		if delta == "" {
			return nil
		}
		if !started {
			commit()
		}
		if _, err := io.WriteString(w, delta); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	})

	switch {
	case err == nil:
		if !started {
			// An empty 200 lets the client report an empty reply.
			commit()
		}
	case r.Context().Err() != nil:
		log.Printf("Chat stream for user %s ended by client: %v", userID, r.Context().Err())
	case !started:
		log.Printf("ERROR: chat stream for user %s failed before first token: %v", userID, err)
		var limited *services.RateLimitError
		if errors.As(err, &limited) {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusBadGateway, errorResp("AI_ERROR", "Failed to get AI response", r))
	default:
		log.Printf("ERROR: chat stream for user %s failed mid-answer: %v", userID, err)
		panic(http.ErrAbortHandler)
	}
}

func validateTurns(turns []models.ChatTurn) map[string]string {
	fields := make(map[string]string)
	switch {
	case len(turns) == 0:
		fields["messages"] = "At least one message is required"
		return fields
	case len(turns) > maxChatTurns:
		fields["messages"] = fmt.Sprintf("At most %d messages are allowed", maxChatTurns)
		return fields
	}

	for i, t := range turns {
		key := fmt.Sprintf("messages[%d]", i)
		if t.Role != models.RoleUser && t.Role != models.RoleAssistant {
			fields[key+".role"] = "Role must be user or assistant"
		}
		if strings.TrimSpace(t.Content) == "" {
			fields[key+".content"] = "Content is required"
		}
	}
	if last := turns[len(turns)-1]; last.Role != models.RoleUser {
		fields["messages"] = "The last message must come from the user"
	}
	return fields
}
