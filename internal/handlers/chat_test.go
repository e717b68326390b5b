package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub-backend/internal/middleware"
	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/services"
)

type stubTokens struct {
	deltas []string
	err    error
	turns  []models.ChatTurn
}

func (s *stubTokens) StreamReply(ctx context.Context, turns []models.ChatTurn, onDelta func(string) error) error {
	s.turns = turns
	for _, d := range s.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return s.err
}

func chatRequest(t *testing.T, body interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(middleware.WithUser(req.Context(), uuid.New(), middleware.RoleStudent))
}

func TestChatHandler_StreamsDeltas(t *testing.T) {
	tokens := &stubTokens{deltas: []string{"سل", "ام", "!"}}
	h := NewChatHandler(tokens)

	turns := []models.ChatTurn{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
		{Role: models.RoleUser, Content: "سلام"},
	}
	rr := httptest.NewRecorder()
	h.Stream(rr, chatRequest(t, models.ChatStreamRequest{Messages: turns}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, "سلام!", rr.Body.String())
	assert.True(t, rr.Flushed)
	assert.Equal(t, turns, tokens.turns)
}

func TestChatHandler_Validation(t *testing.T) {
	tests := []struct {
		name  string
		turns []models.ChatTurn
		field string
	}{
		{"no messages", nil, "messages"},
		{"bad role", []models.ChatTurn{{Role: "system", Content: "x"}}, "messages[0].role"},
		{"blank content", []models.ChatTurn{{Role: models.RoleUser, Content: "  "}}, "messages[0].content"},
		{"last from assistant", []models.ChatTurn{
			{Role: models.RoleUser, Content: "a"},
			{Role: models.RoleAssistant, Content: "b"},
		}, "messages"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tokens := &stubTokens{}
			rr := httptest.NewRecorder()
			NewChatHandler(tokens).Stream(rr, chatRequest(t, models.ChatStreamRequest{Messages: tc.turns}))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			var resp models.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
			assert.Contains(t, resp.Error.Fields, tc.field)
			assert.Nil(t, tokens.turns, "token source must not be called")
		})
	}
}

func TestChatHandler_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", bytes.NewReader([]byte("{")))
	rr := httptest.NewRecorder()
	NewChatHandler(&stubTokens{}).Stream(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChatHandler_FailureBeforeFirstToken(t *testing.T) {
	rr := httptest.NewRecorder()
	h := NewChatHandler(&stubTokens{err: errors.New("quota exhausted")})
	h.Stream(rr, chatRequest(t, models.ChatStreamRequest{Messages: []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}}))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "AI_ERROR", resp.Error.Code)
}

func TestChatHandler_TutorBusyIsTooManyRequests(t *testing.T) {
	rr := httptest.NewRecorder()
	busy := &services.RateLimitError{Message: "AI assistant is busy, please try again"}
	h := NewChatHandler(&stubTokens{err: fmt.Errorf("acquire slot: %w", busy)})
	h.Stream(rr, chatRequest(t, models.ChatStreamRequest{Messages: []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}}))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "RATE_LIMITED", resp.Error.Code)
	assert.Equal(t, busy.Message, resp.Error.Message)
}

func TestChatHandler_EmptyReply(t *testing.T) {
	rr := httptest.NewRecorder()
	NewChatHandler(&stubTokens{deltas: []string{"", ""}}).Stream(rr,
		chatRequest(t, models.ChatStreamRequest{Messages: []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}}))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.String())
}

func TestChatHandler_FailureMidAnswerAborts(t *testing.T) {
	rr := httptest.NewRecorder()
	h := NewChatHandler(&stubTokens{deltas: []string{"partial"}, err: errors.New("upstream reset")})
	req := chatRequest(t, models.ChatStreamRequest{Messages: []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}}})

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() { h.Stream(rr, req) })
	assert.Equal(t, "partial", rr.Body.String())
}
