package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub-backend/internal/middleware"
	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/services"
)

func TestHub_RelaysUserChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	auth := middleware.NewJWTAuth("ws-secret")
	hub := NewHub(rdb, auth, "")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	userID := uuid.New()
	token, err := auth.GenerateAccessToken(userID, middleware.RoleTeacher, time.Hour)
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?token=" + token
	ws, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool {
		return hub.ConnectionCount(userID) == 1 && len(mr.PubSubChannels("")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	publisher := services.NewRedisPublisher(rdb)
	publisher.PublishUpdate(context.Background(), userID, models.WSMessage{
		Type:    "import_progress",
		Payload: models.ImportProgressUpdate{Filename: "7a.csv", Processed: 3, Total: 10, Percent: 30},
	})

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type    string                      `json:"type"`
		Payload models.ImportProgressUpdate `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "import_progress", msg.Type)
	assert.Equal(t, 30, msg.Payload.Percent)

	ws.Close()
	assert.Eventually(t, func() bool { return hub.ConnectionCount(userID) == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsBadToken(t *testing.T) {
	hub := NewHub(nil, middleware.NewJWTAuth("ws-secret"), "")
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer srv.Close()

	for _, q := range []string{"", "?token=garbage"} {
		resp, err := http.Get(srv.URL + q)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
