package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolhub-backend/internal/models"
)

func TestMockTutor_StreamsWholeReply(t *testing.T) {
	var b strings.Builder
	deltas := 0
	err := (&MockTutor{}).StreamReply(context.Background(), []models.ChatTurn{
		{Role: models.RoleUser, Content: "When is the exam?"},
	}, func(s string) error {
		deltas++
		b.WriteString(s)
		return nil
	})

	require.NoError(t, err)
	assert.Greater(t, deltas, 1)
	assert.Contains(t, b.String(), `"When is the exam?"`)
}

func TestMockTutor_StopsWhenDeltaFails(t *testing.T) {
	stop := errors.New("client gone")
	calls := 0
	err := (&MockTutor{}).StreamReply(context.Background(), []models.ChatTurn{{Role: models.RoleUser, Content: "hi"}},
		func(string) error {
			calls++
			return stop
		})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestToContents_MergesRepeatedRoles(t *testing.T) {
	contents := toContents([]models.ChatTurn{
		{Role: models.RoleUser, Content: "q1"},
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "q2"},
		{Role: models.RoleUser, Content: "q3"},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, []genai.Part{genai.Text("q2"), genai.Text("q3")}, contents[2].Parts)
}
