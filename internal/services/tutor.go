package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"schoolhub-backend/internal/models"
)

// TokenSource produces an assistant reply as a sequence of text deltas.
// onDelta returning an error stops generation.
type TokenSource interface {
	StreamReply(ctx context.Context, turns []models.ChatTurn, onDelta func(string) error) error
}

const tutorInstruction = `You are the assistant of a school management system.
You help teachers and staff with questions about students, classes, grades, schedules and school administration.
Answer in the language of the question. Be concise and practical.`

type GeminiTutor struct {
	client   *genai.Client
	model    *genai.GenerativeModel
	rateChan chan struct{} // Token bucket
}

func NewGeminiTutor(apiKey, modelName string, concurrentReqs int) (*GeminiTutor, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(0.4)
	model.SetTopP(0.95)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(tutorInstruction)}}

	if concurrentReqs < 1 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiTutor{client: client, model: model, rateChan: rateChan}, nil
}

func (s *GeminiTutor) Close() {
	s.client.Close()
}

// acquireRate blocks until a rate slot is available
func (s *GeminiTutor) acquireRate(ctx context.Context) error {
	select {
	case <-s.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return &RateLimitError{Message: "AI assistant is busy, please try again"}
	}
}

func (s *GeminiTutor) releaseRate() {
	s.rateChan <- struct{}{}
}

func (s *GeminiTutor) StreamReply(ctx context.Context, turns []models.ChatTurn, onDelta func(string) error) error {
	contents := toContents(turns)
	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return errors.New("conversation must end with a user message")
	}

	if err := s.acquireRate(ctx); err != nil {
		return err
	}
	defer s.releaseRate()

	last := contents[len(contents)-1]
	cs := s.model.StartChat()
	cs.History = contents[:len(contents)-1]

	iter := cs.SendMessageStream(ctx, last.Parts...)
	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("Gemini API error: %w", err)
		}

		text := extractText(resp)
		if text == "" {
			continue
		}
		if err := onDelta(text); err != nil {
			return err
		}
	}
}

// toContents maps turns to Gemini roles, merging consecutive turns of the
// same role so the history alternates.
func toContents(turns []models.ChatTurn) []*genai.Content {
	var out []*genai.Content
	for _, t := range turns {
		role := "user"
		if t.Role == models.RoleAssistant {
			role = "model"
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, genai.Text(t.Content))
			continue
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}
	return out
}

func extractText(resp *genai.GenerateContentResponse) string {
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if t, ok := part.(genai.Text); ok {
					text.WriteString(string(t))
				}
			}
		}
	}
	return text.String()
}

// MockTutor streams a canned reply word by word. It stands in for Gemini
// when no API key is configured.
type MockTutor struct {
	Delay time.Duration
}

func NewMockTutor() *MockTutor {
	return &MockTutor{Delay: 40 * time.Millisecond}
}

var _ TokenSource = (*MockTutor)(nil)

func (m *MockTutor) StreamReply(ctx context.Context, turns []models.ChatTurn, onDelta func(string) error) error {
	if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser {
		return errors.New("conversation must end with a user message")
	}

	question := strings.TrimSpace(turns[len(turns)-1].Content)
	reply := fmt.Sprintf("(offline assistant) You asked: %q. This is message %d of the conversation.", question, len(turns))

	for _, chunk := range strings.SplitAfter(reply, " ") {
		if m.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.Delay):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := onDelta(chunk); err != nil {
			return err
		}
	}
	return nil
}
