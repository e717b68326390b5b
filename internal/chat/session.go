package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/stream"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

type Config struct {
	// Endpoint is the full URL of the token stream endpoint.
	Endpoint    string
	Token       string
	HTTPClient  *http.Client
	IdleTimeout time.Duration

	Store      Store
	SessionKey string

	// OnUpdate receives a snapshot after every state change. It is called
	// without any session lock held.
	OnUpdate func(Snapshot)
}

// Snapshot is a point-in-time copy of the session's observable state.
type Snapshot struct {
	Chat         models.Chat
	Phase        Phase
	IsLoading    bool
	IsGenerating bool
	LastOutcome  stream.State
	LastErr      error
}

// Session drives user turn -> assistant turn exchanges for one chat. At most
// one turn is in flight; SendMessage while busy is ignored.
type Session struct {
	cfg    Config
	client *http.Client

	mu          sync.Mutex
	chat        models.Chat
	phase       Phase
	active      *stream.Request
	placeholder int
	lastOutcome stream.State
	lastErr     error
	done        chan struct{}
}

// NewSession wraps chat, or a fresh chat when chat is nil.
func NewSession(chat *models.Chat, cfg Config) *Session {
	s := &Session{cfg: cfg, client: cfg.HTTPClient, placeholder: -1}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	if chat != nil {
		s.chat = chat.Clone()
	} else {
		s.chat = models.Chat{ID: uuid.New(), CreatedAt: time.Now().UTC()}
	}
	return s
}

func (s *Session) ChatID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.ID
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) IsLoading() bool    { return s.Snapshot().IsLoading }
func (s *Session) IsGenerating() bool { return s.Snapshot().IsGenerating }

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Chat:         s.chat.Clone(),
		Phase:        s.phase,
		IsLoading:    s.phase == PhaseSending,
		IsGenerating: s.phase != PhaseIdle,
		LastOutcome:  s.lastOutcome,
		LastErr:      s.lastErr,
	}
}

func (s *Session) notify() {
	if s.cfg.OnUpdate == nil {
		return
	}
	s.cfg.OnUpdate(s.Snapshot())
}

// SendMessage appends the user message and starts streaming the reply in
// the background. It returns false, changing nothing, when a turn is
// already in flight or text is blank.
func (s *Session) SendMessage(ctx context.Context, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	s.mu.Lock()
	if s.phase != PhaseIdle {
		s.mu.Unlock()
		return false
	}

	s.chat.Messages = append(s.chat.Messages, models.ChatMessage{
		ID:        uuid.New(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	if s.chat.Title == "" {
		s.chat.Title = DeriveTitle(text)
	}
	s.chat.LastMessage = Preview(text)

	req := stream.NewRequest(s.client, s.build(history(s.chat.Messages)), s.cfg.IdleTimeout)
	s.active = req
	s.phase = PhaseSending
	s.placeholder = -1
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.notify()
	go s.run(ctx, req)
	return true
}

// StopGeneration cancels the in-flight turn, if any.
func (s *Session) StopGeneration() {
	s.mu.Lock()
	req := s.active
	s.mu.Unlock()

	if req != nil {
		req.Cancel()
	}
}

// Wait blocks until the current turn, if any, has reached a terminal state
// and been persisted.
func (s *Session) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done != nil {
		<-done
	}
}

func (s *Session) build(turns []models.ChatTurn) stream.BuildFunc {
	return func(ctx context.Context) (*http.Request, error) {
		body, err := json.Marshal(models.ChatStreamRequest{Messages: turns})
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "text/plain")
		if s.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
		}
		return req, nil
	}
}

func (s *Session) run(ctx context.Context, req *stream.Request) {
	consumer := &stream.TokenConsumer{
		OnChunk: func(text string) {
			if req.Deliver(func() { s.appendChunk(text) }) {
				s.notify()
			}
		},
	}

	out := req.Do(ctx, consumer.Consume)
	s.finish(out)
}

func (s *Session) appendChunk(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.placeholder < 0 {
		s.chat.Messages = append(s.chat.Messages, models.ChatMessage{
			ID:        uuid.New(),
			Role:      models.RoleAssistant,
			Timestamp: time.Now().UTC(),
		})
		s.placeholder = len(s.chat.Messages) - 1
		s.phase = PhaseStreaming
	}

	msg := &s.chat.Messages[s.placeholder]
	msg.Content += text
	s.chat.LastMessage = Preview(msg.Content)
}

func (s *Session) finish(out stream.Outcome) {
	s.mu.Lock()
	state, err := out.State, out.Err

	switch state {
	case stream.StateCompleted:
		if s.placeholder < 0 || s.chat.Messages[s.placeholder].Content == "" {
			state, err = stream.StateFailed, stream.ErrEmptyResponse
			s.appendError(err)
		}
	case stream.StateFailed:
		s.appendError(err)
	case stream.StateCancelled:
		// partial content stays as it was at the moment of cancellation
		err = nil
	}

	s.phase = PhaseIdle
	s.active = nil
	s.placeholder = -1
	s.lastOutcome = state
	s.lastErr = err
	chat := s.chat.Clone()
	done := s.done
	s.mu.Unlock()

	if state == stream.StateFailed {
		log.Printf("WARN: chat %s turn failed: %v", chat.ID, err)
	}
	s.persist(chat)
	close(done)
	s.notify()
}

// appendError replaces an empty placeholder with a marked error message.
func (s *Session) appendError(err error) {
	if s.placeholder >= 0 && s.chat.Messages[s.placeholder].Content == "" {
		s.chat.Messages = append(s.chat.Messages[:s.placeholder], s.chat.Messages[s.placeholder+1:]...)
	}
	text := errorText(err)
	s.chat.Messages = append(s.chat.Messages, models.ChatMessage{
		ID:        uuid.New(),
		Role:      models.RoleAssistant,
		Content:   text,
		Timestamp: time.Now().UTC(),
	})
	s.chat.LastMessage = Preview(text)
}

func (s *Session) persist(chat models.Chat) {
	if s.cfg.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.cfg.Store.Upsert(ctx, s.cfg.SessionKey, chat); err != nil {
		log.Printf("WARN: failed to persist chat %s: %v", chat.ID, err)
	}
}

// history is the request payload: every user and assistant turn, without
// synthetic error messages.
func history(messages []models.ChatMessage) []models.ChatTurn {
	turns := make([]models.ChatTurn, 0, len(messages))
	for _, m := range messages {
		if m.Role == models.RoleAssistant && IsErrorMessage(m.Content) {
			continue
		}
		turns = append(turns, models.ChatTurn{Role: m.Role, Content: m.Content})
	}
	return turns
}
