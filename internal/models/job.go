package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ImportStatusProcessing = "processing"
	ImportStatusCompleted  = "completed"
	ImportStatusFailed     = "failed"
	ImportStatusCancelled  = "cancelled"
)

// ImportJob is the durable record of one roster upload.
type ImportJob struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	Filename    string          `json:"filename"`
	OptionsJSON json.RawMessage `json:"options"`
	Status      string          `json:"status"` // "processing" | "completed" | "failed" | "cancelled"
	ResultJSON  json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`
}

type RowAction string

const (
	RowAdded   RowAction = "added"
	RowUpdated RowAction = "updated"
	RowSkipped RowAction = "skipped"
)

type RowOutcome struct {
	Identifier string    `json:"identifier"`
	Action     RowAction `json:"action"`
	Detail     string    `json:"detail,omitempty"`
}

type ImportSummary struct {
	Total   int `json:"total"`
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Balanced reports whether every row is accounted for exactly once.
func (s ImportSummary) Balanced() bool {
	return s.Added+s.Updated+s.Skipped == s.Total
}

type ImportResult struct {
	Success   bool          `json:"success"`
	HasErrors bool          `json:"hasErrors"`
	Message   string        `json:"message"`
	Summary   ImportSummary `json:"summary"`
	Errors    []string      `json:"errors"`
	Results   []RowOutcome  `json:"results"`
}

type ImportProgress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

type StreamEventType string

const (
	EventProgress StreamEventType = "progress"
	EventResult   StreamEventType = "result"
)

// StreamEvent is one framed event of the bulk import stream. Exactly one of
// Progress and Result is set, matching Type.
type StreamEvent struct {
	Type     StreamEventType
	Progress *ImportProgress
	Result   *ImportResult
}

func ProgressEvent(processed, total int) StreamEvent {
	percent := 100
	if total > 0 {
		percent = processed * 100 / total
	}
	return StreamEvent{
		Type:     EventProgress,
		Progress: &ImportProgress{Processed: processed, Total: total, Percent: percent},
	}
}

func ResultEvent(result ImportResult) StreamEvent {
	return StreamEvent{Type: EventResult, Result: &result}
}

type wireEvent struct {
	Type      StreamEventType `json:"type"`
	Progress  *int            `json:"progress,omitempty"`
	Processed *int            `json:"processed,omitempty"`
	Total     *int            `json:"total,omitempty"`
	Data      *ImportResult   `json:"data,omitempty"`
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventProgress:
		if e.Progress == nil {
			return nil, fmt.Errorf("progress event without payload")
		}
		p := e.Progress
		return json.Marshal(wireEvent{Type: e.Type, Progress: &p.Percent, Processed: &p.Processed, Total: &p.Total})
	case EventResult:
		if e.Result == nil {
			return nil, fmt.Errorf("result event without payload")
		}
		return json.Marshal(wireEvent{Type: e.Type, Data: e.Result})
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
}

func (e *StreamEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	switch w.Type {
	case EventProgress:
		if w.Progress == nil {
			return fmt.Errorf("progress event missing percent")
		}
		p := &ImportProgress{Percent: *w.Progress}
		if w.Processed != nil {
			p.Processed = *w.Processed
		}
		if w.Total != nil {
			p.Total = *w.Total
		}
		*e = StreamEvent{Type: EventProgress, Progress: p}
	case EventResult:
		if w.Data == nil {
			return fmt.Errorf("result event missing data")
		}
		*e = StreamEvent{Type: EventResult, Result: w.Data}
	default:
		return fmt.Errorf("unknown event type %q", w.Type)
	}
	return nil
}

// WebSocket message types
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type ImportProgressUpdate struct {
	JobID     uuid.UUID `json:"job_id"`
	Filename  string    `json:"filename"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Percent   int       `json:"percent"`
}

type ImportCompletedEvent struct {
	JobID  uuid.UUID    `json:"job_id"`
	Status string       `json:"status"`
	Result ImportResult `json:"result"`
}

// API Error response
type APIError struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id"`
}

type ErrorResponse struct {
	Error APIError `json:"error"`
}
