package chat

import (
	"errors"
	"net/http"
	"strings"

	"schoolhub-backend/internal/stream"
)

// ErrorMarker prefixes synthetic assistant messages that report a failed turn.
const ErrorMarker = "[error] "

const (
	titleLimit   = 40
	previewLimit = 60
)

func IsErrorMessage(content string) bool {
	return strings.HasPrefix(content, ErrorMarker)
}

// DeriveTitle builds a chat title from the first user message.
func DeriveTitle(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	title := truncate(strings.TrimSpace(line), titleLimit)
	if title == "" {
		return "New chat"
	}
	return title
}

// Preview is the one-line summary shown next to a chat in lists.
func Preview(text string) string {
	return truncate(strings.Join(strings.Fields(text), " "), previewLimit)
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

// errorText maps a failed turn to the message shown in the transcript.
func errorText(err error) string {
	var te *stream.TransportError
	switch {
	case errors.Is(err, stream.ErrEmptyResponse):
		return ErrorMarker + "The assistant returned an empty response. Please try again."
	case errors.Is(err, stream.ErrStreamStalled):
		return ErrorMarker + "The assistant stopped responding. Please try again."
	case errors.As(err, &te) && te.StatusCode == http.StatusTooManyRequests:
		return ErrorMarker + "Too many requests. Please wait a moment and try again."
	case errors.As(err, &te) && te.StatusCode == http.StatusUnauthorized:
		return ErrorMarker + "Your session has expired. Please sign in again."
	default:
		return ErrorMarker + "Failed to get AI response. Please try again."
	}
}
