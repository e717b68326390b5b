package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"schoolhub-backend/internal/bulkimport"
	"schoolhub-backend/internal/chat"
	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/stream"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow, color.Bold)
	infoColor    = color.New(color.FgCyan)
	boldColor    = color.New(color.Bold)
)

// replyPrinter writes the growing assistant message to out, printing only
// the text it has not printed yet.
type replyPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	msgID   uuid.UUID
	printed int
}

func (p *replyPrinter) update(s chat.Snapshot) {
	msgs := s.Chat.Messages
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != models.RoleAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if last.ID != p.msgID {
		if p.msgID != uuid.Nil && p.printed > 0 {
			fmt.Fprintln(p.out)
		}
		p.msgID = last.ID
		p.printed = 0
	}
	if len(last.Content) <= p.printed {
		return
	}

	text := last.Content[p.printed:]
	if chat.IsErrorMessage(last.Content) {
		errorColor.Fprint(p.out, text)
	} else {
		fmt.Fprint(p.out, text)
	}
	p.printed = len(last.Content)
}

// reset forgets the last message so the next turn starts a fresh line.
func (p *replyPrinter) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgID = uuid.Nil
	p.printed = 0
}

// progressLine renders "name  [#####.....]  42% (21/50)".
func progressLine(s bulkimport.Snapshot) string {
	const width = 30
	filled := s.Percent * width / 100
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("#", filled) + strings.Repeat(".", width-filled)
	return fmt.Sprintf("%s  [%s] %3d%% (%d/%d)", s.Filename, bar, s.Percent, s.Processed, s.Total)
}

// printImportPanel prints how an import ended.
func printImportPanel(w io.Writer, s bulkimport.Snapshot) {
	fmt.Fprintln(w)
	switch s.State {
	case stream.StateCancelled:
		warningColor.Fprintf(w, "⚠ Import of %s cancelled after %d of %d rows\n", s.Filename, s.Processed, s.Total)
		return
	case stream.StateFailed:
		errorColor.Fprintf(w, "✗ Import of %s did not finish: %v\n", s.Filename, s.Err)
		return
	}

	r := s.Result
	switch s.Outcome {
	case bulkimport.OutcomeFullSuccess:
		successColor.Fprintf(w, "✓ %s\n", r.Message)
	case bulkimport.OutcomePartialSuccess:
		warningColor.Fprintf(w, "⚠ %s\n", r.Message)
	case bulkimport.OutcomeHardFailure:
		errorColor.Fprintf(w, "✗ Import failed: %s\n", r.Message)
	}

	if r != nil && r.Success {
		boldColor.Fprintf(w, "  total %d  added %d  updated %d  skipped %d\n",
			r.Summary.Total, r.Summary.Added, r.Summary.Updated, r.Summary.Skipped)
	}
	if r != nil && s.Outcome == bulkimport.OutcomePartialSuccess {
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  • %s\n", e)
		}
	}
	for _, v := range s.Violations {
		infoColor.Fprintf(w, "  ℹ %v\n", v)
	}
}
