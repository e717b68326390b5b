package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"schoolhub-backend/internal/bulkimport"
	"schoolhub-backend/internal/chat"
	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/stream"
)

func init() {
	color.NoColor = true
}

func snapshotWith(msgs ...models.ChatMessage) chat.Snapshot {
	return chat.Snapshot{Chat: models.Chat{Messages: msgs}}
}

func TestReplyPrinter_PrintsOnlyNewText(t *testing.T) {
	var buf bytes.Buffer
	p := &replyPrinter{out: &buf}

	user := models.ChatMessage{ID: uuid.New(), Role: models.RoleUser, Content: "hi"}
	reply := models.ChatMessage{ID: uuid.New(), Role: models.RoleAssistant}

	p.update(snapshotWith(user))
	for _, content := range []string{"سل", "سلام", "سلام!", "سلام!"} {
		reply.Content = content
		p.update(snapshotWith(user, reply))
	}
	assert.Equal(t, "سلام!", buf.String())

	failure := models.ChatMessage{ID: uuid.New(), Role: models.RoleAssistant, Content: chat.ErrorMarker + "boom"}
	p.update(snapshotWith(user, reply, failure))
	assert.Equal(t, "سلام!\n"+chat.ErrorMarker+"boom", buf.String())

	p.reset()
	buf.Reset()
	next := models.ChatMessage{ID: uuid.New(), Role: models.RoleAssistant, Content: "ok"}
	p.update(snapshotWith(next))
	assert.Equal(t, "ok", buf.String())
}

func TestProgressLine(t *testing.T) {
	line := progressLine(bulkimport.Snapshot{Filename: "7a.csv", Processed: 5, Total: 10, Percent: 50})
	assert.Equal(t, "7a.csv  [###############...............]  50% (5/10)", line)
}

func TestPrintImportPanel(t *testing.T) {
	partial := &models.ImportResult{
		Success: true, HasErrors: true,
		Message: "Processed 10 rows: 7 added, 1 updated, 2 skipped",
		Summary: models.ImportSummary{Total: 10, Added: 7, Updated: 1, Skipped: 2},
		Errors:  []string{"Row 4 (S003): last_name is required", "Row 6 (S005): invalid email"},
	}

	tests := []struct {
		name     string
		snap     bulkimport.Snapshot
		contains []string
		absent   []string
	}{
		{
			name: "partial success lists every row error",
			snap: bulkimport.Snapshot{State: stream.StateCompleted, Outcome: bulkimport.OutcomePartialSuccess, Result: partial},
			contains: []string{"⚠ Processed 10 rows", "added 7", "Row 4 (S003)", "Row 6 (S005)"},
		},
		{
			name: "full success",
			snap: bulkimport.Snapshot{State: stream.StateCompleted, Outcome: bulkimport.OutcomeFullSuccess,
				Result: &models.ImportResult{Success: true, Message: "Processed 2 rows: 2 added, 0 updated, 0 skipped",
					Summary: models.ImportSummary{Total: 2, Added: 2}}},
			contains: []string{"✓ Processed 2 rows"},
			absent:   []string{"•"},
		},
		{
			name: "hard failure",
			snap: bulkimport.Snapshot{State: stream.StateCompleted, Outcome: bulkimport.OutcomeHardFailure,
				Result: &models.ImportResult{Message: "missing required columns: last_name"}},
			contains: []string{"✗ Import failed: missing required columns: last_name"},
			absent:   []string{"added"},
		},
		{
			name:     "truncated stream",
			snap:     bulkimport.Snapshot{State: stream.StateFailed, Filename: "7a.csv", Err: errors.New("stream ended before the result event")},
			contains: []string{"✗ Import of 7a.csv did not finish"},
		},
		{
			name:     "cancelled",
			snap:     bulkimport.Snapshot{State: stream.StateCancelled, Filename: "7a.csv", Processed: 3, Total: 10},
			contains: []string{"cancelled after 3 of 10 rows"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			printImportPanel(&buf, tc.snap)
			for _, s := range tc.contains {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tc.absent {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestTokenCommand(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"token", "--secret", "s3cret", "--role", "admin"})
	assert.NoError(t, rootCmd.Execute())
	assert.Regexp(t, `^[\w-]+\.[\w-]+\.[\w-]+\n$`, buf.String())

	rootCmd.SetArgs([]string{"token", "--secret", "s3cret", "--role", "janitor"})
	assert.Error(t, rootCmd.Execute())
}
