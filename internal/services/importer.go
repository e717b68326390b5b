package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schoolhub-backend/internal/models"
)

// RowStore persists one validated student atomically: the row is fully
// applied or left untouched.
type RowStore interface {
	ApplyRow(ctx context.Context, s *models.Student, opts models.ImportOptions) (models.RowAction, string, error)
}

type ImportJobRecorder interface {
	Create(ctx context.Context, job *models.ImportJob) error
	Finish(ctx context.Context, id uuid.UUID, status string, result *models.ImportResult) error
}

type ProgressPublisher interface {
	PublishUpdate(ctx context.Context, userID uuid.UUID, msg models.WSMessage)
}

type ImportRequest struct {
	JobID    uuid.UUID
	UserID   uuid.UUID
	Filename string
	File     io.Reader
	Options  models.ImportOptions
}

// Importer runs one roster import: parse, then validate and persist every
// row in order, emitting a progress event per row and one result event.
type Importer struct {
	parser    *RosterParser
	rows      RowStore
	jobs      ImportJobRecorder
	publisher ProgressPublisher
}

func NewImporter(parser *RosterParser, rows RowStore, jobs ImportJobRecorder, publisher ProgressPublisher) *Importer {
	if parser == nil {
		parser = NewRosterParser()
	}
	return &Importer{parser: parser, rows: rows, jobs: jobs, publisher: publisher}
}

// Run processes req and hands every event to emit in order. A failure of emit
// means the client went away and stops the job. The returned error is non-nil
// only when the job could not start or was abandoned; a file that cannot be
// parsed still yields a result with Success=false.
func (im *Importer) Run(ctx context.Context, req ImportRequest, emit func(models.StreamEvent) error) (*models.ImportResult, error) {
	if req.JobID == uuid.Nil {
		req.JobID = uuid.New()
	}
	optionsJSON, _ := json.Marshal(req.Options)
	job := &models.ImportJob{
		ID:          req.JobID,
		UserID:      req.UserID,
		Filename:    req.Filename,
		OptionsJSON: optionsJSON,
	}
	if im.jobs != nil {
		if err := im.jobs.Create(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to create import job: %w", err)
		}
	}

	rows, err := im.parser.Parse(req.Filename, req.File)
	if err != nil {
		var fatal *JobFatalError
		if !errors.As(err, &fatal) {
			fatal = &JobFatalError{Message: "could not read file", Err: err}
		}
		log.Printf("Import %s rejected: %v", job.ID, fatal)
		result := fatalResult(fatal)
		return im.complete(ctx, job, models.ImportStatusFailed, result, emit)
	}

	total := len(rows)
	result := &models.ImportResult{
		Summary: models.ImportSummary{Total: total},
		Errors:  []string{},
		Results: make([]models.RowOutcome, 0, total),
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return im.abandon(job, result, err)
		}

		outcome, rowErr := im.processRow(ctx, row, req.Options)
		result.Results = append(result.Results, outcome)
		switch outcome.Action {
		case models.RowAdded:
			result.Summary.Added++
		case models.RowUpdated:
			result.Summary.Updated++
		default:
			result.Summary.Skipped++
		}
		if rowErr != nil {
			result.Errors = append(result.Errors, rowErr.Error())
		}

		ev := models.ProgressEvent(i+1, total)
		if err := emit(ev); err != nil {
			return im.abandon(job, result, err)
		}
		im.publish(ctx, req.UserID, models.WSMessage{
			Type: "import_progress",
			Payload: models.ImportProgressUpdate{
				JobID:     job.ID,
				Filename:  job.Filename,
				Processed: ev.Progress.Processed,
				Total:     ev.Progress.Total,
				Percent:   ev.Progress.Percent,
			},
		})
	}

	result.Success = true
	result.HasErrors = len(result.Errors) > 0
	result.Message = fmt.Sprintf("Processed %d rows: %d added, %d updated, %d skipped",
		total, result.Summary.Added, result.Summary.Updated, result.Summary.Skipped)

	return im.complete(ctx, job, models.ImportStatusCompleted, result, emit)
}

func (im *Importer) processRow(ctx context.Context, row models.RosterRow, opts models.ImportOptions) (models.RowOutcome, error) {
	student, err := ValidateRow(row, opts)
	if err != nil {
		var rv *RowValidationError
		errors.As(err, &rv)
		return models.RowOutcome{Identifier: rv.Identifier, Action: models.RowSkipped, Detail: rv.Message}, err
	}

	action, detail, err := im.rows.ApplyRow(ctx, student, opts)
	if err != nil {
		log.Printf("ERROR: failed to save row %d (%s): %v", row.Line, student.StudentCode, err)
		return models.RowOutcome{Identifier: student.StudentCode, Action: models.RowSkipped, Detail: "could not be saved"},
			&RowValidationError{Line: row.Line, Identifier: student.StudentCode, Message: "could not be saved"}
	}
	return models.RowOutcome{Identifier: student.StudentCode, Action: action, Detail: detail}, nil
}

func (im *Importer) complete(ctx context.Context, job *models.ImportJob, status string, result *models.ImportResult, emit func(models.StreamEvent) error) (*models.ImportResult, error) {
	im.finishJob(ctx, job, status, result)
	im.publish(ctx, job.UserID, models.WSMessage{
		Type:    "import_result",
		Payload: models.ImportCompletedEvent{JobID: job.ID, Status: status, Result: *result},
	})
	if err := emit(models.ResultEvent(*result)); err != nil {
		log.Printf("WARN: import %s finished but the result could not be delivered: %v", job.ID, err)
	}
	return result, nil
}

// abandon records a job whose client disconnected mid-way. Rows already
// applied stay applied.
func (im *Importer) abandon(job *models.ImportJob, partial *models.ImportResult, cause error) (*models.ImportResult, error) {
	partial.Message = "import stopped after the client disconnected"
	im.finishJob(context.Background(), job, models.ImportStatusCancelled, partial)
	log.Printf("Import %s stopped after %d of %d rows: %v", job.ID, len(partial.Results), partial.Summary.Total, cause)
	return nil, fmt.Errorf("import abandoned: %w", cause)
}

func (im *Importer) finishJob(ctx context.Context, job *models.ImportJob, status string, result *models.ImportResult) {
	if im.jobs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := im.jobs.Finish(ctx, job.ID, status, result); err != nil {
		log.Printf("WARN: failed to record import job %s as %s: %v", job.ID, status, err)
	}
}

func (im *Importer) publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) {
	if im.publisher == nil || userID == uuid.Nil {
		return
	}
	im.publisher.PublishUpdate(context.WithoutCancel(ctx), userID, msg)
}

func fatalResult(fatal *JobFatalError) *models.ImportResult {
	return &models.ImportResult{
		Success:   false,
		HasErrors: true,
		Message:   fatal.Error(),
		Errors:    []string{fatal.Error()},
		Results:   []models.RowOutcome{},
	}
}

// ValidateRow checks one roster row and converts it to a student record.
// Errors are *RowValidationError.
func ValidateRow(row models.RosterRow, opts models.ImportOptions) (*models.Student, error) {
	code := row.Get(ColStudentCode)
	ident := code
	if ident == "" {
		ident = fmt.Sprintf("line %d", row.Line)
	}
	reject := func(format string, args ...interface{}) error {
		return &RowValidationError{Line: row.Line, Identifier: ident, Message: fmt.Sprintf(format, args...)}
	}

	var missing []string
	for _, col := range requiredColumns {
		if row.Get(col) == "" {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, reject("missing %s", strings.Join(missing, ", "))
	}
	if len(code) > 32 || strings.ContainsAny(code, " \t") {
		return nil, reject("invalid student code %q", code)
	}

	s := &models.Student{
		StudentCode: code,
		FirstName:   row.Get(ColFirstName),
		LastName:    row.Get(ColLastName),
	}

	if email := row.Get(ColEmail); email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return nil, reject("invalid email %q", email)
		}
		s.Email = &email
	}

	if grade := row.Get(ColGradeLevel); grade != "" {
		n, err := strconv.Atoi(grade)
		if err != nil || n < 1 || n > 12 {
			return nil, reject("grade level must be a number from 1 to 12, got %q", grade)
		}
		s.GradeLevel = &n
	}

	if birth := row.Get(ColBirthDate); birth != "" {
		d, err := time.Parse("2006-01-02", birth)
		if err != nil {
			return nil, reject("birth date must be YYYY-MM-DD, got %q", birth)
		}
		s.BirthDate = &d
	}

	if opts.ClassID != "" {
		classID := opts.ClassID
		s.ClassID = &classID
	}
	if opts.SchoolYear != "" {
		year := opts.SchoolYear
		s.SchoolYear = &year
	}
	return s, nil
}
