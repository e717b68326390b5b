package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/sync/semaphore"

	"schoolhub-backend/internal/middleware"
	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/policy"
	"schoolhub-backend/internal/services"
)

// multipart framing and form fields on top of the file itself
const multipartSlack = 1 << 20

type importRunner interface {
	Run(ctx context.Context, req services.ImportRequest, emit func(models.StreamEvent) error) (*models.ImportResult, error)
}

type importAuthorizer interface {
	AuthorizeImport(ctx context.Context, in policy.ImportInput) (policy.Decision, error)
}

type importJobReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ImportJob, error)
}

type ImportHandler struct {
	importer importRunner
	policy   importAuthorizer
	jobs     importJobReader
	slots    *semaphore.Weighted
	maxBytes int64
}

func NewImportHandler(importer importRunner, authz importAuthorizer, jobs importJobReader, maxBytes int64, maxConcurrent int) *ImportHandler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ImportHandler{
		importer: importer,
		policy:   authz,
		jobs:     jobs,
		slots:    semaphore.NewWeighted(int64(maxConcurrent)),
		maxBytes: maxBytes,
	}
}

// Create accepts a roster upload and streams the import as server-sent
// events: one progress event per row, then one result event.
func (h *ImportHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > h.maxBytes+multipartSlack {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", h.tooLargeMessage(), r))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartSlack)

	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", h.tooLargeMessage(), r))
			return
		}
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart form", r))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "No file provided", r))
		return
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResp("FILE_TOO_LARGE", h.tooLargeMessage(), r))
		return
	}
	if !models.IsSupportedRoster(header.Filename) {
		writeJSON(w, http.StatusUnsupportedMediaType, errorResp("UNSUPPORTED_FORMAT",
			"File type not supported; use "+strings.Join(models.RosterExtensions, " or "), r))
		return
	}

	opts, fields := parseImportOptions(r)
	if len(fields) > 0 {
		handleServiceError(w, r, &services.ValidationError{Fields: fields})
		return
	}

	ctx := r.Context()
	decision, err := h.policy.AuthorizeImport(ctx, policy.ImportInput{
		Role:           middleware.GetRole(ctx),
		ClassID:        opts.ClassID,
		UpdateExisting: opts.UpdateExisting,
	})
	if err != nil {
		log.Printf("ERROR: import policy evaluation failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
		return
	}
	if !decision.Allow {
		handleServiceError(w, r, &services.ForbiddenError{Message: decision.Reason})
		return
	}

	if !h.slots.TryAcquire(1) {
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusTooManyRequests, errorResp("IMPORT_BUSY", "Too many imports are running. Please try again shortly.", r))
		return
	}
	defer h.slots.Release(1)

	jobID := uuid.New()
	events := newEventWriter(w, jobID)
	_, err = h.importer.Run(ctx, services.ImportRequest{
		JobID:    jobID,
		UserID:   middleware.GetUserID(ctx),
		Filename: header.Filename,
		File:     file,
		Options:  opts,
	}, events.emit)
	if err == nil {
		return
	}

	log.Printf("WARN: import %s: %v", jobID, err)
	if !events.started {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Import could not be started", r))
	}
}

func (h *ImportHandler) tooLargeMessage() string {
	return fmt.Sprintf("File size exceeds %dMB limit", h.maxBytes>>20)
}

// GetJob returns an import job record to the user who started it.
func (h *ImportHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid job ID", r))
		return
	}

	job, err := h.jobs.GetByID(r.Context(), id)
	if errors.Is(err, pgx.ErrNoRows) {
		err = &services.NotFoundError{Message: "Import job not found"}
	} else if err != nil {
		log.Printf("ERROR: failed to load import job %s: %v", id, err)
	} else if job.UserID != middleware.GetUserID(r.Context()) {
		err = &services.ForbiddenError{Message: "Access denied"}
	}
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func parseImportOptions(r *http.Request) (models.ImportOptions, map[string]string) {
	fields := make(map[string]string)
	opts := models.ImportOptions{
		ClassID:    strings.TrimSpace(r.FormValue("class_id")),
		SchoolYear: strings.TrimSpace(r.FormValue("school_year")),
	}
	if raw := strings.TrimSpace(r.FormValue("update_existing")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			fields["update_existing"] = "Must be true or false"
		}
		opts.UpdateExisting = v
	}
	if len(opts.ClassID) > 32 {
		fields["class_id"] = "Must be at most 32 characters"
	}
	return opts, fields
}

// eventWriter frames events as "data: <json>\n\n" and commits the
// event-stream headers on the first one.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	jobID   uuid.UUID
	started bool
}

func newEventWriter(w http.ResponseWriter, jobID uuid.UUID) *eventWriter {
	f, _ := w.(http.Flusher)
	return &eventWriter{w: w, flusher: f, jobID: jobID}
}

func (e *eventWriter) emit(ev models.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
		h.Set("X-Import-Job-ID", e.jobID.String())
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}

	if _, err := fmt.Fprintf(e.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}
