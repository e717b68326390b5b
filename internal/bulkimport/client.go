package bulkimport

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"schoolhub-backend/internal/models"
	"schoolhub-backend/internal/stream"
)

const DefaultMaxFileBytes = 20 << 20

type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8080.
	BaseURL      string
	Token        string
	HTTPClient   *http.Client
	IdleTimeout  time.Duration
	MaxFileBytes int64

	// OnUpdate receives a snapshot after every change, without locks held.
	OnUpdate func(Snapshot)
}

// Snapshot is the observable state of the current or last import.
type Snapshot struct {
	State     stream.State
	Filename  string
	Processed int
	Total     int
	Percent   int
	Outcome   Outcome
	Result    *models.ImportResult
	// Violations lists protocol problems seen in the stream, such as
	// progress moving backwards. A regressed progress event still updates
	// Total but leaves Processed and Percent where they were.
	Violations []error
	Err        error
}

// Client uploads roster files and follows the import's event stream. One
// import runs at a time per Client.
type Client struct {
	cfg    Config
	client *http.Client

	mu     sync.Mutex
	active *stream.Request
	snap   Snapshot
}

func NewClient(cfg Config) *Client {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	c := &Client{cfg: cfg, client: cfg.HTTPClient}
	if c.client == nil {
		c.client = http.DefaultClient
	}
	return c
}

// ValidateFile runs the checks made before an upload. Errors are
// *ClientValidationError.
func ValidateFile(path string, maxBytes int64) error {
	if !models.IsSupportedRoster(path) {
		return &ClientValidationError{Path: path, Message: fmt.Sprintf("unsupported file type; use one of %s", strings.Join(models.RosterExtensions, ", "))}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &ClientValidationError{Path: path, Message: "file not found"}
	}
	if info.IsDir() {
		return &ClientValidationError{Path: path, Message: "is a directory"}
	}
	if info.Size() == 0 {
		return &ClientValidationError{Path: path, Message: "file is empty"}
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return &ClientValidationError{Path: path, Message: fmt.Sprintf("file exceeds %d MB limit", maxBytes>>20)}
	}
	return nil
}

func (c *Client) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Client) snapshotLocked() Snapshot {
	s := c.snap
	s.Violations = append([]error(nil), c.snap.Violations...)
	return s
}

func (c *Client) notify() {
	if c.cfg.OnUpdate != nil {
		c.cfg.OnUpdate(c.Snapshot())
	}
}

// Upload validates path, sends it with opts and blocks until the import
// stream ends. The returned error covers only pre-flight problems; how the
// job itself ended is in the snapshot's State, Outcome and Err.
func (c *Client) Upload(ctx context.Context, path string, opts models.ImportOptions) (Snapshot, error) {
	if err := ValidateFile(path, c.cfg.MaxFileBytes); err != nil {
		return Snapshot{}, err
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return Snapshot{}, ErrJobInFlight
	}

	body, contentType, err := multipartBody(path, opts)
	if err != nil {
		c.mu.Unlock()
		return Snapshot{}, err
	}

	req := stream.NewRequest(c.client, c.build(body, contentType), c.cfg.IdleTimeout)
	c.active = req
	c.snap = Snapshot{State: stream.StateInFlight, Filename: filepath.Base(path)}
	c.mu.Unlock()
	c.notify()

	consumer := &stream.EventConsumer{
		OnEvent: func(ev models.StreamEvent) {
			if req.Deliver(func() { c.apply(ev) }) {
				c.notify()
			}
		},
	}
	out := req.Do(ctx, consumer.Consume)

	c.mu.Lock()
	c.active = nil
	c.snap.State = out.State
	c.snap.Err = out.Err
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if out.State == stream.StateFailed {
		log.Printf("WARN: import of %s failed: %v", snap.Filename, out.Err)
	}
	c.notify()
	return snap, nil
}

// Cancel stops the running import, if any.
func (c *Client) Cancel() {
	c.mu.Lock()
	req := c.active
	c.mu.Unlock()

	if req != nil {
		req.Cancel()
	}
}

func (c *Client) apply(ev models.StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case models.EventProgress:
		p := ev.Progress
		c.snap.Total = p.Total
		if p.Percent < c.snap.Percent || p.Processed < c.snap.Processed {
			err := fmt.Errorf("%w: %d%% (%d rows) after %d%% (%d rows)",
				ErrProgressRegressed, p.Percent, p.Processed, c.snap.Percent, c.snap.Processed)
			log.Printf("WARN: %v", err)
			c.snap.Violations = append(c.snap.Violations, err)
			return
		}
		c.snap.Processed = p.Processed
		c.snap.Percent = p.Percent
	case models.EventResult:
		c.snap.Result = ev.Result
		c.snap.Outcome = Classify(ev.Result)
	}
}

func (c *Client) build(body []byte, contentType string) stream.BuildFunc {
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/api/v1/imports"
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "text/event-stream")
		if c.cfg.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		}
		return req, nil
	}
}

func multipartBody(path string, opts models.ImportOptions) ([]byte, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, "", err
	}

	fields := map[string]string{
		"class_id":        opts.ClassID,
		"school_year":     opts.SchoolYear,
		"update_existing": strconv.FormatBool(opts.UpdateExisting),
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
