package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/docforge/docforge/internal/constants"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

const (
	uploadPath = "/api/v1/tasks/upload"
	statusPath = "/api/v1/tasks/status/"
)

// retryLogger bridges retryablehttp's leveled logger into zerolog. Info and
// debug chatter is dropped; only retry-worthy conditions are surfaced.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(fieldMap(keysAndValues)).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

func fieldMap(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}

// Config holds client construction parameters.
type Config struct {
	// BaseURL is the conversion service root, e.g. "http://localhost:8000".
	BaseURL string

	// RetryMax bounds transport-level retries on status and download
	// requests. Defaults to 3.
	RetryMax int

	// Timeout applies to status and download requests. Uploads are bounded
	// only by their context so large files are not cut off mid-transfer.
	Timeout time.Duration
}

// Client talks to the conversion service. Status fetches and artifact
// downloads go through a retrying client; upload submissions use a plain
// client because their streaming multipart bodies cannot be replayed.
type Client struct {
	httpClient   *nethttp.Client
	uploadClient *nethttp.Client
	baseURL      string
	logger       *logging.Logger
}

// NewClient creates a client for the service at cfg.BaseURL.
func NewClient(cfg Config, logger *logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = constants.DefaultRetryMax
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = constants.DefaultRequestTimeout
	}
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = cfg.RetryMax
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = &retryLogger{logger: logger}

	httpClient := retryClient.StandardClient()
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient:   httpClient,
		uploadClient: &nethttp.Client{},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:       logger,
	}, nil
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AISettings are the optional AI provider fields sent with AI-capable task
// types. They are only ever transmitted as explicit upload form fields.
type AISettings struct {
	Provider string
	APIKey   string
	Model    string
}

// UploadRequest describes one submission to the upload endpoint.
type UploadRequest struct {
	// Filename is sent as the multipart file part's name; the server keys
	// its pipeline selection on TaskType, not on the name.
	Filename string

	// Content supplies the file bytes. The caller owns closing it.
	Content io.Reader

	// TaskType selects the server-side conversion pipeline.
	TaskType models.TaskType

	// Subject is free text forwarded to AI conversions. The server defaults
	// it to "General" when empty.
	Subject string

	// AI carries provider fields for AI-capable task types. Ignored for
	// types without an AI variant.
	AI *AISettings
}

// Upload submits one document for conversion. The multipart body is
// streamed, so arbitrarily large files never sit in memory. On success the
// server's task id is returned; the task starts its life as pending.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*models.TaskCreated, error) {
	url := c.baseURL + uploadPath

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeUploadForm(form, req))
	}()

	httpReq, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPost, url, pr)
	if err != nil {
		return nil, &TransportError{Op: "upload", URL: url, Err: err}
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.uploadClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "upload", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServerError{Op: "upload", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var created models.TaskCreated
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, &ServerError{Op: "upload", StatusCode: resp.StatusCode, Message: fmt.Sprintf("malformed body: %v", err)}
	}
	if created.ID == "" {
		return nil, &ServerError{Op: "upload", StatusCode: resp.StatusCode, Message: "response missing task id"}
	}

	c.logger.Debug().
		Str("task_id", created.ID).
		Str("task_type", string(req.TaskType)).
		Msg("Upload accepted")

	return &created, nil
}

// writeUploadForm encodes the multipart fields. Text fields go first so the
// server can reject a bad task_type before reading the file part.
func writeUploadForm(form *multipart.Writer, req UploadRequest) error {
	if err := form.WriteField("task_type", string(req.TaskType)); err != nil {
		return err
	}
	subject := req.Subject
	if subject == "" {
		subject = "General"
	}
	if err := form.WriteField("subject", subject); err != nil {
		return err
	}

	if req.AI != nil && req.TaskType.IsAICapable() {
		fields := map[string]string{
			"ai_provider": req.AI.Provider,
			"ai_api_key":  req.AI.APIKey,
			"ai_model":    req.AI.Model,
		}
		for name, value := range fields {
			if value == "" {
				continue
			}
			if err := form.WriteField(name, value); err != nil {
				return err
			}
		}
	}

	part, err := form.CreateFormFile("file", req.Filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return err
	}
	return form.Close()
}

// GetTaskStatus fetches the current status document for one task.
func (c *Client) GetTaskStatus(ctx context.Context, taskID string) (*models.Task, error) {
	url := c.baseURL + statusPath + taskID

	httpReq, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Op: "status", URL: url, Err: err}
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "status", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ServerError{Op: "status", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var task models.Task
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, &ParseError{Op: "status", Err: err}
	}
	if task.ID == "" {
		task.ID = taskID
	}

	return &task, nil
}

// Download streams a result artifact to w. fileURL is the server-relative
// output_file_url from a successful task's result. Returns bytes written.
func (c *Client) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	if !strings.HasPrefix(fileURL, "/") {
		fileURL = "/" + fileURL
	}
	url := c.baseURL + fileURL

	httpReq, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, url, nil)
	if err != nil {
		return 0, &TransportError{Op: "download", URL: url, Err: err}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, &TransportError{Op: "download", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != nethttp.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, &ServerError{Op: "download", StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, &TransportError{Op: "download", URL: url, Err: err}
	}
	return n, nil
}
