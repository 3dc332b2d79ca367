package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

// RunStatus mirrors the remote run lifecycle.
type RunStatus string

const (
	RunQueued         RunStatus = "queued"
	RunInProgress     RunStatus = "in_progress"
	RunRequiresAction RunStatus = "requires_action"
	RunCancelling     RunStatus = "cancelling"
	RunCancelled      RunStatus = "cancelled"
	RunFailed         RunStatus = "failed"
	RunCompleted      RunStatus = "completed"
	RunIncomplete     RunStatus = "incomplete"
	RunExpired        RunStatus = "expired"
)

// Terminal reports whether the run will not change state again.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCancelled, RunFailed, RunCompleted, RunIncomplete, RunExpired:
		return true
	default:
		return false
	}
}

type Run struct {
	ID     string
	Status RunStatus
	// Reason is the remote last_error message, if any.
	Reason string
}

type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// AssistantClient is the subset of the Assistants API the generation core uses.
type AssistantClient interface {
	CreateThread(ctx context.Context) (string, error)
	// AddMessage posts a user turn. When fileID is set the image is placed
	// before the text.
	AddMessage(ctx context.Context, threadID, text, fileID string) error
	CreateRun(ctx context.Context, threadID, assistantID string) (string, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	CancelRun(ctx context.Context, threadID, runID string) error
	// ListMessages returns up to limit messages, newest first.
	ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error)
	DeleteThread(ctx context.Context, threadID string) error
	UploadFile(ctx context.Context, file io.Reader) (string, error)
}

type Config struct {
	APIKey     string `yaml:"apiKey"`
	BaseURL    string `yaml:"baseUrl"`
	MaxRetries int    `yaml:"maxRetries"`
	// Per-request timeout; zero keeps the SDK default.
	RequestTimeout time.Duration `yaml:"-"`
	HTTPClient     *http.Client  `yaml:"-"`
}

type client struct {
	api    sdk.Client
	log    *logger.Logger
	tracer trace.Tracer
}

func NewAssistantClient(log *logger.Logger, cfg Config) (AssistantClient, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(base, "/")+"/"))
	}
	if cfg.RequestTimeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.RequestTimeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	return &client{
		api:    sdk.NewClient(opts...),
		log:    log.With("service", "OpenAIAssistantClient"),
		tracer: otel.Tracer("figuregen/openai"),
	}, nil
}

func (c *client) CreateThread(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "openai.threads.create")
	defer span.End()
	th, err := c.api.Beta.Threads.New(ctx, sdk.BetaThreadNewParams{})
	if err != nil {
		return "", endSpan(span, wrapErr("create thread", err))
	}
	span.SetAttributes(attribute.String("thread_id", th.ID))
	return th.ID, nil
}

func (c *client) AddMessage(ctx context.Context, threadID, text, fileID string) error {
	ctx, span := c.tracer.Start(ctx, "openai.threads.messages.create",
		trace.WithAttributes(attribute.String("thread_id", threadID), attribute.Bool("with_file", fileID != "")))
	defer span.End()

	parts := make([]sdk.MessageContentPartParamUnion, 0, 2)
	if fileID != "" {
		parts = append(parts, sdk.MessageContentPartParamUnion{
			OfImageFile: &sdk.ImageFileContentBlockParam{
				ImageFile: sdk.ImageFileParam{FileID: fileID},
			},
		})
	}
	parts = append(parts, sdk.MessageContentPartParamUnion{
		OfText: &sdk.TextContentBlockParam{Text: text},
	})
	_, err := c.api.Beta.Threads.Messages.New(ctx, threadID, sdk.BetaThreadMessageNewParams{
		Role:    sdk.BetaThreadMessageNewParamsRoleUser,
		Content: sdk.BetaThreadMessageNewParamsContentUnion{OfArrayOfContentParts: parts},
	})
	if err != nil {
		return endSpan(span, wrapErr("add message", err))
	}
	return nil
}

func (c *client) CreateRun(ctx context.Context, threadID, assistantID string) (string, error) {
	ctx, span := c.tracer.Start(ctx, "openai.threads.runs.create",
		trace.WithAttributes(attribute.String("thread_id", threadID), attribute.String("assistant_id", assistantID)))
	defer span.End()
	run, err := c.api.Beta.Threads.Runs.New(ctx, threadID, sdk.BetaThreadRunNewParams{
		AssistantID: assistantID,
	})
	if err != nil {
		return "", endSpan(span, wrapErr("create run", err))
	}
	return run.ID, nil
}

func (c *client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.api.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return Run{}, wrapErr("get run", err)
	}
	return Run{
		ID:     run.ID,
		Status: RunStatus(run.Status),
		Reason: strings.TrimSpace(run.LastError.Message),
	}, nil
}

func (c *client) CancelRun(ctx context.Context, threadID, runID string) error {
	ctx, span := c.tracer.Start(ctx, "openai.threads.runs.cancel",
		trace.WithAttributes(attribute.String("thread_id", threadID), attribute.String("run_id", runID)))
	defer span.End()
	if _, err := c.api.Beta.Threads.Runs.Cancel(ctx, threadID, runID); err != nil {
		return endSpan(span, wrapErr("cancel run", err))
	}
	return nil
}

func (c *client) ListMessages(ctx context.Context, threadID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	page, err := c.api.Beta.Threads.Messages.List(ctx, threadID, sdk.BetaThreadMessageListParams{
		Limit: sdk.Int(int64(limit)),
		Order: sdk.BetaThreadMessageListParamsOrderDesc,
	})
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	out := make([]Message, 0, len(page.Data))
	for _, m := range page.Data {
		var b strings.Builder
		for _, part := range m.Content {
			switch part.Type {
			case "text":
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(part.Text.Value)
			case "image_file":
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString("[image]")
			}
		}
		out = append(out, Message{
			ID:        m.ID,
			Role:      string(m.Role),
			Text:      b.String(),
			CreatedAt: time.Unix(m.CreatedAt, 0).UTC(),
		})
	}
	return out, nil
}

func (c *client) DeleteThread(ctx context.Context, threadID string) error {
	ctx, span := c.tracer.Start(ctx, "openai.threads.delete",
		trace.WithAttributes(attribute.String("thread_id", threadID)))
	defer span.End()
	if _, err := c.api.Beta.Threads.Delete(ctx, threadID); err != nil {
		return endSpan(span, wrapErr("delete thread", err))
	}
	return nil
}

func (c *client) UploadFile(ctx context.Context, file io.Reader) (string, error) {
	ctx, span := c.tracer.Start(ctx, "openai.files.create")
	defer span.End()
	f, err := c.api.Files.New(ctx, sdk.FileNewParams{
		File:    file,
		Purpose: sdk.FilePurposeAssistants,
	})
	if err != nil {
		return "", endSpan(span, wrapErr("upload file", err))
	}
	span.SetAttributes(attribute.String("file_id", f.ID))
	return f.ID, nil
}

// APIError carries the HTTP status of a failed Assistants API call so
// httpx.IsRetryableError can classify it.
type APIError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai %s (http %d): %v", e.Op, e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

func (e *APIError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Is makes a 404 from the API match errs.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == errs.ErrNotFound && e.StatusCode == http.StatusNotFound
}

func wrapErr(op string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &APIError{Op: op, StatusCode: apiErr.StatusCode, Err: err}
	}
	return fmt.Errorf("openai %s: %w", op, err)
}

func endSpan(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
