package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yungbote/figuregen-backend/internal/observability"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/ctxutil"
	"github.com/yungbote/figuregen-backend/internal/platform/httpx"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/platform/openai"
)

// Policy holds the polling and retry parameters for remote runs.
type Policy struct {
	PollInterval   time.Duration
	Timeout        time.Duration
	MaxAttempts    int
	TimeoutBackoff time.Duration
	ErrorBackoff   time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		PollInterval:   2 * time.Second,
		Timeout:        5 * time.Minute,
		MaxAttempts:    3,
		TimeoutBackoff: 2 * time.Second,
		ErrorBackoff:   5 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.PollInterval <= 0 {
		p.PollInterval = d.PollInterval
	}
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.TimeoutBackoff < 0 {
		p.TimeoutBackoff = 0
	}
	if p.ErrorBackoff < 0 {
		p.ErrorBackoff = 0
	}
	return p
}

// TerminalStatus is the outcome of polling a run.
type TerminalStatus string

const (
	StatusCompleted TerminalStatus = "completed"
	StatusFailed    TerminalStatus = "failed"
	StatusCancelled TerminalStatus = "cancelled"
	StatusExpired   TerminalStatus = "expired"
	StatusTimedOut  TerminalStatus = "timed_out"
)

// cleanupTimeout bounds best-effort remote calls made after the caller's
// context may already be gone.
const cleanupTimeout = 30 * time.Second

// ConversationClient drives remote assistant conversations.
type ConversationClient struct {
	api    openai.AssistantClient
	policy Policy
	log    *logger.Logger
}

func NewConversationClient(api openai.AssistantClient, policy Policy, baseLog *logger.Logger) *ConversationClient {
	return &ConversationClient{
		api:    api,
		policy: policy.normalized(),
		log:    baseLog.With("service", "ConversationClient"),
	}
}

func (c *ConversationClient) Policy() Policy { return c.policy }

func (c *ConversationClient) CreateConversation(ctx context.Context) (string, error) {
	return c.api.CreateThread(ctx)
}

// PostTurn appends a user turn; artifactID, when set, is attached ahead of the text.
func (c *ConversationClient) PostTurn(ctx context.Context, conversationID, text, artifactID string) error {
	return c.api.AddMessage(ctx, conversationID, text, artifactID)
}

func (c *ConversationClient) Run(ctx context.Context, conversationID, agentID string) (string, error) {
	if agentID == "" {
		return "", fmt.Errorf("%w: assistant id is not configured", errs.ErrInvalidInput)
	}
	return c.api.CreateRun(ctx, conversationID, agentID)
}

// PollToTerminal polls the run until it reaches a terminal state or timeout
// elapses. On elapse the run is cancelled remotely and StatusTimedOut is
// returned. The second return value carries the remote failure reason.
func (c *ConversationClient) PollToTerminal(ctx context.Context, conversationID, runID string, timeout time.Duration) (TerminalStatus, string, error) {
	if timeout <= 0 {
		timeout = c.policy.Timeout
	}
	deadline := time.Now().Add(timeout)
	for {
		run, err := c.api.GetRun(ctx, conversationID, runID)
		switch {
		case err == nil && run.Status.Terminal():
			return mapStatus(run.Status), run.Reason, nil
		case err != nil && !httpx.IsRetryableError(err):
			c.cancelRun(ctx, conversationID, runID)
			return "", "", err
		case err != nil:
			c.log.Warn("Run status poll failed, retrying", "conversation_id", conversationID, "run_id", runID, "error", err)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.cancelRun(ctx, conversationID, runID)
			return StatusTimedOut, "", nil
		}
		wait := c.policy.PollInterval
		if wait > remaining {
			wait = remaining
		}
		if err := httpx.Sleep(ctx, wait); err != nil {
			c.cancelRun(ctx, conversationID, runID)
			return "", "", err
		}
	}
}

func mapStatus(s openai.RunStatus) TerminalStatus {
	switch s {
	case openai.RunCompleted:
		return StatusCompleted
	case openai.RunCancelled:
		return StatusCancelled
	case openai.RunExpired:
		return StatusExpired
	default:
		return StatusFailed
	}
}

func (c *ConversationClient) cancelRun(ctx context.Context, conversationID, runID string) {
	cctx, cancel := context.WithTimeout(ctxutil.Detach(ctx), cleanupTimeout)
	defer cancel()
	if err := c.api.CancelRun(cctx, conversationID, runID); err != nil {
		c.log.Warn("Cancel run failed", "conversation_id", conversationID, "run_id", runID, "error", err)
	}
}

// LatestReply returns the newest assistant message text.
func (c *ConversationClient) LatestReply(ctx context.Context, conversationID string) (string, error) {
	msgs, err := c.api.ListMessages(ctx, conversationID, 20)
	if err != nil {
		return "", err
	}
	for _, m := range msgs {
		if m.Role == "assistant" {
			return m.Text, nil
		}
	}
	return "", fmt.Errorf("conversation %s: %w", conversationID, errs.ErrNoReply)
}

// Transcript returns up to limit messages, oldest first.
func (c *ConversationClient) Transcript(ctx context.Context, conversationID string, limit int) ([]openai.Message, error) {
	msgs, err := c.api.ListMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]openai.Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out, nil
}

// DeleteConversation removes a conversation remotely. Failures are logged
// and reported as false; they never propagate.
func (c *ConversationClient) DeleteConversation(ctx context.Context, conversationID string) bool {
	if conversationID == "" {
		return false
	}
	cctx, cancel := context.WithTimeout(ctxutil.Detach(ctx), cleanupTimeout)
	defer cancel()
	if err := c.api.DeleteThread(cctx, conversationID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.log.Info("Conversation already gone", "conversation_id", conversationID)
		} else {
			c.log.Warn("Delete conversation failed", "conversation_id", conversationID, "error", err)
		}
		return false
	}
	c.log.Debug("Deleted conversation", "conversation_id", conversationID)
	return true
}

// Request is one prompt to send through a fresh conversation.
type Request struct {
	Prompt      string
	ArtifactID  string
	AssistantID string
	// Label identifies the request in logs, e.g. "instructions/with_image".
	Label string
}

// Outcome is a completed conversation.
type Outcome struct {
	Text           string
	ConversationID string
	Attempts       int
}

// Converse runs the create, post, run, poll and read sequence with the
// client's retry policy. Each failed attempt's conversation is deleted
// before the next one starts. Only timeouts, non-completed runs and
// transient transport errors are retried.
func (c *ConversationClient) Converse(ctx context.Context, req Request) (Outcome, error) {
	log := c.log.With(append(ctxutil.LogFields(ctx), "label", req.Label)...)
	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		text, convID, err := c.attempt(ctx, req)
		observability.Current().ObserveRemoteAttempt(attemptOutcome(err))
		if err == nil {
			log.Info("Conversation completed", "attempt", attempt, "conversation_id", convID, "reply", text)
			return Outcome{Text: text, ConversationID: convID, Attempts: attempt}, nil
		}
		if convID != "" {
			c.DeleteConversation(ctx, convID)
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		lastErr = err
		if !errs.Retryable(err) && !httpx.IsRetryableError(err) {
			log.Warn("Conversation failed", "attempt", attempt, "error", err)
			return Outcome{Attempts: attempt}, err
		}
		log.Warn("Conversation attempt failed", "attempt", attempt, "max_attempts", c.policy.MaxAttempts, "error", err)
		if attempt == c.policy.MaxAttempts {
			break
		}
		backoff := c.policy.ErrorBackoff
		if errors.Is(err, errs.ErrRemoteTimeout) {
			backoff = c.policy.TimeoutBackoff
		}
		if err := httpx.Sleep(ctx, backoff); err != nil {
			return Outcome{Attempts: attempt}, err
		}
	}
	return Outcome{Attempts: c.policy.MaxAttempts}, fmt.Errorf("after %d attempts: %w", c.policy.MaxAttempts, lastErr)
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "completed"
	case errors.Is(err, errs.ErrRemoteTimeout):
		return "timeout"
	case errors.Is(err, errs.ErrRemoteRunFailed):
		return "run_failed"
	case errors.Is(err, errs.ErrNoReply):
		return "no_reply"
	default:
		return "error"
	}
}

// attempt returns the conversation id whenever one was created so the
// caller can clean it up.
func (c *ConversationClient) attempt(ctx context.Context, req Request) (string, string, error) {
	convID, err := c.CreateConversation(ctx)
	if err != nil {
		return "", "", fmt.Errorf("create conversation: %w", err)
	}
	text, err := c.Exchange(ctx, convID, req.Prompt, req.ArtifactID, req.AssistantID)
	return text, convID, err
}

// Exchange posts one turn to an existing conversation, runs the assistant and
// returns its reply. It does not retry.
func (c *ConversationClient) Exchange(ctx context.Context, conversationID, text, artifactID, assistantID string) (string, error) {
	if err := c.PostTurn(ctx, conversationID, text, artifactID); err != nil {
		return "", fmt.Errorf("post turn: %w", err)
	}
	runID, err := c.Run(ctx, conversationID, assistantID)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	status, reason, err := c.PollToTerminal(ctx, conversationID, runID, c.policy.Timeout)
	if err != nil {
		return "", fmt.Errorf("poll run: %w", err)
	}
	switch status {
	case StatusCompleted:
	case StatusTimedOut:
		return "", fmt.Errorf("run %s: %w after %s", runID, errs.ErrRemoteTimeout, c.policy.Timeout)
	default:
		if reason != "" {
			return "", fmt.Errorf("run %s ended %s (%s): %w", runID, status, reason, errs.ErrRemoteRunFailed)
		}
		return "", fmt.Errorf("run %s ended %s: %w", runID, status, errs.ErrRemoteRunFailed)
	}
	return c.LatestReply(ctx, conversationID)
}
