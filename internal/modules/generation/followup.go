package generation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/observability"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/ctxutil"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/locks"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
	"github.com/yungbote/figuregen-backend/internal/platform/openai"
)

// Turn is one locally known message of a follow-up session.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	Pending   bool      `json:"pending,omitempty"`
}

// SessionView is a snapshot of a follow-up session.
type SessionView struct {
	FigureID       uuid.UUID       `json:"figure_id"`
	Variant        figures.Variant `json:"variant"`
	ConversationID string          `json:"conversation_id,omitempty"`
	// NoHistory is set when the svg slot had no conversation to continue;
	// the variant's instructions are then the only context.
	NoHistory    bool      `json:"no_history"`
	Instructions string    `json:"instructions,omitempty"`
	Candidate    string    `json:"candidate,omitempty"`
	Busy         bool      `json:"busy"`
	Turns        []Turn    `json:"turns"`
	OpenedAt     time.Time `json:"opened_at"`
}

type sessionKey struct {
	figureID uuid.UUID
	variant  figures.Variant
}

type session struct {
	mu       sync.Mutex
	figureID uuid.UUID
	variant  figures.Variant
	// bound is the svg slot's conversation when the session opened. Accept
	// only writes while the slot still holds it.
	bound string
	// created is a conversation this session started in no-history mode. It
	// is deleted unless accepted into the slot.
	created        string
	conversationID string
	noHistory      bool
	instructions   string
	candidate      string
	busy           bool
	turns          []Turn
	openedAt       time.Time
	lastActive     time.Time
}

func (s *session) viewLocked() *SessionView {
	return &SessionView{
		FigureID:       s.figureID,
		Variant:        s.variant,
		ConversationID: s.conversationID,
		NoHistory:      s.noHistory,
		Instructions:   s.instructions,
		Candidate:      s.candidate,
		Busy:           s.busy,
		Turns:          append([]Turn(nil), s.turns...),
		OpenedAt:       s.openedAt,
	}
}

// sessionIdleTTL is how long an idle session survives before Open sweeps it.
const sessionIdleTTL = time.Hour

// FollowupManager holds the refinement sessions for svg outputs. At most one
// submission per session is in flight, and submissions share the svg slot
// lock with the orchestrator.
type FollowupManager struct {
	conv        *ConversationClient
	figures     FigureStore
	locker      locks.Locker
	lockTTL     time.Duration
	idleTTL     time.Duration
	assistantID string
	log         *logger.Logger

	mu       sync.Mutex
	sessions map[sessionKey]*session
	now      func() time.Time
}

func NewFollowupManager(baseLog *logger.Logger, conv *ConversationClient, figureStore FigureStore, locker locks.Locker, svgAssistantID string) *FollowupManager {
	if locker == nil {
		locker = locks.NewMemoryLocker()
	}
	return &FollowupManager{
		conv:        conv,
		figures:     figureStore,
		locker:      locker,
		lockTTL:     2*conv.Policy().Timeout + time.Minute,
		idleTTL:     sessionIdleTTL,
		assistantID: svgAssistantID,
		log:         baseLog.With("service", "FollowupManager"),
		sessions:    map[sessionKey]*session{},
		now:         time.Now,
	}
}

// Open returns the session for (figureID, v), creating it bound to the svg
// slot's conversation when needed. It fails with ErrBusy while the svg stage
// is running for v.
func (m *FollowupManager) Open(ctx context.Context, figureID uuid.UUID, v figures.Variant) (*SessionView, error) {
	m.sweep(ctx)

	f, err := m.figures.GetByID(dbctx.New(ctx), figureID)
	if err != nil {
		return nil, err
	}
	slot := f.Slot(v, figures.StageSVG)
	if slot == nil {
		return nil, fmt.Errorf("%w: unknown variant %q", errs.ErrInvalidInput, v)
	}

	key := sessionKey{figureID: figureID, variant: v}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.lastActive = m.now()
		return s.viewLocked(), nil
	}

	if slot.Status == figures.SlotProcessing {
		return nil, fmt.Errorf("%w: svg generation for %s/%s is running", errs.ErrBusy, figureID, v)
	}
	conv := slot.ConversationID
	instructions := f.Instructions(v)
	if conv == "" && instructions == "" {
		return nil, fmt.Errorf("%w: figure %s has no %s svg conversation or instructions", errs.ErrNoInstructions, figureID, v)
	}
	now := m.now()
	s := &session{
		figureID:       figureID,
		variant:        v,
		bound:          conv,
		conversationID: conv,
		noHistory:      conv == "",
		instructions:   instructions,
		openedAt:       now.UTC(),
		lastActive:     now,
	}
	m.sessions[key] = s
	observability.Current().IncFollowup("opened")
	m.log.Info("Follow-up session opened", "figure_id", figureID, "variant", v, "conversation_id", conv, "no_history", s.noHistory)
	return s.viewLocked(), nil
}

func (m *FollowupManager) get(figureID uuid.UUID, v figures.Variant) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey{figureID: figureID, variant: v}]
	if !ok {
		return nil, fmt.Errorf("follow-up session %s/%s: %w", figureID, v, errs.ErrNotFound)
	}
	return s, nil
}

// View returns the session snapshot without remote calls.
func (m *FollowupManager) View(figureID uuid.UUID, v figures.Variant) (*SessionView, error) {
	s, err := m.get(figureID, v)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(), nil
}

// claim marks s busy. It fails with ErrBusy when a submission or accept is
// already running.
func (s *session) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return fmt.Errorf("%w: a follow-up for %s/%s is already running", errs.ErrBusy, s.figureID, s.variant)
	}
	s.busy = true
	return nil
}

func (s *session) unclaim() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}

// lockSlot takes the svg slot lock for s and checks that the slot still holds
// the conversation s was bound to. A regenerated slot makes the session
// stale: it is dropped and ErrBusy returned.
func (m *FollowupManager) lockSlot(ctx context.Context, s *session) (release func(), err error) {
	key := slotKey(s.figureID, s.variant, figures.StageSVG)
	token, ok, err := m.locker.TryAcquire(ctx, key, m.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire slot lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: svg generation for %s/%s is running", errs.ErrBusy, s.figureID, s.variant)
	}
	release = func() {
		if err := m.locker.Release(ctxutil.Detach(ctx), key, token); err != nil {
			m.log.Warn("Release slot lock failed", "key", key, "error", err)
		}
	}

	f, err := m.figures.GetByID(dbctx.New(ctx), s.figureID)
	if err != nil {
		release()
		return nil, err
	}
	if current := f.Slot(s.variant, figures.StageSVG).ConversationID; current != s.bound {
		release()
		m.discard(ctx, s)
		observability.Current().IncFollowup("superseded")
		return nil, fmt.Errorf("%w: svg for %s/%s was regenerated, reopen the follow-up", errs.ErrBusy, s.figureID, s.variant)
	}
	return release, nil
}

// Submit sends userText to the session's conversation and returns the
// extracted svg candidate. It is not written to the figure until Accept.
func (m *FollowupManager) Submit(ctx context.Context, figureID uuid.UUID, v figures.Variant, userText string) (string, error) {
	text := strings.TrimSpace(userText)
	if text == "" {
		return "", fmt.Errorf("%w: follow-up text is empty", errs.ErrInvalidInput)
	}
	s, err := m.get(figureID, v)
	if err != nil {
		return "", err
	}
	if err := s.claim(); err != nil {
		return "", err
	}

	// The remote run must finish even if the caller goes away, otherwise the
	// session would lose track of it.
	runCtx := ctxutil.Detach(ctx)
	release, err := m.lockSlot(runCtx, s)
	if err != nil {
		s.unclaim()
		return "", err
	}
	defer release()

	s.mu.Lock()
	s.turns = append(s.turns, Turn{Role: "user", Text: text, CreatedAt: m.now().UTC(), Pending: true})
	turnIdx := len(s.turns) - 1
	conv := s.conversationID
	instructions := s.instructions
	s.mu.Unlock()

	log := m.log.With(append(ctxutil.LogFields(ctx), "figure_id", figureID, "variant", v)...)

	created := ""
	prompt := text
	if conv == "" {
		created, err = m.conv.CreateConversation(runCtx)
		if err != nil {
			m.settle(s, turnIdx, "", "", false)
			return "", fmt.Errorf("create conversation: %w", err)
		}
		conv = created
		prompt = instructions + "\n\n" + text
	}

	reply, err := m.conv.Exchange(runCtx, conv, prompt, "", m.assistantID)
	if err != nil {
		if created != "" {
			m.conv.DeleteConversation(runCtx, created)
		}
		m.settle(s, turnIdx, "", "", false)
		observability.Current().IncFollowup("submit_failed")
		log.Warn("Follow-up failed", "error", err)
		return "", err
	}

	candidate := ExtractSVG(reply)
	m.settle(s, turnIdx, candidate, created, true)
	observability.Current().IncFollowup("candidate")
	log.Info("Follow-up candidate ready", "conversation_id", conv, "svg", candidate)
	return candidate, nil
}

// settle clears the in-flight flag and records the outcome of a submission.
func (m *FollowupManager) settle(s *session, turnIdx int, candidate, createdConv string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = false
	s.lastActive = m.now()
	if turnIdx < len(s.turns) {
		s.turns[turnIdx].Pending = false
	}
	if !ok {
		s.turns = append(s.turns[:turnIdx], s.turns[turnIdx+1:]...)
		return
	}
	if createdConv != "" {
		s.created = createdConv
		s.conversationID = createdConv
		s.noHistory = false
	}
	s.candidate = candidate
	s.turns = append(s.turns, Turn{Role: "assistant", Text: candidate, CreatedAt: m.now().UTC()})
}

// Accept writes svg (or the current candidate when svg is empty) into the
// figure's svg slot and closes the session. The write only happens while the
// slot still holds the conversation the session was opened on.
func (m *FollowupManager) Accept(ctx context.Context, figureID uuid.UUID, v figures.Variant, svg string) (*types.Figure, error) {
	s, err := m.get(figureID, v)
	if err != nil {
		return nil, err
	}
	if err := s.claim(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	if strings.TrimSpace(svg) == "" {
		svg = s.candidate
	}
	conv := s.conversationID
	s.mu.Unlock()
	if strings.TrimSpace(svg) == "" {
		s.unclaim()
		return nil, fmt.Errorf("%w: no candidate to accept", errs.ErrInvalidInput)
	}

	release, err := m.lockSlot(ctx, s)
	if err != nil {
		s.unclaim()
		return nil, err
	}
	defer release()

	cols := figures.ColumnsFor(v, figures.StageSVG)
	updates := map[string]interface{}{
		cols.Text:   svg,
		cols.Status: figures.SlotDone,
		cols.Reason: "",
	}
	if conv != "" {
		updates[cols.ConversationID] = conv
	}
	f, err := m.figures.UpdateFields(dbctx.New(ctx), figureID, updates)
	if err != nil {
		s.unclaim()
		return nil, err
	}
	m.drop(figureID, v)
	observability.Current().IncFollowup("accepted")
	m.log.Info("Follow-up accepted", "figure_id", figureID, "variant", v, "conversation_id", conv)
	return f, nil
}

// Reject discards the candidate and closes the session. The figure and the
// slot's conversation are left untouched.
func (m *FollowupManager) Reject(ctx context.Context, figureID uuid.UUID, v figures.Variant) error {
	return m.Close(ctx, figureID, v)
}

// Close drops the session and deletes any conversation it started.
func (m *FollowupManager) Close(ctx context.Context, figureID uuid.UUID, v figures.Variant) error {
	s, err := m.get(figureID, v)
	if err != nil {
		return err
	}
	s.mu.Lock()
	busy := s.busy
	s.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: follow-up for %s/%s is still running", errs.ErrBusy, figureID, v)
	}
	m.discard(ctx, s)
	return nil
}

// discard removes s and deletes the conversation it created, if any.
func (m *FollowupManager) discard(ctx context.Context, s *session) {
	m.mu.Lock()
	key := sessionKey{figureID: s.figureID, variant: s.variant}
	if m.sessions[key] == s {
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	s.mu.Lock()
	created := s.created
	s.created = ""
	s.mu.Unlock()
	if created != "" {
		m.conv.DeleteConversation(ctxutil.Detach(ctx), created)
	}
}

func (m *FollowupManager) drop(figureID uuid.UUID, v figures.Variant) {
	m.mu.Lock()
	delete(m.sessions, sessionKey{figureID: figureID, variant: v})
	m.mu.Unlock()
}

// sweep discards sessions idle for longer than idleTTL. Busy sessions stay.
func (m *FollowupManager) sweep(ctx context.Context) {
	cutoff := m.now().Add(-m.idleTTL)
	var stale []*session
	m.mu.Lock()
	for _, s := range m.sessions {
		s.mu.Lock()
		if !s.busy && s.lastActive.Before(cutoff) {
			stale = append(stale, s)
		}
		s.mu.Unlock()
	}
	m.mu.Unlock()

	for _, s := range stale {
		m.discard(ctx, s)
		observability.Current().IncFollowup("expired")
	}
}

// IsBusy reports whether any session of figureID has a submission in flight.
func (m *FollowupManager) IsBusy(figureID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.sessions {
		if key.figureID != figureID {
			continue
		}
		s.mu.Lock()
		busy := s.busy
		s.mu.Unlock()
		if busy {
			return true
		}
	}
	return false
}

// Forget discards every session of figureID, used once the figure is deleted.
func (m *FollowupManager) Forget(ctx context.Context, figureID uuid.UUID) {
	var gone []*session
	m.mu.Lock()
	for key, s := range m.sessions {
		if key.figureID == figureID {
			gone = append(gone, s)
		}
	}
	m.mu.Unlock()
	for _, s := range gone {
		m.discard(ctx, s)
	}
}

// Transcript returns the remote conversation oldest first followed by any
// local turns the remote side does not have yet.
func (m *FollowupManager) Transcript(ctx context.Context, figureID uuid.UUID, v figures.Variant) ([]openai.Message, error) {
	s, err := m.get(figureID, v)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	conv := s.conversationID
	var pending []Turn
	for _, t := range s.turns {
		if t.Pending {
			pending = append(pending, t)
		}
	}
	local := append([]Turn(nil), s.turns...)
	s.mu.Unlock()

	var out []openai.Message
	if conv != "" {
		msgs, err := m.conv.Transcript(ctx, conv, 100)
		if err != nil {
			return nil, err
		}
		out = msgs
		for _, t := range pending {
			if postedRemotely(msgs, t) {
				continue
			}
			out = append(out, openai.Message{Role: t.Role, Text: t.Text, CreatedAt: t.CreatedAt})
		}
		return out, nil
	}
	for _, t := range local {
		out = append(out, openai.Message{Role: t.Role, Text: t.Text, CreatedAt: t.CreatedAt})
	}
	return out, nil
}

// postedRemotely reports whether a pending local turn already shows up among
// the remote user messages.
func postedRemotely(remote []openai.Message, t Turn) bool {
	for i := len(remote) - 1; i >= 0; i-- {
		if remote[i].Role == "user" {
			return strings.TrimSpace(remote[i].Text) == t.Text
		}
	}
	return false
}
