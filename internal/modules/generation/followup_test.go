package generation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/figuregen-backend/internal/data/repos/testutil"
	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
)

func seedWithSVG(t *testing.T, h *harness) *types.Figure {
	t.Helper()
	return testutil.SeedFigure(t, context.Background(), h.db, func(f *types.Figure) {
		f.InsTxtOnly = figures.Slot{Status: figures.SlotDone, Text: "Draw a square."}
		f.SVGTxtOnly = figures.Slot{Status: figures.SlotDone, Text: "<svg><rect/></svg>", ConversationID: "thread_svg"}
	})
}

func TestFollowupCandidateNotWrittenUntilAccept(t *testing.T) {
	h := newHarness(t)
	h.api.reply = func(runCall) string { return `Sure: <svg><rect fill="red"/></svg>` }
	m := h.followups(t)
	ctx := context.Background()
	seed := seedWithSVG(t, h)

	view, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	assert.Equal(t, "thread_svg", view.ConversationID)
	assert.False(t, view.NoHistory)

	candidate, err := m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "make it red")
	require.NoError(t, err)
	assert.Equal(t, `<svg><rect fill="red"/></svg>`, candidate)
	assert.Equal(t, "<svg><rect/></svg>", h.reload(t, seed.ID).SVGTxtOnly.Text)

	calls, created, _, _, _ := h.api.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "thread_svg", calls[0].ThreadID)
	assert.Equal(t, "make it red", calls[0].Prompt)
	assert.Empty(t, created)

	f, err := m.Accept(ctx, seed.ID, figures.VariantTxtOnly, "")
	require.NoError(t, err)
	assert.Equal(t, candidate, f.SVGTxtOnly.Text)
	assert.Equal(t, figures.SlotDone, f.SVGTxtOnly.Status)
	assert.False(t, f.SVGAcceptedTxtOnly)

	_, err = m.View(seed.ID, figures.VariantTxtOnly)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFollowupRejectLeavesFigureUntouched(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	seed := seedWithSVG(t, h)

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	_, err = m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "thicker lines")
	require.NoError(t, err)
	require.NoError(t, m.Reject(ctx, seed.ID, figures.VariantTxtOnly))

	f := h.reload(t, seed.ID)
	assert.Equal(t, "<svg><rect/></svg>", f.SVGTxtOnly.Text)
	assert.Equal(t, "thread_svg", f.SVGTxtOnly.ConversationID)
	_, _, deleted, _, _ := h.api.snapshot()
	assert.Empty(t, deleted)
}

func TestFollowupSubmitWhileBusy(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.api.setGate(gate)
	m := h.followups(t)
	ctx := context.Background()
	seed := seedWithSVG(t, h)

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "first")
		done <- err
	}()
	require.Eventually(t, func() bool {
		v, err := m.View(seed.ID, figures.VariantTxtOnly)
		return err == nil && v.Busy
	}, 2*time.Second, time.Millisecond)

	_, err = m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "second")
	assert.ErrorIs(t, err, errs.ErrBusy)
	assert.ErrorIs(t, m.Close(ctx, seed.ID, figures.VariantTxtOnly), errs.ErrBusy)
	_, err = m.Accept(ctx, seed.ID, figures.VariantTxtOnly, "<svg/>")
	assert.ErrorIs(t, err, errs.ErrBusy)
	assert.True(t, m.IsBusy(seed.ID))

	msgs, err := m.Transcript(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	var userTurns []string
	for _, msg := range msgs {
		if msg.Role == "user" {
			userTurns = append(userTurns, msg.Text)
		}
	}
	assert.Equal(t, []string{"first"}, userTurns)

	close(gate)
	require.NoError(t, <-done)
	assert.False(t, m.IsBusy(seed.ID))

	calls, _, _, _, _ := h.api.snapshot()
	assert.Len(t, calls, 1)
	require.NoError(t, m.Close(ctx, seed.ID, figures.VariantTxtOnly))
}

func TestFollowupRejectsEmptyText(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	seed := seedWithSVG(t, h)
	_, err := m.Open(context.Background(), seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)

	_, err = m.Submit(context.Background(), seed.ID, figures.VariantTxtOnly, "   ")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestFollowupWithoutHistoryStartsFromInstructions(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	seed := testutil.SeedFigure(t, ctx, h.db, func(f *types.Figure) {
		f.InsTxtOnly = figures.Slot{Status: figures.SlotDone, Text: "Draw a triangle."}
	})

	view, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	assert.True(t, view.NoHistory)
	assert.Equal(t, "Draw a triangle.", view.Instructions)

	_, err = m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "make it green")
	require.NoError(t, err)

	calls, created, _, _, _ := h.api.snapshot()
	require.Len(t, created, 1)
	require.Len(t, calls, 1)
	assert.True(t, strings.HasPrefix(calls[0].Prompt, "Draw a triangle."))
	assert.True(t, strings.HasSuffix(calls[0].Prompt, "make it green"))

	view, err = m.View(seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	assert.False(t, view.NoHistory)
	assert.Equal(t, created[0], view.ConversationID)

	f, err := m.Accept(ctx, seed.ID, figures.VariantTxtOnly, "")
	require.NoError(t, err)
	assert.Equal(t, created[0], f.SVGTxtOnly.ConversationID)
	_, _, deleted, _, _ := h.api.snapshot()
	assert.Empty(t, deleted)
}

func TestFollowupOpenWithoutAnyContext(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	seed := testutil.SeedFigure(t, context.Background(), h.db, nil)

	_, err := m.Open(context.Background(), seed.ID, figures.VariantWithImage)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestFollowupRejectDeletesConversationItStarted(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	seed := testutil.SeedFigure(t, ctx, h.db, func(f *types.Figure) {
		f.InsTxtOnly = figures.Slot{Status: figures.SlotDone, Text: "Draw a triangle."}
	})

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	_, err = m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "make it red")
	require.NoError(t, err)
	require.NoError(t, m.Reject(ctx, seed.ID, figures.VariantTxtOnly))

	_, created, deleted, _, _ := h.api.snapshot()
	require.Len(t, created, 1)
	assert.Equal(t, created, deleted)
	assert.Empty(t, h.reload(t, seed.ID).SVGTxtOnly.ConversationID)
}

func TestFollowupForgetDeletesConversationItStarted(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	seed := testutil.SeedFigure(t, ctx, h.db, func(f *types.Figure) {
		f.InsTxtOnly = figures.Slot{Status: figures.SlotDone, Text: "Draw a triangle."}
	})

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	_, err = m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "make it red")
	require.NoError(t, err)
	m.Forget(ctx, seed.ID)

	_, created, deleted, _, _ := h.api.snapshot()
	assert.Equal(t, created, deleted)
	_, err = m.View(seed.ID, figures.VariantTxtOnly)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFollowupAcceptAfterRegenerationIsRejected(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	seed := seedWithSVG(t, h)

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)

	_, err = h.orch.StartSVGGeneration(ctx, seed.ID, StartOptions{Variants: []figures.Variant{figures.VariantTxtOnly}})
	require.NoError(t, err)
	h.pool.Wait()

	regenerated := h.reload(t, seed.ID).SVGTxtOnly
	require.Equal(t, figures.SlotDone, regenerated.Status)
	require.NotEqual(t, "thread_svg", regenerated.ConversationID)
	_, _, deleted, _, _ := h.api.snapshot()
	assert.Contains(t, deleted, "thread_svg")

	_, err = m.Accept(ctx, seed.ID, figures.VariantTxtOnly, "<svg><circle/></svg>")
	assert.ErrorIs(t, err, errs.ErrBusy)

	f := h.reload(t, seed.ID)
	assert.Equal(t, regenerated.ConversationID, f.SVGTxtOnly.ConversationID)
	assert.Equal(t, regenerated.Text, f.SVGTxtOnly.Text)
	_, err = m.View(seed.ID, figures.VariantTxtOnly)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFollowupAndSVGGenerationShareTheSlot(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.api.setGate(gate)
	m := h.followups(t)
	ctx := context.Background()
	seed := seedWithSVG(t, h)

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		_, err := m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "thicker lines")
		done <- err
	}()
	require.Eventually(t, func() bool {
		calls, _, _, _, _ := h.api.snapshot()
		return len(calls) >= 1
	}, 2*time.Second, time.Millisecond)

	_, err = h.orch.StartSVGGeneration(ctx, seed.ID, StartOptions{Variants: []figures.Variant{figures.VariantTxtOnly}})
	assert.ErrorIs(t, err, errs.ErrBusy)

	close(gate)
	require.NoError(t, <-done)
}

func TestFollowupBlockedWhileSVGGenerationRuns(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	seed := seedWithSVG(t, h)

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)

	token, ok, err := h.locker.TryAcquire(ctx, slotKey(seed.ID, figures.VariantTxtOnly, figures.StageSVG), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "thicker lines")
	assert.ErrorIs(t, err, errs.ErrBusy)
	view, err := m.View(seed.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	assert.False(t, view.Busy)
	assert.Empty(t, view.Turns)
	calls, _, _, _, _ := h.api.snapshot()
	assert.Empty(t, calls)

	require.NoError(t, h.locker.Release(ctx, slotKey(seed.ID, figures.VariantTxtOnly, figures.StageSVG), token))
	_, err = m.Submit(ctx, seed.ID, figures.VariantTxtOnly, "thicker lines")
	assert.NoError(t, err)
}

func TestFollowupOpenWhileSVGProcessing(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	seed := testutil.SeedFigure(t, ctx, h.db, func(f *types.Figure) {
		f.InsTxtOnly = figures.Slot{Status: figures.SlotDone, Text: "Draw a square."}
		f.SVGTxtOnly = figures.Slot{Status: figures.SlotProcessing, Text: "<svg/>", ConversationID: "thread_svg"}
	})

	_, err := m.Open(ctx, seed.ID, figures.VariantTxtOnly)
	assert.ErrorIs(t, err, errs.ErrBusy)
}

func TestIdleSessionsAreSwept(t *testing.T) {
	h := newHarness(t)
	m := h.followups(t)
	ctx := context.Background()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	stale := testutil.SeedFigure(t, ctx, h.db, func(f *types.Figure) {
		f.InsTxtOnly = figures.Slot{Status: figures.SlotDone, Text: "Draw a triangle."}
	})
	fresh := seedWithSVG(t, h)

	_, err := m.Open(ctx, stale.ID, figures.VariantTxtOnly)
	require.NoError(t, err)
	_, err = m.Submit(ctx, stale.ID, figures.VariantTxtOnly, "make it red")
	require.NoError(t, err)

	clock = clock.Add(sessionIdleTTL + time.Minute)
	_, err = m.Open(ctx, fresh.ID, figures.VariantTxtOnly)
	require.NoError(t, err)

	_, err = m.View(stale.ID, figures.VariantTxtOnly)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	_, created, deleted, _, _ := h.api.snapshot()
	require.Len(t, created, 1)
	assert.Equal(t, created, deleted)
	_, err = m.View(fresh.ID, figures.VariantTxtOnly)
	assert.NoError(t, err)
}
