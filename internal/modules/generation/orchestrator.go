package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/jobs/worker"
	"github.com/yungbote/figuregen-backend/internal/observability"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/ctxutil"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/locks"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

type OrchestratorConfig struct {
	InstructionsAssistantID string
	SVGAssistantID          string
	// LockTTL bounds how long a slot stays locked if the process dies mid-run.
	LockTTL time.Duration
}

// StartOptions selects which variants a stage runs. Empty means both.
type StartOptions struct {
	Variants []figures.Variant
}

type Orchestrator struct {
	conv      *ConversationClient
	artifacts *ArtifactUploader
	figures   FigureStore
	runs      RunLedger
	locker    locks.Locker
	pool      Submitter
	cfg       OrchestratorConfig
	log       *logger.Logger
}

func NewOrchestrator(
	baseLog *logger.Logger,
	conv *ConversationClient,
	artifacts *ArtifactUploader,
	figureStore FigureStore,
	runs RunLedger,
	locker locks.Locker,
	pool Submitter,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.LockTTL <= 0 {
		p := conv.Policy()
		cfg.LockTTL = 2 * time.Duration(p.MaxAttempts) * (p.Timeout + p.ErrorBackoff)
	}
	if locker == nil {
		locker = locks.NewMemoryLocker()
	}
	return &Orchestrator{
		conv:      conv,
		artifacts: artifacts,
		figures:   figureStore,
		runs:      runs,
		locker:    locker,
		pool:      pool,
		cfg:       cfg,
		log:       baseLog.With("service", "GenerationOrchestrator"),
	}
}

// StartInstructionGeneration persists processing and schedules the
// instructions stage in the background. It returns the processing snapshot.
func (o *Orchestrator) StartInstructionGeneration(ctx context.Context, id uuid.UUID, opts StartOptions) (*types.Figure, error) {
	return o.Start(ctx, id, figures.StageInstructions, opts)
}

// StartSVGGeneration is StartInstructionGeneration for the svg stage. It
// fails with ErrNoInstructions before any remote call when neither variant
// has instructions.
func (o *Orchestrator) StartSVGGeneration(ctx context.Context, id uuid.UUID, opts StartOptions) (*types.Figure, error) {
	return o.Start(ctx, id, figures.StageSVG, opts)
}

type heldLock struct {
	key   string
	token string
}

type stageJob struct {
	figureID uuid.UUID
	stage    figures.Stage
	variants []figures.Variant
	skipped  map[figures.Variant]string
	locks    []heldLock
}

func (o *Orchestrator) Start(ctx context.Context, id uuid.UUID, stage figures.Stage, opts StartOptions) (*types.Figure, error) {
	dbc := dbctx.New(ctx)
	f, err := o.figures.GetByID(dbc, id)
	if err != nil {
		return nil, err
	}
	if stage == figures.StageSVG && !f.HasAnyInstructions() {
		return nil, errs.ErrNoInstructions
	}

	job := stageJob{figureID: id, stage: stage, skipped: map[figures.Variant]string{}}
	for _, v := range requestedVariants(opts.Variants) {
		if reason := skipReason(f, v, stage); reason != "" {
			job.skipped[v] = reason
			continue
		}
		job.variants = append(job.variants, v)
	}
	if len(job.variants) == 0 {
		return nil, fmt.Errorf("%w: nothing to generate for %s (%s)", errs.ErrInvalidInput, stage, describeSkips(job.skipped))
	}

	for _, v := range job.variants {
		key := slotKey(id, v, stage)
		token, ok, err := o.locker.TryAcquire(ctx, key, o.cfg.LockTTL)
		if err != nil {
			o.releaseLocks(ctx, job.locks)
			return nil, fmt.Errorf("acquire slot lock: %w", err)
		}
		if !ok {
			o.releaseLocks(ctx, job.locks)
			return nil, fmt.Errorf("%w: %s/%s generation already running for figure %s", errs.ErrBusy, stage, v, id)
		}
		job.locks = append(job.locks, heldLock{key: key, token: token})
	}

	updates := map[string]interface{}{
		"current_state": figures.StateProcessing,
		"last_error":    "",
	}
	for _, v := range job.variants {
		cols := figures.ColumnsFor(v, stage)
		updates[cols.Status] = figures.SlotProcessing
		updates[cols.Reason] = ""
	}
	snapshot, err := o.figures.UpdateFields(dbc, id, updates)
	if err != nil {
		o.releaseLocks(ctx, job.locks)
		return nil, err
	}

	bg := ctxutil.Detach(ctx)
	task := worker.Task{
		Name: "generate_" + string(stage),
		Key:  id.String(),
		Run:  func(runCtx context.Context) error { return o.runStage(ctxutil.Carry(runCtx, bg), job) },
	}
	if err := o.pool.Submit(task); err != nil {
		o.log.Error("Submit generation task failed", "figure_id", id, "stage", stage, "error", err)
		o.writeFailure(bg, job, fmt.Errorf("schedule %s generation: %w", stage, err))
		o.releaseLocks(bg, job.locks)
		return nil, fmt.Errorf("schedule %s generation: %w", stage, err)
	}

	o.log.Info("Generation scheduled",
		append(ctxutil.LogFields(ctx), "figure_id", id, "stage", stage, "variants", job.variants, "skipped", job.skipped)...)
	return snapshot, nil
}

func requestedVariants(in []figures.Variant) []figures.Variant {
	if len(in) == 0 {
		return figures.Variants
	}
	seen := map[figures.Variant]bool{}
	var out []figures.Variant
	for _, v := range figures.Variants {
		for _, want := range in {
			if want == v && !seen[v] {
				seen[v] = true
				out = append(out, v)
			}
		}
	}
	return out
}

func skipReason(f *types.Figure, v figures.Variant, stage figures.Stage) string {
	switch stage {
	case figures.StageInstructions:
		if v == figures.VariantWithImage && !f.HasImage() {
			return "no image"
		}
	case figures.StageSVG:
		if f.Instructions(v) == "" {
			return "no instructions"
		}
	}
	return ""
}

func describeSkips(skipped map[figures.Variant]string) string {
	parts := make([]string, 0, len(skipped))
	for _, v := range figures.Variants {
		if r, ok := skipped[v]; ok {
			parts = append(parts, string(v)+": "+r)
		}
	}
	return strings.Join(parts, ", ")
}

func slotKey(id uuid.UUID, v figures.Variant, stage figures.Stage) string {
	return "slot:" + id.String() + ":" + string(v) + ":" + string(stage)
}

type variantResult struct {
	variant        figures.Variant
	text           string
	conversationID string
	attempts       int
	elapsed        time.Duration
	err            error
}

// runStage does the remote work for one stage. Both variants settle before
// one merged write; if that write never happens the deferred path marks the
// figure failed so it cannot stay in processing.
func (o *Orchestrator) runStage(ctx context.Context, job stageJob) (err error) {
	log := o.log.With("figure_id", job.figureID, "stage", job.stage)
	dbc := dbctx.New(ctx)
	written := false
	var results []variantResult

	var ledgerID uuid.UUID
	if o.runs != nil {
		run, lerr := o.runs.Start(dbc, job.figureID, string(job.stage), map[string]any{
			"variants": job.variants,
			"skipped":  job.skipped,
		})
		if lerr != nil {
			log.Warn("Record generation run failed", "error", lerr)
		} else {
			ledgerID = run.ID
		}
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s stage panic: %v", job.stage, r)
		}
		final := ctxutil.Detach(ctx)
		if !written {
			cause := err
			if cause == nil {
				cause = errors.New("generation interrupted")
			}
			o.writeFailure(final, job, cause)
		}
		o.releaseLocks(final, job.locks)
		if ledgerID != uuid.Nil {
			if lerr := o.runs.Finish(dbctx.New(final), ledgerID, err, summarize(results, job.skipped)); lerr != nil {
				log.Warn("Finish generation run failed", "error", lerr)
			}
		}
	}()

	f, err := o.figures.GetByID(dbc, job.figureID)
	if err != nil {
		return err
	}

	results = make([]variantResult, len(job.variants))
	var g errgroup.Group
	for i, v := range job.variants {
		g.Go(func() error {
			results[i] = o.runVariant(ctx, f, v, job.stage)
			return nil
		})
	}
	_ = g.Wait()

	updates := map[string]interface{}{}
	var failures []string
	for _, r := range results {
		cols := figures.ColumnsFor(r.variant, job.stage)
		if r.err != nil {
			failures = append(failures, fmt.Sprintf("%s/%s: %v", job.stage, r.variant, r.err))
			updates[cols.Status] = figures.SlotFailed
			updates[cols.Reason] = r.err.Error()
			updates[cols.ConversationID] = ""
			continue
		}
		updates[cols.Status] = figures.SlotDone
		updates[cols.Text] = r.text
		updates[cols.ConversationID] = r.conversationID
		updates[cols.Reason] = ""
		if job.stage == figures.StageSVG {
			updates[figures.AcceptedColumn(r.variant)] = false
		}
	}
	if len(failures) > 0 {
		updates["current_state"] = figures.StateFailed
		updates["last_error"] = strings.Join(failures, "; ")
	} else {
		updates["current_state"] = figures.StateCompleted
		updates["last_error"] = ""
	}

	if _, werr := o.figures.UpdateFields(dbc, job.figureID, updates); werr != nil {
		if errors.Is(werr, errs.ErrNotFound) {
			written = true
			log.Warn("Figure deleted during generation; results dropped")
			for _, r := range results {
				if r.conversationID != "" {
					o.conv.DeleteConversation(ctx, r.conversationID)
				}
			}
			return nil
		}
		return fmt.Errorf("write %s results: %w", job.stage, werr)
	}
	written = true

	if len(failures) > 0 {
		return fmt.Errorf("%s generation failed: %s", job.stage, strings.Join(failures, "; "))
	}
	log.Info("Generation completed", "variants", job.variants)
	return nil
}

func (o *Orchestrator) runVariant(ctx context.Context, f *types.Figure, v figures.Variant, stage figures.Stage) (res variantResult) {
	res = variantResult{variant: v}
	start := time.Now()
	defer func() {
		res.elapsed = time.Since(start)
		status := string(figures.SlotDone)
		if res.err != nil {
			status = string(figures.SlotFailed)
		}
		observability.Current().ObserveGeneration(string(stage), string(v), status, res.elapsed)
	}()

	req := Request{Label: string(stage) + "/" + string(v)}
	switch stage {
	case figures.StageInstructions:
		req.AssistantID = o.cfg.InstructionsAssistantID
		req.Prompt = InstructionsPrompt(f, v)
		if v == figures.VariantWithImage {
			fileID, err := o.artifacts.EnsureForFigure(ctx, f)
			if err != nil {
				res.err = err
				return res
			}
			req.ArtifactID = fileID
		}
	case figures.StageSVG:
		req.AssistantID = o.cfg.SVGAssistantID
		req.Prompt = SVGPrompt(f, v)
	}

	if prev := f.Slot(v, stage).ConversationID; prev != "" {
		o.conv.DeleteConversation(ctx, prev)
	}

	out, err := o.conv.Converse(ctx, req)
	res.attempts = out.Attempts
	if err != nil {
		res.err = err
		return res
	}
	res.conversationID = out.ConversationID
	res.text = out.Text
	if stage == figures.StageSVG {
		res.text = ExtractSVG(out.Text)
	}
	return res
}

// writeFailure marks every slot in job failed and the figure failed.
func (o *Orchestrator) writeFailure(ctx context.Context, job stageJob, cause error) {
	updates := map[string]interface{}{
		"current_state": figures.StateFailed,
		"last_error":    cause.Error(),
	}
	for _, v := range job.variants {
		cols := figures.ColumnsFor(v, job.stage)
		updates[cols.Status] = figures.SlotFailed
		updates[cols.Reason] = cause.Error()
	}
	if _, err := o.figures.UpdateFields(dbctx.New(ctx), job.figureID, updates); err != nil && !errors.Is(err, errs.ErrNotFound) {
		o.log.Error("Mark figure failed", "figure_id", job.figureID, "stage", job.stage, "error", err)
	}
}

func (o *Orchestrator) releaseLocks(ctx context.Context, held []heldLock) {
	for _, h := range held {
		if err := o.locker.Release(ctxutil.Detach(ctx), h.key, h.token); err != nil {
			o.log.Warn("Release slot lock failed", "key", h.key, "error", err)
		}
	}
}

func summarize(results []variantResult, skipped map[figures.Variant]string) map[string]any {
	out := map[string]any{}
	for _, r := range results {
		entry := map[string]any{"attempts": r.attempts, "duration_ms": r.elapsed.Milliseconds()}
		if r.err != nil {
			entry["status"] = "failed"
			entry["error"] = r.err.Error()
		} else {
			entry["status"] = "done"
			entry["conversation_id"] = r.conversationID
			entry["chars"] = len(r.text)
		}
		out[string(r.variant)] = entry
	}
	for v, reason := range skipped {
		out[string(v)] = map[string]any{"status": "skipped", "reason": reason}
	}
	return out
}
