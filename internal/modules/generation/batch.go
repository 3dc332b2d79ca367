package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/figuregen-backend/internal/domain"
	"github.com/yungbote/figuregen-backend/internal/domain/figures"
	"github.com/yungbote/figuregen-backend/internal/observability"
	errs "github.com/yungbote/figuregen-backend/internal/pkg/errors"
	"github.com/yungbote/figuregen-backend/internal/platform/ctxutil"
	"github.com/yungbote/figuregen-backend/internal/platform/dbctx"
	"github.com/yungbote/figuregen-backend/internal/platform/httpx"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

const (
	DefaultWaveSize  = 8
	DefaultWavePause = time.Second
	maxBatchErrors   = 50
)

// Starter is the orchestrator entry point a batch dispatches to.
type Starter interface {
	Start(ctx context.Context, id uuid.UUID, stage figures.Stage, opts StartOptions) (*types.Figure, error)
}

type BatchConfig struct {
	WaveSize int
	Pause    time.Duration
	// WaitForSettle makes each wave wait until its records leave processing
	// and counts background failures too.
	WaitForSettle bool
	SettlePoll    time.Duration
	SettleTimeout time.Duration
	// Retain bounds how long finished batches stay queryable.
	Retain time.Duration
}

type BatchItemError struct {
	FigureID uuid.UUID `json:"figure_id"`
	Error    string    `json:"error"`
}

// BatchProgress is a point-in-time view of one batch.
type BatchProgress struct {
	ID               uuid.UUID        `json:"id"`
	Action           figures.Stage    `json:"action"`
	Total            int              `json:"total"`
	Completed        int              `json:"completed"`
	Failed           int              `json:"failed"`
	Wave             int              `json:"wave"`
	Waves            int              `json:"waves"`
	WaveSizes        []int            `json:"wave_sizes"`
	CurrentWaveItems []uuid.UUID      `json:"current_wave_items"`
	Errors           []BatchItemError `json:"errors,omitempty"`
	Done             bool             `json:"done"`
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       *time.Time       `json:"finished_at,omitempty"`
}

func (p *BatchProgress) clone() *BatchProgress {
	cp := *p
	cp.WaveSizes = append([]int(nil), p.WaveSizes...)
	cp.CurrentWaveItems = append([]uuid.UUID(nil), p.CurrentWaveItems...)
	cp.Errors = append([]BatchItemError(nil), p.Errors...)
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

// BatchCoordinator dispatches a stage across many figures in fixed-size
// waves and keeps progress for polling.
type BatchCoordinator struct {
	starter Starter
	figures FigureStore
	cfg     BatchConfig
	log     *logger.Logger

	mu      sync.RWMutex
	batches map[uuid.UUID]*BatchProgress
	now     func() time.Time
}

func NewBatchCoordinator(baseLog *logger.Logger, starter Starter, figureStore FigureStore, cfg BatchConfig) *BatchCoordinator {
	if cfg.WaveSize <= 0 {
		cfg.WaveSize = DefaultWaveSize
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.SettlePoll <= 0 {
		cfg.SettlePoll = 2 * time.Second
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = 30 * time.Minute
	}
	if cfg.Retain <= 0 {
		cfg.Retain = time.Hour
	}
	return &BatchCoordinator{
		starter: starter,
		figures: figureStore,
		cfg:     cfg,
		log:     baseLog.With("service", "BatchCoordinator"),
		batches: map[uuid.UUID]*BatchProgress{},
		now:     time.Now,
	}
}

// PlanWaves splits n items into waves of at most size.
func PlanWaves(n, size int) []int {
	if size <= 0 {
		size = DefaultWaveSize
	}
	var out []int
	for n > 0 {
		w := size
		if n < w {
			w = n
		}
		out = append(out, w)
		n -= w
	}
	return out
}

// Launch registers a batch and runs it in the background. The returned
// snapshot carries the id to poll with Get.
func (b *BatchCoordinator) Launch(ctx context.Context, action figures.Stage, ids []uuid.UUID) (*BatchProgress, error) {
	p, err := b.register(action, ids)
	if err != nil {
		return nil, err
	}
	snap := p.clone()
	bg := ctxutil.Detach(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("Batch panicked", "batch_id", snap.ID, "panic", r)
				b.finish(snap.ID)
			}
		}()
		b.execute(bg, snap.ID, ids)
	}()
	return snap, nil
}

// Run executes a batch synchronously. onWave, if set, sees a snapshot after
// every wave.
func (b *BatchCoordinator) Run(ctx context.Context, action figures.Stage, ids []uuid.UUID, onWave func(*BatchProgress)) (*BatchProgress, error) {
	p, err := b.register(action, ids)
	if err != nil {
		return nil, err
	}
	b.executeWithHook(ctx, p.ID, ids, onWave)
	return b.Get(p.ID)
}

func (b *BatchCoordinator) Get(id uuid.UUID) (*BatchProgress, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, errs.ErrNotFound)
	}
	return p.clone(), nil
}

func (b *BatchCoordinator) register(action figures.Stage, ids []uuid.UUID) (*BatchProgress, error) {
	if action != figures.StageInstructions && action != figures.StageSVG {
		return nil, fmt.Errorf("%w: unknown batch action %q", errs.ErrInvalidInput, action)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: batch has no figures", errs.ErrInvalidInput)
	}
	sizes := PlanWaves(len(ids), b.cfg.WaveSize)
	p := &BatchProgress{
		ID:        uuid.New(),
		Action:    action,
		Total:     len(ids),
		Waves:     len(sizes),
		WaveSizes: sizes,
		StartedAt: b.now().UTC(),
	}
	b.mu.Lock()
	b.pruneLocked()
	b.batches[p.ID] = p
	b.mu.Unlock()
	return p, nil
}

func (b *BatchCoordinator) pruneLocked() {
	cutoff := b.now().Add(-b.cfg.Retain)
	for id, p := range b.batches {
		if p.Done && p.FinishedAt != nil && p.FinishedAt.Before(cutoff) {
			delete(b.batches, id)
		}
	}
}

func (b *BatchCoordinator) execute(ctx context.Context, batchID uuid.UUID, ids []uuid.UUID) {
	b.executeWithHook(ctx, batchID, ids, nil)
}

func (b *BatchCoordinator) executeWithHook(ctx context.Context, batchID uuid.UUID, ids []uuid.UUID, onWave func(*BatchProgress)) {
	defer b.finish(batchID)

	action := b.action(batchID)
	log := b.log.With("batch_id", batchID, "action", action)
	log.Info("Batch started", "total", len(ids), "wave_size", b.cfg.WaveSize)

	for wave, start := 0, 0; start < len(ids); wave++ {
		end := start + b.cfg.WaveSize
		if end > len(ids) {
			end = len(ids)
		}
		items := ids[start:end]
		b.update(batchID, func(p *BatchProgress) {
			p.Wave = wave + 1
			p.CurrentWaveItems = append([]uuid.UUID(nil), items...)
		})

		b.runWave(ctx, batchID, action, items)

		if onWave != nil {
			if snap, err := b.Get(batchID); err == nil {
				onWave(snap)
			}
		}
		start = end
		if start < len(ids) {
			if err := httpx.Sleep(ctx, b.cfg.Pause); err != nil {
				log.Warn("Batch interrupted", "error", err)
				return
			}
		}
	}
	snap, _ := b.Get(batchID)
	if snap != nil {
		log.Info("Batch finished", "completed", snap.Completed, "failed", snap.Failed)
	}
}

// runWave dispatches every item concurrently and waits for all of them.
// One item failing never cancels its siblings.
func (b *BatchCoordinator) runWave(ctx context.Context, batchID uuid.UUID, action figures.Stage, items []uuid.UUID) {
	var g errgroup.Group
	for _, id := range items {
		g.Go(func() error {
			err := b.dispatch(ctx, id, action)
			observability.Current().ObserveBatchItem(string(action), err == nil)
			b.update(batchID, func(p *BatchProgress) {
				if err != nil {
					p.Failed++
					if len(p.Errors) < maxBatchErrors {
						p.Errors = append(p.Errors, BatchItemError{FigureID: id, Error: err.Error()})
					}
					return
				}
				p.Completed++
			})
			return nil
		})
	}
	_ = g.Wait()
}

func (b *BatchCoordinator) dispatch(ctx context.Context, id uuid.UUID, action figures.Stage) error {
	if _, err := b.starter.Start(ctx, id, action, StartOptions{}); err != nil {
		return err
	}
	if !b.cfg.WaitForSettle || b.figures == nil {
		return nil
	}
	return b.settle(ctx, id)
}

func (b *BatchCoordinator) settle(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.SettleTimeout)
	defer cancel()
	for {
		f, err := b.figures.GetByID(dbctx.New(ctx), id)
		if err != nil {
			return err
		}
		switch f.CurrentState {
		case figures.StateFailed:
			if f.LastError != "" {
				return errors.New(f.LastError)
			}
			return errors.New("generation failed")
		case figures.StateProcessing:
		default:
			return nil
		}
		if err := httpx.Sleep(ctx, b.cfg.SettlePoll); err != nil {
			return fmt.Errorf("%w: figure %s still processing", errs.ErrRemoteTimeout, id)
		}
	}
}

func (b *BatchCoordinator) action(id uuid.UUID) figures.Stage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if p, ok := b.batches[id]; ok {
		return p.Action
	}
	return ""
}

func (b *BatchCoordinator) update(id uuid.UUID, fn func(p *BatchProgress)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.batches[id]; ok {
		fn(p)
	}
}

func (b *BatchCoordinator) finish(id uuid.UUID) {
	now := b.now().UTC()
	b.update(id, func(p *BatchProgress) {
		p.Done = true
		p.CurrentWaveItems = nil
		p.FinishedAt = &now
	})
}
