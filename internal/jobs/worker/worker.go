package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/figuregen-backend/internal/observability"
	"github.com/yungbote/figuregen-backend/internal/platform/logger"
)

var (
	ErrQueueFull  = errors.New("worker queue full")
	ErrPoolClosed = errors.New("worker pool closed")
)

// Task is one unit of background work. Key identifies the entity it works on
// and is only used for logging.
type Task struct {
	Name string
	Key  string
	Run  func(ctx context.Context) error
}

type Config struct {
	Concurrency int
	QueueSize   int
}

// Pool runs submitted tasks on a fixed set of goroutines. Every task runs
// under recover, and its error or panic is logged here exactly once.
type Pool struct {
	log   *logger.Logger
	cfg   Config
	tasks chan Task

	runCtx    context.Context
	cancelRun context.CancelFunc

	mu      sync.Mutex
	started bool
	closed  bool

	workers sync.WaitGroup
	pending sync.WaitGroup
}

func NewPool(baseLog *logger.Logger, cfg Config) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		log:       baseLog.With("component", "WorkerPool"),
		cfg:       cfg,
		tasks:     make(chan Task, cfg.QueueSize),
		runCtx:    ctx,
		cancelRun: cancel,
	}
}

// Start launches the workers. Tasks submitted earlier wait in the queue.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	p.log.Info("Starting worker pool", "concurrency", p.cfg.Concurrency, "queue_size", p.cfg.QueueSize)
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.workers.Add(1)
		go p.runLoop(i + 1)
	}
}

// Submit enqueues t without blocking.
func (p *Pool) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no Run func", t.Name)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.pending.Add(1)
	select {
	case p.tasks <- t:
		return nil
	default:
		p.pending.Done()
		return ErrQueueFull
	}
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Shutdown stops accepting tasks and drains the queue. If ctx expires first,
// running tasks see their context cancelled.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	if !p.started {
		p.started = true
		for i := 0; i < p.cfg.Concurrency; i++ {
			p.workers.Add(1)
			go p.runLoop(i + 1)
		}
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancelRun()
		return nil
	case <-ctx.Done():
		p.cancelRun()
		<-done
		return ctx.Err()
	}
}

func (p *Pool) runLoop(workerID int) {
	defer p.workers.Done()
	for t := range p.tasks {
		p.execute(workerID, t)
	}
	p.log.Debug("Worker loop stopped", "worker_id", workerID)
}

func (p *Pool) execute(workerID int, t Task) {
	defer p.pending.Done()
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			observability.Current().ObserveTask(t.Name, false, time.Since(start))
			p.log.Error("Task panic",
				"worker_id", workerID,
				"task", t.Name,
				"key", t.Key,
				"panic", r,
			)
		}
	}()

	err := t.Run(p.runCtx)
	observability.Current().ObserveTask(t.Name, err == nil, time.Since(start))
	if err != nil {
		p.log.Error("Task failed",
			"worker_id", workerID,
			"task", t.Name,
			"key", t.Key,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return
	}
	p.log.Debug("Task done", "worker_id", workerID, "task", t.Name, "key", t.Key, "duration_ms", time.Since(start).Milliseconds())
}
