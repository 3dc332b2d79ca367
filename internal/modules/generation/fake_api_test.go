package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/figuregen-backend/internal/data/repos"
	"github.com/yungbote/figuregen-backend/internal/data/repos/testutil"
	"github.com/yungbote/figuregen-backend/internal/jobs/worker"
	"github.com/yungbote/figuregen-backend/internal/platform/locks"
	"github.com/yungbote/figuregen-backend/internal/platform/openai"
	"gorm.io/gorm"
)

// runCall describes a run at the moment it is created.
type runCall struct {
	N           int
	ThreadID    string
	AssistantID string
	Prompt      string
	FileID      string
}

type fakeThread struct {
	msgs       []openai.Message
	lastPrompt string
	lastFile   string
}

type fakeRun struct {
	threadID string
	status   openai.RunStatus
	reason   string
}

// fakeAPI is an in-memory assistant backend. status decides each run's
// outcome; a run left in_progress never finishes.
type fakeAPI struct {
	mu        sync.Mutex
	seq       int
	threads   map[string]*fakeThread
	runs      map[string]*fakeRun
	calls     []runCall
	created   []string
	deleted   []string
	cancelled []string
	uploads   int

	status    func(c runCall) openai.RunStatus
	reply     func(c runCall) string
	deleteErr error
	// gate, when set, holds every GetRun until closed.
	gate chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		threads: map[string]*fakeThread{},
		runs:    map[string]*fakeRun{},
		status:  func(runCall) openai.RunStatus { return openai.RunCompleted },
		reply:   func(c runCall) string { return "reply to: " + c.Prompt },
	}
}

func (f *fakeAPI) nextID(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakeAPI) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID("thread")
	f.threads[id] = &fakeThread{}
	f.created = append(f.created, id)
	return id, nil
}

func (f *fakeAPI) thread(id string) *fakeThread {
	th, ok := f.threads[id]
	if !ok {
		th = &fakeThread{}
		f.threads[id] = th
	}
	return th
}

func (f *fakeAPI) AddMessage(ctx context.Context, threadID, text, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	th := f.thread(threadID)
	th.lastPrompt = text
	th.lastFile = fileID
	th.msgs = append(th.msgs, openai.Message{ID: f.nextID("msg"), Role: "user", Text: text, CreatedAt: time.Now()})
	return nil
}

func (f *fakeAPI) CreateRun(ctx context.Context, threadID, assistantID string) (string, error) {
	f.mu.Lock()
	th := f.thread(threadID)
	c := runCall{N: len(f.calls) + 1, ThreadID: threadID, AssistantID: assistantID, Prompt: th.lastPrompt, FileID: th.lastFile}
	f.calls = append(f.calls, c)
	id := f.nextID("run")
	statusFn, replyFn := f.status, f.reply
	f.mu.Unlock()

	status := statusFn(c)
	var text string
	if status == openai.RunCompleted {
		text = replyFn(c)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[id] = &fakeRun{threadID: threadID, status: status}
	if status == openai.RunFailed {
		f.runs[id].reason = "server_error"
	}
	if status == openai.RunCompleted {
		th.msgs = append(th.msgs, openai.Message{ID: f.nextID("msg"), Role: "assistant", Text: text, CreatedAt: time.Now()})
	}
	return id, nil
}

func (f *fakeAPI) GetRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return openai.Run{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[runID]
	if !ok {
		return openai.Run{}, &openai.APIError{Op: "get run", StatusCode: http.StatusNotFound, Err: fmt.Errorf("no run %s", runID)}
	}
	return openai.Run{ID: runID, Status: r.status, Reason: r.reason}, nil
}

func (f *fakeAPI) CancelRun(ctx context.Context, threadID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	if r, ok := f.runs[runID]; ok {
		r.status = openai.RunCancelled
	}
	return nil
}

func (f *fakeAPI) ListMessages(ctx context.Context, threadID string, limit int) ([]openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	th := f.thread(threadID)
	out := make([]openai.Message, 0, len(th.msgs))
	for i := len(th.msgs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, th.msgs[i])
	}
	return out, nil
}

func (f *fakeAPI) DeleteThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, threadID)
	delete(f.threads, threadID)
	return nil
}

func (f *fakeAPI) UploadFile(ctx context.Context, file io.Reader) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return f.nextID("file"), nil
}

func (f *fakeAPI) snapshot() (calls []runCall, created, deleted, cancelled []string, uploads int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runCall(nil), f.calls...),
		append([]string(nil), f.created...),
		append([]string(nil), f.deleted...),
		append([]string(nil), f.cancelled...),
		f.uploads
}

func (f *fakeAPI) setGate(ch chan struct{}) {
	f.mu.Lock()
	f.gate = ch
	f.mu.Unlock()
}

func fastPolicy() Policy {
	return Policy{
		PollInterval:   2 * time.Millisecond,
		Timeout:        25 * time.Millisecond,
		MaxAttempts:    3,
		TimeoutBackoff: time.Millisecond,
		ErrorBackoff:   time.Millisecond,
	}
}

type harness struct {
	db      *gorm.DB
	api     *fakeAPI
	figures repos.FigureRepo
	runs    repos.GenerationRunRepo
	conv    *ConversationClient
	art     *ArtifactUploader
	pool    *worker.Pool
	locker  locks.Locker
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	api := newFakeAPI()
	figRepo := repos.NewFigureRepo(db, log)
	runRepo := repos.NewGenerationRunRepo(db, log)
	conv := NewConversationClient(api, fastPolicy(), log)
	art := NewArtifactUploader(api, figRepo, ArtifactConfig{TempDir: t.TempDir()}, log)
	pool := worker.NewPool(log, worker.Config{Concurrency: 4, QueueSize: 64})
	pool.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Shutdown(ctx)
	})
	locker := locks.NewMemoryLocker()
	orch := NewOrchestrator(log, conv, art, figRepo, runRepo, locker, pool, OrchestratorConfig{
		InstructionsAssistantID: "asst_instructions",
		SVGAssistantID:          "asst_svg",
	})
	return &harness{db: db, api: api, figures: figRepo, runs: runRepo, conv: conv, art: art, pool: pool, locker: locker, orch: orch}
}

// followups returns a FollowupManager sharing the harness's slot locks.
func (h *harness) followups(t *testing.T) *FollowupManager {
	t.Helper()
	return NewFollowupManager(testutil.Logger(t), h.conv, h.figures, h.locker, "asst_svg")
}

// pngDataURI returns a 2x2 PNG as a base64 data uri.
func pngDataURI(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func isImagePrompt(c runCall) bool {
	return strings.HasPrefix(c.Prompt, "Analyse the attached image")
}
