package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/figuregen-backend/internal/platform/openai"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	env, _ := decode(t, rec)["error"].(map[string]any)
	code, _ := env["code"].(string)
	return code
}

// fakeAssistant completes every run at once and replies with reply.
type fakeAssistant struct {
	mu      sync.Mutex
	seq     int
	threads map[string][]openai.Message
	reply   string
}

func newFakeAssistant(reply string) *fakeAssistant {
	return &fakeAssistant{threads: map[string][]openai.Message{}, reply: reply}
}

func (f *fakeAssistant) next(prefix string) string {
	f.seq++
	return fmt.Sprintf("%s_%d", prefix, f.seq)
}

func (f *fakeAssistant) CreateThread(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next("thread")
	f.threads[id] = nil
	return id, nil
}

func (f *fakeAssistant) AddMessage(ctx context.Context, threadID, text, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[threadID] = append(f.threads[threadID], openai.Message{ID: f.next("msg"), Role: "user", Text: text, CreatedAt: time.Now()})
	return nil
}

func (f *fakeAssistant) CreateRun(ctx context.Context, threadID, assistantID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threads[threadID] = append(f.threads[threadID], openai.Message{ID: f.next("msg"), Role: "assistant", Text: f.reply, CreatedAt: time.Now()})
	return f.next("run"), nil
}

func (f *fakeAssistant) GetRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	return openai.Run{ID: runID, Status: openai.RunCompleted}, nil
}

func (f *fakeAssistant) CancelRun(ctx context.Context, threadID, runID string) error { return nil }

func (f *fakeAssistant) ListMessages(ctx context.Context, threadID string, limit int) ([]openai.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.threads[threadID]
	out := make([]openai.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (f *fakeAssistant) DeleteThread(ctx context.Context, threadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, threadID)
	return nil
}

func (f *fakeAssistant) UploadFile(ctx context.Context, file io.Reader) (string, error) {
	return "file-test", nil
}
