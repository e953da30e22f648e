package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nevindra/bookvision/index"
)

func newTestManager(t *testing.T, emb *stubEmbedder) *Manager {
	t.Helper()
	ix := index.New(testDim)
	p := NewPipeline(ix, emb)
	m, err := NewManager(p, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestSubmitCompletesTask(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{})

	taskID, err := m.Submit(context.Background(), Request{
		Title: "Async",
		Pages: []Page{page(1, longText("background"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	if taskID == "" {
		t.Fatal("empty task ID")
	}
	m.Wait()

	st, err := m.Status(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != TaskCompleted || st.Progress != 100 || st.State != StateDone {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.BookID == "" {
		t.Error("status missing book ID")
	}
	if st.TaskID != taskID {
		t.Errorf("status task ID %q, want %q", st.TaskID, taskID)
	}
}

func TestSubmitRecordsFailure(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{err: errors.New("provider down")})

	taskID, err := m.Submit(context.Background(), Request{
		Pages: []Page{page(1, longText("doomed"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	m.Wait()

	st, err := m.Status(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != TaskError || st.State != StateError {
		t.Errorf("unexpected status: %+v", st)
	}
	if st.Error == "" {
		t.Error("error status should carry a message")
	}
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{})

	ctx, cancel := context.WithCancel(context.Background())
	taskID, err := m.Submit(ctx, Request{
		Pages: []Page{page(1, longText("detached"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	m.Wait()

	st, err := m.Status(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != TaskCompleted {
		t.Errorf("task should complete despite cancelled caller, got %+v", st)
	}
}

func TestStatusNotFound(t *testing.T) {
	m := newTestManager(t, &stubEmbedder{})
	if _, err := m.Status("nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("got %v, want ErrTaskNotFound", err)
	}
}

func TestStatusQueuedImmediately(t *testing.T) {
	// a slow embedder keeps the task in flight long enough to observe it
	emb := &stubEmbedder{}
	ix := index.New(testDim)
	p := NewPipeline(ix, &slowEmbedder{inner: emb, delay: 50 * time.Millisecond})
	m, err := NewManager(p, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	taskID, err := m.Submit(context.Background(), Request{
		Pages: []Page{page(1, longText("pending"))},
	})
	if err != nil {
		t.Fatal(err)
	}

	st, err := m.Status(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status == "" {
		t.Error("status should be readable right after submit")
	}
	m.Wait()
}

func TestCompletionHookRunsAfterSubmit(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{})

	var mu sync.Mutex
	var done []Result
	m, err := NewManager(p, t.TempDir(), WithCompletion(func(_ context.Context, res Result) {
		mu.Lock()
		done = append(done, res)
		mu.Unlock()
	}))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Submit(context.Background(), Request{
		BookID: "b1",
		Pages:  []Page{page(1, longText("fresh content"))},
	}); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(done) != 1 {
		t.Fatalf("hook ran %d times, want 1", len(done))
	}
	if done[0].BookID != "b1" || done[0].ChunkCount == 0 {
		t.Errorf("hook got %+v", done[0])
	}
}

func TestCompletionHookSkippedOnFailure(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{err: errors.New("provider down")})

	var mu sync.Mutex
	ran := false
	m, err := NewManager(p, t.TempDir(), WithCompletion(func(context.Context, Result) {
		mu.Lock()
		ran = true
		mu.Unlock()
	}))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := m.Submit(context.Background(), Request{
		Pages: []Page{page(1, longText("doomed"))},
	}); err != nil {
		t.Fatal(err)
	}
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	if ran {
		t.Error("hook must not run for a failed ingestion")
	}
}

func TestRunSync(t *testing.T) {
	ix := index.New(testDim)
	p := NewPipeline(ix, &stubEmbedder{})
	hooked := 0
	m, err := NewManager(p, t.TempDir(), WithCompletion(func(context.Context, Result) { hooked++ }))
	if err != nil {
		t.Fatal(err)
	}

	taskID, res, err := m.RunSync(context.Background(), Request{
		BookID: "b1",
		Pages:  []Page{page(1, longText("synchronous"))},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.BookID != "b1" || res.ChunkCount == 0 {
		t.Errorf("unexpected result: %+v", res)
	}

	st, err := m.Status(taskID)
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != TaskCompleted {
		t.Errorf("unexpected status: %+v", st)
	}
	if hooked != 1 {
		t.Errorf("completion hook ran %d times, want 1", hooked)
	}
}

type slowEmbedder struct {
	inner *stubEmbedder
	delay time.Duration
}

func (s *slowEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	time.Sleep(s.delay)
	return s.inner.Embed(ctx, texts)
}

func (s *slowEmbedder) Dimensions() int { return s.inner.Dimensions() }
func (s *slowEmbedder) Name() string    { return "slow" }
