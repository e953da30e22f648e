package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	bookvision "github.com/nevindra/bookvision"
)

// Task statuses.
const (
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskError      = "error"
)

// ErrTaskNotFound is returned when no status exists for a task ID.
var ErrTaskNotFound = errors.New("task not found")

// TaskStatus is the persisted state of one background ingestion, written as
// a JSON file per task so status survives restarts.
type TaskStatus struct {
	TaskID    string `json:"task_id"`
	Status    string `json:"status"`
	State     State  `json:"state"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
	BookID    string `json:"book_id,omitempty"`
	Error     string `json:"error,omitempty"`
	UpdatedAt int64  `json:"updated_at"`
}

// Manager runs ingestions as background tasks and tracks their status on
// disk. Submit returns immediately; callers poll Status with the task ID.
type Manager struct {
	pipeline *Pipeline
	dir      string
	logger   *slog.Logger
	onDone   func(ctx context.Context, res Result)
	wg       sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithCompletion registers a hook invoked after every successful ingestion,
// background or synchronous. Callers use it to react to new content, for
// example by invalidating cached answers or recording metrics.
func WithCompletion(fn func(ctx context.Context, res Result)) ManagerOption {
	return func(m *Manager) {
		m.onDone = fn
	}
}

// NewManager creates a task manager writing status files under dir.
func NewManager(pipeline *Pipeline, dir string, opts ...ManagerOption) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create task dir: %w", err)
	}
	m := &Manager{
		pipeline: pipeline,
		dir:      dir,
		logger:   slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// Submit starts a background ingestion and returns its task ID. The work
// outlives the caller's context: cancellation of an upload request must not
// abandon a half-embedded book.
func (m *Manager) Submit(ctx context.Context, req Request) (string, error) {
	taskID := bookvision.NewID()
	if req.BookID == "" {
		req.BookID = bookvision.NewID()
	}
	rec := &statusRecorder{manager: m, taskID: taskID, bookID: req.BookID}
	if err := rec.write(TaskStatus{
		Status:  TaskProcessing,
		State:   StateReceived,
		Message: "queued",
	}); err != nil {
		return "", err
	}

	req.Observer = chainObservers(rec, req.Observer)

	bg := context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(bg, taskID, req)
	}()
	return taskID, nil
}

// RunSync runs an ingestion in the calling goroutine under the same status
// tracking as Submit.
func (m *Manager) RunSync(ctx context.Context, req Request) (string, Result, error) {
	taskID := bookvision.NewID()
	rec := &statusRecorder{manager: m, taskID: taskID, bookID: req.BookID}
	req.Observer = chainObservers(rec, req.Observer)

	res, err := m.pipeline.IngestPages(ctx, req)
	if err == nil && m.onDone != nil {
		m.onDone(ctx, res)
	}
	return taskID, res, err
}

func (m *Manager) run(ctx context.Context, taskID string, req Request) {
	res, err := m.pipeline.IngestPages(ctx, req)
	if err != nil {
		m.logger.Error("background ingestion failed",
			"task_id", taskID,
			"error", err)
		return
	}
	m.logger.Info("background ingestion completed",
		"task_id", taskID,
		"book_id", res.BookID,
		"chunks", res.ChunkCount)
	if m.onDone != nil {
		m.onDone(ctx, res)
	}
}

// Status reads the persisted status of a task.
func (m *Manager) Status(taskID string) (TaskStatus, error) {
	data, err := os.ReadFile(m.statusPath(taskID))
	if err != nil {
		if os.IsNotExist(err) {
			return TaskStatus{}, ErrTaskNotFound
		}
		return TaskStatus{}, fmt.Errorf("read task status: %w", err)
	}
	var st TaskStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return TaskStatus{}, fmt.Errorf("decode task status: %w", err)
	}
	return st, nil
}

// Wait blocks until all background tasks finish. Used at shutdown.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) statusPath(taskID string) string {
	return filepath.Join(m.dir, taskID+".json")
}

// statusRecorder translates pipeline progress into persisted task status.
// Progress percent is monotonic: late events from overlapping stages never
// move the bar backwards.
type statusRecorder struct {
	manager *Manager
	taskID  string

	mu      sync.Mutex
	bookID  string
	percent int
}

var _ Observer = (*statusRecorder)(nil)

func (r *statusRecorder) OnProgress(p Progress) {
	st := TaskStatus{
		State:    p.State,
		Progress: p.Percent,
		Message:  p.Message,
	}
	switch p.State {
	case StateDone:
		st.Status = TaskCompleted
		st.Progress = 100
	case StateError:
		st.Status = TaskError
		st.Error = p.Message
	default:
		st.Status = TaskProcessing
	}
	if err := r.write(st); err != nil {
		r.manager.logger.Warn("failed to write task status",
			"task_id", r.taskID,
			"error", err)
	}
}

func (r *statusRecorder) write(st TaskStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.Progress < r.percent {
		st.Progress = r.percent
	}
	r.percent = st.Progress

	st.TaskID = r.taskID
	st.BookID = r.bookID
	st.UpdatedAt = bookvision.NowUnix()

	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode task status: %w", err)
	}
	if err := os.WriteFile(r.manager.statusPath(r.taskID), data, 0o644); err != nil {
		return fmt.Errorf("write task status: %w", err)
	}
	return nil
}

func chainObservers(obs ...Observer) Observer {
	var active []Observer
	for _, o := range obs {
		if o != nil {
			active = append(active, o)
		}
	}
	if len(active) == 1 {
		return active[0]
	}
	return ObserverFunc(func(p Progress) {
		for _, o := range active {
			o.OnProgress(p)
		}
	})
}
