package task

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"video2audio/config"
	"video2audio/events"
	"video2audio/queue"
)

// Prober returns a media file's duration in seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

// Transcoder runs one streaming transcode, calling onProgress with 0-100.
type Transcoder interface {
	Transcode(ctx context.Context, input, output string, codecArgs []string, totalSeconds float64, onProgress func(percent int)) (exitCode int, stderr string, err error)
}

// Publisher receives every task state change. Publish must not block.
type Publisher interface {
	Publish(e events.Event)
}

// ResourceChecker may refuse to start a task writing into dir.
type ResourceChecker interface {
	Check(dir string) error
}

type Option func(*Manager)

func WithResourceChecker(rc ResourceChecker) Option {
	return func(m *Manager) { m.guard = rc }
}

// Manager owns every task, hands queued ones to a fixed pool of workers and
// publishes each state change. All task mutation happens under mu, and the
// matching event is published under the same lock so that per-task event
// order always equals transition order.
type Manager struct {
	cfg        *config.Config
	prober     Prober
	transcoder Transcoder
	publisher  Publisher
	guard      ResourceChecker

	mu      sync.Mutex
	tasks   map[string]*Task
	claimed map[string]string // output path -> owning task id

	dispatch *queue.Queue[string]
	workers  sync.WaitGroup
	started  bool
}

func NewManager(cfg *config.Config, prober Prober, transcoder Transcoder, publisher Publisher, opts ...Option) (*Manager, error) {
	if cfg == nil || prober == nil || transcoder == nil || publisher == nil {
		return nil, errors.New("task manager requires config, prober, transcoder and publisher")
	}
	m := &Manager{
		cfg:        cfg,
		prober:     prober,
		transcoder: transcoder,
		publisher:  publisher,
		tasks:      make(map[string]*Task),
		claimed:    make(map[string]string),
		dispatch:   queue.New[string](),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Workers is the size of the worker pool.
func (m *Manager) Workers() int {
	if m.cfg.MaxConcurrency > 0 {
		return m.cfg.MaxConcurrency
	}
	return config.DefaultConcurrency()
}

// Start launches the worker pool and, when a retention is configured, the
// registry cleanup loop. Both stop when ctx ends; Wait blocks until they have.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	n := m.Workers()
	log.Println("Task manager started. Concurrency limit:", n)
	for i := 0; i < n; i++ {
		m.workers.Add(1)
		go m.workerLoop(ctx)
	}
	if m.cfg.TaskRetention > 0 {
		m.workers.Add(1)
		go m.cleanupLoop(ctx)
	}
}

// Wait blocks until every worker has returned. Workers finish the task they
// are running before noticing that ctx ended.
func (m *Manager) Wait() {
	m.workers.Wait()
}

// workerLoop pulls task ids from the dispatch queue and runs them one at a time.
func (m *Manager) workerLoop(ctx context.Context) {
	defer m.workers.Done()
	for {
		id, err := m.dispatch.Pop(ctx)
		if err != nil {
			return
		}
		m.processTask(ctx, id)
	}
}

// processTask drives one task through probe and transcode. Nothing escapes
// it: every failure, including a panic, ends as a failed task.
func (m *Manager) processTask(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Task %s panicked: %v", id, r)
			m.fail(id, FailureInternal, fmt.Sprintf("internal error: %v", r))
		}
	}()

	t, ok := m.advance(id, StatusProbing)
	if !ok {
		log.Printf("Task %s was cancelled before processing.", id)
		return
	}

	if m.guard != nil {
		if err := m.guard.Check(filepath.Dir(t.OutputPath)); err != nil {
			m.fail(id, FailureRunner, err.Error())
			return
		}
	}

	log.Printf("Probing task %s: %s", id, t.InputPath)
	duration, err := m.prober.Probe(ctx, t.InputPath)
	if err != nil {
		m.fail(id, FailureProbe, err.Error())
		return
	}
	m.setDuration(id, duration)

	if _, ok := m.advance(id, StatusTranscoding); !ok {
		log.Printf("Task %s was cancelled after probing; transcode skipped.", id)
		return
	}

	log.Printf("Transcoding task %s: %s -> %s", id, t.InputPath, t.OutputPath)
	code, stderr, err := m.transcoder.Transcode(ctx, t.InputPath, t.OutputPath, CodecArgs(t.OutputPath), duration,
		func(p int) { m.setProgress(id, p) })
	switch {
	case err != nil:
		m.discardOutput(t.OutputPath)
		msg := err.Error()
		if s := strings.TrimSpace(stderr); s != "" {
			msg += "\n" + s
		}
		m.fail(id, FailureRunner, msg)
	case code != 0:
		m.discardOutput(t.OutputPath)
		m.fail(id, FailureTranscode, (&TranscodeError{ExitCode: code, Stderr: stderr}).Error())
	default:
		m.complete(id)
	}
}

// advance moves a task into a running state and returns a snapshot of it.
func (m *Manager) advance(id string, to Status) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || !canTransition(t.Status, to) {
		return Task{}, false
	}
	t.Status = to
	if to == StatusProbing {
		t.StartedAt = time.Now()
	}
	m.publisher.Publish(events.Status(id, string(to)))
	return *t, true
}

func (m *Manager) setDuration(id string, seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[id]; ok {
		t.TotalDurationSeconds = seconds
	}
}

// setProgress records and publishes a new percentage while the task is
// transcoding. Updates for a task that already left that state are dropped.
func (m *Manager) setProgress(id string, percent int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok || t.Status != StatusTranscoding || percent <= t.Progress {
		return
	}
	t.Progress = min(percent, 100)
	m.publisher.Publish(events.Progress(id, t.Progress))
}

func (m *Manager) complete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return
	}
	if !canTransition(t.Status, StatusCompleted) {
		log.Printf("Task %s finished successfully while %s; outcome not published.", id, t.Status)
		return
	}
	t.Status = StatusCompleted
	t.CompletedAt = time.Now()
	m.publisher.Publish(events.Status(id, string(StatusCompleted)))
	log.Printf("Task %s completed successfully.", id)
}

// fail publishes the diagnostic text followed by the failed status.
func (m *Manager) fail(id string, kind FailureKind, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return
	}
	if !canTransition(t.Status, StatusFailed) {
		log.Printf("Task %s failed while %s; outcome not published: %s", id, t.Status, message)
		return
	}
	t.Status = StatusFailed
	t.Error = message
	t.FailureKind = kind
	t.CompletedAt = time.Now()
	m.publisher.Publish(events.Failure(id, message))
	m.publisher.Publish(events.Status(id, string(StatusFailed)))
	log.Printf("Task %s failed (%s): %s", id, kind, message)
}

// discardOutput removes whatever a failed transcode left at path.
func (m *Manager) discardOutput(path string) {
	if m.cfg.KeepFailedOutput {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not remove partial output %s: %v", path, err)
	}
}

// cleanupLoop periodically evicts finished tasks older than the retention.
func (m *Manager) cleanupLoop(ctx context.Context) {
	defer m.workers.Done()
	ticker := time.NewTicker(max(m.cfg.TaskRetention/4, time.Second)) // Check 4 times per lifetime
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Cleanup loop shutting down.")
			return
		case <-ticker.C:
			if n := m.evictBefore(time.Now().Add(-m.cfg.TaskRetention)); n > 0 {
				log.Printf("Evicted %d finished tasks from the registry.", n)
			}
		}
	}
}

// evictBefore forgets terminal tasks that finished before cutoff and releases
// their output path claims.
func (m *Manager) evictBefore(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, t := range m.tasks {
		if t.Status.Terminal() && t.CompletedAt.Before(cutoff) {
			delete(m.tasks, id)
			if m.claimed[t.OutputPath] == id {
				delete(m.claimed, t.OutputPath)
			}
			n++
		}
	}
	return n
}

// Submit creates one queued task per valid input path and hands it to the
// worker pool. Paths that do not name a regular file are skipped without any
// event. An empty format or outputDir falls back to the configured default;
// a format that is not a plain extension rejects the whole call.
// Submit never waits for execution.
func (m *Manager) Submit(paths []string, format, outputDir string) []Task {
	ext := config.NormalizeFormat(format)
	if ext == "" && strings.TrimSpace(format) != "" {
		log.Printf("Rejecting submission: %v: %q", ErrInvalidFormat, format)
		return nil
	}
	if ext == "" {
		ext = config.NormalizeFormat(m.cfg.DefaultFormat)
	}
	if ext == "" {
		ext = ".mp3"
	}
	if strings.TrimSpace(outputDir) == "" {
		outputDir = m.cfg.OutputDir
	}
	if outputDir != "" {
		if abs, err := filepath.Abs(expandHome(outputDir)); err == nil {
			outputDir = abs
		}
	}

	var created []Task
	for _, raw := range paths {
		input, size, err := resolveInput(raw, m.cfg.MaxInputSize)
		if err != nil {
			log.Printf("Skipping %q: %v", raw, err)
			continue
		}
		t, err := m.register(input, size, ext, outputDir)
		if err != nil {
			log.Printf("Skipping %q: %v", raw, err)
			continue
		}
		m.dispatch.Push(t.ID)
		log.Printf("Task %s submitted to queue: %s -> %s", t.ID, t.InputPath, t.OutputPath)
		created = append(created, t)
	}
	return created
}

// register names, stores and announces a new task. Naming happens under the
// lock so two tasks in flight never claim the same output path.
func (m *Manager) register(input string, size int64, ext, outputDir string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := OutputPath(input, outputDir, ext, func(p string) bool {
		_, taken := m.claimed[p]
		return taken
	})
	if err != nil {
		return Task{}, err
	}
	id := newID()
	for m.tasks[id] != nil {
		id = newID()
	}

	t := &Task{
		ID:         id,
		InputPath:  input,
		OutputPath: out,
		Format:     ext,
		Status:     StatusQueued,
		InputSize:  size,
		CreatedAt:  time.Now(),
	}
	m.tasks[id] = t
	m.claimed[out] = id
	m.publisher.Publish(events.Status(id, string(StatusQueued)))
	return *t, nil
}

func newID() string {
	return fmt.Sprintf("%s_%d", shortuuid.New(), time.Now().Unix())
}

// resolveInput makes raw absolute and checks that it names a regular file
// within the size limit (0 = unlimited).
func resolveInput(raw string, maxSize int64) (string, int64, error) {
	p := strings.TrimSpace(raw)
	if p == "" {
		return "", 0, fmt.Errorf("%w: empty path", ErrInvalidInput)
	}
	abs, err := filepath.Abs(expandHome(p))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return "", 0, fmt.Errorf("%w: %s is not a regular file", ErrInvalidInput, abs)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return "", 0, fmt.Errorf("%w: input file size %d exceeds limit of %d bytes", ErrInvalidInput, info.Size(), maxSize)
	}
	return abs, info.Size(), nil
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// Get returns a snapshot of the task.
func (m *Manager) Get(taskID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tasks[taskID]; ok {
		return *t, true
	}
	return Task{}, false
}

// List returns snapshots of every known task, oldest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	taskList := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		taskList = append(taskList, *t)
	}
	m.mu.Unlock()

	sort.Slice(taskList, func(i, j int) bool {
		if taskList[i].CreatedAt.Equal(taskList[j].CreatedAt) {
			return taskList[i].ID < taskList[j].ID
		}
		return taskList[i].CreatedAt.Before(taskList[j].CreatedAt)
	})
	return taskList
}

// Cancel marks a queued or running task cancelled and publishes the change.
// The subprocess of a running task is left alone; its worker stops at the
// next phase boundary and its outcome is not published. Unknown ids and
// finished tasks are rejected without publishing anything.
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[taskID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if t.Status.Terminal() {
		return &StateError{ID: taskID, Status: t.Status}
	}

	prev := t.Status
	t.Status = StatusCancelled
	t.CompletedAt = time.Now()
	m.publisher.Publish(events.Status(taskID, string(StatusCancelled)))
	log.Printf("Task %s marked as cancelled (was %s).", taskID, prev)
	return nil
}
