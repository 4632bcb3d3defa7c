// Package tasks owns the running pipelines and keeps the history table,
// metrics and progress clients in step with them.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/config"
	"github.com/archoctopus/archoctopus-go/internal/cover"
	"github.com/archoctopus/archoctopus-go/internal/downloader"
	"github.com/archoctopus/archoctopus-go/internal/export"
	"github.com/archoctopus/archoctopus-go/internal/fetch"
	"github.com/archoctopus/archoctopus-go/internal/metrics"
	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/pipeline"
	"github.com/archoctopus/archoctopus-go/internal/registry"
	"github.com/archoctopus/archoctopus-go/internal/store"
	"github.com/archoctopus/archoctopus-go/internal/util"
)

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrAlreadyDownloaded = errors.New("url already downloaded")
	ErrTaskRunning       = errors.New("task is running")
	ErrTaskNotFound      = errors.New("task not found")
	ErrNotRunning        = errors.New("task is not running")
)

// Progress events sent to websocket clients.
const (
	EventStarted  = "started"
	EventName     = "name"
	EventTotal    = "total"
	EventItem     = "item"
	EventAbort    = "abort"
	EventWorker   = "worker_done"
	EventState    = "state"
	EventFinished = "finished"
)

// Broadcaster delivers progress updates to clients.
type Broadcaster interface {
	BroadcastJSON(v any)
}

// Status describes a running task.
type Status struct {
	TaskID int64  `json:"task_id"`
	RunID  string `json:"run_id"`
	State  string `json:"state"`
	Active int    `json:"active_workers"`
	Total  int    `json:"total_count"`
	Done   int    `json:"download_count"`
}

type run struct {
	task   *pipeline.Task
	domain string
	done   atomic.Int64
}

// Manager starts, controls and tracks task runs.
type Manager struct {
	store    *store.Store
	registry pipeline.Resolver
	hub      Broadcaster
	logger   *zap.Logger

	cfgMu sync.RWMutex
	cfg   config.Config

	mu      sync.Mutex
	runs    map[int64]*run
	claimed map[int64]bool
	last    map[int64]pipeline.State
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a manager. hub may be nil.
func NewManager(st *store.Store, resolver pipeline.Resolver, cfg *config.Config, hub Broadcaster, logger *zap.Logger) *Manager {
	metrics.Init()
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:    st,
		registry: resolver,
		hub:      hub,
		logger:   logger.Named("tasks"),
		cfg:      *cfg,
		runs:     make(map[int64]*run),
		claimed:  make(map[int64]bool),
		last:     make(map[int64]pipeline.State),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetConfig replaces the settings used for runs started afterwards.
func (m *Manager) SetConfig(cfg *config.Config) {
	m.cfgMu.Lock()
	m.cfg = *cfg
	m.cfgMu.Unlock()
}

func (m *Manager) config() config.Config {
	m.cfgMu.RLock()
	defer m.cfgMu.RUnlock()
	return m.cfg
}

// NormalizeURL trims the decoration users paste around links and checks
// that the result is an http(s) URL.
func NormalizeURL(raw string) (string, error) {
	raw = strings.Trim(strings.TrimSpace(raw), ` '"[]<>`)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return u.String(), nil
}

// Submit starts a task for rawURL. A URL seen before returns the existing
// task with ErrAlreadyDownloaded unless rerun is set, in which case its
// history is cleared and it runs again.
func (m *Manager) Submit(ctx context.Context, rawURL string, rerun bool) (*models.Task, error) {
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	task, err := m.store.GetTaskByURL(u)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if task, err = m.store.CreateTask(u); err != nil {
			return nil, err
		}
		if !m.claim(task.ID) {
			return task, ErrTaskRunning
		}
	case err != nil:
		return nil, err
	default:
		if !m.claim(task.ID) {
			return task, ErrTaskRunning
		}
		if !rerun {
			m.release(task.ID)
			return task, ErrAlreadyDownloaded
		}
		m.store.ResetTask(task.ID)
		task.TotalCount, task.DownloadCount, task.IsVisible = 0, 0, true
	}

	if err := m.startClaimed(task, 0, 0); err != nil {
		return nil, err
	}
	return task, nil
}

// Refresh runs a finished task again without clearing its history, so
// only images published since the last run are fetched.
func (m *Manager) Refresh(ctx context.Context, id int64) error {
	task, err := m.Get(id)
	if err != nil {
		return err
	}
	if !m.claim(id) {
		return ErrTaskRunning
	}
	return m.startClaimed(task, task.TotalCount, task.DownloadCount)
}

// claim reserves id for a run about to start. It fails while the task is
// running or another caller holds the claim, so the history reset and the
// start of a rerun cannot interleave with a second one.
func (m *Manager) claim(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[id]; ok || m.claimed[id] {
		return false
	}
	m.claimed[id] = true
	return true
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	delete(m.claimed, id)
	m.mu.Unlock()
}

// RefreshAll refreshes every visible task one after another.
func (m *Manager) RefreshAll(ctx context.Context) error {
	var errs []error
	for _, task := range m.store.ListTasks(false) {
		if ctx.Err() != nil {
			break
		}
		if err := m.Refresh(ctx, task.ID); err != nil {
			if !errors.Is(err, ErrTaskRunning) {
				errs = append(errs, fmt.Errorf("refresh task %d: %w", task.ID, err))
			}
			continue
		}
		if _, err := m.Wait(ctx, task.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// startClaimed starts a run for a task claimed by the caller and releases
// the claim.
func (m *Manager) startClaimed(task *models.Task, baseTotal, baseDone int) error {
	defer m.release(task.ID)
	cfg := m.config()
	logger := m.logger.With(zap.Int64("task_id", task.ID))

	client, err := fetch.New(fetch.Options{
		Proxy:     cfg.Network.Proxy,
		Timeout:   cfg.Network.TimeoutDuration(),
		UserAgent: cfg.Network.UserAgent,
		Policy:    fetch.RetryPolicy{MaxAttempts: max(cfg.Network.Retries, 1), Backoff: cfg.Network.Backoff()},
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("create http client: %w", err)
	}

	r := &run{domain: registry.DomainOf(task.URL)}
	r.done.Store(int64(baseDone))
	workers := max(cfg.Download.Threads, 1)
	var dir atomic.Value
	dir.Store(task.Dir)

	r.task = pipeline.New(pipeline.Options{
		TaskID:   task.ID,
		URL:      task.URL,
		Root:     cfg.Download.Dir,
		Workers:  workers,
		Index:    cfg.Download.Index,
		LoopMax:  cfg.Download.LoopMax,
		AutoPage: cfg.Download.AutoPage,
		Filter:   downloader.NewFilter(cfg.Filter),
		Client:   client,
		Resolver: m.registry,
		History:  m.store,
		Logger:   m.logger,
		Callbacks: pipeline.Callbacks{
			OnName: func(name, d string, folder bool) {
				dir.Store(d)
				m.store.SetTaskName(task.ID, name, r.domain, d)
				m.store.SetTaskFolder(task.ID, folder)
				m.broadcast(models.ProgressUpdate{TaskID: task.ID, Event: EventName, Name: name, Dir: d})
			},
			OnTotal: func(total int) {
				m.store.SetTaskTotal(task.ID, baseTotal+total)
				metrics.ObserveParse(r.domain, total)
				m.broadcast(models.ProgressUpdate{TaskID: task.ID, Event: EventTotal,
					TotalCount: baseTotal + total, DownloadCount: int(r.done.Load())})
			},
			OnItem: func(out models.Outcome) {
				m.store.MarkItem(task.ID, out)
				n := r.done.Add(1)
				m.store.SetDownloadCount(task.ID, int(n))
				var written int64
				if out.Status == models.StatusDownloaded {
					written = out.Bytes
				}
				metrics.ObserveItem(r.domain, out.Status.String(), written)
				m.broadcast(models.ProgressUpdate{TaskID: task.ID, Event: EventItem,
					DownloadCount: int(n), TotalCount: baseTotal + r.task.Total(), Item: &out})
			},
			OnAbort: func(msg string) {
				m.broadcast(models.ProgressUpdate{TaskID: task.ID, Event: EventAbort, Message: msg})
			},
			OnWorkerDone: func(active int) {
				metrics.DecActiveWorkers()
				m.broadcast(models.ProgressUpdate{TaskID: task.ID, Event: EventWorker, ActiveWorkers: active})
			},
			OnFinish: func(state pipeline.State) {
				defer m.wg.Done()
				metrics.ObserveTask(state.String())
				if state == pipeline.StateError {
					m.store.SetTaskStatus(task.ID, models.StatusError)
				}
				if cfg.Cover.Enabled && state != pipeline.StateStopped {
					m.updateCover(task.ID, dir.Load().(string), logger)
				}
				m.mu.Lock()
				if m.runs[task.ID] == r {
					delete(m.runs, task.ID)
				}
				m.last[task.ID] = state
				m.mu.Unlock()
				m.broadcast(models.ProgressUpdate{TaskID: task.ID, Event: EventFinished, State: state.String(),
					TotalCount: baseTotal + r.task.Total(), DownloadCount: int(r.done.Load())})
			},
		},
	})

	m.mu.Lock()
	m.runs[task.ID] = r
	delete(m.claimed, task.ID)
	m.wg.Add(1)
	m.mu.Unlock()

	metrics.AddActiveWorkers(workers)
	if err := r.task.Run(m.ctx); err != nil {
		m.mu.Lock()
		delete(m.runs, task.ID)
		m.mu.Unlock()
		m.wg.Done()
		metrics.AddActiveWorkers(-workers)
		return err
	}
	m.broadcast(models.ProgressUpdate{TaskID: task.ID, Event: EventStarted, State: pipeline.StateRunning.String(),
		ActiveWorkers: workers, DownloadCount: baseDone})
	return nil
}

func (m *Manager) updateCover(id int64, dir string, logger *zap.Logger) {
	item, err := m.store.FirstDownloadedItem(id)
	if err != nil {
		return
	}
	path := filepath.Join(dir, util.SanitizeFolderPath(item.SubDir), item.Name)
	uri, err := cover.FromFile(path)
	if err != nil {
		logger.Warn("generate cover", zap.String("path", path), zap.Error(err))
		return
	}
	m.store.SetTaskCover(id, uri)
}

func (m *Manager) broadcast(u models.ProgressUpdate) {
	if m.hub != nil {
		m.hub.BroadcastJSON(u)
	}
}

func (m *Manager) lookup(id int64) (*run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	return r, ok
}

func (m *Manager) control(id int64, fn func(*pipeline.Task)) error {
	r, ok := m.lookup(id)
	if !ok {
		return ErrNotRunning
	}
	fn(r.task)
	m.broadcast(models.ProgressUpdate{TaskID: id, Event: EventState, State: r.task.State().String()})
	return nil
}

// Pause holds a running task at its next item boundary.
func (m *Manager) Pause(id int64) error { return m.control(id, (*pipeline.Task).Pause) }

// Resume releases a paused task.
func (m *Manager) Resume(id int64) error { return m.control(id, (*pipeline.Task).Resume) }

// Stop ends a running task cooperatively.
func (m *Manager) Stop(id int64) error { return m.control(id, (*pipeline.Task).Stop) }

// Delete hides a task and stops it if it is running.
func (m *Manager) Delete(id int64) error {
	if _, err := m.Get(id); err != nil {
		return err
	}
	m.Stop(id)
	m.store.HideTask(id)
	return nil
}

func (m *Manager) each(fn func(*pipeline.Task)) {
	m.mu.Lock()
	runs := make([]*run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	m.mu.Unlock()
	for _, r := range runs {
		fn(r.task)
	}
}

// PauseAll pauses every running task.
func (m *Manager) PauseAll() { m.each((*pipeline.Task).Pause) }

// ResumeAll resumes every paused task.
func (m *Manager) ResumeAll() { m.each((*pipeline.Task).Resume) }

// StopAll stops every running task.
func (m *Manager) StopAll() { m.each((*pipeline.Task).Stop) }

// Get returns a task from the history.
func (m *Manager) Get(id int64) (*models.Task, error) {
	task, err := m.store.GetTask(id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrTaskNotFound
	}
	return task, err
}

// List returns the task history, newest first.
func (m *Manager) List(includeHidden bool) []*models.Task {
	return m.store.ListTasks(includeHidden)
}

// Items returns the URL records of a task.
func (m *Manager) Items(id int64) ([]*models.Item, error) {
	if _, err := m.Get(id); err != nil {
		return nil, err
	}
	return m.store.ListItems(id), nil
}

// Status returns the live status of a running task.
func (m *Manager) Status(id int64) (Status, bool) {
	r, ok := m.lookup(id)
	if !ok {
		return Status{}, false
	}
	return statusOf(id, r), true
}

// Running lists the live status of every running task.
func (m *Manager) Running() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Status, 0, len(m.runs))
	for id, r := range m.runs {
		out = append(out, statusOf(id, r))
	}
	return out
}

func statusOf(id int64, r *run) Status {
	return Status{
		TaskID: id,
		RunID:  r.task.RunID(),
		State:  r.task.State().String(),
		Active: r.task.Active(),
		Total:  r.task.Total(),
		Done:   int(r.done.Load()),
	}
}

// Wait blocks until the task's current run ends. A task that is not
// running returns immediately with the state its last run ended in, or
// idle if it never ran in this process.
func (m *Manager) Wait(ctx context.Context, id int64) (pipeline.State, error) {
	m.mu.Lock()
	r, ok := m.runs[id]
	last, ran := m.last[id]
	m.mu.Unlock()
	if !ok {
		m.store.Flush()
		if !ran {
			last = pipeline.StateIdle
		}
		return last, nil
	}
	state, err := r.task.Wait(ctx)
	if err != nil {
		return state, err
	}
	// Callbacks finish before Done closes; wait for their writes too.
	m.store.Flush()
	return state, nil
}

// Export writes the task directory to w as a zip archive.
func (m *Manager) Export(ctx context.Context, id int64, w io.Writer) error {
	task, err := m.Get(id)
	if err != nil {
		return err
	}
	if task.Dir == "" {
		return fmt.Errorf("task %d has no download directory yet", id)
	}
	return export.Zip(ctx, task.Dir, w)
}

// Shutdown stops every task and waits for them to finish or ctx to end.
// In-flight requests are cancelled when ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.StopAll()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.cancel()
		return nil
	case <-ctx.Done():
		m.cancel()
		<-done
		return ctx.Err()
	}
}
