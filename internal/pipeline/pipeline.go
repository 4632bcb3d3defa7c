// Package pipeline runs one task: a parser goroutine feeding descriptors
// through a shared queue to a fixed pool of downloader goroutines.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/dedup"
	"github.com/archoctopus/archoctopus-go/internal/downloader"
	"github.com/archoctopus/archoctopus-go/internal/fetch"
	"github.com/archoctopus/archoctopus-go/internal/fifo"
	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/registry"
	"github.com/archoctopus/archoctopus-go/internal/strategy"
	"github.com/archoctopus/archoctopus-go/internal/util"
)

// SingleImageName is the task name used when the root URL is an image.
const SingleImageName = "Single_Image"

var ErrAlreadyStarted = errors.New("pipeline already started")

// Queue carries descriptors from the parser to the downloaders. A nil
// descriptor tells one downloader to exit.
type Queue interface {
	Put(d *models.Descriptor)
	Get(ctx context.Context) (*models.Descriptor, error)
}

// Resolver picks the strategy for a hostname.
type Resolver interface {
	Resolve(host string) registry.Resolution
}

// Callbacks report progress. OnItem and OnWorkerDone are called from
// downloader goroutines concurrently; the others from the parser. Any of
// them may be nil.
type Callbacks struct {
	// OnName reports the task's display name and directory once the root
	// page is parsed. folder is false for single image tasks.
	OnName func(name, dir string, folder bool)
	// OnTotal reports how many descriptors were queued. It is called once,
	// after the parser is done.
	OnTotal func(total int)
	// OnItem reports the outcome of one descriptor.
	OnItem func(out models.Outcome)
	// OnAbort reports the message of an abort marker.
	OnAbort func(msg string)
	// OnWorkerDone reports the number of downloaders still running.
	OnWorkerDone func(active int)
	// OnFinish reports the terminal state.
	OnFinish func(state State)
}

// Options is a snapshot of everything one run needs.
type Options struct {
	TaskID   int64
	URL      string
	Root     string
	Workers  int
	Index    bool
	LoopMax  int
	AutoPage bool
	Filter   downloader.Filter

	Client   *fetch.Client
	Resolver Resolver
	History  dedup.History
	// Queue defaults to an unbounded FIFO.
	Queue  Queue
	Logger *zap.Logger

	Callbacks Callbacks
}

// Task is one run of the pipeline. Pause, Resume and Stop are
// cooperative: they take effect when a goroutine next reaches an item
// boundary.
type Task struct {
	opts   Options
	runID  string
	logger *zap.Logger
	queue  Queue
	gate   *Gate

	state   atomic.Int32
	started atomic.Bool
	running atomic.Bool
	stopped atomic.Bool
	aborted atomic.Bool
	failed  atomic.Bool
	last    atomic.Int32
	active  atomic.Int32
	total   atomic.Int32

	finishOnce sync.Once
	release    func() bool
	parsed     chan struct{}
	done       chan struct{}
}

// New prepares a run. Nothing starts until Run.
func New(opts Options) *Task {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	q := opts.Queue
	if q == nil {
		q = fifo.New[*models.Descriptor]()
	}
	runID := uuid.NewString()
	return &Task{
		opts:   opts,
		runID:  runID,
		logger: opts.Logger.With(zap.Int64("task_id", opts.TaskID), zap.String("run_id", runID)),
		queue:  q,
		gate:   NewGate(),
		parsed: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// RunID identifies this run in logs.
func (t *Task) RunID() string { return t.runID }

// State returns the current state.
func (t *Task) State() State { return State(t.state.Load()) }

// Active returns the number of downloaders still running.
func (t *Task) Active() int { return int(t.active.Load()) }

// Total returns the number of descriptors queued so far.
func (t *Task) Total() int { return int(t.total.Load()) }

// Done is closed when the run reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Run starts the parser and the downloaders and returns immediately.
// Cancelling ctx stops the run and aborts in-flight requests.
func (t *Task) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	t.running.Store(true)
	t.state.Store(int32(StateRunning))
	t.active.Store(int32(t.opts.Workers))
	t.release = context.AfterFunc(ctx, t.Stop)
	t.logger.Info("task started", zap.String("url", t.opts.URL), zap.Int("workers", t.opts.Workers))

	for i := 1; i <= t.opts.Workers; i++ {
		go t.download(ctx, i)
	}
	go t.parse(ctx)
	return nil
}

// Pause holds every goroutine at its next item boundary. A stopping run
// cannot be paused.
func (t *Task) Pause() {
	if t.stopped.Load() {
		return
	}
	if t.state.CompareAndSwap(int32(StateRunning), int32(StatePaused)) {
		t.gate.Close()
		// Stop may have opened the gate between the check above and Close.
		if t.stopped.Load() {
			t.gate.Open()
			t.state.CompareAndSwap(int32(StatePaused), int32(StateRunning))
			return
		}
		t.logger.Info("task paused")
	}
}

// Resume releases a paused run.
func (t *Task) Resume() {
	if t.state.CompareAndSwap(int32(StatePaused), int32(StateRunning)) {
		t.gate.Open()
		t.logger.Info("task resumed")
	}
}

// Stop asks every goroutine to exit at its next item boundary. In-flight
// requests are not interrupted.
func (t *Task) Stop() {
	if t.started.CompareAndSwap(false, true) {
		t.stopped.Store(true)
		t.finish()
		return
	}
	t.stopped.Store(true)
	t.gate.Open()
	t.running.Store(false)
	if !t.State().Terminal() {
		t.logger.Info("task stopping")
	}
}

// Wait blocks until the run is over and returns its terminal state.
func (t *Task) Wait(ctx context.Context) (State, error) {
	select {
	case <-t.done:
		return t.State(), nil
	case <-ctx.Done():
		return t.State(), ctx.Err()
	}
}

func (t *Task) parse(ctx context.Context) {
	count := 0
	defer func() {
		if r := recover(); r != nil {
			t.failed.Store(true)
			t.logger.Error("parser panicked", zap.Any("panic", r))
		}
		t.total.Store(int32(count))
		if cb := t.opts.Callbacks.OnTotal; cb != nil {
			cb(count)
		}
		for i := 0; i < t.opts.Workers; i++ {
			t.queue.Put(nil)
		}
		if t.opts.Client != nil {
			t.opts.Client.CloseIdleConnections()
		}
		close(t.parsed)
		t.logger.Info("parse finished", zap.Int("count", count))
	}()

	if err := t.produce(ctx, &count); err != nil {
		t.failed.Store(true)
		t.logger.Error("parse failed", zap.String("url", t.opts.URL), zap.Error(err))
	}
}

// produce fetches the root page, runs the strategy and queues what it
// finds. count is updated as descriptors are queued.
func (t *Task) produce(ctx context.Context, count *int) error {
	u, err := url.Parse(t.opts.URL)
	if err != nil {
		return fmt.Errorf("parse task url: %w", err)
	}

	body, resp, err := t.opts.Client.Fetch(ctx, t.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("fetch root page: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")

	var seq iter.Seq2[*models.Descriptor, error]
	var page *strategy.Page
	site, title, folder := strategy.FriendlyName(u), "", true
	switch {
	case strings.HasPrefix(contentType, "image/"):
		t.logger.Info("single image task")
		site, title, folder = "", SingleImageName, false
		seq = strategy.Items(&models.Descriptor{URL: t.opts.URL, Bytes: max(resp.ContentLength, 0)})
	case contentType == "" || strings.HasPrefix(contentType, "text/"):
		res := t.opts.Resolver.Resolve(u.Hostname())
		s := res.Constructor(t.env(u))
		t.logger.Info("strategy resolved", zap.String("domain", res.Key),
			zap.String("source", string(res.Source)), zap.String("strategy", s.Name()))

		page = strategy.NewPage(u, body, contentType)
		page.Title = strategy.ExtractTitle(body)
		seq = s.Route(ctx, page)
	default:
		return fmt.Errorf("unsupported content type %q", contentType)
	}

	// The task is named once the strategy yields its first result, so a
	// strategy may settle the title while it iterates.
	var dir string
	named := false
	name := func() error {
		if named {
			return nil
		}
		named = true
		if page != nil {
			title = page.Title
		}
		dir = filepath.Join(t.opts.Root, site, util.SanitizeFolderName(title))
		if seq != nil {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create task directory: %w", err)
			}
		}
		if cb := t.opts.Callbacks.OnName; cb != nil {
			cb(title, dir, folder)
		}
		return nil
	}

	if seq == nil {
		t.logger.Info("no route matched", zap.String("path", u.Path))
		return name()
	}

	filter := dedup.New(t.opts.TaskID, t.opts.History, t.logger)
	for d, err := range filter.Wrap(seq) {
		if nerr := name(); nerr != nil {
			return nerr
		}
		if err != nil {
			return err
		}
		if !t.running.Load() {
			t.logger.Info("parse stopped")
			return nil
		}
		if err := t.gate.Wait(ctx); err != nil {
			return err
		}
		if d.Abort {
			t.aborted.Store(true)
			t.logger.Info("task aborted by strategy", zap.String("message", d.AbortMessage))
			if cb := t.opts.Callbacks.OnAbort; cb != nil {
				cb(d.AbortMessage)
			}
			return nil
		}

		d.Dir = dir
		if sub := util.SanitizeFolderPath(d.SubDir); sub != "" {
			d.Dir = filepath.Join(dir, sub)
			if err := os.MkdirAll(d.Dir, 0o755); err != nil {
				return fmt.Errorf("create sub directory: %w", err)
			}
		}
		if !t.opts.Index {
			d.Index = 0
		}
		if d.Referer == "" {
			d.Referer = t.opts.URL
		}

		t.queue.Put(d)
		*count++
		t.total.Store(int32(*count))
		t.logger.Debug("queued", zap.String("url", d.URL), zap.Int("count", *count))
	}
	return name()
}

func (t *Task) env(u *url.URL) *strategy.Env {
	return &strategy.Env{
		TaskID:   t.opts.TaskID,
		URL:      u,
		Client:   t.opts.Client,
		Logger:   t.logger,
		Workers:  t.opts.Workers,
		LoopMax:  t.opts.LoopMax,
		AutoPage: t.opts.AutoPage,
		Running:  t.running.Load,
		Wait:     t.gate.Wait,
	}
}

func (t *Task) download(ctx context.Context, id int) {
	logger := t.logger.With(zap.Int("worker", id))
	w := downloader.New(t.opts.Client, t.opts.Filter, logger)
	defer func() {
		n := t.active.Add(-1)
		logger.Debug("downloader exited", zap.Int32("active", n))
		if cb := t.opts.Callbacks.OnWorkerDone; cb != nil {
			cb(int(n))
		}
		if n == 0 {
			<-t.parsed
			t.finish()
		}
	}()

	for {
		if !t.running.Load() {
			return
		}
		if err := t.gate.Wait(ctx); err != nil {
			return
		}
		d, err := t.queue.Get(ctx)
		if err != nil || d == nil {
			return
		}
		// A pause may have started while this goroutine waited for work.
		if !t.running.Load() {
			return
		}
		if err := t.gate.Wait(ctx); err != nil || !t.running.Load() {
			return
		}

		out := w.Download(ctx, d)
		t.last.Store(int32(out.Status))
		if cb := t.opts.Callbacks.OnItem; cb != nil {
			cb(out)
		}
	}
}

func (t *Task) finish() {
	t.finishOnce.Do(func() {
		state := StateCompleted
		switch {
		case t.stopped.Load():
			state = StateStopped
		case t.aborted.Load():
			state = StateAborted
		case t.failed.Load() || models.Status(t.last.Load()) == models.StatusError:
			state = StateError
		}
		if t.release != nil {
			t.release()
		}
		t.running.Store(false)
		t.state.Store(int32(state))
		t.logger.Info("task finished", zap.Stringer("state", state), zap.Int32("total", t.total.Load()))
		if cb := t.opts.Callbacks.OnFinish; cb != nil {
			cb(state)
		}
		close(t.done)
	})
}
