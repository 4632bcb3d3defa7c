// Package inbox watches a folder for text files of URLs and submits each
// URL as a task. A processed file is renamed to <name>.done.
package inbox

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

const (
	// Ext is the extension of files picked up from the inbox.
	Ext = ".txt"
	// DoneExt is appended to processed files.
	DoneExt = ".done"
)

// Submitter starts a task for a URL.
type Submitter interface {
	Submit(ctx context.Context, rawURL string, rerun bool) (*models.Task, error)
}

// Watcher submits URLs dropped into a folder.
type Watcher struct {
	dir       string
	submitter Submitter
	logger    *zap.Logger

	watcher       *fsnotify.Watcher
	mu            sync.Mutex
	pending       map[string]bool
	debounceTimer *time.Timer
	debounceDelay time.Duration
	stopChan      chan struct{}
	wg            sync.WaitGroup
}

// New creates a watcher for dir.
func New(dir string, submitter Submitter, logger *zap.Logger) *Watcher {
	return &Watcher{
		dir:           dir,
		submitter:     submitter,
		logger:        logger.Named("inbox"),
		pending:       make(map[string]bool),
		debounceDelay: 2 * time.Second, // editors write files in several steps
		stopChan:      make(chan struct{}),
	}
}

// SetDebounce changes the quiet period before pending files are read.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounceDelay = d
	w.mu.Unlock()
}

// Start creates the folder if needed, processes files already in it and
// begins watching for new ones.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return err
	}
	w.watcher = watcher
	w.logger.Info("Inbox watcher started", zap.String("path", w.dir))

	existing, _ := filepath.Glob(filepath.Join(w.dir, "*"+Ext))
	for _, p := range existing {
		w.schedule(p)
	}

	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Stop ends the watcher and waits for in-flight files.
func (w *Watcher) Stop() error {
	close(w.stopChan)
	w.mu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Inbox watcher error", zap.Error(err))

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !strings.EqualFold(filepath.Ext(event.Name), Ext) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[path] = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.flush)
}

func (w *Watcher) flush() {
	select {
	case <-w.stopChan:
		return
	default:
	}

	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]bool)
	w.mu.Unlock()
	sort.Strings(paths)

	for _, p := range paths {
		if err := w.Process(context.Background(), p); err != nil && !errors.Is(err, os.ErrNotExist) {
			w.logger.Error("Failed to process inbox file", zap.String("path", p), zap.Error(err))
		}
	}
}

// Process submits every URL in the file at path, then renames it.
func (w *Watcher) Process(ctx context.Context, path string) error {
	urls, err := ReadURLs(path)
	if err != nil {
		return err
	}
	w.logger.Info("Processing inbox file", zap.String("path", path), zap.Int("urls", len(urls)))
	for _, u := range urls {
		if _, err := w.submitter.Submit(ctx, u, false); err != nil {
			w.logger.Warn("Inbox URL not submitted", zap.String("url", u), zap.Error(err))
		}
	}
	return os.Rename(path, path+DoneExt)
}

// ReadURLs returns the non-empty, non-comment lines of a file.
func ReadURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls, sc.Err()
}
