// Package dedup numbers a strategy's descriptors and drops URLs a task
// has already seen.
package dedup

import (
	"iter"

	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

// History is the part of the store the filter needs.
type History interface {
	ItemExists(taskID int64, url string) bool
	RegisterItem(taskID int64, url, subDir string)
}

// Filter wraps descriptor streams of one task. The lookup and the insert
// are separate store calls, so two identical URLs dispatched before the
// first insert lands may both pass; the url table's primary key still
// keeps a single row.
type Filter struct {
	taskID  int64
	history History
	logger  *zap.Logger

	index   int
	skipped int
}

// New creates a filter for taskID.
func New(taskID int64, history History, logger *zap.Logger) *Filter {
	return &Filter{
		taskID:  taskID,
		history: history,
		logger:  logger.With(zap.Int64("task_id", taskID)),
		index:   1,
	}
}

// Skipped returns how many duplicates have been dropped so far.
func (f *Filter) Skipped() int {
	return f.skipped
}

// Wrap returns a stream that yields only unseen descriptors, each with its
// index set. An abort descriptor is passed through and ends the stream;
// so does an error from the source.
func (f *Filter) Wrap(src iter.Seq2[*models.Descriptor, error]) iter.Seq2[*models.Descriptor, error] {
	return func(yield func(*models.Descriptor, error) bool) {
		if src == nil {
			return
		}
		for d, err := range src {
			if err != nil {
				yield(nil, err)
				return
			}
			if d == nil {
				continue
			}
			if d.Abort {
				yield(d, nil)
				return
			}
			if d.ResetIndex {
				f.index = 1
			}
			d.Index = f.index

			if f.history.ItemExists(f.taskID, d.URL) {
				f.skipped++
				f.logger.Info("skipping duplicate", zap.String("url", d.URL))
				continue
			}
			f.history.RegisterItem(f.taskID, d.URL, d.SubDir)
			if !yield(d, nil) {
				return
			}
			f.index++
		}
	}
}
