// Package downloader turns item descriptors into image files on disk.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/archoctopus/archoctopus-go/internal/fetch"
	"github.com/archoctopus/archoctopus-go/internal/models"
)

// ChunkSize is the size of the buffer the body is streamed through.
const ChunkSize = 10240

// TmpExt marks files that are still being downloaded.
const TmpExt = ".tmp"

// ErrRangeNotSatisfiable is returned when the server rejects a resume.
var ErrRangeNotSatisfiable = errors.New("requested range not satisfiable")

// Worker downloads one descriptor at a time. A Worker is safe for
// concurrent use; the pipeline gives each goroutine its own anyway so
// logs carry the worker number.
type Worker struct {
	client *fetch.Client
	filter Filter
	logger *zap.Logger
}

// New creates a worker that fetches through client.
func New(client *fetch.Client, filter Filter, logger *zap.Logger) *Worker {
	return &Worker{client: client, filter: filter, logger: logger}
}

// Download fetches d into d.Dir and reports the outcome. It never fails:
// every problem becomes an error or filtered outcome.
func (w *Worker) Download(ctx context.Context, d *models.Descriptor) models.Outcome {
	out := models.Outcome{URL: d.URL}
	log := w.logger.With(zap.String("url", d.URL))

	if strings.HasPrefix(d.URL, "data:image") {
		return filtered(out, "embedded image")
	}
	if err := w.filter.Pre(d.Width, d.Height, d.Bytes); err != nil {
		log.Debug("filtered before download", zap.Error(err))
		return filtered(out, err.Error())
	}

	name, ext := FileName(d)
	if p, ok := existing(d.Dir, name, ext); ok {
		log.Debug("already downloaded", zap.String("path", p))
		info, err := Sniff(p)
		if err != nil {
			return failed(out, err)
		}
		return downloaded(out, p, info)
	}

	tmp := filepath.Join(d.Dir, name+TmpExt)
	err := w.client.Policy().Run(ctx, func(attempt int) error {
		err := w.fetch(ctx, d, tmp)
		if err != nil && w.client.Policy().ShouldRetry(err, attempt) {
			log.Warn("download timed out, retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	if err != nil {
		log.Error("download failed", zap.Error(err))
		return failed(out, err)
	}

	info, err := Sniff(tmp)
	if err != nil {
		log.Error("inspect download", zap.Error(err))
		return failed(out, err)
	}
	final := filepath.Join(d.Dir, name+info.Ext())

	if err := w.filter.Post(info.Format, info.Width, info.Height, info.Bytes); err != nil {
		log.Debug("filtered after download", zap.Error(err))
		if rmErr := os.Remove(tmp); rmErr != nil {
			log.Error("remove filtered file", zap.Error(rmErr))
		}
		out = filtered(out, err.Error())
		out.Type, out.Width, out.Height, out.Bytes = info.Format, info.Width, info.Height, info.Bytes
		return out
	}
	if err := os.Rename(tmp, final); err != nil {
		log.Error("finalize download", zap.Error(err))
		return failed(out, err)
	}
	return downloaded(out, final, info)
}

// fetch makes one attempt, resuming from a partial temp file.
func (w *Worker) fetch(ctx context.Context, d *models.Descriptor, tmp string) error {
	var offset int64
	if st, err := os.Stat(tmp); err == nil {
		offset = st.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.URL, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if d.Referer != "" {
		req.Header.Set("Referer", d.Referer)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var flags int
	switch resp.StatusCode {
	case http.StatusOK:
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	case http.StatusPartialContent:
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	case http.StatusRequestedRangeNotSatisfiable:
		os.Remove(tmp)
		return fmt.Errorf("%s: %w", d.URL, ErrRangeNotSatisfiable)
	default:
		return &fetch.StatusError{URL: d.URL, StatusCode: resp.StatusCode}
	}

	f, err := os.OpenFile(tmp, flags, 0o644)
	if err != nil {
		return err
	}
	if err := copyChunks(f, resp.Body); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyChunks(dst io.Writer, src io.Reader) error {
	buf := make([]byte, ChunkSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func filtered(out models.Outcome, reason string) models.Outcome {
	out.Status = models.StatusFiltered
	out.Reason = reason
	return out
}

func failed(out models.Outcome, err error) models.Outcome {
	out.Status = models.StatusError
	out.Reason = err.Error()
	return out
}

func downloaded(out models.Outcome, path string, info ImageInfo) models.Outcome {
	out.Status = models.StatusDownloaded
	out.Path = path
	out.Name = filepath.Base(path)
	out.Type = info.Format
	out.Width = info.Width
	out.Height = info.Height
	out.Bytes = info.Bytes
	return out
}
