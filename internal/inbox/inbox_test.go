package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/archoctopus/archoctopus-go/internal/models"
)

type fakeSubmitter struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeSubmitter) Submit(_ context.Context, rawURL string, _ bool) (*models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	return &models.Task{URL: rawURL}, nil
}

func (f *fakeSubmitter) submitted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func TestReadURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("# weekend reading\nhttps://a.example/1\n\n  https://b.example/2  \n#https://skip.example\n"), 0o644))

	urls, err := ReadURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example/1", "https://b.example/2"}, urls)
}

func TestProcessRenamesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://a.example/1\n"), 0o644))

	sub := &fakeSubmitter{}
	w := New(dir, sub, zaptest.NewLogger(t))
	require.NoError(t, w.Process(context.Background(), path))

	assert.Equal(t, []string{"https://a.example/1"}, sub.submitted())
	assert.NoFileExists(t, path)
	assert.FileExists(t, path+DoneExt)
}

func TestWatcherPicksUpFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "before.txt"), []byte("https://a.example/1\n"), 0o644))

	sub := &fakeSubmitter{}
	w := New(dir, sub, zaptest.NewLogger(t))
	w.SetDebounce(50 * time.Millisecond)
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "after.txt"), []byte("https://b.example/2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("https://c.example/3\n"), 0o644))

	assert.Eventually(t, func() bool { return len(sub.submitted()) == 2 }, 5*time.Second, 20*time.Millisecond)
	assert.ElementsMatch(t, []string{"https://a.example/1", "https://b.example/2"}, sub.submitted())
	assert.FileExists(t, filepath.Join(dir, "after.txt"+DoneExt))
	assert.FileExists(t, filepath.Join(dir, "notes.md"))
}
