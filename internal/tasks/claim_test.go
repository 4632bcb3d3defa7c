package tasks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/archoctopus/archoctopus-go/internal/models"
	"github.com/archoctopus/archoctopus-go/internal/pipeline"
	"github.com/archoctopus/archoctopus-go/internal/registry"
	"github.com/archoctopus/archoctopus-go/internal/testutil"
)

func TestClaimedTaskIsNotReset(t *testing.T) {
	logger := zaptest.NewLogger(t)
	reg, err := registry.New("", registry.DefaultCacheSize, logger)
	require.NoError(t, err)
	st := testutil.SetupTestStore(t)
	m := NewManager(st, reg, testutil.TestConfig(t), nil, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	site := testutil.NewSite(t, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	task, err := m.Submit(ctx, site.ProjectURL(), false)
	require.NoError(t, err)
	state, err := m.Wait(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, pipeline.StateCompleted, state)
	require.Len(t, st.ListItems(task.ID), 2)

	require.True(t, m.claim(task.ID))
	assert.False(t, m.claim(task.ID), "a claim is exclusive")

	_, err = m.Submit(ctx, site.ProjectURL(), true)
	assert.ErrorIs(t, err, ErrTaskRunning)
	assert.ErrorIs(t, m.Refresh(ctx, task.ID), ErrTaskRunning)
	st.Flush()
	assert.Len(t, st.ListItems(task.ID), 2, "history kept while the task is claimed")
	m.release(task.ID)

	var wg sync.WaitGroup
	var started atomic.Int32
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Submit(ctx, site.ProjectURL(), true)
			if err == nil {
				started.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrTaskRunning)
		}()
	}
	wg.Wait()
	assert.GreaterOrEqual(t, started.Load(), int32(1))

	state, err = m.Wait(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.StateCompleted, state)
	assert.Equal(t, map[models.Status]int{models.StatusDownloaded: 2}, st.CountItems(task.ID))
	assert.Empty(t, m.claimed)
}
