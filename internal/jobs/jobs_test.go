package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeRefresher struct{ calls atomic.Int32 }

func (f *fakeRefresher) RefreshAll(context.Context) error { f.calls.Add(1); return nil }

type fakePurger struct{ calls atomic.Int32 }

func (f *fakePurger) Purge() { f.calls.Add(1) }

func TestRegisterDefaults(t *testing.T) {
	jm := NewManager(nil, zaptest.NewLogger(t))
	t.Cleanup(jm.Shutdown)
	refresher, purger := &fakeRefresher{}, &fakePurger{}
	RegisterDefaults(jm, refresher, purger)

	require.NoError(t, jm.RunJob(RefreshAllID))
	assert.Eventually(t, func() bool { return refresher.calls.Load() == 1 && !jm.busy() },
		time.Second, 10*time.Millisecond)

	require.NoError(t, jm.RunJob(ReloadPluginsID))
	assert.Eventually(t, func() bool { return purger.calls.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestStartJobsDisabled(t *testing.T) {
	jm := NewManager(nil, zaptest.NewLogger(t))
	assert.Nil(t, StartJobs(jm, 0, zaptest.NewLogger(t)))
}

func TestStartJobsSchedulesRefresh(t *testing.T) {
	jm := NewManager(nil, zaptest.NewLogger(t))
	t.Cleanup(jm.Shutdown)
	RegisterDefaults(jm, &fakeRefresher{}, &fakePurger{})

	s := StartJobs(jm, 30, zaptest.NewLogger(t))
	require.NotNil(t, s)
	defer s.Stop()
	assert.Len(t, s.Jobs(), 1)
	assert.True(t, s.IsRunning())
}

func (jm *JobManager) busy() bool {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	return jm.running
}
