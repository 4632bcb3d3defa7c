package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job status values.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

var (
	ErrJobRunning  = errors.New("a job is already running")
	ErrJobNotFound = errors.New("job not found")
)

// Func is the body of a background job.
type Func func(ctx context.Context) error

// Broadcaster delivers job status changes to clients.
type Broadcaster interface {
	BroadcastJSON(v any)
}

type JobStatus struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	StartTime time.Time `json:"start_time,omitempty"`
	EndTime   time.Time `json:"end_time,omitempty"`
}

// JobManager runs registered jobs one at a time.
type JobManager struct {
	mu      sync.Mutex
	jobs    map[string]Func
	status  map[string]*JobStatus
	running bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
	hub    Broadcaster
	logger *zap.Logger
}

// NewManager creates a job manager. hub may be nil.
func NewManager(hub Broadcaster, logger *zap.Logger) *JobManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		jobs:   make(map[string]Func),
		status: make(map[string]*JobStatus),
		ctx:    ctx,
		cancel: cancel,
		hub:    hub,
		logger: logger.Named("jobs"),
	}
}

func (jm *JobManager) Register(id, name string, task Func) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	jm.jobs[id] = task
	jm.status[id] = &JobStatus{ID: id, Name: name, Status: StatusIdle}
}

// RunJob starts a job in the background. Only one job runs at a time.
func (jm *JobManager) RunJob(id string) error {
	jm.mu.Lock()
	if jm.running {
		jm.mu.Unlock()
		return ErrJobRunning
	}
	task, ok := jm.jobs[id]
	if !ok {
		jm.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	jm.running = true
	status := jm.status[id]
	status.Status = StatusRunning
	status.StartTime = time.Now()
	status.EndTime = time.Time{}
	status.Message = "Job started..."
	snapshot := *status
	jm.wg.Add(1)
	jm.mu.Unlock()

	jm.logger.Info("Starting job", zap.String("job", id))
	jm.broadcast(snapshot)

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job panicked: %v", r)
			}

			jm.mu.Lock()
			status.EndTime = time.Now()
			if err != nil {
				status.Status = StatusFailed
				status.Message = err.Error()
			} else {
				status.Status = StatusSuccess
				status.Message = "Job completed successfully."
			}
			jm.running = false
			snapshot := *status
			jm.mu.Unlock()

			if err != nil {
				jm.logger.Error("Job failed", zap.String("job", id), zap.Error(err))
			} else {
				jm.logger.Info("Finished job", zap.String("job", id))
			}
			jm.broadcast(snapshot)
			jm.wg.Done()
		}()

		err = task(jm.ctx)
	}()
	return nil
}

// GetStatus returns a copy of every job's status ordered by id.
func (jm *JobManager) GetStatus() []JobStatus {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	statuses := make([]JobStatus, 0, len(jm.status))
	for _, s := range jm.status {
		statuses = append(statuses, *s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].ID < statuses[j].ID })
	return statuses
}

// Shutdown cancels the running job and waits for it to return.
func (jm *JobManager) Shutdown() {
	jm.cancel()
	jm.wg.Wait()
}

func (jm *JobManager) broadcast(s JobStatus) {
	if jm.hub != nil {
		jm.hub.BroadcastJSON(map[string]any{"event": "job", "job": s})
	}
}
