// internal/app/system/tasks/runner.go
package tasks

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dalemusser/stratawiki/internal/app/system/metrics"
	"github.com/dalemusser/stratawiki/internal/app/system/timeouts"
	"go.uber.org/zap"
)

// ErrUnknownJob is returned by RunOnce for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job represents a scheduled background task.
type Job struct {
	Name     string
	Interval time.Duration
	// Timeout bounds a single run; zero uses timeouts.Batch().
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// JobState is the last known outcome of a job, as shown on the admin
// status report.
type JobState struct {
	Name      string        `json:"name"`
	Interval  string        `json:"interval"`
	Running   bool          `json:"running"`
	Runs      int64         `json:"runs"`
	Failures  int64         `json:"failures"`
	LastRun   *time.Time    `json:"last_run,omitempty"`
	LastError string        `json:"last_error,omitempty"`
	Duration  time.Duration `json:"last_duration_ns"`
}

// Runner manages background job execution.
type Runner struct {
	logger *zap.Logger
	jobs   []Job
	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu    sync.Mutex
	state map[string]*JobState
}

// New creates a new task runner.
func New(logger *zap.Logger) *Runner {
	return &Runner{
		logger: logger,
		state:  make(map[string]*JobState),
	}
}

// Register adds a job to the runner.
func (r *Runner) Register(job Job) {
	r.jobs = append(r.jobs, job)
	r.mu.Lock()
	r.state[job.Name] = &JobState{Name: job.Name, Interval: job.Interval.String()}
	r.mu.Unlock()
}

// Start begins executing all registered jobs.
// Call Stop to gracefully shutdown.
func (r *Runner) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	for _, job := range r.jobs {
		r.wg.Add(1)
		go r.runJob(ctx, job)
	}

	r.logger.Info("background task runner started",
		zap.Int("job_count", len(r.jobs)))
}

// Stop gracefully stops all running jobs within the given context's deadline.
// If ctx is cancelled before all jobs complete, it returns ctx.Err().
// Pass context.Background() for unlimited wait time.
func (r *Runner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("background task runner stopped gracefully")
		return nil
	case <-ctx.Done():
		var stillRunning []string
		for _, s := range r.Snapshot() {
			if s.Running {
				stillRunning = append(stillRunning, s.Name)
			}
		}
		r.logger.Warn("background task runner shutdown timed out",
			zap.Strings("jobs_still_running", stillRunning))
		return ctx.Err()
	}
}

// Snapshot returns the state of every registered job, sorted by name.
func (r *Runner) Snapshot() []JobState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]JobState, 0, len(r.state))
	for _, s := range r.state {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// runJob executes a single job on its interval.
func (r *Runner) runJob(ctx context.Context, job Job) {
	defer r.wg.Done()

	// Run immediately on startup
	r.executeJob(ctx, job)

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("job stopped", zap.String("job", job.Name))
			return
		case <-ticker.C:
			r.executeJob(ctx, job)
		}
	}
}

// executeJob runs a job, records its outcome and logs the result.
func (r *Runner) executeJob(ctx context.Context, job Job) {
	r.markRunning(job.Name)
	start := time.Now()
	r.logger.Debug("job starting", zap.String("job", job.Name))

	runCtx, cancel := timeouts.WithTimeout(ctx, job.timeout(), r.logger, "job:"+job.Name)
	err := job.Run(runCtx)
	cancel()
	elapsed := time.Since(start)

	switch {
	case err != nil && ctx.Err() != nil:
		// Shutdown, not a failure.
		r.record(job.Name, start, elapsed, nil)
		metrics.JobRunsTotal.WithLabelValues(job.Name, "cancelled").Inc()
		r.logger.Debug("job cancelled during shutdown",
			zap.String("job", job.Name),
			zap.Duration("duration", elapsed))
	case err != nil:
		r.record(job.Name, start, elapsed, err)
		metrics.JobRunsTotal.WithLabelValues(job.Name, "error").Inc()
		r.logger.Error("job failed",
			zap.String("job", job.Name),
			zap.Duration("duration", elapsed),
			zap.Error(err))
	default:
		r.record(job.Name, start, elapsed, nil)
		metrics.JobRunsTotal.WithLabelValues(job.Name, "ok").Inc()
		r.logger.Debug("job completed",
			zap.String("job", job.Name),
			zap.Duration("duration", elapsed))
	}
}

func (r *Runner) markRunning(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.state[name]; ok {
		s.Running = true
	}
}

func (r *Runner) record(name string, start time.Time, elapsed time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.state[name]
	if !ok {
		return
	}
	at := start.UTC()
	s.Running = false
	s.Runs++
	s.LastRun = &at
	s.Duration = elapsed
	s.LastError = ""
	if err != nil {
		s.Failures++
		s.LastError = err.Error()
	}
}

// RunOnce executes a job immediately (useful for testing or manual triggers).
// The run is recorded like a scheduled one.
func (r *Runner) RunOnce(ctx context.Context, name string) error {
	for _, job := range r.jobs {
		if job.Name != name {
			continue
		}
		r.markRunning(name)
		start := time.Now()
		runCtx, cancel := context.WithTimeout(ctx, job.timeout())
		defer cancel()
		err := job.Run(runCtx)
		r.record(name, start, time.Since(start), err)
		return err
	}
	return ErrUnknownJob
}

func (j Job) timeout() time.Duration {
	if j.Timeout > 0 {
		return j.Timeout
	}
	return timeouts.Batch()
}
