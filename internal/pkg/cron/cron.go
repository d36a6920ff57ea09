// Package cron runs the server's periodic maintenance jobs, such as sweeping
// expired sessions, and keeps a run history admins can inspect.
package cron

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/folio-cms/folio/internal/pkg/apperr"
)

// Status is the outcome of a job's most recent run.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
)

// Job is a maintenance task repeated every Every.
type Job struct {
	Name        string
	Description string
	Every       time.Duration
	Run         func(ctx context.Context) error
}

// Report is the admin view of one job.
type Report struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Every       string     `json:"every"`
	Status      Status     `json:"status"`
	LastError   string     `json:"lastError,omitempty"`
	Runs        int        `json:"runs"`
	Failures    int        `json:"failures"`
	LastRunAt   *time.Time `json:"lastRunAt,omitempty"`
	LastTookMs  int64      `json:"lastTookMs"`
	NextRunAt   time.Time  `json:"nextRunAt"`
}

// Options tunes a Scheduler.
type Options struct {
	Now func() time.Time
	// OnRun observes every finished run; err is nil on success.
	OnRun func(job string, err error, took time.Duration)
}

type entry struct {
	job Job

	mu       sync.Mutex
	status   Status
	lastErr  string
	runs     int
	failures int
	lastRun  *time.Time
	lastTook time.Duration
	next     time.Time
}

// Scheduler owns the registered jobs. Register everything before Start.
type Scheduler struct {
	mu     sync.RWMutex
	jobs   map[string]*entry
	wg     sync.WaitGroup
	now    func() time.Time
	onRun  func(string, error, time.Duration)
	logger *zap.Logger
}

func New(logger *zap.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		jobs:   make(map[string]*entry),
		now:    opts.Now,
		onRun:  opts.OnRun,
		logger: logger.Named("Cron"),
	}
}

// Register adds a job. Names are unique and the interval must be positive.
func (s *Scheduler) Register(job Job) error {
	if job.Name == "" || job.Run == nil || job.Every <= 0 {
		return apperr.Validation("invalid job", map[string]string{"job": "name, run func and a positive interval are required"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return apperr.Conflict("job %q already registered", job.Name)
	}
	s.jobs[job.Name] = &entry{job: job, status: StatusIdle, next: s.now().Add(job.Every)}
	return nil
}

// Start ticks every job until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
}

// Wait blocks until every job loop has returned after cancellation.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()
	ticker := time.NewTicker(e.job.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.begin(e) {
				s.finish(ctx, e)
			}
		}
	}
}

// begin claims e for a run; false when a run is already in flight.
func (s *Scheduler) begin(e *entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusRunning {
		return false
	}
	e.status = StatusRunning
	return true
}

func (s *Scheduler) finish(ctx context.Context, e *entry) {
	started := s.now()
	err := e.job.Run(ctx)
	took := s.now().Sub(started)

	e.mu.Lock()
	e.runs++
	e.lastRun = &started
	e.lastTook = took
	e.next = started.Add(e.job.Every)
	if err != nil {
		e.failures++
		e.status = StatusFailed
		e.lastErr = err.Error()
	} else {
		e.status = StatusOK
		e.lastErr = ""
	}
	e.mu.Unlock()

	if err != nil {
		s.logger.Warn("maintenance job failed", zap.String("job", e.job.Name), zap.Error(err))
	} else {
		s.logger.Debug("maintenance job done", zap.String("job", e.job.Name), zap.Duration("took", took))
	}
	if s.onRun != nil {
		s.onRun(e.job.Name, err, took)
	}
}

// Trigger starts an out-of-schedule run in the background. A job that is
// already running is a conflict.
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	e, err := s.lookup(name)
	if err != nil {
		return err
	}
	if !s.begin(e) {
		return apperr.Conflict("job %q is already running", name)
	}
	go s.finish(context.WithoutCancel(ctx), e)
	return nil
}

// Report describes one job.
func (s *Scheduler) Report(name string) (Report, error) {
	e, err := s.lookup(name)
	if err != nil {
		return Report{}, err
	}
	return e.report(), nil
}

// Reports describes every job, ordered by name.
func (s *Scheduler) Reports() []Report {
	s.mu.RLock()
	out := make([]Report, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, e.report())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b Report) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (s *Scheduler) lookup(name string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("job %q not found", name)
	}
	return e, nil
}

func (e *entry) report() Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Report{
		Name:        e.job.Name,
		Description: e.job.Description,
		Every:       e.job.Every.String(),
		Status:      e.status,
		LastError:   e.lastErr,
		Runs:        e.runs,
		Failures:    e.failures,
		LastRunAt:   e.lastRun,
		LastTookMs:  e.lastTook.Milliseconds(),
		NextRunAt:   e.next,
	}
}
