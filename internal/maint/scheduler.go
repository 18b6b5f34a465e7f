// Package maint implements the background maintenance scheduler (§4.7):
// periodic WAL checkpointing and HNSW index compaction, run on
// cron-style schedules so long-lived databases don't accumulate
// unbounded WAL frames or tombstoned vector index entries.
package maint

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Task is one maintenance operation: a name, a cron schedule, the work
// function itself, and whether overlapping runs are forbidden.
type Task struct {
	Name      string
	CronExpr  string
	Run       func(ctx context.Context) error
	Timeout   time.Duration
	NoOverlap bool
}

type execution struct {
	startTime time.Time
	cancel    context.CancelFunc
}

// Scheduler runs a fixed set of maintenance tasks on their own cron
// schedules.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	running map[string]*execution
	results map[string]error // last run's error, nil on success
}

// New creates a scheduler with second-resolution cron expressions
// (matching the teacher's WithSeconds() convention), running in UTC.
func New() *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLocation(time.UTC)),
		running: make(map[string]*execution),
		results: make(map[string]error),
	}
}

// AddTask registers task with the scheduler. It must be called before
// Start.
func (s *Scheduler) AddTask(task Task) error {
	if task.CronExpr == "" {
		return fmt.Errorf("maint: task %q has no cron expression", task.Name)
	}
	if task.Timeout == 0 {
		task.Timeout = 5 * time.Minute
	}
	_, err := s.cron.AddFunc(task.CronExpr, func() { s.execute(task) })
	if err != nil {
		return fmt.Errorf("maint: invalid cron expression %q for task %q: %w", task.CronExpr, task.Name, err)
	}
	return nil
}

// Start begins running scheduled tasks in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and cancels any in-flight task runs,
// blocking until the cron loop has fully drained.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()

	s.mu.Lock()
	for name, exec := range s.running {
		log.Printf("maint: canceling running task %q", name)
		exec.cancel()
	}
	s.mu.Unlock()

	<-ctx.Done()
}

func (s *Scheduler) execute(task Task) {
	s.mu.Lock()
	if task.NoOverlap {
		if _, busy := s.running[task.Name]; busy {
			s.mu.Unlock()
			log.Printf("maint: task %q already running, skipping", task.Name)
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), task.Timeout)
	s.running[task.Name] = &execution{startTime: time.Now(), cancel: cancel}
	s.mu.Unlock()

	err := task.Run(ctx)

	s.mu.Lock()
	delete(s.running, task.Name)
	s.results[task.Name] = err
	s.mu.Unlock()
	cancel()

	if err != nil {
		log.Printf("maint: task %q failed: %v", task.Name, err)
	}
}

// LastError returns the error (nil on success, or nil if it has never
// run) from the most recent run of the named task.
func (s *Scheduler) LastError(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results[name]
}

// RunNow runs task immediately, outside its normal schedule, blocking
// until it completes. Useful for an explicit CLI "checkpoint now"
// command.
func (s *Scheduler) RunNow(ctx context.Context, task Task) error {
	return task.Run(ctx)
}
