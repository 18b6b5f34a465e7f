package maint

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestAddTaskRejectsInvalidCronExpression(t *testing.T) {
	s := New()
	err := s.AddTask(Task{Name: "bad", CronExpr: "not a cron expression", Run: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestAddTaskRejectsEmptyCronExpression(t *testing.T) {
	s := New()
	err := s.AddTask(Task{Name: "bad", Run: func(ctx context.Context) error { return nil }})
	if err == nil {
		t.Fatal("expected error for empty cron expression")
	}
}

func TestRunNowExecutesImmediately(t *testing.T) {
	s := New()
	var ran int32
	task := Task{
		Name:     "checkpoint",
		CronExpr: "0 0 0 1 1 *", // once a year, never fires on its own during the test
		Run: func(ctx context.Context) error {
			atomic.StoreInt32(&ran, 1)
			return nil
		},
	}
	if err := s.AddTask(task); err != nil {
		t.Fatal(err)
	}
	if err := s.RunNow(context.Background(), task); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&ran) != 1 {
		t.Fatal("expected task to have run")
	}
}

func TestExecuteRecordsLastError(t *testing.T) {
	s := New()
	boom := errors.New("boom")
	task := Task{Name: "compact", Run: func(ctx context.Context) error { return boom }}

	s.execute(task)

	if err := s.LastError("compact"); !errors.Is(err, boom) {
		t.Fatalf("LastError() = %v, want %v", err, boom)
	}
}

func TestNoOverlapSkipsConcurrentRun(t *testing.T) {
	s := New()
	started := make(chan struct{})
	release := make(chan struct{})
	var runCount int32

	task := Task{
		Name:      "slow",
		NoOverlap: true,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runCount, 1)
			close(started)
			<-release
			return nil
		},
	}

	done := make(chan struct{})
	go func() {
		s.execute(task)
		close(done)
	}()

	<-started
	s.execute(task) // should skip because the first run is still in flight
	close(release)
	<-done

	if atomic.LoadInt32(&runCount) != 1 {
		t.Fatalf("runCount = %d, want 1 (second run should have been skipped)", runCount)
	}
}

func TestStartAndStopDrainsCleanly(t *testing.T) {
	s := New()
	var ticks int32
	task := Task{
		Name:     "tick",
		CronExpr: "* * * * * *", // every second
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&ticks, 1)
			return nil
		},
	}
	if err := s.AddTask(task); err != nil {
		t.Fatal(err)
	}
	s.Start()
	time.Sleep(1200 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatal("expected at least one tick before stop")
	}
}
