package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/fentz26/jml/internal/models"
)

// fakeJobs serves a fixed list of due events. Resumes block until release
// is closed.
type fakeJobs struct {
	mu        sync.Mutex
	due       []models.LifecycleEvent
	resumes   map[string]int
	failFor   string
	errFor    string
	detects   int
	flushes   int
	release   chan struct{}
	listCalls int
	ctxErrs   []error
}

func newFakeJobs(n int) *fakeJobs {
	j := &fakeJobs{resumes: map[string]int{}, release: make(chan struct{})}
	for i := 0; i < n; i++ {
		j.due = append(j.due, models.LifecycleEvent{
			ID:        fmt.Sprintf("ev-%d", i),
			EventType: models.EventTypeLeaver,
			UserID:    fmt.Sprintf("u%d", i),
			Status:    models.EventStatusPending,
		})
	}
	return j
}

func (j *fakeJobs) DueEvents(ctx context.Context, now time.Time) ([]models.LifecycleEvent, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.listCalls++
	return append([]models.LifecycleEvent(nil), j.due...), nil
}

func (j *fakeJobs) ResumeEvent(ctx context.Context, id string) (*models.LifecycleEvent, error) {
	j.mu.Lock()
	j.resumes[id]++
	j.mu.Unlock()

	select {
	case <-j.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	j.mu.Lock()
	j.ctxErrs = append(j.ctxErrs, ctx.Err())
	j.mu.Unlock()

	if id == j.errFor {
		return nil, errors.New("user busy")
	}
	status := models.EventStatusCompleted
	if id == j.failFor {
		status = models.EventStatusFailed
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for i := range j.due {
		if j.due[i].ID == id {
			j.due = append(j.due[:i], j.due[i+1:]...)
			break
		}
	}
	return &models.LifecycleEvent{ID: id, Status: status}, nil
}

func (j *fakeJobs) Detect(ctx context.Context) (*lifecycle.DetectionResult, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.detects++
	return &lifecycle.DetectionResult{}, nil
}

func (j *fakeJobs) FlushNotifications(ctx context.Context) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.flushes++
	return 1, nil
}

func (j *fakeJobs) resumeCount(id string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.resumes[id]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}

func TestSchedulerConcurrencyLimits(t *testing.T) {
	jobs := newFakeJobs(5)
	sch := New(jobs, &Config{GlobalMax: 2, Interval: time.Hour})
	defer sch.Stop()

	sch.pollAndDispatch()

	stats := sch.GetStats()
	if stats["active_workers"].(int) != 2 {
		t.Errorf("Expected 2 active workers, got %d", stats["active_workers"])
	}
	if stats["global_max"].(int) != 2 {
		t.Errorf("Expected global_max 2, got %d", stats["global_max"])
	}

	// Polling again while full dispatches nothing more.
	sch.pollAndDispatch()
	if got := sch.GetStats()["active_workers"].(int); got != 2 {
		t.Errorf("Expected still 2 active workers, got %d", got)
	}

	close(jobs.release)
	waitFor(t, "workers to finish", func() bool {
		return sch.GetStats()["active_workers"].(int) == 0
	})
}

func TestSchedulerNoDoubleDispatch(t *testing.T) {
	jobs := newFakeJobs(3)
	sch := New(jobs, &Config{GlobalMax: 10, Interval: time.Hour})
	defer sch.Stop()

	// Three polls while every resume is still blocked.
	for i := 0; i < 3; i++ {
		sch.pollAndDispatch()
	}
	for _, ev := range jobs.due {
		if n := jobs.resumeCount(ev.ID); n > 1 {
			t.Errorf("Event %s dispatched %d times", ev.ID, n)
		}
	}

	close(jobs.release)
	waitFor(t, "events to resume", func() bool {
		return sch.GetStats()["events_resumed"].(int) == 3
	})
}

func TestSchedulerCountsOutcomes(t *testing.T) {
	jobs := newFakeJobs(3)
	jobs.failFor = "ev-1"
	jobs.errFor = "ev-2"
	close(jobs.release)

	sch := New(jobs, &Config{GlobalMax: 5, Interval: time.Hour})
	defer sch.Stop()

	sch.pollAndDispatch()
	waitFor(t, "workers to finish", func() bool {
		return sch.GetStats()["active_workers"].(int) == 0 && jobs.resumeCount("ev-2") == 1
	})

	stats := sch.GetStats()
	if stats["events_resumed"].(int) != 1 || stats["events_failed"].(int) != 1 {
		t.Errorf("Unexpected outcome counts: %v", stats)
	}

	// An event whose resume errored stays due and is retried.
	sch.pollAndDispatch()
	waitFor(t, "retry", func() bool { return jobs.resumeCount("ev-2") == 2 })
}

func TestSchedulerDetectionInterval(t *testing.T) {
	jobs := newFakeJobs(0)
	sch := New(jobs, &Config{GlobalMax: 1, Interval: time.Hour, DetectEnabled: true, DetectInterval: 10 * time.Minute})
	defer sch.Stop()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	sch.now = func() time.Time { return now }

	sch.tick()
	now = now.Add(5 * time.Minute)
	sch.tick()
	now = now.Add(6 * time.Minute)
	sch.tick()

	if got := sch.GetStats()["detection_runs"].(int); got != 2 {
		t.Errorf("Expected 2 detection runs, got %d", got)
	}
	if got := sch.GetStats()["notifications_flushed"].(int); got != 3 {
		t.Errorf("Expected 3 flushed notifications, got %d", got)
	}
}

func TestSchedulerDetectionDisabled(t *testing.T) {
	jobs := newFakeJobs(0)
	sch := New(jobs, nil)
	defer sch.Stop()

	sch.tick()
	if jobs.detects != 0 {
		t.Errorf("Expected no detection when disabled, got %d", jobs.detects)
	}
}

func TestSchedulerStartStop(t *testing.T) {
	jobs := newFakeJobs(1)
	close(jobs.release)

	sch := New(jobs, &Config{GlobalMax: 1, Interval: 20 * time.Millisecond})
	sch.Start()

	waitFor(t, "the loop to resume the event", func() bool {
		return sch.GetStats()["events_resumed"].(int) == 1
	})
	sch.Stop()

	jobs.mu.Lock()
	calls := jobs.listCalls
	jobs.mu.Unlock()
	time.Sleep(60 * time.Millisecond)
	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if jobs.listCalls != calls {
		t.Error("Expected no polling after Stop")
	}
}

func TestSchedulerStopLetsRunningResumeFinish(t *testing.T) {
	jobs := newFakeJobs(1)
	sch := New(jobs, &Config{GlobalMax: 1, Interval: time.Hour})

	sch.pollAndDispatch()
	waitFor(t, "the resume to start", func() bool { return jobs.resumeCount("ev-0") == 1 })

	stopped := make(chan struct{})
	go func() {
		sch.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Expected Stop to wait for the running resume")
	case <-time.After(50 * time.Millisecond):
	}

	close(jobs.release)
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for Stop")
	}

	if got := sch.GetStats()["events_resumed"].(int); got != 1 {
		t.Errorf("Expected the resume to complete, got %d resumed", got)
	}
	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if len(jobs.ctxErrs) != 1 || jobs.ctxErrs[0] != nil {
		t.Errorf("Expected the resume context to stay live, got %v", jobs.ctxErrs)
	}
}

func TestDefaultConfigNormalizes(t *testing.T) {
	cfg := &Config{}
	cfg.normalize()
	def := DefaultConfig()
	if cfg.GlobalMax != def.GlobalMax || cfg.Interval != def.Interval || cfg.DetectInterval != def.DetectInterval {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}
