package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/fentz26/jml/internal/models"
)

// Jobs is the work the scheduler drives.
type Jobs interface {
	DueEvents(ctx context.Context, now time.Time) ([]models.LifecycleEvent, error)
	ResumeEvent(ctx context.Context, id string) (*models.LifecycleEvent, error)
	Detect(ctx context.Context) (*lifecycle.DetectionResult, error)
	FlushNotifications(ctx context.Context) (int, error)
}

// Scheduler resumes gated events once their effective date passes and
// optionally runs detection on a timer.
type Scheduler struct {
	jobs   Jobs
	config *Config
	now    func() time.Time

	// Worker pool state
	mu            sync.Mutex
	activeWorkers int
	inFlight      map[string]bool
	resumed       int
	failed        int
	detections    int
	lastDetect    time.Time
	flushed       int

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers sync.WaitGroup
}

// New creates a new scheduler.
func New(jobs Jobs, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()

	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		jobs:     jobs,
		config:   cfg,
		now:      time.Now,
		inFlight: make(map[string]bool),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the scheduler loop.
func (sch *Scheduler) Start() {
	sch.wg.Add(1)
	go sch.schedulerLoop()
	log.Println("Scheduler started")
}

// Stop stops dispatching and waits for running workers. A resume already
// in progress runs to completion.
func (sch *Scheduler) Stop() {
	sch.cancel()
	sch.wg.Wait()
	sch.workers.Wait()
	log.Println("Scheduler stopped")
}

func (sch *Scheduler) schedulerLoop() {
	defer sch.wg.Done()

	ticker := time.NewTicker(sch.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sch.ctx.Done():
			return
		case <-ticker.C:
			sch.tick()
		}
	}
}

func (sch *Scheduler) tick() {
	sch.pollAndDispatch()
	if sch.detectDue() {
		sch.runDetect()
	}
	sch.flushNotifications()
}

// pollAndDispatch hands due events to workers up to the concurrency limit.
// Events already being resumed are skipped.
func (sch *Scheduler) pollAndDispatch() {
	due, err := sch.jobs.DueEvents(sch.ctx, sch.now())
	if err != nil {
		log.Printf("Error listing due events: %v", err)
		return
	}

	for _, ev := range due {
		sch.mu.Lock()
		if sch.activeWorkers >= sch.config.GlobalMax {
			sch.mu.Unlock()
			return
		}
		if sch.inFlight[ev.ID] {
			sch.mu.Unlock()
			continue
		}
		sch.inFlight[ev.ID] = true
		sch.activeWorkers++
		sch.mu.Unlock()

		log.Printf("Dispatching %s event %s for user %s", ev.EventType, ev.ID, ev.UserID)

		sch.workers.Add(1)
		go sch.runWorker(ev.ID)
	}
}

func (sch *Scheduler) runWorker(eventID string) {
	defer sch.workers.Done()

	// Stop does not cancel a running resume.
	ev, err := sch.jobs.ResumeEvent(context.WithoutCancel(sch.ctx), eventID)

	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.activeWorkers--
	delete(sch.inFlight, eventID)

	switch {
	case err != nil:
		// Left pending; the next poll retries.
		log.Printf("Error resuming event %s: %v", eventID, err)
	case ev.Status == models.EventStatusFailed:
		sch.failed++
		log.Printf("Event %s failed on resume: %s", eventID, ev.Error)
	default:
		sch.resumed++
		log.Printf("Event %s resumed: %s", eventID, ev.Status)
	}
}

func (sch *Scheduler) detectDue() bool {
	if !sch.config.DetectEnabled {
		return false
	}
	sch.mu.Lock()
	defer sch.mu.Unlock()
	return sch.lastDetect.IsZero() || sch.now().Sub(sch.lastDetect) >= sch.config.DetectInterval
}

func (sch *Scheduler) runDetect() {
	res, err := sch.jobs.Detect(sch.ctx)

	sch.mu.Lock()
	defer sch.mu.Unlock()
	sch.lastDetect = sch.now()
	if err != nil {
		log.Printf("Error running detection: %v", err)
		return
	}
	sch.detections++
	log.Printf("Detection run: %d joiners, %d leavers", res.JoinersDetected, res.LeaversDetected)
}

func (sch *Scheduler) flushNotifications() {
	n, err := sch.jobs.FlushNotifications(sch.ctx)
	if err != nil {
		log.Printf("Error flushing notifications: %v", err)
		return
	}
	if n > 0 {
		sch.mu.Lock()
		sch.flushed += n
		sch.mu.Unlock()
	}
}

// GetStats returns current scheduler statistics.
func (sch *Scheduler) GetStats() map[string]interface{} {
	sch.mu.Lock()
	defer sch.mu.Unlock()

	return map[string]interface{}{
		"active_workers":        sch.activeWorkers,
		"global_max":            sch.config.GlobalMax,
		"events_resumed":        sch.resumed,
		"events_failed":         sch.failed,
		"detection_runs":        sch.detections,
		"notifications_flushed": sch.flushed,
	}
}
