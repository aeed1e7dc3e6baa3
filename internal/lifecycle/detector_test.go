package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fentz26/jml/internal/models"
)

// fakeHistory reports users listed in seen as already processed.
type fakeHistory struct {
	seen map[string]bool
}

func (h *fakeHistory) HasEvent(ctx context.Context, tenantID, userID string, t models.EventType) (bool, error) {
	return h.seen[userID+"/"+string(t)], nil
}

// flakyProcessor fails for one user and delegates the rest.
type flakyProcessor struct {
	*Engine
	failFor string
}

func (p *flakyProcessor) ProcessJoiner(ctx context.Context, userID string, md models.JoinerMetadata, by string) (*models.LifecycleEvent, error) {
	if userID == p.failFor {
		return nil, errors.New("directory unavailable")
	}
	return p.Engine.ProcessJoiner(ctx, userID, md, by)
}

func newTestDetector(dir *fakeDirectory, p Processor, h History) *Detector {
	d := NewDetector(dir, p, h, 0)
	d.now = fixedClock(testNow)
	return d
}

func TestDetectJoiners(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("fresh", models.UserStatusActive, testNow.Add(-2*24*time.Hour))
	dir.addUser("old", models.UserStatusActive, testNow.Add(-30*24*time.Hour))
	dir.addUser("provisioned", models.UserStatusActive, testNow.Add(-24*time.Hour))
	dir.grant("provisioned", "A")
	dir.addUser("gone", models.UserStatusInactive, testNow.Add(-24*time.Hour))

	d := newTestDetector(dir, nil, nil)
	got, err := d.DetectJoiners(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("DetectJoiners failed: %v", err)
	}
	if len(got) != 1 || got[0].User.ID != "fresh" {
		t.Errorf("Expected only 'fresh', got %+v", got)
	}
}

func TestDetectLeavers(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("active", models.UserStatusActive, testNow)
	dir.addUser("left", models.UserStatusInactive, testNow.Add(-5*24*time.Hour))
	dir.addUser("done", models.UserStatusInactive, testNow.Add(-5*24*time.Hour))

	d := newTestDetector(dir, nil, &fakeHistory{seen: map[string]bool{"done/leaver": true}})
	got, err := d.DetectLeavers(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("DetectLeavers failed: %v", err)
	}
	if len(got) != 1 || got[0].User.ID != "left" {
		t.Errorf("Expected only 'left', got %+v", got)
	}
}

func TestProcessDetected_IsolatesFailures(t *testing.T) {
	dir := newFakeDirectory()
	dir.addUser("j1", models.UserStatusActive, testNow.Add(-time.Hour))
	dir.addUser("j2", models.UserStatusActive, testNow.Add(-time.Hour))
	left := dir.addUser("l1", models.UserStatusInactive, testNow.Add(-3*24*time.Hour))
	dir.grant("l1", "A")

	eng, _ := newTestEngine(dir)
	d := newTestDetector(dir, &flakyProcessor{Engine: eng, failFor: "j1"}, nil)

	res, err := d.ProcessDetected(context.Background(), testTenant)
	if err != nil {
		t.Fatalf("ProcessDetected failed: %v", err)
	}
	if res.JoinersDetected != 2 || res.LeaversDetected != 1 {
		t.Errorf("Unexpected detection counts: %+v", res)
	}
	if res.Processed != 2 || res.Failed != 1 {
		t.Errorf("Expected 2 processed and 1 failed, got %+v", res)
	}

	var leaver *models.LifecycleEvent
	for _, ev := range res.Events {
		if ev.EventType == models.EventTypeLeaver {
			leaver = ev
		}
	}
	if leaver == nil {
		t.Fatal("Expected a leaver event")
	}
	md := leaver.Metadata.(models.LeaverMetadata)
	if md.TerminationType != models.TerminationVoluntary || !md.LastWorkingDay.Equal(left.UpdatedAt) {
		t.Errorf("Unexpected leaver metadata: %+v", md)
	}
	if leaver.TriggeredBy != DetectorTriggeredBy {
		t.Errorf("Expected detector as trigger, got %s", leaver.TriggeredBy)
	}
	if leaver.Status != models.EventStatusCompleted {
		t.Errorf("Expected leaver completed, got %s (%s)", leaver.Status, leaver.Error)
	}
}
