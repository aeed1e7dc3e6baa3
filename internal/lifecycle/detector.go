package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fentz26/jml/internal/models"
)

// DefaultJoinerWindow is how recently a user must have been created to be
// proposed as a joiner.
const DefaultJoinerWindow = 7 * 24 * time.Hour

// DetectorTriggeredBy is recorded as the actor on events the detector starts.
const DetectorTriggeredBy = "system:event-detector"

// Processor is the part of the engine the detector feeds.
type Processor interface {
	ProcessJoiner(ctx context.Context, userID string, md models.JoinerMetadata, triggeredBy string) (*models.LifecycleEvent, error)
	ProcessLeaver(ctx context.Context, userID string, md models.LeaverMetadata, triggeredBy string) (*models.LifecycleEvent, error)
}

// Candidate is a user the detector believes needs a lifecycle event.
type Candidate struct {
	User      models.User      `json:"user"`
	EventType models.EventType `json:"eventType"`
	Reason    string           `json:"reason"`
}

// DetectionResult summarises one ProcessDetected pass.
type DetectionResult struct {
	JoinersDetected int                      `json:"joinersDetected"`
	LeaversDetected int                      `json:"leaversDetected"`
	Processed       int                      `json:"processed"`
	Failed          int                      `json:"failed"`
	Events          []*models.LifecycleEvent `json:"events"`
}

// Detector proposes joiner and leaver events from the user population. There
// is no mover heuristic.
type Detector struct {
	users     UserDirectory
	access    AccessStore
	processor Processor
	history   History
	window    time.Duration
	now       func() time.Time
}

// NewDetector creates a detector. history may be nil, in which case users
// are proposed again on every pass.
func NewDetector(dir Directory, p Processor, history History, window time.Duration) *Detector {
	if window <= 0 {
		window = DefaultJoinerWindow
	}
	return &Detector{
		users:     dir,
		access:    dir,
		processor: p,
		history:   history,
		window:    window,
		now:       time.Now,
	}
}

// DetectJoiners returns active users created within the window that hold no
// application access.
func (d *Detector) DetectJoiners(ctx context.Context, tenantID string) ([]Candidate, error) {
	users, err := d.users.GetUsers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	cutoff := d.now().Add(-d.window)

	var out []Candidate
	for _, u := range users {
		if u.Status != models.UserStatusActive || u.CreatedAt.Before(cutoff) {
			continue
		}
		access, err := d.access.GetUserAppAccessList(ctx, u.ID, tenantID)
		if err != nil {
			log.Printf("Detector: access lookup for %s failed: %v", u.ID, err)
			continue
		}
		if len(access) > 0 || d.seen(ctx, tenantID, u.ID, models.EventTypeJoiner) {
			continue
		}
		out = append(out, Candidate{User: u, EventType: models.EventTypeJoiner, Reason: "recently created with no application access"})
	}
	return out, nil
}

// DetectLeavers returns inactive users. Their last update stands in for the
// last working day.
func (d *Detector) DetectLeavers(ctx context.Context, tenantID string) ([]Candidate, error) {
	users, err := d.users.GetUsers(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	var out []Candidate
	for _, u := range users {
		if u.Status != models.UserStatusInactive {
			continue
		}
		if d.seen(ctx, tenantID, u.ID, models.EventTypeLeaver) {
			continue
		}
		out = append(out, Candidate{User: u, EventType: models.EventTypeLeaver, Reason: "account is inactive"})
	}
	return out, nil
}

// ProcessDetected runs every candidate through the engine. A failure on one
// user is logged and counted; it never stops the batch.
func (d *Detector) ProcessDetected(ctx context.Context, tenantID string) (*DetectionResult, error) {
	joiners, err := d.DetectJoiners(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	leavers, err := d.DetectLeavers(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	res := &DetectionResult{JoinersDetected: len(joiners), LeaversDetected: len(leavers)}

	for _, c := range joiners {
		ev, err := d.processor.ProcessJoiner(ctx, c.User.ID, models.JoinerMetadata{
			Department: c.User.Department,
			JobTitle:   c.User.JobTitle,
			Manager:    c.User.Manager,
			StartDate:  c.User.CreatedAt,
		}, DetectorTriggeredBy)
		d.record(res, c, ev, err)
	}
	for _, c := range leavers {
		ev, err := d.processor.ProcessLeaver(ctx, c.User.ID, models.LeaverMetadata{
			Department:      c.User.Department,
			LastWorkingDay:  c.User.UpdatedAt,
			TerminationType: models.TerminationVoluntary,
		}, DetectorTriggeredBy)
		d.record(res, c, ev, err)
	}

	log.Printf("Detector: %d joiners, %d leavers, %d processed, %d failed",
		res.JoinersDetected, res.LeaversDetected, res.Processed, res.Failed)
	return res, nil
}

func (d *Detector) record(res *DetectionResult, c Candidate, ev *models.LifecycleEvent, err error) {
	if err != nil {
		log.Printf("Detector: %s event for %s failed: %v", c.EventType, c.User.ID, err)
		res.Failed++
		return
	}
	res.Events = append(res.Events, ev)
	if ev.Status == models.EventStatusFailed {
		log.Printf("Detector: %s event %s for %s failed: %s", c.EventType, ev.ID, c.User.ID, ev.Error)
		res.Failed++
		return
	}
	res.Processed++
}

func (d *Detector) seen(ctx context.Context, tenantID, userID string, t models.EventType) bool {
	if d.history == nil {
		return false
	}
	ok, err := d.history.HasEvent(ctx, tenantID, userID, t)
	if err != nil {
		log.Printf("Detector: history lookup for %s failed: %v", userID, err)
		return false
	}
	return ok
}
