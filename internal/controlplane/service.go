// Package controlplane provides the HTTP API and service layer for the JML daemon.
package controlplane

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fentz26/jml/internal/audit"
	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/fentz26/jml/internal/models"
	"github.com/fentz26/jml/internal/notify"
	"github.com/fentz26/jml/internal/store"
	"github.com/google/uuid"
)

// userLockTTL bounds how long a crashed daemon can keep a user locked.
const userLockTTL = 5 * time.Minute

// Service wraps the lifecycle engine with persistence, audit records and
// per-user serialisation.
type Service struct {
	store    *store.Store
	pdr      *audit.PDRWriter
	engine   *lifecycle.Engine
	detector *lifecycle.Detector
	notifier *notify.Dispatcher
	tenantID string
	holderID string
}

// NewService creates a new control plane service. Detected joiners and
// leavers are routed back through the service so they are persisted too.
func NewService(s *store.Store, pdr *audit.PDRWriter, eng *lifecycle.Engine, n *notify.Dispatcher, tenantID string, joinerWindow time.Duration) *Service {
	svc := &Service{
		store:    s,
		pdr:      pdr,
		engine:   eng,
		notifier: n,
		tenantID: tenantID,
		holderID: "jmld-" + uuid.New().String(),
	}
	svc.detector = lifecycle.NewDetector(s, svc, s, joinerWindow)
	return svc
}

// TenantID returns the tenant the service acts for.
func (s *Service) TenantID() string {
	return s.tenantID
}

// --- Event Operations ---

// ProcessJoiner onboards a user and stores the resulting event.
func (s *Service) ProcessJoiner(ctx context.Context, userID string, md models.JoinerMetadata, triggeredBy string) (*models.LifecycleEvent, error) {
	return s.process(ctx, userID, "event.joiner", func() (*models.LifecycleEvent, error) {
		return s.engine.ProcessJoiner(ctx, userID, md, triggeredBy)
	})
}

// ProcessMover applies a role change and stores the resulting event.
func (s *Service) ProcessMover(ctx context.Context, userID string, md models.MoverMetadata, triggeredBy string) (*models.LifecycleEvent, error) {
	return s.process(ctx, userID, "event.mover", func() (*models.LifecycleEvent, error) {
		return s.engine.ProcessMover(ctx, userID, md, triggeredBy)
	})
}

// ProcessLeaver offboards a user, or records a pending event when the last
// working day is still ahead.
func (s *Service) ProcessLeaver(ctx context.Context, userID string, md models.LeaverMetadata, triggeredBy string) (*models.LifecycleEvent, error) {
	return s.process(ctx, userID, "event.leaver", func() (*models.LifecycleEvent, error) {
		return s.engine.ProcessLeaver(ctx, userID, md, triggeredBy)
	})
}

func (s *Service) process(ctx context.Context, userID, action string, run func() (*models.LifecycleEvent, error)) (*models.LifecycleEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ev, err := run()
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, action, ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// GetEvent retrieves an event by ID.
func (s *Service) GetEvent(ctx context.Context, id string) (*models.LifecycleEvent, error) {
	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, ErrEventNotFound
	}
	return ev, nil
}

// ListEvents returns filtered events of the service tenant.
func (s *Service) ListEvents(ctx context.Context, f store.EventFilter) ([]models.LifecycleEvent, error) {
	f.TenantID = s.tenantID
	return s.store.ListEvents(ctx, f)
}

// ResumeEvent runs a pending event whose effective date has been reached.
func (s *Service) ResumeEvent(ctx context.Context, id string) (*models.LifecycleEvent, error) {
	ev, unlock, err := s.lockEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.engine.Resume(ctx, ev); err != nil {
		return nil, err
	}
	if err := s.save(ctx, "event.resume", ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// CancelEvent cancels a pending event. It fails with ErrUserBusy while
// another operation on the same user, such as a resume, is running.
func (s *Service) CancelEvent(ctx context.Context, id string) (*models.LifecycleEvent, error) {
	ev, unlock, err := s.lockEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.engine.Cancel(ev); err != nil {
		return nil, err
	}
	if err := s.save(ctx, "event.cancel", ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// DueEvents lists pending events ready to be resumed.
func (s *Service) DueEvents(ctx context.Context, now time.Time) ([]models.LifecycleEvent, error) {
	return s.store.ListDueEvents(ctx, now)
}

// AuditTrail returns the decision records of an event.
func (s *Service) AuditTrail(ctx context.Context, id string) ([]models.PDREntry, error) {
	if _, err := s.GetEvent(ctx, id); err != nil {
		return nil, err
	}
	return s.pdr.Trail(ctx, id)
}

// Detect finds unprocessed joiners and leavers in the directory and runs them.
func (s *Service) Detect(ctx context.Context) (*lifecycle.DetectionResult, error) {
	res, err := s.detector.ProcessDetected(ctx, s.tenantID)
	if err != nil {
		return nil, err
	}
	s.pdr.Record("detect.run", map[string]string{"tenant_id": s.tenantID}, "success", "",
		fmt.Sprintf("%d joiners, %d leavers, %d processed, %d failed",
			res.JoinersDetected, res.LeaversDetected, res.Processed, res.Failed))
	return res, nil
}

// --- Notification Operations ---

// ListNotifications returns notifications of the service tenant.
func (s *Service) ListNotifications(ctx context.Context, f store.NotificationFilter) ([]models.Notification, error) {
	f.TenantID = s.tenantID
	return s.store.ListNotifications(ctx, f)
}

// FlushNotifications retries webhook delivery of undelivered notifications.
func (s *Service) FlushNotifications(ctx context.Context) (int, error) {
	return s.notifier.Flush(ctx)
}

// --- Helpers ---

func (s *Service) save(ctx context.Context, action string, ev *models.LifecycleEvent) error {
	if err := s.store.SaveEvent(ctx, ev); err != nil {
		return fmt.Errorf("persist event %s: %w", ev.ID, err)
	}
	if _, err := s.pdr.RecordEvent(action, ev); err != nil {
		log.Printf("Failed to write PDR for event %s: %v", ev.ID, err)
	}
	return nil
}

// lockEvent takes the lock of the event's user and returns the event as
// stored once the lock is held.
func (s *Service) lockEvent(ctx context.Context, id string) (*models.LifecycleEvent, func(), error) {
	ev, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	unlock, err := s.lockUser(ctx, ev.UserID)
	if err != nil {
		return nil, nil, err
	}
	ev, err = s.GetEvent(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return ev, unlock, nil
}

// lockUser takes the per-user lock and returns its release func.
func (s *Service) lockUser(ctx context.Context, userID string) (func(), error) {
	lock, err := s.store.AcquireLock(ctx, "user:"+userID, s.holderID, "lifecycle", userLockTTL)
	if errors.Is(err, store.ErrResourceLocked) {
		return nil, ErrUserBusy
	}
	if err != nil {
		return nil, err
	}
	return func() {
		// Release even if the request context was cancelled.
		if err := s.store.ReleaseLock(context.Background(), lock.ID); err != nil {
			log.Printf("Failed to release lock for user %s: %v", userID, err)
		}
	}, nil
}
