package lifecycle

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fentz26/jml/internal/models"
	"github.com/google/uuid"
)

// Options tunes an Engine. The zero value is usable.
type Options struct {
	// AccessReviewHorizon is the delay before a mover's access review.
	AccessReviewHorizon time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Engine orchestrates lifecycle events: build the tasks, run them in order,
// stop at the first failure, and report the outcome on the event record.
//
// Engine holds no per-event state and takes no locks. Callers that may
// process the same user concurrently must serialise per user themselves.
type Engine struct {
	dir      Directory
	emitter  Emitter
	builder  *Builder
	executor *Executor
	now      func() time.Time
}

// NewEngine creates an engine over the given collaborators.
func NewEngine(dir Directory, emitter Emitter, opts Options) *Engine {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		dir:      dir,
		emitter:  emitter,
		builder:  NewBuilder(NewResolver(dir), dir),
		executor: NewExecutor(dir, emitter, opts.AccessReviewHorizon, now),
		now:      now,
	}
}

// ProcessJoiner onboards a user.
func (e *Engine) ProcessJoiner(ctx context.Context, userID string, md models.JoinerMetadata, triggeredBy string) (*models.LifecycleEvent, error) {
	return e.process(ctx, userID, md, triggeredBy)
}

// ProcessMover applies a department, role or manager change.
func (e *Engine) ProcessMover(ctx context.Context, userID string, md models.MoverMetadata, triggeredBy string) (*models.LifecycleEvent, error) {
	return e.process(ctx, userID, md, triggeredBy)
}

// ProcessLeaver offboards a user. Unless md.ImmediateRevocation is set or the
// last working day has passed, the event is returned pending with no task run;
// call Resume at or after the last working day.
func (e *Engine) ProcessLeaver(ctx context.Context, userID string, md models.LeaverMetadata, triggeredBy string) (*models.LifecycleEvent, error) {
	return e.process(ctx, userID, md, triggeredBy)
}

// process returns an error only when no event could be created. Every other
// outcome, including task failure, is reported through the event's status.
func (e *Engine) process(ctx context.Context, userID string, md models.Metadata, triggeredBy string) (*models.LifecycleEvent, error) {
	user, err := e.dir.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}

	ev := e.newEvent(user, md, triggeredBy)
	log.Printf("Processing %s event %s for user %s", ev.EventType, ev.ID, ev.UserID)

	if err := e.builder.Build(ctx, ev); err != nil {
		e.fail(ev, err.Error())
		return ev, nil
	}

	if !e.due(ev) {
		ev.Status = models.EventStatusPending
		log.Printf("Event %s deferred until %s", ev.ID, ev.EffectiveDate.Format(time.RFC3339))
		return ev, nil
	}

	e.run(ctx, ev)
	return ev, nil
}

// Resume runs a pending event whose effective date has been reached. Its
// tasks are rebuilt first so revocations match the access held now.
func (e *Engine) Resume(ctx context.Context, ev *models.LifecycleEvent) error {
	if ev.Status != models.EventStatusPending {
		return ErrNotResumable
	}
	if !e.due(ev) {
		return ErrNotDue
	}

	ev.Status = models.EventStatusInProgress
	ev.Tasks = nil
	if err := e.builder.Build(ctx, ev); err != nil {
		e.fail(ev, err.Error())
		return nil
	}
	e.run(ctx, ev)
	return nil
}

// Cancel moves a pending event to cancelled. Events that started running
// cannot be cancelled.
func (e *Engine) Cancel(ev *models.LifecycleEvent) error {
	if ev.Status != models.EventStatusPending {
		return ErrNotCancellable
	}
	now := e.now().UTC()
	ev.Status = models.EventStatusCancelled
	ev.CompletedAt = &now
	return nil
}

func (e *Engine) newEvent(user *models.User, md models.Metadata, triggeredBy string) *models.LifecycleEvent {
	now := e.now().UTC()
	effective := md.EffectiveAt()
	if effective.IsZero() {
		effective = now
	}
	return &models.LifecycleEvent{
		ID:            uuid.New().String(),
		TenantID:      user.TenantID,
		EventType:     md.EventType(),
		UserID:        user.ID,
		UserName:      user.Name,
		UserEmail:     user.Email,
		TriggeredBy:   triggeredBy,
		TriggeredAt:   now,
		EffectiveDate: effective,
		Status:        models.EventStatusInProgress,
		Metadata:      md,
	}
}

// due applies the leaver gating rule. Joiners and movers always run.
func (e *Engine) due(ev *models.LifecycleEvent) bool {
	md, ok := ev.Metadata.(models.LeaverMetadata)
	if !ok {
		return true
	}
	return md.ImmediateRevocation || !e.now().Before(md.LastWorkingDay)
}

// run executes the tasks strictly in order; later tasks may rely on the side
// effects of earlier ones.
func (e *Engine) run(ctx context.Context, ev *models.LifecycleEvent) {
	for i := range ev.Tasks {
		if err := e.executor.Execute(ctx, &ev.Tasks[i], ev); err != nil {
			e.fail(ev, ev.Tasks[i].Error)
			return
		}
	}

	if err := e.applyUserChanges(ctx, ev); err != nil {
		e.fail(ev, err.Error())
		return
	}

	now := e.now().UTC()
	ev.Status = models.EventStatusCompleted
	ev.CompletedAt = &now
	e.emitCompletion(ctx, ev)
	log.Printf("Event %s completed (%d tasks)", ev.ID, len(ev.Tasks))
}

// applyUserChanges writes the user record changes that follow a successful run.
func (e *Engine) applyUserChanges(ctx context.Context, ev *models.LifecycleEvent) error {
	switch md := ev.Metadata.(type) {
	case models.MoverMetadata:
		upd := models.UserUpdate{
			Department: &md.NewDepartment,
			JobTitle:   &md.NewJobTitle,
			Manager:    &md.NewManager,
		}
		if err := e.dir.UpdateUser(ctx, ev.UserID, upd); err != nil {
			return fmt.Errorf("update user record: %w", err)
		}
	case models.LeaverMetadata:
		inactive := models.UserStatusInactive
		if err := e.dir.UpdateUser(ctx, ev.UserID, models.UserUpdate{Status: &inactive}); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
	}
	return nil
}

func (e *Engine) emitCompletion(ctx context.Context, ev *models.LifecycleEvent) {
	payload := map[string]any{
		"tenantId": ev.TenantID,
		"userId":   ev.UserID,
		"userName": ev.UserName,
		"eventId":  ev.ID,
	}

	var topic string
	switch md := ev.Metadata.(type) {
	case models.JoinerMetadata:
		topic = TopicJoinerCompleted
		payload["appsProvisioned"] = ev.CountTasks(models.TaskProvisionAccess, models.TaskStatusCompleted)
		payload["department"] = md.Department
	case models.MoverMetadata:
		topic = TopicMoverCompleted
		payload["appsAdded"] = ev.CountTasks(models.TaskProvisionAccess, models.TaskStatusCompleted)
		payload["appsRemoved"] = ev.CountTasks(models.TaskRevokeAccess, models.TaskStatusCompleted)
		payload["departmentChanged"] = md.PreviousDepartment != md.NewDepartment
	case models.LeaverMetadata:
		topic = TopicLeaverCompleted
		payload["appsRevoked"] = ev.CountTasks(models.TaskRevokeAppAccess, models.TaskStatusCompleted)
		payload["terminationType"] = string(md.TerminationType)
	default:
		return
	}
	e.emitter.Emit(ctx, topic, ev.TenantID, payload)
}

func (e *Engine) fail(ev *models.LifecycleEvent, msg string) {
	now := e.now().UTC()
	ev.Status = models.EventStatusFailed
	ev.Error = msg
	ev.CompletedAt = &now
	log.Printf("Event %s failed: %s", ev.ID, msg)
}
