package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fentz26/jml/internal/models"
)

// DefaultAccessReviewHorizon is how far ahead a mover's access review is scheduled.
const DefaultAccessReviewHorizon = 30 * 24 * time.Hour

type handlerFunc func(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error)

// Executor runs one task at a time, mutating it in place.
type Executor struct {
	dir           Directory
	emitter       Emitter
	reviewHorizon time.Duration
	now           func() time.Time
	handlers      map[models.TaskType]handlerFunc
}

// NewExecutor creates an executor. A zero horizon uses DefaultAccessReviewHorizon.
func NewExecutor(dir Directory, emitter Emitter, reviewHorizon time.Duration, now func() time.Time) *Executor {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	if reviewHorizon <= 0 {
		reviewHorizon = DefaultAccessReviewHorizon
	}
	if now == nil {
		now = time.Now
	}
	x := &Executor{dir: dir, emitter: emitter, reviewHorizon: reviewHorizon, now: now}
	x.handlers = map[models.TaskType]handlerFunc{
		models.TaskProvisionAccess:       x.provisionAccess,
		models.TaskRevokeAccess:          x.revokeAccess,
		models.TaskRevokeAppAccess:       x.revokeAccess,
		models.TaskSendWelcomeEmail:      x.sendWelcomeEmail,
		models.TaskNotifyManager:         x.notifyManager,
		models.TaskNotifyPreviousManager: x.notifyManager,
		models.TaskNotifyNewManager:      x.notifyManager,
		models.TaskScheduleAccessReview:  x.scheduleAccessReview,
		models.TaskTransferOwnership:     x.transferOwnership,
		models.TaskRevokeSSO:             x.revokeSSO,
		models.TaskRevokeOAuth:           x.revokeOAuth,
		models.TaskReclaimLicenses:       x.reclaimLicenses,
		models.TaskGenerateAuditReport:   x.generateAuditReport,
	}
	return x
}

// Execute runs task on behalf of ev. Unknown task types are skipped. A
// handler error marks the task failed and is returned to the caller.
func (x *Executor) Execute(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) error {
	started := x.now().UTC()
	task.Status = models.TaskStatusInProgress
	task.StartedAt = &started

	h, ok := x.handlers[task.Type]
	if !ok {
		log.Printf("Event %s: skipping task %s with unknown type %q", ev.ID, task.ID, task.Type)
		x.finish(task, models.TaskStatusSkipped, map[string]any{"reason": "unsupported task type"})
		return nil
	}

	result, err := h(ctx, task, ev)
	switch {
	case errors.Is(err, errSkipTask):
		x.finish(task, models.TaskStatusSkipped, result)
		return nil
	case err != nil:
		task.Error = err.Error()
		x.finish(task, models.TaskStatusFailed, result)
		log.Printf("Event %s: task %s (%s) failed: %v", ev.ID, task.ID, task.Type, err)
		return err
	}
	x.finish(task, models.TaskStatusCompleted, result)
	return nil
}

func (x *Executor) finish(task *models.LifecycleTask, status models.TaskStatus, result map[string]any) {
	done := x.now().UTC()
	task.Status = status
	task.CompletedAt = &done
	if result != nil {
		task.Result = result
	}
}

// --- Handlers ---

func (x *Executor) provisionAccess(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	app, err := x.dir.GetSaasApp(ctx, task.TargetID, ev.TenantID)
	if err != nil || app == nil {
		if err != nil {
			log.Printf("Event %s: app %s lookup failed: %v", ev.ID, task.TargetID, err)
		}
		log.Printf("Event %s: app %s not found, skipping provisioning", ev.ID, task.TargetID)
		return map[string]any{
			"appId":   task.TargetID,
			"warning": "application not found in catalog",
		}, errSkipTask
	}

	grant, err := x.dir.CreateUserAppAccess(ctx, models.UserAppAccess{
		TenantID:   ev.TenantID,
		UserID:     ev.UserID,
		AppID:      app.ID,
		AppName:    app.Name,
		AccessType: "user",
		GrantedBy:  ev.TriggeredBy,
		GrantedAt:  x.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("grant access to %s: %w", app.Name, err)
	}
	return map[string]any{
		"appId":    app.ID,
		"appName":  app.Name,
		"accessId": grant.ID,
	}, nil
}

func (x *Executor) revokeAccess(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	if err := x.dir.DeleteUserAppAccess(ctx, ev.UserID, task.TargetID, ev.TenantID); err != nil {
		return nil, fmt.Errorf("revoke access to %s: %w", task.TargetID, err)
	}
	return map[string]any{"appId": task.TargetID, "revoked": true}, nil
}

func (x *Executor) sendWelcomeEmail(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	payload := map[string]any{
		"userId":    ev.UserID,
		"userName":  ev.UserName,
		"userEmail": ev.UserEmail,
		"startDate": ev.EffectiveDate.Format(time.RFC3339),
	}
	x.emitter.Emit(ctx, TopicWelcomeEmail, ev.TenantID, payload)
	return map[string]any{"recipient": ev.UserEmail, "sent": true}, nil
}

func (x *Executor) notifyManager(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	var recipient string
	switch md := ev.Metadata.(type) {
	case models.JoinerMetadata:
		recipient = md.Manager
	case models.MoverMetadata:
		if task.Type == models.TaskNotifyPreviousManager {
			recipient = md.PreviousManager
		} else {
			recipient = md.NewManager
		}
	}
	if recipient == "" {
		return map[string]any{"reason": "no manager on record"}, errSkipTask
	}

	x.emitter.Emit(ctx, TopicManagerNotification, ev.TenantID, map[string]any{
		"recipient": recipient,
		"kind":      string(task.Type),
		"eventType": string(ev.EventType),
		"userId":    ev.UserID,
		"userName":  ev.UserName,
	})
	return map[string]any{"recipient": recipient, "sent": true}, nil
}

func (x *Executor) scheduleAccessReview(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	due := x.now().UTC().Add(x.reviewHorizon)
	x.emitter.Emit(ctx, TopicAccessReviewScheduled, ev.TenantID, map[string]any{
		"userId":      ev.UserID,
		"userName":    ev.UserName,
		"reviewDueAt": due.Format(time.RFC3339),
	})
	return map[string]any{"reviewDueAt": due.Format(time.RFC3339)}, nil
}

func (x *Executor) transferOwnership(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	target, err := x.dir.GetUser(ctx, task.TargetID)
	if err != nil {
		return nil, fmt.Errorf("load transfer target %s: %w", task.TargetID, err)
	}
	if target == nil {
		return nil, fmt.Errorf("transfer target %s: %w", task.TargetID, ErrUserNotFound)
	}
	return map[string]any{
		"from":      ev.UserID,
		"to":        target.ID,
		"toName":    target.Name,
		"toEmail":   target.Email,
		"completed": true,
	}, nil
}

func (x *Executor) revokeSSO(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	x.emitter.Emit(ctx, TopicSSORevocation, ev.TenantID, map[string]any{
		"userId":    ev.UserID,
		"userEmail": ev.UserEmail,
	})
	return map[string]any{"userEmail": ev.UserEmail, "ssoRevoked": true}, nil
}

func (x *Executor) revokeOAuth(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	n, err := x.dir.DeleteUserOAuthTokens(ctx, ev.UserID, ev.TenantID)
	if err != nil {
		return nil, fmt.Errorf("revoke oauth tokens: %w", err)
	}
	return map[string]any{"tokensRevoked": n}, nil
}

func (x *Executor) reclaimLicenses(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	remaining, err := x.dir.GetUserAppAccessList(ctx, ev.UserID, ev.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list remaining access: %w", err)
	}
	return map[string]any{
		"licensesReclaimed": ev.CountTasks(models.TaskRevokeAppAccess, models.TaskStatusCompleted),
		"remainingAccess":   len(remaining),
	}, nil
}

func (x *Executor) generateAuditReport(ctx context.Context, task *models.LifecycleTask, ev *models.LifecycleEvent) (map[string]any, error) {
	report := map[string]any{
		"eventId":     ev.ID,
		"userId":      ev.UserID,
		"userName":    ev.UserName,
		"userEmail":   ev.UserEmail,
		"triggeredBy": ev.TriggeredBy,
		"generatedAt": x.now().UTC().Format(time.RFC3339),
	}
	if md, ok := ev.Metadata.(models.LeaverMetadata); ok {
		report["department"] = md.Department
		report["terminationType"] = string(md.TerminationType)
		report["lastWorkingDay"] = md.LastWorkingDay.Format(time.RFC3339)
		report["requestedRevocations"] = md.AppsToRevoke
	}
	completed := 0
	for _, t := range ev.Tasks {
		if t.Status == models.TaskStatusCompleted {
			completed++
		}
	}
	report["tasksCompleted"] = completed
	report["tasksTotal"] = len(ev.Tasks)
	return report, nil
}
