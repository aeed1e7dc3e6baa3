package lifecycle

import (
	"context"
	"fmt"

	"github.com/fentz26/jml/internal/models"
	"github.com/google/uuid"
)

// appRef names an application a task targets.
type appRef struct {
	ID   string
	Name string
}

func (a appRef) label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.ID
}

func refsFromIDs(ids []string) []appRef {
	out := make([]appRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, appRef{ID: id})
	}
	return out
}

func refsFromTemplate(apps []models.RoleTemplateApp) []appRef {
	out := make([]appRef, 0, len(apps))
	for _, a := range apps {
		out = append(out, appRef{ID: a.AppID, Name: a.AppName})
	}
	return out
}

// Builder derives the ordered task list of an event from its metadata.
type Builder struct {
	resolver *Resolver
	access   AccessStore
}

// NewBuilder creates a builder.
func NewBuilder(r *Resolver, access AccessStore) *Builder {
	return &Builder{resolver: r, access: access}
}

// Build appends the tasks for ev. ev.Tasks must be empty.
func (b *Builder) Build(ctx context.Context, ev *models.LifecycleEvent) error {
	if ev.Metadata == nil || ev.Metadata.EventType() != ev.EventType {
		return ErrMetadataMismatch
	}

	var tasks []models.LifecycleTask
	var err error
	switch md := ev.Metadata.(type) {
	case models.JoinerMetadata:
		tasks = b.buildJoiner(ctx, ev.TenantID, md)
	case models.MoverMetadata:
		tasks = b.buildMover(ctx, ev.TenantID, md)
	case models.LeaverMetadata:
		tasks, err = b.buildLeaver(ctx, ev.TenantID, ev.UserID, md)
	default:
		return ErrMetadataMismatch
	}
	if err != nil {
		return err
	}
	ev.Tasks = append(ev.Tasks, tasks...)
	return nil
}

// buildJoiner provisions the template's required apps when the template
// resolves, otherwise the explicit list. The two are never merged.
func (b *Builder) buildJoiner(ctx context.Context, tenantID string, md models.JoinerMetadata) []models.LifecycleTask {
	apps := refsFromIDs(md.AppsToProvision)
	if tmpl, ok := b.resolver.Resolve(ctx, md.RoleTemplateID, tenantID); ok {
		apps = refsFromTemplate(RequiredApps(tmpl))
	}

	tasks := make([]models.LifecycleTask, 0, len(apps)+2)
	for _, a := range apps {
		tasks = append(tasks, newTask(models.TaskProvisionAccess, "Provision access to "+a.label(), a.ID))
	}
	tasks = append(tasks,
		newTask(models.TaskSendWelcomeEmail, "Send welcome email", ""),
		newTask(models.TaskNotifyManager, "Notify manager "+md.Manager+" of new joiner", ""),
	)
	return tasks
}

// buildMover diffs the two templates when both resolve, otherwise it uses the
// explicit add/remove lists.
func (b *Builder) buildMover(ctx context.Context, tenantID string, md models.MoverMetadata) []models.LifecycleTask {
	toAdd := refsFromIDs(md.AppsToAdd)
	toRemove := refsFromIDs(md.AppsToRemove)

	if md.PreviousRoleTemplateID != "" && md.NewRoleTemplateID != "" {
		oldTmpl, oldOK := b.resolver.Resolve(ctx, md.PreviousRoleTemplateID, tenantID)
		newTmpl, newOK := b.resolver.Resolve(ctx, md.NewRoleTemplateID, tenantID)
		if oldOK && newOK {
			oldApps := refsFromTemplate(RequiredApps(oldTmpl))
			newApps := refsFromTemplate(RequiredApps(newTmpl))
			toAdd = difference(newApps, oldApps)
			toRemove = difference(oldApps, newApps)
		}
	}

	tasks := make([]models.LifecycleTask, 0, len(toAdd)+len(toRemove)+3)
	for _, a := range toAdd {
		tasks = append(tasks, newTask(models.TaskProvisionAccess, "Provision access to "+a.label(), a.ID))
	}
	for _, a := range toRemove {
		tasks = append(tasks, newTask(models.TaskRevokeAccess, "Revoke access to "+a.label(), a.ID))
	}
	if md.PreviousManager != md.NewManager {
		tasks = append(tasks,
			newTask(models.TaskNotifyPreviousManager, "Notify previous manager "+md.PreviousManager, ""),
			newTask(models.TaskNotifyNewManager, "Notify new manager "+md.NewManager, ""),
		)
	}
	tasks = append(tasks, newTask(models.TaskScheduleAccessReview, "Schedule access review", ""))
	return tasks
}

// buildLeaver is the only builder that reads live state: one revocation per
// application the user holds right now.
func (b *Builder) buildLeaver(ctx context.Context, tenantID, userID string, md models.LeaverMetadata) ([]models.LifecycleTask, error) {
	held, err := b.access.GetUserAppAccessList(ctx, userID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list current access: %w", err)
	}

	tasks := make([]models.LifecycleTask, 0, len(held)+5)
	if md.TransferTo != "" {
		tasks = append(tasks, newTask(models.TaskTransferOwnership, "Transfer ownership to "+md.TransferTo, md.TransferTo))
	}
	tasks = append(tasks,
		newTask(models.TaskRevokeSSO, "Revoke SSO sessions", ""),
		newTask(models.TaskRevokeOAuth, "Revoke OAuth tokens", ""),
	)
	for _, a := range held {
		ref := appRef{ID: a.AppID, Name: a.AppName}
		tasks = append(tasks, newTask(models.TaskRevokeAppAccess, "Revoke access to "+ref.label(), a.AppID))
	}
	tasks = append(tasks,
		newTask(models.TaskReclaimLicenses, "Reclaim licenses", ""),
		newTask(models.TaskGenerateAuditReport, "Generate offboarding audit report", ""),
	)
	return tasks, nil
}

// difference returns the apps in a whose id is not in b, deduplicated, in a's order.
func difference(a, b []appRef) []appRef {
	exclude := make(map[string]bool, len(b))
	for _, r := range b {
		exclude[r.ID] = true
	}
	var out []appRef
	for _, r := range a {
		if exclude[r.ID] {
			continue
		}
		exclude[r.ID] = true
		out = append(out, r)
	}
	return out
}

func newTask(typ models.TaskType, description, target string) models.LifecycleTask {
	return models.LifecycleTask{
		ID:          uuid.New().String(),
		Type:        typ,
		Description: description,
		TargetID:    target,
		Status:      models.TaskStatusPending,
	}
}
