// Package models defines the core domain types for the JML engine.
package models

import "time"

// EventType is the discriminant of a lifecycle event.
type EventType string

const (
	EventTypeJoiner EventType = "joiner"
	EventTypeMover  EventType = "mover"
	EventTypeLeaver EventType = "leaver"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeJoiner, EventTypeMover, EventTypeLeaver:
		return true
	}
	return false
}

// EventStatus represents the current state of a lifecycle event.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusInProgress EventStatus = "in_progress"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
	EventStatusCancelled  EventStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s EventStatus) Terminal() bool {
	return s == EventStatusCompleted || s == EventStatusFailed || s == EventStatusCancelled
}

// TaskStatus represents the current state of a lifecycle task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
	TaskStatusSkipped    TaskStatus = "skipped"
)

// TaskType is the closed set of task kinds the executor knows how to run.
type TaskType string

const (
	TaskProvisionAccess       TaskType = "provision_access"
	TaskRevokeAccess          TaskType = "revoke_access"
	TaskSendWelcomeEmail      TaskType = "send_welcome_email"
	TaskNotifyManager         TaskType = "notify_manager"
	TaskNotifyPreviousManager TaskType = "notify_previous_manager"
	TaskNotifyNewManager      TaskType = "notify_new_manager"
	TaskScheduleAccessReview  TaskType = "schedule_access_review"
	TaskTransferOwnership     TaskType = "transfer_ownership"
	TaskRevokeSSO             TaskType = "revoke_sso"
	TaskRevokeOAuth           TaskType = "revoke_oauth"
	TaskRevokeAppAccess       TaskType = "revoke_app_access"
	TaskReclaimLicenses       TaskType = "reclaim_licenses"
	TaskGenerateAuditReport   TaskType = "generate_audit_report"
)

// LifecycleTask is one atomic unit of work owned by exactly one event.
type LifecycleTask struct {
	ID          string         `json:"id"`
	Type        TaskType       `json:"type"`
	Description string         `json:"description"`
	TargetID    string         `json:"targetId,omitempty"` // app id, or user id for ownership transfer
	Status      TaskStatus     `json:"status"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// LifecycleEvent is one joiner, mover or leaver occurrence and its tasks.
// The subject fields are a snapshot taken when the event was created.
type LifecycleEvent struct {
	ID            string          `json:"id"`
	TenantID      string          `json:"tenantId"`
	EventType     EventType       `json:"eventType"`
	UserID        string          `json:"userId"`
	UserName      string          `json:"userName"`
	UserEmail     string          `json:"userEmail"`
	TriggeredBy   string          `json:"triggeredBy"`
	TriggeredAt   time.Time       `json:"triggeredAt"`
	EffectiveDate time.Time       `json:"effectiveDate"`
	Status        EventStatus     `json:"status"`
	Metadata      Metadata        `json:"metadata"`
	Tasks         []LifecycleTask `json:"tasks"`
	CompletedAt   *time.Time      `json:"completedAt,omitempty"`
	Error         string          `json:"error,omitempty"`
}

// CountTasks returns how many tasks of the given type ended in the given status.
func (e *LifecycleEvent) CountTasks(typ TaskType, status TaskStatus) int {
	n := 0
	for _, t := range e.Tasks {
		if t.Type == typ && t.Status == status {
			n++
		}
	}
	return n
}

// UserStatus is the account state of a directory user.
type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
)

// User is a person in a tenant's directory.
type User struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Department string     `json:"department,omitempty"`
	JobTitle   string     `json:"jobTitle,omitempty"`
	Manager    string     `json:"manager,omitempty"`
	Status     UserStatus `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// UserUpdate holds the fields to change on a user; nil fields are left alone.
type UserUpdate struct {
	Department *string
	JobTitle   *string
	Manager    *string
	Status     *UserStatus
}

// SaasApp is an application in the tenant's catalog.
type SaasApp struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
	Vendor   string `json:"vendor,omitempty"`
}

// UserAppAccess records that a user holds access to an application.
type UserAppAccess struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	UserID     string    `json:"userId"`
	AppID      string    `json:"appId"`
	AppName    string    `json:"appName,omitempty"`
	AccessType string    `json:"accessType"`
	GrantedBy  string    `json:"grantedBy,omitempty"`
	GrantedAt  time.Time `json:"grantedAt"`
}

// RoleTemplateApp is one expected access entry of a role template.
type RoleTemplateApp struct {
	AppID      string `json:"appId"`
	AppName    string `json:"appName"`
	AccessType string `json:"accessType"`
	Required   bool   `json:"required"`
}

// RoleTemplate is a named bundle of expected application access for a role.
type RoleTemplate struct {
	ID         string            `json:"id"`
	TenantID   string            `json:"tenantId"`
	Name       string            `json:"name"`
	Department string            `json:"department,omitempty"`
	Level      string            `json:"level,omitempty"`
	Apps       []RoleTemplateApp `json:"apps"`
}

// OAuthToken is a third-party grant a user has authorised.
type OAuthToken struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenantId"`
	UserID    string    `json:"userId"`
	AppName   string    `json:"appName"`
	Scopes    string    `json:"scopes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Notification is an emitted lifecycle notification kept in the outbox.
type Notification struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenantId"`
	Topic     string         `json:"topic"`
	Payload   map[string]any `json:"payload"`
	Delivered bool           `json:"delivered"`
	CreatedAt time.Time      `json:"createdAt"`
}

// PDREntry represents a Process Decision Record for audit.
type PDREntry struct {
	ID         string    `json:"id"`
	Action     string    `json:"action"`
	InputsHash string    `json:"inputs_hash"`
	Outcome    string    `json:"outcome"`
	EventID    string    `json:"event_id,omitempty"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Lock represents an exclusive lease on a resource.
type Lock struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	HolderID   string    `json:"holder_id"`
	LockType   string    `json:"lock_type"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}
