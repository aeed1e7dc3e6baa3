// Package lifecycle turns joiner, mover and leaver occurrences into ordered,
// auditable task lists and executes them.
//
// The engine owns no storage. Everything it reads or writes goes through the
// collaborator interfaces below; "absent" is reported as a nil record with a
// nil error.
package lifecycle

import (
	"context"

	"github.com/fentz26/jml/internal/models"
)

// UserDirectory reads and updates directory users.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUsers(ctx context.Context, tenantID string) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, upd models.UserUpdate) error
}

// AccessStore grants and revokes application access.
type AccessStore interface {
	CreateUserAppAccess(ctx context.Context, rec models.UserAppAccess) (*models.UserAppAccess, error)
	DeleteUserAppAccess(ctx context.Context, userID, appID, tenantID string) error
	GetUserAppAccessList(ctx context.Context, userID, tenantID string) ([]models.UserAppAccess, error)
	// DeleteUserOAuthTokens removes every OAuth grant of the user and
	// returns how many were removed.
	DeleteUserOAuthTokens(ctx context.Context, userID, tenantID string) (int, error)
}

// Catalog looks up role templates and applications.
type Catalog interface {
	GetRoleTemplate(ctx context.Context, templateID, tenantID string) (*models.RoleTemplate, error)
	GetSaasApp(ctx context.Context, appID, tenantID string) (*models.SaasApp, error)
}

// Directory is everything the engine needs from the surrounding system.
type Directory interface {
	UserDirectory
	AccessStore
	Catalog
}

// Emitter publishes notifications for downstream automations. Delivery is
// fire-and-forget: implementations log failures and never report them back.
type Emitter interface {
	Emit(ctx context.Context, topic, tenantID string, payload map[string]any)
}

// History answers whether a user already has an event of a given type.
type History interface {
	HasEvent(ctx context.Context, tenantID, userID string, eventType models.EventType) (bool, error)
}

// Notification topics.
const (
	TopicJoinerCompleted       = "jml.joiner_completed"
	TopicMoverCompleted        = "jml.mover_completed"
	TopicLeaverCompleted       = "jml.leaver_completed"
	TopicWelcomeEmail          = "jml.welcome_email"
	TopicManagerNotification   = "jml.manager_notification"
	TopicAccessReviewScheduled = "jml.access_review_scheduled"
	TopicSSORevocation         = "jml.sso_revocation_requested"
)

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, string, map[string]any) {}
