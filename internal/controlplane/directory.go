package controlplane

import (
	"context"
	"fmt"

	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/fentz26/jml/internal/models"
)

// Directory administration. Records are always created in the service tenant.

// CreateUser adds a user to the directory.
func (s *Service) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
	if u.Name == "" || u.Email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidRequest)
	}
	u.TenantID = s.tenantID
	created, err := s.store.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	s.pdr.Record("user.create", map[string]string{"email": u.Email}, "success", "", created.ID)
	return created, nil
}

// ListUsers returns every user of the tenant.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.GetUsers(ctx, s.tenantID)
}

// UpdateUser changes directory fields of a user, for example marking them inactive.
func (s *Service) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) (*models.User, error) {
	u, err := s.store.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil || u.TenantID != s.tenantID {
		return nil, fmt.Errorf("user %s: %w", id, lifecycle.ErrUserNotFound)
	}
	if err := s.store.UpdateUser(ctx, id, upd); err != nil {
		return nil, err
	}
	s.pdr.Record("user.update", upd, "success", "", id)
	return s.store.GetUser(ctx, id)
}

// UserAccess lists the application access a user holds.
func (s *Service) UserAccess(ctx context.Context, userID string) ([]models.UserAppAccess, error) {
	return s.store.GetUserAppAccessList(ctx, userID, s.tenantID)
}

// CreateSaasApp adds an application to the catalog.
func (s *Service) CreateSaasApp(ctx context.Context, app models.SaasApp) (*models.SaasApp, error) {
	if app.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	app.TenantID = s.tenantID
	return s.store.CreateSaasApp(ctx, app)
}

// CreateRoleTemplate adds a role template to the catalog.
func (s *Service) CreateRoleTemplate(ctx context.Context, tpl models.RoleTemplate) (*models.RoleTemplate, error) {
	if tpl.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidRequest)
	}
	tpl.TenantID = s.tenantID
	return s.store.CreateRoleTemplate(ctx, tpl)
}

// GrantAccess records access a user obtained outside the lifecycle engine.
func (s *Service) GrantAccess(ctx context.Context, rec models.UserAppAccess) (*models.UserAppAccess, error) {
	if rec.UserID == "" || rec.AppID == "" {
		return nil, fmt.Errorf("%w: userId and appId are required", ErrInvalidRequest)
	}
	rec.TenantID = s.tenantID
	return s.store.CreateUserAppAccess(ctx, rec)
}

// CreateOAuthToken records a third-party OAuth grant of a user.
func (s *Service) CreateOAuthToken(ctx context.Context, tok models.OAuthToken) (*models.OAuthToken, error) {
	if tok.UserID == "" || tok.AppName == "" {
		return nil, fmt.Errorf("%w: userId and appName are required", ErrInvalidRequest)
	}
	tok.TenantID = s.tenantID
	return s.store.CreateOAuthToken(ctx, tok)
}
