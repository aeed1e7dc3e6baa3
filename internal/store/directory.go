package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/jml/internal/models"
	"github.com/google/uuid"
)

// --- User Operations ---

// CreateUser inserts a directory user. Missing ID, status and timestamps are filled in.
func (s *Store) CreateUser(ctx context.Context, u models.User) (*models.User, error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Status == "" {
		u.Status = models.UserStatusActive
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, tenant_id, name, email, department, job_title, manager, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenantID, u.Name, u.Email, u.Department, u.JobTitle, u.Manager, u.Status, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

const userColumns = `id, tenant_id, name, email, department, job_title, manager, status, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.TenantID, &u.Name, &u.Email, &u.Department, &u.JobTitle, &u.Manager, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetUser retrieves a user by ID. Returns nil, nil if not found.
func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// GetUsers lists all users of a tenant.
func (s *Store) GetUsers(ctx context.Context, tenantID string) ([]models.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE tenant_id = ? ORDER BY created_at ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// UpdateUser applies the non-nil fields of upd and bumps updated_at.
func (s *Store) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}
	if upd.Department != nil {
		sets = append(sets, "department = ?")
		args = append(args, *upd.Department)
	}
	if upd.JobTitle != nil {
		sets = append(sets, "job_title = ?")
		args = append(args, *upd.JobTitle)
	}
	if upd.Manager != nil {
		sets = append(sets, "manager = ?")
		args = append(args, *upd.Manager)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	args = append(args, id)

	result, err := s.db.ExecContext(ctx, `UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// --- Catalog Operations ---

// CreateSaasApp adds an application to the tenant catalog.
func (s *Store) CreateSaasApp(ctx context.Context, app models.SaasApp) (*models.SaasApp, error) {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO saas_apps (id, tenant_id, name, vendor) VALUES (?, ?, ?, ?)`,
		app.ID, app.TenantID, app.Name, app.Vendor,
	)
	if err != nil {
		return nil, fmt.Errorf("insert saas app: %w", err)
	}
	return &app, nil
}

// GetSaasApp retrieves an application. Returns nil, nil if not found.
func (s *Store) GetSaasApp(ctx context.Context, appID, tenantID string) (*models.SaasApp, error) {
	app := &models.SaasApp{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, vendor FROM saas_apps WHERE id = ? AND tenant_id = ?`,
		appID, tenantID,
	).Scan(&app.ID, &app.TenantID, &app.Name, &app.Vendor)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query saas app: %w", err)
	}
	return app, nil
}

// CreateRoleTemplate stores a role template with its app list.
func (s *Store) CreateRoleTemplate(ctx context.Context, tpl models.RoleTemplate) (*models.RoleTemplate, error) {
	if tpl.ID == "" {
		tpl.ID = uuid.New().String()
	}
	if tpl.Apps == nil {
		tpl.Apps = []models.RoleTemplateApp{}
	}
	apps, err := json.Marshal(tpl.Apps)
	if err != nil {
		return nil, fmt.Errorf("marshal template apps: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO role_templates (id, tenant_id, name, department, level, apps) VALUES (?, ?, ?, ?, ?, ?)`,
		tpl.ID, tpl.TenantID, tpl.Name, tpl.Department, tpl.Level, string(apps),
	)
	if err != nil {
		return nil, fmt.Errorf("insert role template: %w", err)
	}
	return &tpl, nil
}

// GetRoleTemplate retrieves a role template. Returns nil, nil if not found.
func (s *Store) GetRoleTemplate(ctx context.Context, templateID, tenantID string) (*models.RoleTemplate, error) {
	tpl := &models.RoleTemplate{}
	var apps string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, department, level, apps FROM role_templates WHERE id = ? AND tenant_id = ?`,
		templateID, tenantID,
	).Scan(&tpl.ID, &tpl.TenantID, &tpl.Name, &tpl.Department, &tpl.Level, &apps)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query role template: %w", err)
	}
	if err := json.Unmarshal([]byte(apps), &tpl.Apps); err != nil {
		return nil, fmt.Errorf("decode template apps: %w", err)
	}
	return tpl, nil
}

// --- Access Operations ---

// CreateUserAppAccess records an access grant.
func (s *Store) CreateUserAppAccess(ctx context.Context, rec models.UserAppAccess) (*models.UserAppAccess, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.AccessType == "" {
		rec.AccessType = "user"
	}
	if rec.GrantedAt.IsZero() {
		rec.GrantedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_app_access (id, tenant_id, user_id, app_id, app_name, access_type, granted_by, granted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.TenantID, rec.UserID, rec.AppID, rec.AppName, rec.AccessType, rec.GrantedBy, rec.GrantedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert access: %w", err)
	}
	return &rec, nil
}

// DeleteUserAppAccess removes every grant of the app to the user.
// Removing access that does not exist is not an error.
func (s *Store) DeleteUserAppAccess(ctx context.Context, userID, appID, tenantID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_app_access WHERE user_id = ? AND app_id = ? AND tenant_id = ?`,
		userID, appID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("delete access: %w", err)
	}
	return nil
}

// GetUserAppAccessList lists the user's current grants, oldest first.
func (s *Store) GetUserAppAccessList(ctx context.Context, userID, tenantID string) ([]models.UserAppAccess, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, user_id, app_id, app_name, access_type, granted_by, granted_at
		 FROM user_app_access WHERE user_id = ? AND tenant_id = ? ORDER BY granted_at ASC`,
		userID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query access: %w", err)
	}
	defer rows.Close()

	var list []models.UserAppAccess
	for rows.Next() {
		var a models.UserAppAccess
		if err := rows.Scan(&a.ID, &a.TenantID, &a.UserID, &a.AppID, &a.AppName, &a.AccessType, &a.GrantedBy, &a.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan access: %w", err)
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// CreateOAuthToken records a third-party OAuth grant.
func (s *Store) CreateOAuthToken(ctx context.Context, tok models.OAuthToken) (*models.OAuthToken, error) {
	if tok.ID == "" {
		tok.ID = uuid.New().String()
	}
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO oauth_tokens (id, tenant_id, user_id, app_name, scopes, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		tok.ID, tok.TenantID, tok.UserID, tok.AppName, tok.Scopes, tok.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert oauth token: %w", err)
	}
	return &tok, nil
}

// DeleteUserOAuthTokens removes all OAuth grants of the user and returns the count.
func (s *Store) DeleteUserOAuthTokens(ctx context.Context, userID, tenantID string) (int, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE user_id = ? AND tenant_id = ?`,
		userID, tenantID,
	)
	if err != nil {
		return 0, fmt.Errorf("delete oauth tokens: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted tokens: %w", err)
	}
	return int(n), nil
}
