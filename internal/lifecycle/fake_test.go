package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fentz26/jml/internal/models"
)

const testTenant = "tenant-1"

// fakeDirectory is an in-memory Directory for engine tests.
type fakeDirectory struct {
	mu        sync.Mutex
	users     map[string]*models.User
	apps      map[string]*models.SaasApp
	templates map[string]*models.RoleTemplate
	access    map[string][]models.UserAppAccess // by user id
	tokens    map[string]int

	templateErr error
	grantErr    map[string]error // by app id
	updates     []models.UserUpdate
	nextID      int
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users:     map[string]*models.User{},
		apps:      map[string]*models.SaasApp{},
		templates: map[string]*models.RoleTemplate{},
		access:    map[string][]models.UserAppAccess{},
		tokens:    map[string]int{},
		grantErr:  map[string]error{},
	}
}

func (f *fakeDirectory) addUser(id string, status models.UserStatus, created time.Time) *models.User {
	u := &models.User{
		ID:        id,
		TenantID:  testTenant,
		Name:      "User " + id,
		Email:     id + "@example.com",
		Manager:   "boss",
		Status:    status,
		CreatedAt: created,
		UpdatedAt: created,
	}
	f.users[id] = u
	return u
}

func (f *fakeDirectory) addApps(ids ...string) {
	for _, id := range ids {
		f.apps[id] = &models.SaasApp{ID: id, TenantID: testTenant, Name: "App " + id}
	}
}

func (f *fakeDirectory) addTemplate(id string, required ...string) {
	t := &models.RoleTemplate{ID: id, TenantID: testTenant, Name: id}
	for _, a := range required {
		t.Apps = append(t.Apps, models.RoleTemplateApp{AppID: a, AppName: "App " + a, AccessType: "user", Required: true})
	}
	// An optional entry that must never be provisioned.
	t.Apps = append(t.Apps, models.RoleTemplateApp{AppID: "optional-" + id, Required: false})
	f.templates[id] = t
}

func (f *fakeDirectory) grant(userID string, appIDs ...string) {
	for _, a := range appIDs {
		f.access[userID] = append(f.access[userID], models.UserAppAccess{
			ID: "acc-" + a, TenantID: testTenant, UserID: userID, AppID: a, AppName: "App " + a,
		})
	}
}

func (f *fakeDirectory) heldApps(userID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, a := range f.access[userID] {
		out = append(out, a.AppID)
	}
	return out
}

func (f *fakeDirectory) GetUser(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeDirectory) GetUsers(ctx context.Context, tenantID string) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.User
	for _, u := range f.users {
		if u.TenantID == tenantID {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeDirectory) UpdateUser(ctx context.Context, id string, upd models.UserUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return errors.New("no such user")
	}
	f.updates = append(f.updates, upd)
	if upd.Department != nil {
		u.Department = *upd.Department
	}
	if upd.JobTitle != nil {
		u.JobTitle = *upd.JobTitle
	}
	if upd.Manager != nil {
		u.Manager = *upd.Manager
	}
	if upd.Status != nil {
		u.Status = *upd.Status
	}
	return nil
}

func (f *fakeDirectory) CreateUserAppAccess(ctx context.Context, rec models.UserAppAccess) (*models.UserAppAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.grantErr[rec.AppID]; err != nil {
		return nil, err
	}
	f.nextID++
	rec.ID = fmt.Sprintf("acc-%d", f.nextID)
	f.access[rec.UserID] = append(f.access[rec.UserID], rec)
	return &rec, nil
}

func (f *fakeDirectory) DeleteUserAppAccess(ctx context.Context, userID, appID, tenantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.access[userID][:0]
	for _, a := range f.access[userID] {
		if a.AppID != appID {
			kept = append(kept, a)
		}
	}
	f.access[userID] = kept
	return nil
}

func (f *fakeDirectory) GetUserAppAccessList(ctx context.Context, userID, tenantID string) ([]models.UserAppAccess, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.UserAppAccess(nil), f.access[userID]...), nil
}

func (f *fakeDirectory) DeleteUserOAuthTokens(ctx context.Context, userID, tenantID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.tokens[userID]
	delete(f.tokens, userID)
	return n, nil
}

func (f *fakeDirectory) GetRoleTemplate(ctx context.Context, templateID, tenantID string) (*models.RoleTemplate, error) {
	if f.templateErr != nil {
		return nil, f.templateErr
	}
	return f.templates[templateID], nil
}

func (f *fakeDirectory) GetSaasApp(ctx context.Context, appID, tenantID string) (*models.SaasApp, error) {
	return f.apps[appID], nil
}

type emitted struct {
	topic   string
	payload map[string]any
}

// recordingEmitter captures emitted notifications.
type recordingEmitter struct {
	mu   sync.Mutex
	sent []emitted
}

func (r *recordingEmitter) Emit(ctx context.Context, topic, tenantID string, payload map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, emitted{topic: topic, payload: payload})
}

func (r *recordingEmitter) byTopic(topic string) []emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []emitted
	for _, e := range r.sent {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func taskTypes(tasks []models.LifecycleTask) []models.TaskType {
	out := make([]models.TaskType, len(tasks))
	for i, t := range tasks {
		out[i] = t.Type
	}
	return out
}

func targets(tasks []models.LifecycleTask, typ models.TaskType) []string {
	var out []string
	for _, t := range tasks {
		if t.Type == typ {
			out = append(out, t.TargetID)
		}
	}
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
