package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/jml/internal/lifecycle"
	"github.com/fentz26/jml/internal/models"
)

var (
	_ lifecycle.Directory = (*Store)(nil)
	_ lifecycle.History   = (*Store)(nil)
)

const tenant = "acme"

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	// Verify file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestUserCRUD(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	u, err := s.CreateUser(ctx, models.User{TenantID: tenant, Name: "Ada", Email: "ada@acme.io", Department: "Eng"})
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if u.ID == "" || u.Status != models.UserStatusActive {
		t.Errorf("Expected generated ID and active status, got %+v", u)
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got.Email != "ada@acme.io" || got.Department != "Eng" {
		t.Errorf("Unexpected user: %+v", got)
	}

	missing, err := s.GetUser(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("Expected nil, nil for unknown user, got %v, %v", missing, err)
	}

	dept := "Sales"
	inactive := models.UserStatusInactive
	if err := s.UpdateUser(ctx, u.ID, models.UserUpdate{Department: &dept, Status: &inactive}); err != nil {
		t.Fatalf("UpdateUser failed: %v", err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if got.Department != "Sales" || got.Status != models.UserStatusInactive {
		t.Errorf("Update not applied: %+v", got)
	}
	if got.JobTitle != "" {
		t.Errorf("Nil field should be untouched, got job title %q", got.JobTitle)
	}

	if err := s.UpdateUser(ctx, "nope", models.UserUpdate{Department: &dept}); err == nil {
		t.Error("Expected error updating unknown user")
	}

	if _, err := s.CreateUser(ctx, models.User{TenantID: "other", Name: "Bob", Email: "bob@other.io"}); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	users, err := s.GetUsers(ctx, tenant)
	if err != nil {
		t.Fatalf("GetUsers failed: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("Expected 1 user in tenant, got %d", len(users))
	}
}

func TestCatalog(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.CreateSaasApp(ctx, models.SaasApp{ID: "slack", TenantID: tenant, Name: "Slack", Vendor: "Salesforce"}); err != nil {
		t.Fatalf("CreateSaasApp failed: %v", err)
	}
	app, err := s.GetSaasApp(ctx, "slack", tenant)
	if err != nil || app == nil || app.Name != "Slack" {
		t.Fatalf("GetSaasApp returned %+v, %v", app, err)
	}
	if other, _ := s.GetSaasApp(ctx, "slack", "other"); other != nil {
		t.Error("Apps must not leak across tenants")
	}

	_, err = s.CreateRoleTemplate(ctx, models.RoleTemplate{
		ID: "eng-l1", TenantID: tenant, Name: "Engineer",
		Apps: []models.RoleTemplateApp{
			{AppID: "slack", AppName: "Slack", AccessType: "user", Required: true},
			{AppID: "figma", AppName: "Figma", AccessType: "viewer"},
		},
	})
	if err != nil {
		t.Fatalf("CreateRoleTemplate failed: %v", err)
	}
	tpl, err := s.GetRoleTemplate(ctx, "eng-l1", tenant)
	if err != nil {
		t.Fatalf("GetRoleTemplate failed: %v", err)
	}
	if len(tpl.Apps) != 2 || !tpl.Apps[0].Required || tpl.Apps[1].Required {
		t.Errorf("Template apps not round-tripped: %+v", tpl.Apps)
	}
	if missing, err := s.GetRoleTemplate(ctx, "nope", tenant); err != nil || missing != nil {
		t.Errorf("Expected nil, nil for unknown template, got %v, %v", missing, err)
	}
}

func TestAccessAndTokens(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	for _, app := range []string{"slack", "github"} {
		rec, err := s.CreateUserAppAccess(ctx, models.UserAppAccess{TenantID: tenant, UserID: "u1", AppID: app, GrantedBy: "admin"})
		if err != nil {
			t.Fatalf("CreateUserAppAccess failed: %v", err)
		}
		if rec.AccessType != "user" {
			t.Errorf("Expected default access type user, got %s", rec.AccessType)
		}
	}

	list, err := s.GetUserAppAccessList(ctx, "u1", tenant)
	if err != nil {
		t.Fatalf("GetUserAppAccessList failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 grants, got %d", len(list))
	}

	if err := s.DeleteUserAppAccess(ctx, "u1", "slack", tenant); err != nil {
		t.Fatalf("DeleteUserAppAccess failed: %v", err)
	}
	if err := s.DeleteUserAppAccess(ctx, "u1", "slack", tenant); err != nil {
		t.Errorf("Deleting absent access should not fail: %v", err)
	}
	list, _ = s.GetUserAppAccessList(ctx, "u1", tenant)
	if len(list) != 1 || list[0].AppID != "github" {
		t.Errorf("Expected only github left, got %+v", list)
	}

	for _, app := range []string{"Zoom", "Notion", "Miro"} {
		if _, err := s.CreateOAuthToken(ctx, models.OAuthToken{TenantID: tenant, UserID: "u1", AppName: app}); err != nil {
			t.Fatalf("CreateOAuthToken failed: %v", err)
		}
	}
	n, err := s.DeleteUserOAuthTokens(ctx, "u1", tenant)
	if err != nil {
		t.Fatalf("DeleteUserOAuthTokens failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 tokens removed, got %d", n)
	}
	if n, _ := s.DeleteUserOAuthTokens(ctx, "u1", tenant); n != 0 {
		t.Errorf("Expected 0 on second delete, got %d", n)
	}
}

func TestEventPersistence(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	ev := &models.LifecycleEvent{
		ID:            "ev-1",
		TenantID:      tenant,
		EventType:     models.EventTypeLeaver,
		UserID:        "u1",
		UserName:      "Ada",
		UserEmail:     "ada@acme.io",
		TriggeredBy:   "hr",
		TriggeredAt:   now,
		EffectiveDate: now.Add(48 * time.Hour),
		Status:        models.EventStatusPending,
		Metadata: models.LeaverMetadata{
			LastWorkingDay:  now.Add(48 * time.Hour),
			TerminationType: models.TerminationRetirement,
			TransferTo:      "u2",
		},
		Tasks: []models.LifecycleTask{
			{ID: "t1", Type: models.TaskRevokeSSO, Description: "Revoke SSO", Status: models.TaskStatusPending},
		},
	}
	if err := s.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}

	got, err := s.GetEvent(ctx, "ev-1")
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	md, ok := got.Metadata.(models.LeaverMetadata)
	if !ok {
		t.Fatalf("Expected LeaverMetadata, got %T", got.Metadata)
	}
	if md.TransferTo != "u2" || md.TerminationType != models.TerminationRetirement {
		t.Errorf("Metadata not round-tripped: %+v", md)
	}
	if len(got.Tasks) != 1 || got.Tasks[0].Type != models.TaskRevokeSSO {
		t.Errorf("Tasks not round-tripped: %+v", got.Tasks)
	}
	if got.CompletedAt != nil {
		t.Error("Expected nil completedAt")
	}

	// Upsert
	done := now.Add(time.Hour)
	ev.Status = models.EventStatusCompleted
	ev.CompletedAt = &done
	ev.Tasks[0].Status = models.TaskStatusCompleted
	if err := s.SaveEvent(ctx, ev); err != nil {
		t.Fatalf("SaveEvent update failed: %v", err)
	}
	got, _ = s.GetEvent(ctx, "ev-1")
	if got.Status != models.EventStatusCompleted || got.CompletedAt == nil || got.Tasks[0].Status != models.TaskStatusCompleted {
		t.Errorf("Update not persisted: %+v", got)
	}

	events, err := s.ListEvents(ctx, EventFilter{TenantID: tenant})
	if err != nil {
		t.Fatalf("ListEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 event after upsert, got %d", len(events))
	}

	if missing, err := s.GetEvent(ctx, "nope"); err != nil || missing != nil {
		t.Errorf("Expected nil, nil for unknown event, got %v, %v", missing, err)
	}
}

func TestListEventsFilter(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	saveEvent(t, s, "j1", models.EventTypeJoiner, models.EventStatusCompleted, base)
	saveEvent(t, s, "m1", models.EventTypeMover, models.EventStatusFailed, base.Add(time.Minute))
	saveEvent(t, s, "l1", models.EventTypeLeaver, models.EventStatusPending, base.Add(2*time.Minute))

	all, _ := s.ListEvents(ctx, EventFilter{})
	if len(all) != 3 || all[0].ID != "l1" {
		t.Errorf("Expected 3 events newest first, got %d", len(all))
	}

	joiners, _ := s.ListEvents(ctx, EventFilter{EventType: models.EventTypeJoiner})
	if len(joiners) != 1 || joiners[0].ID != "j1" {
		t.Errorf("Expected only j1, got %+v", joiners)
	}

	failed, _ := s.ListEvents(ctx, EventFilter{Status: models.EventStatusFailed})
	if len(failed) != 1 || failed[0].ID != "m1" {
		t.Errorf("Expected only m1, got %+v", failed)
	}

	limited, _ := s.ListEvents(ctx, EventFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("Expected 2 events with limit, got %d", len(limited))
	}
}

func TestListDueEvents(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	saveEvent(t, s, "past", models.EventTypeLeaver, models.EventStatusPending, now.Add(-time.Hour))
	saveEvent(t, s, "older", models.EventTypeLeaver, models.EventStatusPending, now.Add(-48*time.Hour))
	saveEvent(t, s, "future", models.EventTypeLeaver, models.EventStatusPending, now.Add(24*time.Hour))
	saveEvent(t, s, "done", models.EventTypeLeaver, models.EventStatusCompleted, now.Add(-time.Hour))

	due, err := s.ListDueEvents(ctx, now)
	if err != nil {
		t.Fatalf("ListDueEvents failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("Expected 2 due events, got %d", len(due))
	}
	if due[0].ID != "older" || due[1].ID != "past" {
		t.Errorf("Expected [older past], got [%s %s]", due[0].ID, due[1].ID)
	}
}

func TestHasEvent(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	now := time.Now().UTC()
	saveEvent(t, s, "l1", models.EventTypeLeaver, models.EventStatusCompleted, now)

	has, err := s.HasEvent(ctx, tenant, "user-l1", models.EventTypeLeaver)
	if err != nil || !has {
		t.Errorf("Expected leaver history, got %v, %v", has, err)
	}
	if has, _ := s.HasEvent(ctx, tenant, "user-l1", models.EventTypeJoiner); has {
		t.Error("Expected no joiner history")
	}

	saveEvent(t, s, "j1", models.EventTypeJoiner, models.EventStatusCancelled, now)
	if has, _ := s.HasEvent(ctx, tenant, "user-j1", models.EventTypeJoiner); has {
		t.Error("Cancelled events should not count as history")
	}
}

func TestNotifications(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	n1, err := s.CreateNotification(ctx, tenant, "jml.joiner_completed", map[string]any{"userId": "u1", "appsProvisioned": 2})
	if err != nil {
		t.Fatalf("CreateNotification failed: %v", err)
	}
	if _, err := s.CreateNotification(ctx, tenant, "jml.welcome_email", nil); err != nil {
		t.Fatalf("CreateNotification failed: %v", err)
	}

	if err := s.MarkNotificationDelivered(ctx, n1.ID); err != nil {
		t.Fatalf("MarkNotificationDelivered failed: %v", err)
	}
	if err := s.MarkNotificationDelivered(ctx, "nope"); err == nil {
		t.Error("Expected error for unknown notification")
	}

	undelivered := false
	pending, err := s.ListNotifications(ctx, NotificationFilter{TenantID: tenant, Delivered: &undelivered})
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Topic != "jml.welcome_email" {
		t.Errorf("Expected only welcome email pending, got %+v", pending)
	}

	byTopic, _ := s.ListNotifications(ctx, NotificationFilter{Topic: "jml.joiner_completed"})
	if len(byTopic) != 1 || !byTopic[0].Delivered {
		t.Fatalf("Expected one delivered joiner notification, got %+v", byTopic)
	}
	// JSON numbers come back as float64
	if byTopic[0].Payload["appsProvisioned"] != float64(2) {
		t.Errorf("Payload not round-tripped: %v", byTopic[0].Payload)
	}
}

func TestPDR(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	if _, err := s.WritePDR("event.joiner", "abc123", "completed", "ev-1", "3 tasks"); err != nil {
		t.Fatalf("WritePDR failed: %v", err)
	}
	if _, err := s.WritePDR("event.cancel", "def456", "cancelled", "ev-1", ""); err != nil {
		t.Fatalf("WritePDR failed: %v", err)
	}

	entries, err := s.ListPDR(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("ListPDR failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Action != "event.joiner" || entries[0].InputsHash != "abc123" {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
}

func TestAcquireLock_Race(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	resourceID := "user:u1"

	lock1, err := s.AcquireLock(ctx, resourceID, "holder-1", "exclusive", 5*time.Minute)
	if err != nil {
		t.Fatalf("First lock acquisition failed: %v", err)
	}
	if lock1 == nil {
		t.Fatal("Expected first lock to be created")
	}

	// Second attempt should fail with ErrResourceLocked
	_, err = s.AcquireLock(ctx, resourceID, "holder-2", "exclusive", 5*time.Minute)
	if err != ErrResourceLocked {
		t.Errorf("Expected ErrResourceLocked for second lock, got: %v", err)
	}

	lock, err := s.GetLock(ctx, resourceID)
	if err != nil {
		t.Fatalf("GetLock failed: %v", err)
	}
	if lock == nil || lock.HolderID != "holder-1" {
		t.Errorf("Expected lock held by holder-1, got %+v", lock)
	}
}

func TestAcquireLock_ConcurrentAttempts(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	resourceID := "user:concurrent"
	numAttempts := 5
	successCount := 0
	failCount := 0

	// SQLite serializes writes, so sequential attempts exercise the same path
	for i := 0; i < numAttempts; i++ {
		_, err := s.AcquireLock(ctx, resourceID, fmt.Sprintf("holder-%d", i), "exclusive", 5*time.Minute)
		if err == nil {
			successCount++
		} else if err == ErrResourceLocked {
			failCount++
		} else {
			t.Errorf("Unexpected error: %v", err)
		}
	}

	if successCount != 1 {
		t.Errorf("Expected exactly 1 successful lock, got %d", successCount)
	}
	if failCount != numAttempts-1 {
		t.Errorf("Expected %d failed locks, got %d", numAttempts-1, failCount)
	}
}

func TestAcquireLock_ExpiredCleanup(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	if _, err := s.AcquireLock(ctx, "user:u1", "holder-1", "exclusive", time.Second); err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}

	// Wait for lock to expire
	time.Sleep(2 * time.Second)

	lock2, err := s.AcquireLock(ctx, "user:u1", "holder-2", "exclusive", 5*time.Minute)
	if err != nil {
		t.Fatalf("Second AcquireLock failed: %v", err)
	}
	if lock2.HolderID != "holder-2" {
		t.Errorf("Expected holder-2, got %s", lock2.HolderID)
	}
}

func TestAcquireLock_ReleaseLock(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()
	ctx := context.Background()

	lock, err := s.AcquireLock(ctx, "user:u1", "holder-1", "exclusive", 5*time.Minute)
	if err != nil {
		t.Fatalf("AcquireLock failed: %v", err)
	}
	if err := s.ReleaseLock(ctx, lock.ID); err != nil {
		t.Fatalf("ReleaseLock failed: %v", err)
	}

	if _, err := s.AcquireLock(ctx, "user:u1", "holder-2", "exclusive", 5*time.Minute); err != nil {
		t.Fatalf("AcquireLock after release failed: %v", err)
	}
}

func TestPing(t *testing.T) {
	s := newTestStore(t)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

// saveEvent stores a minimal event for user "user-<id>" triggered at `at`,
// which is also its effective date.
func saveEvent(t *testing.T, s *Store, id string, typ models.EventType, status models.EventStatus, at time.Time) {
	t.Helper()
	var md models.Metadata
	switch typ {
	case models.EventTypeJoiner:
		md = models.JoinerMetadata{StartDate: at}
	case models.EventTypeMover:
		md = models.MoverMetadata{EffectiveDate: at}
	default:
		md = models.LeaverMetadata{LastWorkingDay: at}
	}
	ev := &models.LifecycleEvent{
		ID: id, TenantID: tenant, EventType: typ, UserID: "user-" + id,
		UserName: id, UserEmail: id + "@acme.io", TriggeredBy: "test",
		TriggeredAt: at, EffectiveDate: at, Status: status, Metadata: md,
	}
	if err := s.SaveEvent(context.Background(), ev); err != nil {
		t.Fatalf("SaveEvent failed: %v", err)
	}
}

func newTestStore(t *testing.T) *Store {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return s
}
