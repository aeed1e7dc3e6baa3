package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fentz26/jml/internal/models"
)

// EventFilter narrows ListEvents. Empty fields match everything.
type EventFilter struct {
	TenantID  string
	UserID    string
	EventType models.EventType
	Status    models.EventStatus
	Limit     int
}

// SaveEvent inserts the event or replaces the stored copy with the same ID.
func (s *Store) SaveEvent(ctx context.Context, ev *models.LifecycleEvent) error {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tasks := ev.Tasks
	if tasks == nil {
		tasks = []models.LifecycleTask{}
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("marshal tasks: %w", err)
	}

	var completedAt any
	if ev.CompletedAt != nil {
		completedAt = *ev.CompletedAt
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lifecycle_events (id, tenant_id, event_type, user_id, user_name, user_email, triggered_by,
			triggered_at, effective_date, status, metadata, tasks, completed_at, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			metadata = excluded.metadata,
			tasks = excluded.tasks,
			completed_at = excluded.completed_at,
			error = excluded.error`,
		ev.ID, ev.TenantID, ev.EventType, ev.UserID, ev.UserName, ev.UserEmail, ev.TriggeredBy,
		ev.TriggeredAt, ev.EffectiveDate, ev.Status, string(metadata), string(tasksJSON), completedAt, ev.Error,
	)
	if err != nil {
		return fmt.Errorf("save event: %w", err)
	}
	return nil
}

const eventColumns = `id, tenant_id, event_type, user_id, user_name, user_email, triggered_by,
	triggered_at, effective_date, status, metadata, tasks, completed_at, error`

func scanEvent(row interface{ Scan(...any) error }) (*models.LifecycleEvent, error) {
	ev := &models.LifecycleEvent{}
	var metadata, tasks string
	var completedAt sql.NullTime
	err := row.Scan(&ev.ID, &ev.TenantID, &ev.EventType, &ev.UserID, &ev.UserName, &ev.UserEmail, &ev.TriggeredBy,
		&ev.TriggeredAt, &ev.EffectiveDate, &ev.Status, &metadata, &tasks, &completedAt, &ev.Error)
	if err != nil {
		return nil, err
	}

	ev.Metadata, err = models.DecodeMetadata(ev.EventType, []byte(metadata))
	if err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", ev.ID, err)
	}
	if err := json.Unmarshal([]byte(tasks), &ev.Tasks); err != nil {
		return nil, fmt.Errorf("decode tasks of %s: %w", ev.ID, err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		ev.CompletedAt = &t
	}
	return ev, nil
}

// GetEvent retrieves an event by ID. Returns nil, nil if not found.
func (s *Store) GetEvent(ctx context.Context, id string) (*models.LifecycleEvent, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM lifecycle_events WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	return ev, nil
}

// ListEvents returns events matching the filter, newest first.
func (s *Store) ListEvents(ctx context.Context, f EventFilter) ([]models.LifecycleEvent, error) {
	var where []string
	var args []any
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.EventType != "" {
		where = append(where, "event_type = ?")
		args = append(args, f.EventType)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}

	query := `SELECT ` + eventColumns + ` FROM lifecycle_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY triggered_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []models.LifecycleEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

// ListDueEvents returns pending events whose effective date is not after now,
// oldest effective date first.
func (s *Store) ListDueEvents(ctx context.Context, now time.Time) ([]models.LifecycleEvent, error) {
	pending, err := s.ListEvents(ctx, EventFilter{Status: models.EventStatusPending})
	if err != nil {
		return nil, err
	}

	// Compared in Go; stored timestamps are text and do not order reliably.
	var due []models.LifecycleEvent
	for _, ev := range pending {
		if !ev.EffectiveDate.After(now) {
			due = append(due, ev)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		return due[i].EffectiveDate.Before(due[j].EffectiveDate)
	})
	return due, nil
}

// HasEvent reports whether the user already has a non-cancelled event of the given type.
func (s *Store) HasEvent(ctx context.Context, tenantID, userID string, eventType models.EventType) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM lifecycle_events WHERE tenant_id = ? AND user_id = ? AND event_type = ? AND status != ? LIMIT 1`,
		tenantID, userID, eventType, models.EventStatusCancelled,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query event history: %w", err)
	}
	return true, nil
}
