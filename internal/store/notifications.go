package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fentz26/jml/internal/models"
	"github.com/google/uuid"
)

// NotificationFilter narrows ListNotifications. A nil Delivered matches both states.
type NotificationFilter struct {
	TenantID  string
	Topic     string
	Delivered *bool
	Limit     int
}

// CreateNotification appends a notification to the outbox.
func (s *Store) CreateNotification(ctx context.Context, tenantID, topic string, payload map[string]any) (*models.Notification, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	n := &models.Notification{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, tenant_id, topic, payload, delivered, created_at) VALUES (?, ?, ?, ?, 0, ?)`,
		n.ID, n.TenantID, n.Topic, string(body), n.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns notifications matching the filter, oldest first.
func (s *Store) ListNotifications(ctx context.Context, f NotificationFilter) ([]models.Notification, error) {
	var where []string
	var args []any
	if f.TenantID != "" {
		where = append(where, "tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.Topic != "" {
		where = append(where, "topic = ?")
		args = append(args, f.Topic)
	}
	if f.Delivered != nil {
		where = append(where, "delivered = ?")
		if *f.Delivered {
			args = append(args, 1)
		} else {
			args = append(args, 0)
		}
	}

	query := `SELECT id, tenant_id, topic, payload, delivered, created_at FROM notifications`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var list []models.Notification
	for rows.Next() {
		var n models.Notification
		var payload string
		var delivered int
		if err := rows.Scan(&n.ID, &n.TenantID, &n.Topic, &payload, &delivered, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &n.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", n.ID, err)
		}
		n.Delivered = delivered != 0
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkNotificationDelivered flags a notification as delivered.
func (s *Store) MarkNotificationDelivered(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE notifications SET delivered = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("notification not found: %s", id)
	}
	return nil
}
