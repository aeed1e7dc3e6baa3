// Package store provides SQLite-backed persistence for the JML daemon.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fentz26/jml/internal/models"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Store provides access to the JML SQLite database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Open with WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		job_title TEXT NOT NULL DEFAULT '',
		manager TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS saas_apps (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		vendor TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS role_templates (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		department TEXT NOT NULL DEFAULT '',
		level TEXT NOT NULL DEFAULT '',
		apps TEXT NOT NULL DEFAULT '[]',
		PRIMARY KEY (tenant_id, id)
	);

	CREATE TABLE IF NOT EXISTS user_app_access (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		app_id TEXT NOT NULL,
		app_name TEXT NOT NULL DEFAULT '',
		access_type TEXT NOT NULL DEFAULT 'user',
		granted_by TEXT NOT NULL DEFAULT '',
		granted_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS oauth_tokens (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		app_name TEXT NOT NULL,
		scopes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lifecycle_events (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		user_id TEXT NOT NULL,
		user_name TEXT NOT NULL,
		user_email TEXT NOT NULL,
		triggered_by TEXT NOT NULL,
		triggered_at DATETIME NOT NULL,
		effective_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		metadata TEXT NOT NULL,
		tasks TEXT NOT NULL DEFAULT '[]',
		completed_at DATETIME,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		payload TEXT NOT NULL,
		delivered INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS locks (
		id TEXT PRIMARY KEY,
		resource_id TEXT NOT NULL UNIQUE,
		holder_id TEXT NOT NULL,
		lock_type TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS pdr (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		event_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_access_user ON user_app_access(tenant_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_tokens_user ON oauth_tokens(tenant_id, user_id);
	CREATE INDEX IF NOT EXISTS idx_events_status ON lifecycle_events(status);
	CREATE INDEX IF NOT EXISTS idx_events_user ON lifecycle_events(tenant_id, user_id, event_type);
	CREATE INDEX IF NOT EXISTS idx_notifications_tenant ON notifications(tenant_id, delivered);
	CREATE INDEX IF NOT EXISTS idx_pdr_event_id ON pdr(event_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Lock Operations ---

// ErrResourceLocked indicates the resource is already locked by another holder.
var ErrResourceLocked = fmt.Errorf("resource already locked")

// AcquireLock attempts to acquire a lock on a resource atomically.
// Expired locks on the resource are removed first.
func (s *Store) AcquireLock(ctx context.Context, resourceID, holderID, lockType string, ttl time.Duration) (*models.Lock, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `DELETE FROM locks WHERE resource_id = ? AND expires_at <= ?`, resourceID, now)
	if err != nil {
		return nil, fmt.Errorf("clean expired locks: %w", err)
	}

	var existingHolder string
	err = tx.QueryRowContext(ctx,
		`SELECT holder_id FROM locks WHERE resource_id = ? AND expires_at > ?`,
		resourceID, now,
	).Scan(&existingHolder)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("check existing lock: %w", err)
	}
	if err != sql.ErrNoRows {
		return nil, ErrResourceLocked
	}

	lock := &models.Lock{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
		HolderID:   holderID,
		LockType:   lockType,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO locks (id, resource_id, holder_id, lock_type, created_at, expires_at) VALUES (?, ?, ?, ?, ?, ?)`,
		lock.ID, lock.ResourceID, lock.HolderID, lock.LockType, lock.CreatedAt, lock.ExpiresAt,
	)
	if err != nil {
		// UNIQUE violation means another holder won the race
		if strings.Contains(err.Error(), "UNIQUE constraint") || strings.Contains(err.Error(), "unique constraint") {
			return nil, ErrResourceLocked
		}
		return nil, fmt.Errorf("insert lock: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return lock, nil
}

// GetLock retrieves a lock by resource ID if it exists and is not expired.
func (s *Store) GetLock(ctx context.Context, resourceID string) (*models.Lock, error) {
	lock := &models.Lock{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, resource_id, holder_id, lock_type, created_at, expires_at
		 FROM locks WHERE resource_id = ? AND expires_at > ?`,
		resourceID, time.Now().UTC(),
	).Scan(&lock.ID, &lock.ResourceID, &lock.HolderID, &lock.LockType, &lock.CreatedAt, &lock.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query lock: %w", err)
	}
	return lock, nil
}

// ReleaseLock releases a lock.
func (s *Store) ReleaseLock(ctx context.Context, lockID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE id = ?`, lockID)
	return err
}

// --- PDR Operations ---

// WritePDR writes a Process Decision Record.
func (s *Store) WritePDR(action, inputsHash, outcome, eventID, details string) (*models.PDREntry, error) {
	pdr := &models.PDREntry{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		EventID:    eventID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO pdr (id, action, inputs_hash, outcome, event_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pdr.ID, pdr.Action, pdr.InputsHash, pdr.Outcome, pdr.EventID, pdr.Details, pdr.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pdr: %w", err)
	}
	return pdr, nil
}

// ListPDR returns the decision records for an event, oldest first.
func (s *Store) ListPDR(ctx context.Context, eventID string) ([]models.PDREntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action, inputs_hash, outcome, event_id, details, timestamp FROM pdr WHERE event_id = ? ORDER BY timestamp ASC`,
		eventID,
	)
	if err != nil {
		return nil, fmt.Errorf("query pdr: %w", err)
	}
	defer rows.Close()

	var entries []models.PDREntry
	for rows.Next() {
		var e models.PDREntry
		var evID, details sql.NullString
		if err := rows.Scan(&e.ID, &e.Action, &e.InputsHash, &e.Outcome, &evID, &details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pdr: %w", err)
		}
		e.EventID = evID.String
		e.Details = details.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
