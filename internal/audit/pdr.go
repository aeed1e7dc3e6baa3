// Package audit provides PDR (Process Decision Record) writing for lifecycle events.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/fentz26/jml/internal/models"
)

// Recorder persists decision records.
type Recorder interface {
	WritePDR(action, inputsHash, outcome, eventID, details string) (*models.PDREntry, error)
	ListPDR(ctx context.Context, eventID string) ([]models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	store Recorder
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(s Recorder) *PDRWriter {
	return &PDRWriter{store: s}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(action string, inputs any, outcome, eventID, details string) (*models.PDREntry, error) {
	return w.store.WritePDR(action, hashInputs(inputs), outcome, eventID, details)
}

// RecordEvent writes a PDR entry describing where an event ended up.
// The inputs hash covers the event type and its metadata.
func (w *PDRWriter) RecordEvent(action string, ev *models.LifecycleEvent) (*models.PDREntry, error) {
	inputs := struct {
		EventType models.EventType `json:"eventType"`
		UserID    string           `json:"userId"`
		Metadata  models.Metadata  `json:"metadata"`
	}{ev.EventType, ev.UserID, ev.Metadata}

	return w.Record(action, inputs, string(ev.Status), ev.ID, summarize(ev))
}

// Trail returns the decision records of an event, oldest first.
func (w *PDRWriter) Trail(ctx context.Context, eventID string) ([]models.PDREntry, error) {
	return w.store.ListPDR(ctx, eventID)
}

func summarize(ev *models.LifecycleEvent) string {
	counts := map[models.TaskStatus]int{}
	for _, t := range ev.Tasks {
		counts[t.Status]++
	}
	s := fmt.Sprintf("%d tasks: %d completed, %d failed, %d skipped, %d pending",
		len(ev.Tasks),
		counts[models.TaskStatusCompleted],
		counts[models.TaskStatusFailed],
		counts[models.TaskStatusSkipped],
		counts[models.TaskStatusPending],
	)
	if ev.Error != "" {
		s += "; error: " + ev.Error
	}
	return s
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
