package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Metadata is the event-type specific payload of a lifecycle event.
// Only JoinerMetadata, MoverMetadata and LeaverMetadata implement it.
type Metadata interface {
	EventType() EventType
	// EffectiveAt is the date the change takes (or took) effect.
	EffectiveAt() time.Time
	isMetadata()
}

// TerminationType classifies why a leaver left.
type TerminationType string

const (
	TerminationVoluntary   TerminationType = "voluntary"
	TerminationInvoluntary TerminationType = "involuntary"
	TerminationRetirement  TerminationType = "retirement"
	TerminationContractEnd TerminationType = "contract_end"
)

// JoinerMetadata describes a user joining the organisation.
type JoinerMetadata struct {
	Department      string    `json:"department"`
	JobTitle        string    `json:"jobTitle"`
	Manager         string    `json:"manager"`
	RoleTemplateID  string    `json:"roleTemplateId,omitempty"`
	AppsToProvision []string  `json:"appsToProvision,omitempty"`
	StartDate       time.Time `json:"startDate"`
	EmployeeType    string    `json:"employeeType,omitempty"`
}

func (JoinerMetadata) EventType() EventType     { return EventTypeJoiner }
func (m JoinerMetadata) EffectiveAt() time.Time { return m.StartDate }
func (JoinerMetadata) isMetadata()              {}

// MoverMetadata describes a change of department, role or manager.
type MoverMetadata struct {
	PreviousDepartment     string    `json:"previousDepartment"`
	NewDepartment          string    `json:"newDepartment"`
	PreviousJobTitle       string    `json:"previousJobTitle"`
	NewJobTitle            string    `json:"newJobTitle"`
	PreviousManager        string    `json:"previousManager"`
	NewManager             string    `json:"newManager"`
	PreviousRoleTemplateID string    `json:"previousRoleTemplateId,omitempty"`
	NewRoleTemplateID      string    `json:"newRoleTemplateId,omitempty"`
	AppsToAdd              []string  `json:"appsToAdd,omitempty"`
	AppsToRemove           []string  `json:"appsToRemove,omitempty"`
	EffectiveDate          time.Time `json:"effectiveDate"`
}

func (MoverMetadata) EventType() EventType     { return EventTypeMover }
func (m MoverMetadata) EffectiveAt() time.Time { return m.EffectiveDate }
func (MoverMetadata) isMetadata()              {}

// LeaverMetadata describes a user leaving the organisation.
type LeaverMetadata struct {
	Department          string          `json:"department"`
	LastWorkingDay      time.Time       `json:"lastWorkingDay"`
	TerminationType     TerminationType `json:"terminationType"`
	TransferTo          string          `json:"transferTo,omitempty"`
	AppsToRevoke        []string        `json:"appsToRevoke,omitempty"`
	ImmediateRevocation bool            `json:"immediateRevocation"`
}

func (LeaverMetadata) EventType() EventType     { return EventTypeLeaver }
func (m LeaverMetadata) EffectiveAt() time.Time { return m.LastWorkingDay }
func (LeaverMetadata) isMetadata()              {}

// DecodeMetadata restores the metadata variant selected by eventType.
func DecodeMetadata(eventType EventType, raw []byte) (Metadata, error) {
	switch eventType {
	case EventTypeJoiner:
		var m JoinerMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode joiner metadata: %w", err)
		}
		return m, nil
	case EventTypeMover:
		var m MoverMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode mover metadata: %w", err)
		}
		return m, nil
	case EventTypeLeaver:
		var m LeaverMetadata
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode leaver metadata: %w", err)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", eventType)
	}
}

// UnmarshalJSON decodes the metadata according to the eventType field.
func (e *LifecycleEvent) UnmarshalJSON(data []byte) error {
	type plain LifecycleEvent
	aux := struct {
		*plain
		Metadata json.RawMessage `json:"metadata"`
	}{plain: (*plain)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Metadata) == 0 || string(aux.Metadata) == "null" {
		e.Metadata = nil
		return nil
	}
	md, err := DecodeMetadata(e.EventType, aux.Metadata)
	if err != nil {
		return err
	}
	e.Metadata = md
	return nil
}
