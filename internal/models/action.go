package models

import (
	"encoding/json"
	"fmt"
)

// ActionKind identifies a queued mutation type. The engine is closed over
// this set; field semantics stay open via the field handler registry.
type ActionKind string

const (
	ActionAdd        ActionKind = "add"
	ActionEdit       ActionKind = "edit"
	ActionDelete     ActionKind = "delete"
	ActionApprove    ActionKind = "approve"
	ActionDisapprove ActionKind = "disapprove"
)

// Valid reports whether the kind is one the engine knows how to replay.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionAdd, ActionEdit, ActionDelete, ActionApprove, ActionDisapprove:
		return true
	}
	return false
}

// FieldMutation is one per-field payload produced by a field handler from
// raw form input. Value is an opaque serialized blob owned by the handler;
// for file-aware fields it carries the online/offline file bundle.
type FieldMutation struct {
	FieldID  int32  `json:"fieldId"`
	Subfield string `json:"subfield,omitempty"`
	Value    string `json:"value"`
}

// OfflineAction is a queued mutation awaiting remote confirmation. At most
// one row exists per (collection, record, kind); a second save of the same
// kind supersedes the first in place.
type OfflineAction struct {
	CollectionID int32      `db:"collection_id"`
	RecordID     int64      `db:"record_id"`
	Kind         ActionKind `db:"kind"`
	CourseID     int32      `db:"course_id"`
	GroupID      int32      `db:"group_id"`
	FieldsJSON   string     `db:"fields"`
	QueuedAt     int64      `db:"queued_at"`
}

// Fields decodes the serialized mutation list.
func (a *OfflineAction) Fields() ([]FieldMutation, error) {
	if a.FieldsJSON == "" || a.FieldsJSON == "[]" {
		return nil, nil
	}
	var fields []FieldMutation
	if err := json.Unmarshal([]byte(a.FieldsJSON), &fields); err != nil {
		return nil, fmt.Errorf("decode action fields: %w", err)
	}
	return fields, nil
}

// SetFields serializes the mutation list onto the action.
func (a *OfflineAction) SetFields(fields []FieldMutation) error {
	if len(fields) == 0 {
		a.FieldsJSON = "[]"
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode action fields: %w", err)
	}
	a.FieldsJSON = string(raw)
	return nil
}

// IsOfflineRecord reports whether the action targets a record created
// entirely offline (no remote counterpart yet).
func (a *OfflineAction) IsOfflineRecord() bool {
	return a.RecordID <= 0
}

// FindByKinds returns the first action matching any of the given kinds, in
// slice order. Used by the reconciler to pick the edit/approve/delete slots.
func FindByKinds(actions []OfflineAction, kinds ...ActionKind) *OfflineAction {
	for i := range actions {
		for _, kind := range kinds {
			if actions[i].Kind == kind {
				return &actions[i]
			}
		}
	}
	return nil
}
