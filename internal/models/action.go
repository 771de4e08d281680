// Package models provides data model definitions for the FieldSync core.
package models

import (
	"encoding/json"
	"time"
)

// ActionKind identifies the type of a queued offline action. The set is
// closed: replay discards kinds it does not recognize instead of retrying.
type ActionKind string

const (
	ActionAcknowledgeGroup ActionKind = "acknowledge_group"
	ActionUpdateStatus     ActionKind = "update_status"
	ActionSubmitSignature  ActionKind = "submit_signature"
)

// KnownKind reports whether k is part of the closed action-kind set.
func KnownKind(k ActionKind) bool {
	switch k {
	case ActionAcknowledgeGroup, ActionUpdateStatus, ActionSubmitSignature:
		return true
	}
	return false
}

// OfflineAction is a durable, queued user intent recorded while the device
// was offline (or after a transient submission failure).
type OfflineAction struct {
	ID         string          `db:"id" json:"id"`
	Kind       ActionKind      `db:"kind" json:"kind"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	EnqueuedAt int64           `db:"enqueued_at" json:"enqueued_at"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
}

// TableName returns the table name for OfflineAction.
func (OfflineAction) TableName() string {
	return "offline_actions"
}

// EnqueuedAtTime returns EnqueuedAt as time.Time.
func (a *OfflineAction) EnqueuedAtTime() time.Time {
	return time.Unix(a.EnqueuedAt, 0)
}

// AcknowledgePayload is the payload of an acknowledge_group action.
type AcknowledgePayload struct {
	GroupID    string `json:"customer_visit_group"`
	Signature  []byte `json:"signature_data"`
	SignerName string `json:"signer_name"`
}

// StatusPayload is the payload of an update_status action.
type StatusPayload struct {
	GroupID string `json:"customer_visit_group"`
	Status  string `json:"status"`
}

// SignaturePayload is the payload of a submit_signature action.
type SignaturePayload struct {
	InvoiceID string `json:"invoice_id"`
	Signature []byte `json:"signature_data"`
}
