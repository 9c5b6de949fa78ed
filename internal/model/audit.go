package model

import "time"

// Audit actions recorded for key mutations.
const (
	AuditIssue   = "issue"
	AuditCreate  = "create"
	AuditDelete  = "delete"
	AuditRevoke  = "revoke"
	AuditRestore = "restore"
)

// AuditEvent is one entry of the key mutation log.
type AuditEvent struct {
	ID     int64     `json:"id" db:"id"`
	Action string    `json:"action" db:"action"`
	Key    string    `json:"key" db:"key_id"`
	UserID int64     `json:"user_id" db:"user_id"`
	Actor  string    `json:"actor" db:"actor"`
	Detail string    `json:"detail,omitempty" db:"detail"`
	At     time.Time `json:"at" db:"at"`
}
