package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// KeyRecord is one issued license key. The key string itself is the map key
// of the persisted document, so it is not part of the record's JSON body.
type KeyRecord struct {
	Key            string     `json:"-"`
	UserID         int64      `json:"user_id"`
	Username       string     `json:"username"`
	CreatedAt      Timestamp  `json:"created_at"`
	ExpiresAt      *Timestamp `json:"expires_at,omitempty"` // nil = perpetual
	Duration       string     `json:"duration"`
	Active         bool       `json:"active"`
	CreatedByAdmin bool       `json:"created_by_admin"`
}

// Perpetual reports whether the record has no expiration.
func (r *KeyRecord) Perpetual() bool {
	return r.ExpiresAt == nil
}

// Clone returns a deep copy that is safe to hand out after the store lock
// has been released.
func (r *KeyRecord) Clone() KeyRecord {
	c := *r
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		c.ExpiresAt = &exp
	}
	return c
}

// recordJSON mirrors KeyRecord with an optional active flag. Stores written
// by older tools omit "active"; such records are active.
type recordJSON struct {
	UserID         int64      `json:"user_id"`
	Username       string     `json:"username"`
	CreatedAt      Timestamp  `json:"created_at"`
	ExpiresAt      *Timestamp `json:"expires_at,omitempty"`
	Duration       string     `json:"duration"`
	Active         *bool      `json:"active,omitempty"`
	CreatedByAdmin bool       `json:"created_by_admin"`
}

// UnmarshalJSON decodes a persisted record, defaulting active to true.
func (r *KeyRecord) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	active := true
	if raw.Active != nil {
		active = *raw.Active
	}
	*r = KeyRecord{
		Key:            r.Key,
		UserID:         raw.UserID,
		Username:       raw.Username,
		CreatedAt:      raw.CreatedAt,
		ExpiresAt:      raw.ExpiresAt,
		Duration:       raw.Duration,
		Active:         active,
		CreatedByAdmin: raw.CreatedByAdmin,
	}
	return nil
}

// NewKeyRecord builds a record and enforces the creation-time invariant that
// an expiring key must expire strictly after it was created.
func NewKeyRecord(key string, userID int64, username string, createdAt time.Time, expiresAt *time.Time, duration string, byAdmin bool) (*KeyRecord, error) {
	if key == "" {
		return nil, fmt.Errorf("key record: empty key")
	}
	rec := &KeyRecord{
		Key:            key,
		UserID:         userID,
		Username:       username,
		CreatedAt:      NewTimestamp(createdAt),
		Duration:       duration,
		Active:         true,
		CreatedByAdmin: byAdmin,
	}
	if expiresAt != nil {
		if !expiresAt.After(createdAt) {
			return nil, fmt.Errorf("key record: expires_at %s is not after created_at %s",
				expiresAt.Format(TimestampLayout), createdAt.Format(TimestampLayout))
		}
		exp := NewTimestamp(*expiresAt)
		rec.ExpiresAt = &exp
	}
	return rec, nil
}

// UserStat aggregates the keys held by one user.
type UserStat struct {
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	KeysCount       int    `json:"keys_count"`
	ActiveKeysCount int    `json:"active_keys"`
}
