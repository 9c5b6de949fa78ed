package keys

import (
	"context"
	"time"

	"github.com/maxkornevpro/key/internal/model"
)

// Reason says why a key failed validation.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMissing
	ReasonNotFound
	ReasonInactive
	ReasonExpired
)

// Message returns the caller-facing error string for r. These strings are
// part of the public validate contract.
func (r Reason) Message() string {
	switch r {
	case ReasonMissing:
		return "Key is required"
	case ReasonNotFound:
		return "Key not found"
	case ReasonInactive:
		return "Key is inactive"
	case ReasonExpired:
		return "Key expired"
	}
	return ""
}

// String returns a short label, used as a metrics outcome.
func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "valid"
	case ReasonMissing:
		return "missing"
	case ReasonNotFound:
		return "not_found"
	case ReasonInactive:
		return "inactive"
	case ReasonExpired:
		return "expired"
	}
	return "unknown"
}

// ValidationResult is the outcome of checking one key. The identity fields
// are set only when Valid is true.
type ValidationResult struct {
	Valid     bool
	Reason    Reason
	UserID    int64
	Username  string
	ExpiresAt *model.Timestamp
}

// IsValid reports whether rec is unexpired at now. It ignores the active
// flag; see Usable.
func IsValid(rec *model.KeyRecord, now time.Time) bool {
	if rec.ExpiresAt == nil {
		return true
	}
	return now.Before(rec.ExpiresAt.Time)
}

// Usable reports whether rec is active and unexpired at now.
func Usable(rec *model.KeyRecord, now time.Time) bool {
	return rec.Active && IsValid(rec, now)
}

// Check validates key against set. Lookup is exact. Existence is checked
// first, then the active flag, then expiry.
func Check(set *model.KeySet, key string, now time.Time) ValidationResult {
	if key == "" {
		return ValidationResult{Reason: ReasonMissing}
	}
	rec, ok := set.Get(key)
	if !ok {
		return ValidationResult{Reason: ReasonNotFound}
	}
	if !rec.Active {
		return ValidationResult{Reason: ReasonInactive}
	}
	if !IsValid(rec, now) {
		return ValidationResult{Reason: ReasonExpired}
	}
	res := ValidationResult{
		Valid:    true,
		UserID:   rec.UserID,
		Username: rec.Username,
	}
	if rec.ExpiresAt != nil {
		exp := *rec.ExpiresAt
		res.ExpiresAt = &exp
	}
	return res
}

// Validate checks key against the current store contents. An empty key is
// rejected without reading the store.
func (s *Service) Validate(ctx context.Context, key string) (ValidationResult, error) {
	if key == "" {
		s.metrics.validation(ReasonMissing.String())
		return ValidationResult{Reason: ReasonMissing}, nil
	}

	var res ValidationResult
	err := s.view(ctx, "validate", func(set *model.KeySet) error {
		res = Check(set, key, s.Now())
		return nil
	})
	if err != nil {
		s.metrics.validation("error")
		return ValidationResult{}, err
	}
	s.metrics.validation(res.Reason.String())
	return res, nil
}
