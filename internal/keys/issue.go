package keys

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/maxkornevpro/key/internal/duration"
	"github.com/maxkornevpro/key/internal/model"
	"github.com/maxkornevpro/key/internal/store"
)

const (
	// SelfServiceDuration is the token recorded on self-service keys.
	SelfServiceDuration = "30d"

	// PerpetualDuration is the token recorded on keys without expiry.
	PerpetualDuration = "perpetual"

	selfServiceTTL = 30 * time.Duration(duration.Day) * time.Second

	// maxKeyAttempts bounds regeneration after a collision.
	maxKeyAttempts = 8
)

// IssueResult is returned by self-service issuance. Created is false when the
// user already held a valid key, which is returned unchanged.
type IssueResult struct {
	Record  model.KeyRecord
	Created bool
}

// AdminUsername is the placeholder display name given to admin-issued keys.
func AdminUsername(userID int64) string {
	return "admin_created_" + strconv.FormatInt(userID, 10)
}

// IssueSelfService returns the user's valid key, or issues a new 30-day key
// if they hold none. When several valid keys exist, the first in store order
// wins. The active flag is not considered, so a revoked but unexpired key
// still blocks issuance.
func (s *Service) IssueSelfService(ctx context.Context, userID int64, username string) (IssueResult, error) {
	var res IssueResult
	err := s.update(ctx, "issue", func(set *model.KeySet) error {
		now := s.Now()
		for _, rec := range set.All() {
			if rec.UserID == userID && IsValid(rec, now) {
				res = IssueResult{Record: rec.Clone()}
				return store.ErrNoChange
			}
		}

		exp := now.Add(selfServiceTTL)
		rec, err := s.insertNew(set, func(key string) (*model.KeyRecord, error) {
			return model.NewKeyRecord(key, userID, username, now, &exp, SelfServiceDuration, false)
		})
		if err != nil {
			return err
		}
		res = IssueResult{Record: rec.Clone(), Created: true}
		return nil
	})
	if err != nil {
		return IssueResult{}, err
	}

	s.metrics.issue("self_service", res.Created)
	if res.Created {
		s.logger.Info("issued key", "key", res.Record.Key, "user_id", userID, "duration", SelfServiceDuration)
		s.audit(ctx, model.AuditIssue, res.Record.Key, userID, SelfServiceDuration)
	}
	return res, nil
}

// IssueAdmin creates a key for userID expiring after the given duration
// token. It never looks at the user's existing keys. A token that does not
// parse, or parses to zero, fails with ErrInvalidDuration before the store
// is touched.
func (s *Service) IssueAdmin(ctx context.Context, userID int64, token string) (model.KeyRecord, error) {
	token = strings.TrimSpace(token)
	secs, err := duration.Parse(token)
	if err != nil {
		return model.KeyRecord{}, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, token, err)
	}
	if secs <= 0 {
		return model.KeyRecord{}, fmt.Errorf("%w: %q is not a positive duration", ErrInvalidDuration, token)
	}
	ttl, err := duration.ToDuration(secs)
	if err != nil {
		return model.KeyRecord{}, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, token, err)
	}

	var out model.KeyRecord
	err = s.update(ctx, "create", func(set *model.KeySet) error {
		now := s.Now()
		exp := now.Add(ttl)
		rec, err := s.insertNew(set, func(key string) (*model.KeyRecord, error) {
			return model.NewKeyRecord(key, userID, AdminUsername(userID), now, &exp, token, true)
		})
		if err != nil {
			return err
		}
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return model.KeyRecord{}, err
	}

	s.metrics.issue("admin", true)
	s.logger.Info("created key", "key", out.Key, "user_id", userID, "duration", token)
	s.audit(ctx, model.AuditCreate, out.Key, userID, token)
	return out, nil
}

// IssuePerpetual creates an admin key for userID that never expires.
func (s *Service) IssuePerpetual(ctx context.Context, userID int64) (model.KeyRecord, error) {
	var out model.KeyRecord
	err := s.update(ctx, "create", func(set *model.KeySet) error {
		now := s.Now()
		rec, err := s.insertNew(set, func(key string) (*model.KeyRecord, error) {
			return model.NewKeyRecord(key, userID, AdminUsername(userID), now, nil, PerpetualDuration, true)
		})
		if err != nil {
			return err
		}
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return model.KeyRecord{}, err
	}

	s.metrics.issue("perpetual", true)
	s.logger.Info("created perpetual key", "key", out.Key, "user_id", userID)
	s.audit(ctx, model.AuditCreate, out.Key, userID, PerpetualDuration)
	return out, nil
}

// insertNew generates an unused key, builds the record and inserts it.
func (s *Service) insertNew(set *model.KeySet, build func(key string) (*model.KeyRecord, error)) (*model.KeyRecord, error) {
	for attempt := 1; attempt <= maxKeyAttempts; attempt++ {
		key := s.newKey()
		if _, exists := set.Get(key); exists || key == "" {
			s.logger.Warn("generated key collided, retrying", "attempt", attempt)
			continue
		}
		rec, err := build(key)
		if err != nil {
			return nil, err
		}
		set.Insert(rec)
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %w after %d attempts", store.ErrWriteFailed, ErrKeyCollision, maxKeyAttempts)
}
