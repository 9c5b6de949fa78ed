package keys

import (
	"context"
	"fmt"

	"github.com/maxkornevpro/key/internal/model"
	"github.com/maxkornevpro/key/internal/store"
)

// ListResult is a possibly truncated view of the store in insertion order.
type ListResult struct {
	Keys    []model.KeyRecord
	Total   int
	Omitted int
}

// List returns up to limit records in insertion order. A limit of zero or
// less returns every record.
func (s *Service) List(ctx context.Context, limit int) (ListResult, error) {
	var res ListResult
	err := s.view(ctx, "list", func(set *model.KeySet) error {
		all := set.All()
		res.Total = len(all)
		if limit > 0 && len(all) > limit {
			all = all[:limit]
		}
		res.Keys = make([]model.KeyRecord, len(all))
		for i, rec := range all {
			res.Keys[i] = rec.Clone()
		}
		res.Omitted = res.Total - len(res.Keys)
		return nil
	})
	return res, err
}

// Get returns a single record.
func (s *Service) Get(ctx context.Context, key string) (model.KeyRecord, error) {
	var out model.KeyRecord
	err := s.view(ctx, "get", func(set *model.KeySet) error {
		rec, ok := set.Get(key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		out = rec.Clone()
		return nil
	})
	return out, err
}

// Delete removes key from the store. A missing key yields ErrNotFound and
// leaves the store unchanged.
func (s *Service) Delete(ctx context.Context, key string) error {
	var userID int64
	err := s.update(ctx, "delete", func(set *model.KeySet) error {
		rec, ok := set.Get(key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		userID = rec.UserID
		set.Delete(key)
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.mutation(model.AuditDelete)
	s.logger.Info("deleted key", "key", key, "user_id", userID)
	s.audit(ctx, model.AuditDelete, key, userID, "")
	return nil
}

// Revoke marks key inactive without deleting it.
func (s *Service) Revoke(ctx context.Context, key string) (model.KeyRecord, error) {
	return s.setActive(ctx, key, false)
}

// Restore marks a revoked key active again.
func (s *Service) Restore(ctx context.Context, key string) (model.KeyRecord, error) {
	return s.setActive(ctx, key, true)
}

func (s *Service) setActive(ctx context.Context, key string, active bool) (model.KeyRecord, error) {
	action, msg := model.AuditRevoke, "revoked key"
	if active {
		action, msg = model.AuditRestore, "restored key"
	}

	var out model.KeyRecord
	changed := false
	err := s.update(ctx, action, func(set *model.KeySet) error {
		rec, ok := set.Get(key)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		if rec.Active == active {
			out = rec.Clone()
			return store.ErrNoChange
		}
		rec.Active = active
		changed = true
		out = rec.Clone()
		return nil
	})
	if err != nil {
		return model.KeyRecord{}, err
	}

	if changed {
		s.metrics.mutation(action)
		s.logger.Info(msg, "key", key, "user_id", out.UserID)
		s.audit(ctx, action, key, out.UserID, "")
	}
	return out, nil
}

// UserStats groups records by user id in first-seen order. ActiveKeysCount
// counts records that are unexpired now; the username comes from the first
// record seen for each user.
func (s *Service) UserStats(ctx context.Context) ([]model.UserStat, error) {
	var stats []model.UserStat
	err := s.view(ctx, "user_stats", func(set *model.KeySet) error {
		now := s.Now()
		index := make(map[int64]int)
		for _, rec := range set.All() {
			i, ok := index[rec.UserID]
			if !ok {
				i = len(stats)
				index[rec.UserID] = i
				stats = append(stats, model.UserStat{UserID: rec.UserID, Username: rec.Username})
			}
			stats[i].KeysCount++
			if IsValid(rec, now) {
				stats[i].ActiveKeysCount++
			}
		}
		return nil
	})
	return stats, err
}

// UserKey is one of a user's records with its state at the time of the call.
type UserKey struct {
	model.KeyRecord
	Valid  bool
	Usable bool
}

// UserKeys returns every record held by userID in insertion order.
func (s *Service) UserKeys(ctx context.Context, userID int64) ([]UserKey, error) {
	var out []UserKey
	err := s.view(ctx, "user_keys", func(set *model.KeySet) error {
		now := s.Now()
		for _, rec := range set.All() {
			if rec.UserID != userID {
				continue
			}
			out = append(out, UserKey{
				KeyRecord: rec.Clone(),
				Valid:     IsValid(rec, now),
				Usable:    Usable(rec, now),
			})
		}
		return nil
	})
	return out, err
}
