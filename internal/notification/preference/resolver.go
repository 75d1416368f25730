// internal/notification/preference/resolver.go
package preference

import (
	"context"
	"time"

	"booking-notifications/internal/common/errors"
	"booking-notifications/internal/common/logger"
	"booking-notifications/internal/common/metrics"
)

// Store is durable preference storage. Load returns (nil, nil) when no
// record exists for the recipient.
type Store interface {
	Load(ctx context.Context, recipientID string) (*RecipientPreference, error)
	Save(ctx context.Context, pref *RecipientPreference) error
}

// Cache is the read-through layer in front of Store. Get returns (nil, nil)
// on a miss. Cache failures are never fatal to a permission decision.
type Cache interface {
	Get(ctx context.Context, recipientID string) (*RecipientPreference, error)
	Set(ctx context.Context, pref *RecipientPreference) error
	Del(ctx context.Context, recipientID string) error
}

// Resolver answers channel-permission questions and applies preference
// updates. Each IsAllowed call reads one preference snapshot, so the
// category flag and channel switch it combines always come from the same
// record.
type Resolver struct {
	store Store
	cache Cache
	log   logger.Logger
}

func NewResolver(store Store, cache Cache, log logger.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, log: log}
}

// IsAllowed reports whether the recipient may be contacted on channel for
// category. Essential notifications are always permitted, before any stored
// state is consulted, so a recipient who has switched everything off still
// receives confirmations for actions they just took.
func (r *Resolver) IsAllowed(ctx context.Context, recipientID string, category Category, channel string) (bool, error) {
	if category == CategoryEssential {
		if _, err := Defaults(recipientID).channelEnabled(channel); err != nil {
			return false, err
		}
		return true, nil
	}

	pref, err := r.snapshot(ctx, recipientID)
	if err != nil {
		return false, err
	}
	catOK, err := pref.categoryEnabled(category)
	if err != nil {
		return false, err
	}
	chanOK, err := pref.channelEnabled(channel)
	if err != nil {
		return false, err
	}
	return catOK && chanOK, nil
}

// Update merges patch into the stored record and returns the result. An
// attempt to disable the essential category is rejected with
// PREFERENCE_INVALID before anything is written. The cache entry is dropped
// after a successful save so the next read observes the new record.
func (r *Resolver) Update(ctx context.Context, recipientID string, patch Patch) (*RecipientPreference, error) {
	if patch.Essential != nil && !*patch.Essential {
		return nil, errors.NewPreferenceInvalidError("the essential category cannot be disabled")
	}

	pref, err := r.store.Load(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = Defaults(recipientID)
	}
	pref.apply(patch)
	pref.UpdatedAt = time.Now().UTC()

	if err := r.store.Save(ctx, pref); err != nil {
		return nil, err
	}
	if err := r.cache.Del(ctx, recipientID); err != nil {
		r.log.Warn("Preference cache invalidation failed", map[string]interface{}{
			"recipient_id": recipientID,
			"error":        err.Error(),
		})
	}
	return pref, nil
}

func (r *Resolver) snapshot(ctx context.Context, recipientID string) (*RecipientPreference, error) {
	cached, err := r.cache.Get(ctx, recipientID)
	if err != nil {
		r.log.Warn("Preference cache read failed", map[string]interface{}{
			"recipient_id": recipientID,
			"error":        err.Error(),
		})
	} else if cached != nil {
		metrics.PreferenceCacheHits.Inc()
		return cached, nil
	}
	metrics.PreferenceCacheMisses.Inc()

	pref, err := r.store.Load(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = Defaults(recipientID)
	}
	if err := r.cache.Set(ctx, pref); err != nil {
		r.log.Warn("Preference cache write failed", map[string]interface{}{
			"recipient_id": recipientID,
			"error":        err.Error(),
		})
	}
	return pref, nil
}
