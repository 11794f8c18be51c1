package licensing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chatello/gateway/pkg/cache"
	"chatello/gateway/pkg/telemetry/logging"

	"golang.org/x/sync/singleflight"
)

// Registry serves plans from a PlanStore through a read-through cache.
// Cached plans may be up to ttl stale; limits change rarely and the gate
// tolerates a few seconds of staleness.
type Registry struct {
	store  PlanStore
	cache  cache.Cache
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewRegistry creates a plan registry. A nil cache disables caching.
func NewRegistry(store PlanStore, c cache.Cache, ttl time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		store:  store,
		cache:  c,
		ttl:    ttl,
		logger: logging.OrDefault(logger),
	}
}

func planIDKey(id string) string     { return "plan:id:" + id }
func planNameKey(name string) string { return "plan:name:" + name }

// GetPlan returns the plan with the given ID.
func (r *Registry) GetPlan(ctx context.Context, id string) (*Plan, error) {
	return r.load(ctx, planIDKey(id), func() (*Plan, error) {
		return r.store.GetPlan(ctx, id)
	})
}

// GetPlanByName returns the plan with the given name.
func (r *Registry) GetPlanByName(ctx context.Context, name string) (*Plan, error) {
	return r.load(ctx, planNameKey(name), func() (*Plan, error) {
		return r.store.GetPlanByName(ctx, name)
	})
}

// ListPlans returns every plan straight from the store.
func (r *Registry) ListPlans(ctx context.Context) ([]*Plan, error) {
	return r.store.ListPlans(ctx)
}

// Invalidate drops the cached entries for the given plans.
func (r *Registry) Invalidate(ctx context.Context, plans ...*Plan) error {
	if r.cache == nil || len(plans) == 0 {
		return nil
	}
	keys := make([]string, 0, len(plans)*2)
	for _, p := range plans {
		if p.ID != "" {
			keys = append(keys, planIDKey(p.ID))
		}
		if p.Name != "" {
			keys = append(keys, planNameKey(p.Name))
		}
	}
	return r.cache.Delete(ctx, keys...)
}

func (r *Registry) load(ctx context.Context, key string, fetch func() (*Plan, error)) (*Plan, error) {
	if r.cache != nil {
		if data, err := r.cache.Get(ctx, key); err == nil {
			var p Plan
			if jerr := json.Unmarshal(data, &p); jerr == nil {
				return &p, nil
			}
			r.logger.WarnContext(ctx, "discarding undecodable cached plan", "key", key)
		} else if !errors.Is(err, cache.ErrMiss) {
			r.logger.WarnContext(ctx, "plan cache read failed", "key", key, "error", err)
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		p, err := fetch()
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if data, jerr := json.Marshal(p); jerr == nil {
				if serr := r.cache.Set(ctx, key, data, r.ttl); serr != nil {
					r.logger.WarnContext(ctx, "plan cache write failed", "key", key, "error", serr)
				}
			}
		}
		return p, nil
	})
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load plan: %w", err)
	}

	// Callers may mutate the plan; the shared flight result must not leak.
	p := *v.(*Plan)
	return &p, nil
}
