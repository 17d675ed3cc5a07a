package cart

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/angelmondragon/shopcart-backend/pkg/logger"
	"github.com/angelmondragon/shopcart-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/shopcart-backend/pkg/redis"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// cartVersionTTL outlives every cached view so an expired generation counter
// can never resurrect a live entry.
const cartVersionTTL = 24 * time.Hour

// CacheStore is the Redis surface used by the cart read cache.
type CacheStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Version(ctx context.Context, name string) (int64, error)
	BumpVersion(ctx context.Context, name string, ttl time.Duration) error
	CartCacheKey(catalogVersion, cartVersion int64, userID string) string
}

var _ CacheStore = (*pkgredis.Client)(nil)

// viewCache keeps serialized ViewCart results in Redis. Keys carry the
// catalog generation and the user's cart generation; bumping either makes
// older entries unreachable and they age out by TTL.
type viewCache struct {
	store   CacheStore
	ttl     time.Duration
	metrics *metrics.CartMetrics
	logg    *logger.Logger
	group   singleflight.Group
}

func newViewCache(store CacheStore, ttl time.Duration, m *metrics.CartMetrics, logg *logger.Logger) *viewCache {
	if store == nil || ttl <= 0 {
		return nil
	}
	return &viewCache{store: store, ttl: ttl, metrics: m, logg: logg}
}

func (c *viewCache) get(ctx context.Context, userID uuid.UUID, load func(context.Context) (*CartView, error)) (*CartView, error) {
	if c == nil {
		return load(ctx)
	}

	key, err := c.key(ctx, userID)
	if err != nil {
		c.metrics.IncCache(metrics.CacheError)
		c.logg.Error(ctx, "cart.cache.version_failed", err)
		return load(ctx)
	}

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var view CartView
		if jsonErr := json.Unmarshal([]byte(raw), &view); jsonErr == nil {
			c.metrics.IncCache(metrics.CacheHit)
			return &view, nil
		}
		c.metrics.IncCache(metrics.CacheError)
	case errors.Is(err, pkgredis.ErrNil):
		c.metrics.IncCache(metrics.CacheMiss)
	default:
		c.metrics.IncCache(metrics.CacheError)
		c.logg.Error(ctx, "cart.cache.read_failed", err)
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		view, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.fill(ctx, key, view)
		return view, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CartView), nil
}

func (c *viewCache) fill(ctx context.Context, key string, view *CartView) {
	payload, err := json.Marshal(view)
	if err != nil {
		c.logg.Error(ctx, "cart.cache.encode_failed", err)
		return
	}
	if err := c.store.Set(ctx, key, payload, c.jitteredTTL()); err != nil {
		c.logg.Error(ctx, "cart.cache.write_failed", err)
	}
}

// invalidate must run after the mutation committed.
func (c *viewCache) invalidate(ctx context.Context, userID uuid.UUID) {
	if c == nil {
		return
	}
	if err := c.store.BumpVersion(ctx, pkgredis.CartVersionName(userID.String()), cartVersionTTL); err != nil {
		c.logg.Error(c.logg.WithUserID(ctx, userID.String()), "cart.cache.invalidate_failed", err)
	}
}

func (c *viewCache) key(ctx context.Context, userID uuid.UUID) (string, error) {
	catalog, err := c.store.Version(ctx, pkgredis.CatalogVersionName)
	if err != nil {
		return "", err
	}
	cart, err := c.store.Version(ctx, pkgredis.CartVersionName(userID.String()))
	if err != nil {
		return "", err
	}
	return c.store.CartCacheKey(catalog, cart, userID.String()), nil
}

// jitteredTTL spreads expiry by up to a tenth of the base TTL.
func (c *viewCache) jitteredTTL() time.Duration {
	spread := c.ttl / 10
	if spread <= 0 {
		return c.ttl
	}
	return c.ttl + rand.N(spread)
}
