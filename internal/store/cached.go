package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/cache"
	"github.com/parsascontentcorner/shelfsync/internal/metrics"
	"github.com/parsascontentcorner/shelfsync/internal/models"
)

// TTLPolicy maps a collection to how long its read results stay cached
type TTLPolicy struct {
	Default       time.Duration
	PerCollection map[string]time.Duration
}

// DefaultTTLPolicy keeps sync bookkeeping short-lived and catalog reads long-lived
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Default: 5 * time.Minute,
		PerCollection: map[string]time.Duration{
			models.TableSyncStatus: 30 * time.Second,
			models.TableRecords:    10 * time.Minute,
			models.TableBoardGames: 10 * time.Minute,
			models.TableBooks:      10 * time.Minute,
		},
	}
}

// For returns the TTL of a collection
func (p TTLPolicy) For(collection string) time.Duration {
	if ttl, ok := p.PerCollection[collection]; ok {
		return ttl
	}
	return p.Default
}

// Cached is a cache-aside Repository. Reads are served from the TTL cache
// when possible; every write invalidates all cached reads of the collection.
type Cached[E Entity] struct {
	repo       Repository[E]
	cache      *cache.Cache
	collection string
	ttl        time.Duration
	logger     *zap.Logger
}

var _ Repository[models.Record] = (*Cached[models.Record])(nil)

// NewCached wraps repo with the shared cache
func NewCached[E Entity](repo Repository[E], c *cache.Cache, policy TTLPolicy, logger *zap.Logger) *Cached[E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	collection := CollectionOf[E]()
	return &Cached[E]{
		repo:       repo,
		cache:      c,
		collection: collection,
		ttl:        policy.For(collection),
		logger:     logger.With(zap.String("collection", collection)),
	}
}

func orderPart(order *OrderBy) string {
	if order == nil {
		return "-"
	}
	if order.Desc {
		return order.Column + " desc"
	}
	return order.Column + " asc"
}

// FindMany returns every row matching cond
func (c *Cached[E]) FindMany(ctx context.Context, cond Conditions, order *OrderBy) ([]E, error) {
	key := cache.NewKey("findMany", c.collection, map[string]any(cond), orderPart(order)).String()

	if v, ok := c.cache.Get(key); ok {
		metrics.RecordCacheLookup(c.collection, true)
		rows := v.([]E)
		return append([]E(nil), rows...), nil
	}
	metrics.RecordCacheLookup(c.collection, false)

	rows, err := c.repo.FindMany(ctx, cond, order)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(key, append([]E(nil), rows...), c.ttl)
	return rows, nil
}

// FindOne returns the first row matching cond. Misses are not cached.
func (c *Cached[E]) FindOne(ctx context.Context, cond Conditions) (E, error) {
	key := cache.NewKey("findOne", c.collection, map[string]any(cond)).String()

	if v, ok := c.cache.Get(key); ok {
		metrics.RecordCacheLookup(c.collection, true)
		return v.(E), nil
	}
	metrics.RecordCacheLookup(c.collection, false)

	row, err := c.repo.FindOne(ctx, cond)
	if err != nil {
		return row, err
	}
	c.cache.SetWithTTL(key, row, c.ttl)
	return row, nil
}

// Count returns how many rows match cond
func (c *Cached[E]) Count(ctx context.Context, cond Conditions) (int64, error) {
	key := cache.NewKey("count", c.collection, map[string]any(cond)).String()

	if v, ok := c.cache.Get(key); ok {
		metrics.RecordCacheLookup(c.collection, true)
		return v.(int64), nil
	}
	metrics.RecordCacheLookup(c.collection, false)

	n, err := c.repo.Count(ctx, cond)
	if err != nil {
		return 0, err
	}
	c.cache.SetWithTTL(key, n, c.ttl)
	return n, nil
}

// Create inserts a row
func (c *Cached[E]) Create(ctx context.Context, entity E) (E, error) {
	defer c.invalidate()
	return c.repo.Create(ctx, entity)
}

// Update assigns fields on every row matching cond
func (c *Cached[E]) Update(ctx context.Context, fields Fields, cond Conditions) (int64, error) {
	defer c.invalidate()
	return c.repo.Update(ctx, fields, cond)
}

// Upsert inserts or updates a row keyed on its identity
func (c *Cached[E]) Upsert(ctx context.Context, entity E) (E, error) {
	defer c.invalidate()
	return c.repo.Upsert(ctx, entity)
}

// UpsertMany upserts every entity
func (c *Cached[E]) UpsertMany(ctx context.Context, entities []E) ([]E, error) {
	defer c.invalidate()
	return c.repo.UpsertMany(ctx, entities)
}

// Delete removes every row matching cond
func (c *Cached[E]) Delete(ctx context.Context, cond Conditions) (int64, error) {
	defer c.invalidate()
	return c.repo.Delete(ctx, cond)
}

// invalidate runs after the delegated write returns, whether or not it failed
func (c *Cached[E]) invalidate() {
	removed := c.cache.InvalidatePattern(cache.CollectionPattern(c.collection))
	if removed > 0 {
		metrics.CacheInvalidations.WithLabelValues(c.collection).Add(float64(removed))
		c.logger.Debug("Invalidated cached reads", zap.Int("count", removed))
	}
}

// IsNotFound reports whether err is ErrNotFound
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
