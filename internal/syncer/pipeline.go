// Package syncer reconciles the external catalog sources into the store:
// per-source orchestrators, the generic fetch/transform/persist pass, sync
// status bookkeeping and the periodic scheduler.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/shelfsync/internal/metrics"
	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/store"
)

// Lister fetches the raw items of both user lists from a source
type Lister[R any] interface {
	FetchAllCollection(ctx context.Context) ([]R, error)
	FetchAllWishlist(ctx context.Context) ([]R, error)
}

// Catalog is a catalog row that carries list membership flags
type Catalog[E any] interface {
	store.Entity
	Membership() (inCollection, inWishlist bool)
	WithMembership(inCollection, inWishlist bool) E
}

// Enricher resolves images for a catalog row before it is persisted. It
// must not fail the record.
type Enricher[E any] func(ctx context.Context, entity E) E

// Summary describes one finished pass
type Summary struct {
	Collection int `json:"collection"`
	Wishlist   int `json:"wishlist"`
	Records    int `json:"records"`
	Skipped    int `json:"skipped"`
	Succeeded  int `json:"succeeded"`
	Failed     int `json:"failed"`
}

// Pipeline is the pass of one source: R is the source's raw item type and
// E the catalog row it becomes.
type Pipeline[R any, E Catalog[E]] struct {
	Service   models.Service
	Lister    Lister[R]
	Transform func(R) (E, error)
	Enrich    Enricher[E]
	Store     store.Repository[E]

	BatchSize  int
	BatchPause time.Duration
	// Retries is how often a failed upsert is retried
	Retries       int
	RetryInterval time.Duration

	Logger *zap.Logger
}

// Run performs one pass: fetch both lists concurrently, transform, merge
// and persist in batches. Individual record failures are counted, not
// returned; an error means the pass itself could not complete.
func (p *Pipeline[R, E]) Run(ctx context.Context) (Summary, error) {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("service", string(p.Service)))

	var (
		collection, wishlist       []R
		collectionErr, wishlistErr error
		wg                         sync.WaitGroup
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer recoverFetch("collection", &collectionErr)
		collection, collectionErr = p.Lister.FetchAllCollection(ctx)
	}()
	go func() {
		defer wg.Done()
		defer recoverFetch("wishlist", &wishlistErr)
		wishlist, wishlistErr = p.Lister.FetchAllWishlist(ctx)
	}()
	wg.Wait()

	summary := Summary{Collection: len(collection), Wishlist: len(wishlist)}

	if collectionErr != nil {
		logger.Warn("Collection fetch incomplete", zap.Int("fetched", len(collection)), zap.Error(collectionErr))
	}
	if wishlistErr != nil {
		logger.Warn("Wishlist fetch incomplete", zap.Int("fetched", len(wishlist)), zap.Error(wishlistErr))
	}
	if collectionErr != nil && wishlistErr != nil && len(collection)+len(wishlist) == 0 {
		return summary, fmt.Errorf("fetch failed: %w", errors.Join(collectionErr, wishlistErr))
	}

	entities, skipped := p.merge(collection, wishlist, logger)
	summary.Records = len(entities)
	summary.Skipped = skipped

	outcomes, err := RunBatches(ctx, entities, p.BatchSize, p.BatchPause, p.process, func(batch int, results []Outcome) {
		succeeded, failed := Tally(results)
		for _, o := range results {
			if !o.OK() {
				logger.Warn("Record failed",
					zap.String("external_id", o.Key),
					zap.String("stage", o.Stage),
					zap.Error(o.Err),
				)
			}
		}
		logger.Info("Batch processed",
			zap.Int("batch", batch),
			zap.Int("succeeded", succeeded),
			zap.Int("failed", failed),
		)
	})
	summary.Succeeded, summary.Failed = Tally(outcomes)
	if err != nil {
		return summary, fmt.Errorf("batch processing interrupted: %w", err)
	}
	return summary, nil
}

// merge transforms both lists and folds entries seen in both into one row
// flagged for both lists. Order follows first appearance.
func (p *Pipeline[R, E]) merge(collection, wishlist []R, logger *zap.Logger) ([]E, int) {
	var (
		merged  []E
		index   = make(map[string]int, len(collection)+len(wishlist))
		skipped int
	)

	add := func(items []R, inCollection bool) {
		for _, raw := range items {
			entity, err := p.Transform(raw)
			if err != nil {
				skipped++
				metrics.RecordOutcomes.WithLabelValues(string(p.Service), StageTransform, "failure").Inc()
				logger.Debug("Skipping malformed item", zap.Error(err))
				continue
			}

			_, key := entity.Identity()
			if i, ok := index[key]; ok {
				c, w := merged[i].Membership()
				merged[i] = merged[i].WithMembership(c || inCollection, w || !inCollection)
				continue
			}
			index[key] = len(merged)
			merged = append(merged, entity.WithMembership(inCollection, !inCollection))
		}
	}
	add(collection, true)
	add(wishlist, false)

	return merged, skipped
}

// recoverFetch turns a panic in a list fetch into that list's error
func recoverFetch(list string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s fetch panicked: %v", list, r)
	}
}

func (p *Pipeline[R, E]) process(ctx context.Context, entity E) (out Outcome) {
	_, key := entity.Identity()

	stage := StageEnrich
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordOutcomes.WithLabelValues(string(p.Service), stage, "failure").Inc()
			out = Outcome{Key: key, Stage: stage, Err: fmt.Errorf("%s panicked: %v", stage, r)}
		}
	}()

	if p.Enrich != nil {
		entity = p.Enrich(ctx, entity)
	}
	stage = StagePersist

	interval := p.RetryInterval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = interval
	policy.MaxElapsedTime = 0

	retries := max(p.Retries, 0)
	err := backoff.Retry(func() error {
		_, err := p.Store.Upsert(ctx, entity)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx))

	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.RecordOutcomes.WithLabelValues(string(p.Service), StagePersist, result).Inc()

	return Outcome{Key: key, Stage: StagePersist, Err: err}
}
