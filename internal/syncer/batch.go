package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Stages of per-record work
const (
	StageTransform = "transform"
	StageEnrich    = "enrich"
	StagePersist   = "persist"
)

// Outcome is the result of one record's work
type Outcome struct {
	Key   string
	Stage string
	Err   error
}

// OK reports whether the record was handled successfully
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Tally counts successes and failures
func Tally(outcomes []Outcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.OK() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// BatchFunc is called after every batch with its 1-based index
type BatchFunc func(batch int, outcomes []Outcome)

// RunBatches runs work over items size at a time. Items of one batch run
// concurrently; the next batch starts only after every item of the
// previous one finished and pause elapsed. If ctx ends between batches the
// remaining items are not started and ctx's error is returned with the
// outcomes gathered so far. A panicking work call becomes a failed Outcome.
func RunBatches[T any](ctx context.Context, items []T, size int, pause time.Duration, work func(context.Context, T) Outcome, onBatch BatchFunc) ([]Outcome, error) {
	if size < 1 {
		size = 1
	}

	outcomes := make([]Outcome, 0, len(items))
	for start, batch := 0, 1; start < len(items); start, batch = start+size, batch+1 {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}

		end := min(start+size, len(items))
		results := make([]Outcome, end-start)

		var wg sync.WaitGroup
		for i, item := range items[start:end] {
			wg.Add(1)
			go func(i int, item T) {
				defer wg.Done()
				defer func() {
					if r := recover(); r != nil {
						results[i] = Outcome{Err: fmt.Errorf("record work panicked: %v", r)}
					}
				}()
				results[i] = work(ctx, item)
			}(i, item)
		}
		wg.Wait()

		outcomes = append(outcomes, results...)
		if onBatch != nil {
			onBatch(batch, results)
		}

		if end < len(items) && pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return outcomes, ctx.Err()
			case <-timer.C:
			}
		}
	}
	return outcomes, nil
}
