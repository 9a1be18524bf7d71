package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatches_BoundsConcurrencyAndOrdersBatches(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7}

	var inflight, peak atomic.Int32
	var mu sync.Mutex
	var finishedBefore []int
	var batches []int

	outcomes, err := RunBatches(context.Background(), items, 3, 0, func(ctx context.Context, item int) Outcome {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inflight.Add(-1)
		return Outcome{Key: "k", Stage: StagePersist}
	}, func(batch int, results []Outcome) {
		mu.Lock()
		defer mu.Unlock()
		batches = append(batches, batch)
		finishedBefore = append(finishedBefore, int(inflight.Load()))
	})

	require.NoError(t, err)
	assert.Len(t, outcomes, 7)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, []int{1, 2, 3}, batches)
	assert.Equal(t, []int{0, 0, 0}, finishedBefore, "every item of a batch settles before the callback")
}

func TestRunBatches_PausesBetweenBatches(t *testing.T) {
	start := time.Now()
	_, err := RunBatches(context.Background(), []int{1, 2, 3, 4, 5}, 2, 30*time.Millisecond, func(ctx context.Context, item int) Outcome {
		return Outcome{}
	}, nil)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRunBatches_FailuresDoNotStopBatch(t *testing.T) {
	outcomes, err := RunBatches(context.Background(), []int{1, 2, 3}, 3, 0, func(ctx context.Context, item int) Outcome {
		if item == 2 {
			return Outcome{Key: "2", Stage: StagePersist, Err: errors.New("rejected")}
		}
		return Outcome{Stage: StagePersist}
	}, nil)

	require.NoError(t, err)
	succeeded, failed := Tally(outcomes)
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, 1, failed)
}

func TestRunBatches_PanicBecomesFailedOutcome(t *testing.T) {
	outcomes, err := RunBatches(context.Background(), []int{1, 2, 3}, 3, 0, func(ctx context.Context, item int) Outcome {
		if item == 2 {
			panic("decoder bug")
		}
		return Outcome{Stage: StagePersist}
	}, nil)

	require.NoError(t, err)
	require.Len(t, outcomes, 3)
	assert.True(t, outcomes[0].OK())
	assert.ErrorContains(t, outcomes[1].Err, "decoder bug")
	assert.True(t, outcomes[2].OK())
}

func TestRunBatches_StopsWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	outcomes, err := RunBatches(ctx, []int{1, 2, 3, 4}, 2, time.Hour, func(ctx context.Context, item int) Outcome {
		calls.Add(1)
		return Outcome{}
	}, func(batch int, results []Outcome) {
		cancel()
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, outcomes, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRunBatches_Empty(t *testing.T) {
	outcomes, err := RunBatches(context.Background(), []int(nil), 3, time.Second, func(ctx context.Context, item int) Outcome {
		t.Error("work should not be called")
		return Outcome{}
	}, nil)

	assert.NoError(t, err)
	assert.Empty(t, outcomes)
}
