package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/shelfsync/internal/models"
)

func TestOrchestrator_BackToBackTriggers(t *testing.T) {
	tracker, _ := newTracker()
	runner := newBlockingRunner()
	o := NewOrchestrator(models.ServiceDiscogs, runner, tracker, nil)
	ctx := context.Background()

	require.NoError(t, o.Trigger(ctx))
	<-runner.started

	assert.ErrorIs(t, o.Trigger(ctx), ErrSyncInProgress)
	_, err := o.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.True(t, o.IsRunning())

	close(runner.release)

	assert.Eventually(t, func() bool { return !o.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestOrchestrator_SuccessUpdatesStatus(t *testing.T) {
	tracker, _ := newTracker()
	require.NoError(t, tracker.Init(context.Background(), models.AllServices()))

	o := NewOrchestrator(models.ServiceBGG, RunnerFunc(func(ctx context.Context) (Summary, error) {
		status, err := tracker.Get(ctx, models.ServiceBGG)
		require.NoError(t, err)
		assert.True(t, status.InProgress, "status is marked in progress during the pass")
		return Summary{Records: 2, Succeeded: 2}, nil
	}), tracker, nil)

	summary, err := o.RunOnce(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 2, summary.Succeeded)

	status, err := tracker.Get(context.Background(), models.ServiceBGG)
	require.NoError(t, err)
	assert.False(t, status.InProgress)
	assert.True(t, status.LastSyncAt.Valid)
	assert.False(t, status.Failed())
	assert.False(t, o.IsRunning())
}

func TestOrchestrator_FailureRecordsError(t *testing.T) {
	tracker, _ := newTracker()
	require.NoError(t, tracker.Init(context.Background(), models.AllServices()))

	o := NewOrchestrator(models.ServiceHardcover, RunnerFunc(func(ctx context.Context) (Summary, error) {
		return Summary{}, errors.New("fetch failed: 401 unauthorized")
	}), tracker, nil)

	_, err := o.RunOnce(context.Background())
	require.Error(t, err)

	status, err := tracker.Get(context.Background(), models.ServiceHardcover)
	require.NoError(t, err)
	assert.False(t, status.InProgress)
	assert.False(t, status.LastSyncAt.Valid)
	assert.True(t, status.Failed())
	assert.Equal(t, "fetch failed: 401 unauthorized", status.ErrorMessage.String)
}

func TestOrchestrator_SuccessClearsPreviousError(t *testing.T) {
	tracker, _ := newTracker()
	ctx := context.Background()
	require.NoError(t, tracker.Init(ctx, models.AllServices()))
	require.NoError(t, tracker.MarkFailed(ctx, models.ServiceDiscogs, errors.New("old failure")))

	o := NewOrchestrator(models.ServiceDiscogs, RunnerFunc(func(ctx context.Context) (Summary, error) {
		return Summary{}, nil
	}), tracker, nil)
	_, err := o.RunOnce(ctx)
	require.NoError(t, err)

	status, err := tracker.Get(ctx, models.ServiceDiscogs)
	require.NoError(t, err)
	assert.False(t, status.Failed())
}

func TestOrchestrator_RecoversPanic(t *testing.T) {
	tracker, _ := newTracker()
	require.NoError(t, tracker.Init(context.Background(), models.AllServices()))

	o := NewOrchestrator(models.ServiceDiscogs, RunnerFunc(func(ctx context.Context) (Summary, error) {
		panic("nil map")
	}), tracker, nil)

	_, err := o.RunOnce(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync panicked: nil map")
	assert.False(t, o.IsRunning())

	status, err := tracker.Get(context.Background(), models.ServiceDiscogs)
	require.NoError(t, err)
	assert.True(t, status.Failed())
	assert.False(t, status.InProgress)
}

func TestOrchestrator_NotifiesObservers(t *testing.T) {
	obs := &recordingObserver{}
	failure := errors.New("boom")
	o := NewOrchestrator(models.ServiceBGG, RunnerFunc(func(ctx context.Context) (Summary, error) {
		return Summary{}, failure
	}), nil, nil, obs)

	_, _ = o.RunOnce(context.Background())

	assert.Equal(t, []models.Service{models.ServiceBGG}, obs.started)
	require.Len(t, obs.finished, 1)
	assert.ErrorIs(t, obs.finished[0], failure)
}

func TestOrchestrator_CancelledContextStillRecordsResult(t *testing.T) {
	tracker, _ := newTracker()
	require.NoError(t, tracker.Init(context.Background(), models.AllServices()))

	ctx, cancel := context.WithCancel(context.Background())
	o := NewOrchestrator(models.ServiceDiscogs, RunnerFunc(func(ctx context.Context) (Summary, error) {
		cancel()
		return Summary{}, ctx.Err()
	}), tracker, nil)

	_, err := o.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	status, err := tracker.Get(context.Background(), models.ServiceDiscogs)
	require.NoError(t, err)
	assert.False(t, status.InProgress)
	assert.True(t, status.Failed())
}
