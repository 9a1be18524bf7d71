package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFetchAll_StopsWhenNoMorePages(t *testing.T) {
	var requested []int
	items, err := FetchAll(context.Background(), func(ctx context.Context, page int) (Page[string], error) {
		requested = append(requested, page)
		return Page[string]{Items: []string{"a", "b"}, HasMore: page < 3}, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, requested)
	assert.Len(t, items, 6)
}

func TestFetchAll_StopsOnEmptyPage(t *testing.T) {
	calls := 0
	items, err := FetchAll(context.Background(), func(ctx context.Context, page int) (Page[int], error) {
		calls++
		if page == 2 {
			return Page[int]{HasMore: true}, nil
		}
		return Page[int]{Items: []int{page}, HasMore: true}, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int{1}, items)
}

func TestFetchAll_FailingPageKeepsAccumulatedItems(t *testing.T) {
	boom := errors.New("connection reset")
	items, err := FetchAll(context.Background(), func(ctx context.Context, page int) (Page[int], error) {
		if page == 3 {
			return Page[int]{}, boom
		}
		return Page[int]{Items: []int{page * 10}, HasMore: true}, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "page 3")
	assert.Equal(t, []int{10, 20}, items)
}

func TestFetchAll_PageCeiling(t *testing.T) {
	calls := 0
	items, err := FetchAll(context.Background(), func(ctx context.Context, page int) (Page[int], error) {
		calls++
		return Page[int]{Items: []int{page}, HasMore: true}, nil
	})

	assert.ErrorIs(t, err, ErrPageLimit)
	assert.Equal(t, MaxPages, calls)
	assert.Len(t, items, MaxPages)
}

func TestFetchAll_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items, err := FetchAll(ctx, func(ctx context.Context, page int) (Page[int], error) {
		t.Error("fetch should not be called")
		return Page[int]{}, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, items)
}
