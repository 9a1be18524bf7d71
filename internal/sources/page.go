package sources

import (
	"context"
	"errors"
	"fmt"
)

// MaxPages bounds FetchAll against sources that never report the last page
const MaxPages = 200

// ErrPageLimit is returned by FetchAll when MaxPages was reached
var ErrPageLimit = errors.New("sources: page limit reached")

// Page is one page of raw source items
type Page[T any] struct {
	Items   []T
	HasMore bool
}

// PageFunc fetches one page, numbered from 1
type PageFunc[T any] func(ctx context.Context, page int) (Page[T], error)

// FetchAll requests pages until one reports no more items or comes back
// empty. When a page fails, the items gathered so far are returned together
// with the error.
func FetchAll[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var all []T
	for page := 1; page <= MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		p, err := fetch(ctx, page)
		if err != nil {
			return all, fmt.Errorf("page %d: %w", page, err)
		}

		all = append(all, p.Items...)
		if !p.HasMore || len(p.Items) == 0 {
			return all, nil
		}
	}
	return all, fmt.Errorf("%w after %d pages", ErrPageLimit, MaxPages)
}
