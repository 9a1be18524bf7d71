// Package store defines the persistent store contract used by the sync engine
// and a cache-aside wrapper that fronts it with the TTL cache.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FindOne when no row matches
var ErrNotFound = errors.New("store: not found")

// Conditions are column equality filters combined with AND
type Conditions map[string]any

// Fields are column assignments for Update
type Fields map[string]any

// OrderBy sorts a FindMany result by one column
type OrderBy struct {
	Column string
	Desc   bool
}

// Entity is a row type stored in one collection
type Entity interface {
	// Collection returns the table name
	Collection() string
	// Identity returns the unique column and value used as the upsert conflict key
	Identity() (column, value string)
}

// Repository is the persistent store for one entity type
type Repository[E Entity] interface {
	FindMany(ctx context.Context, cond Conditions, order *OrderBy) ([]E, error)
	FindOne(ctx context.Context, cond Conditions) (E, error)
	Count(ctx context.Context, cond Conditions) (int64, error)
	Create(ctx context.Context, entity E) (E, error)
	Update(ctx context.Context, fields Fields, cond Conditions) (int64, error)
	Upsert(ctx context.Context, entity E) (E, error)
	UpsertMany(ctx context.Context, entities []E) ([]E, error)
	Delete(ctx context.Context, cond Conditions) (int64, error)
}

// CollectionOf returns the collection name of an entity type without needing a value
func CollectionOf[E Entity]() string {
	var zero E
	return zero.Collection()
}
