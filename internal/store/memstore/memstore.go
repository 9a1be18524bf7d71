// Package memstore is an in-memory store.Repository used for development
// and tests. It honours the same upsert-on-identity semantics as PostgreSQL.
package memstore

import (
	"cmp"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/store"
)

// Table holds the rows of one entity type
type Table[E store.Entity] struct {
	mu     sync.RWMutex
	rows   []E
	nextID int64
	now    func() time.Time
}

// New creates an empty table
func New[E store.Entity]() *Table[E] {
	return &Table[E]{nextID: 1, now: time.Now}
}

var _ store.Repository[models.Record] = (*Table[models.Record])(nil)

// FindMany returns copies of every matching row
func (t *Table[E]) FindMany(_ context.Context, cond store.Conditions, order *store.OrderBy) ([]E, error) {
	if err := t.checkColumns(cond); err != nil {
		return nil, err
	}

	t.mu.RLock()
	var out []E
	for _, row := range t.rows {
		if store.Matches(row, cond) {
			out = append(out, row)
		}
	}
	t.mu.RUnlock()

	if order != nil {
		if !store.HasColumn[E](order.Column) {
			return nil, fmt.Errorf("unknown order column %q", order.Column)
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, _ := store.Value(out[i], order.Column)
			b, _ := store.Value(out[j], order.Column)
			if order.Desc {
				return compare(b, a) < 0
			}
			return compare(a, b) < 0
		})
	}
	return out, nil
}

// FindOne returns the first matching row or store.ErrNotFound
func (t *Table[E]) FindOne(ctx context.Context, cond store.Conditions) (E, error) {
	var zero E
	rows, err := t.FindMany(ctx, cond, &store.OrderBy{Column: store.ColumnID})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, store.ErrNotFound
	}
	return rows[0], nil
}

// Count returns the number of matching rows
func (t *Table[E]) Count(ctx context.Context, cond store.Conditions) (int64, error) {
	rows, err := t.FindMany(ctx, cond, nil)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)), nil
}

// Create inserts a new row, failing on a duplicate identity
func (t *Table[E]) Create(_ context.Context, entity E) (E, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.indexOfLocked(entity); ok {
		col, val := entity.Identity()
		var zero E
		return zero, fmt.Errorf("duplicate %s %q in %s", col, val, entity.Collection())
	}
	return t.insertLocked(entity)
}

// Update assigns fields on every matching row
func (t *Table[E]) Update(_ context.Context, fields store.Fields, cond store.Conditions) (int64, error) {
	if err := t.checkColumns(cond); err != nil {
		return 0, err
	}
	for col := range fields {
		if !store.HasColumn[E](col) || store.IsManaged(col) {
			return 0, fmt.Errorf("column %q cannot be updated", col)
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var updated int64
	for i, row := range t.rows {
		if !store.Matches(row, cond) {
			continue
		}
		for col, val := range fields {
			if err := store.SetValue(&row, col, val); err != nil {
				return updated, err
			}
		}
		if err := store.SetValue(&row, store.ColumnUpdatedAt, now); err != nil {
			return updated, err
		}
		t.rows[i] = row
		updated++
	}
	return updated, nil
}

// Upsert inserts entity or overwrites the row sharing its identity
func (t *Table[E]) Upsert(_ context.Context, entity E) (E, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.upsertLocked(entity)
}

// UpsertMany upserts every entity in order
func (t *Table[E]) UpsertMany(_ context.Context, entities []E) ([]E, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]E, 0, len(entities))
	for _, e := range entities {
		saved, err := t.upsertLocked(e)
		if err != nil {
			return out, err
		}
		out = append(out, saved)
	}
	return out, nil
}

// Delete removes every matching row
func (t *Table[E]) Delete(_ context.Context, cond store.Conditions) (int64, error) {
	if err := t.checkColumns(cond); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.rows[:0]
	var removed int64
	for _, row := range t.rows {
		if store.Matches(row, cond) {
			removed++
			continue
		}
		kept = append(kept, row)
	}
	t.rows = kept
	return removed, nil
}

func (t *Table[E]) upsertLocked(entity E) (E, error) {
	idx, ok := t.indexOfLocked(entity)
	if !ok {
		return t.insertLocked(entity)
	}

	existing := t.rows[idx]
	id, _ := store.Value(existing, store.ColumnID)
	createdAt, _ := store.Value(existing, store.ColumnCreatedAt)

	if err := store.SetValue(&entity, store.ColumnID, id); err != nil {
		return entity, err
	}
	if err := store.SetValue(&entity, store.ColumnCreatedAt, createdAt); err != nil {
		return entity, err
	}
	if err := store.SetValue(&entity, store.ColumnUpdatedAt, t.now()); err != nil {
		return entity, err
	}
	t.rows[idx] = entity
	return entity, nil
}

func (t *Table[E]) insertLocked(entity E) (E, error) {
	if _, val := entity.Identity(); val == "" {
		return entity, fmt.Errorf("empty identity for %s", entity.Collection())
	}

	now := t.now()
	if err := store.SetValue(&entity, store.ColumnID, t.nextID); err != nil {
		return entity, err
	}
	if err := store.SetValue(&entity, store.ColumnCreatedAt, now); err != nil {
		return entity, err
	}
	if err := store.SetValue(&entity, store.ColumnUpdatedAt, now); err != nil {
		return entity, err
	}
	t.nextID++
	t.rows = append(t.rows, entity)
	return entity, nil
}

func (t *Table[E]) indexOfLocked(entity E) (int, bool) {
	_, want := entity.Identity()
	for i, row := range t.rows {
		if _, got := row.Identity(); got == want {
			return i, true
		}
	}
	return 0, false
}

func (t *Table[E]) checkColumns(cond store.Conditions) error {
	for col := range cond {
		if !store.HasColumn[E](col) {
			return fmt.Errorf("unknown column %q", col)
		}
	}
	return nil
}

// compare orders the scalar column types used by the catalog models
func compare(a, b any) int {
	switch av := a.(type) {
	case string:
		return strings.Compare(av, b.(string))
	case int:
		return cmp.Compare(av, b.(int))
	case int64:
		return cmp.Compare(av, b.(int64))
	case float64:
		return cmp.Compare(av, b.(float64))
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case time.Time:
		return av.Compare(b.(time.Time))
	default:
		return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
	}
}
