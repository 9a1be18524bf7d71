package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/lib/pq"

	"github.com/parsascontentcorner/shelfsync/internal/models"
	"github.com/parsascontentcorner/shelfsync/internal/store"
)

// queryer is satisfied by *sql.DB and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Table is a store.Repository backed by one PostgreSQL table. Column names
// come from the entity's db tags and every caller supplied column is checked
// against them before it reaches SQL.
type Table[E store.Entity] struct {
	db       *DB
	name     string
	columns  []string
	writable []string
}

var (
	_ store.Repository[models.Record]     = (*Table[models.Record])(nil)
	_ store.Repository[models.SyncStatus] = (*Table[models.SyncStatus])(nil)
)

// NewTable creates a repository for E
func NewTable[E store.Entity](db *DB) *Table[E] {
	return &Table[E]{
		db:       db,
		name:     store.CollectionOf[E](),
		columns:  store.Columns[E](),
		writable: store.WritableColumns[E](),
	}
}

// FindMany returns every row matching cond
func (t *Table[E]) FindMany(ctx context.Context, cond store.Conditions, order *store.OrderBy) ([]E, error) {
	where, args, err := t.where(cond, 1)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s", t.columnList(t.columns), pq.QuoteIdentifier(t.name), where)
	if order != nil {
		if !store.HasColumn[E](order.Column) {
			return nil, fmt.Errorf("unknown order column %q", order.Column)
		}
		direction := "ASC"
		if order.Desc {
			direction = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s, id", pq.QuoteIdentifier(order.Column), direction)
	} else {
		query += " ORDER BY id"
	}

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()

	var out []E
	for rows.Next() {
		var e E
		targets, err := store.ScanTargets(&e, t.columns)
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", t.name, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", t.name, err)
	}
	return out, nil
}

// FindOne returns the first row matching cond or store.ErrNotFound
func (t *Table[E]) FindOne(ctx context.Context, cond store.Conditions) (E, error) {
	var e E
	where, args, err := t.where(cond, 1)
	if err != nil {
		return e, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY id LIMIT 1",
		t.columnList(t.columns), pq.QuoteIdentifier(t.name), where)

	targets, err := store.ScanTargets(&e, t.columns)
	if err != nil {
		return e, err
	}
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(targets...); err != nil {
		var zero E
		if errors.Is(err, sql.ErrNoRows) {
			return zero, store.ErrNotFound
		}
		return zero, fmt.Errorf("failed to get %s row: %w", t.name, err)
	}
	return e, nil
}

// Count returns the number of matching rows
func (t *Table[E]) Count(ctx context.Context, cond store.Conditions) (int64, error) {
	where, args, err := t.where(cond, 1)
	if err != nil {
		return 0, err
	}

	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", pq.QuoteIdentifier(t.name), where)
	if err := t.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", t.name, err)
	}
	return n, nil
}

// Create inserts a row and fills in the store managed columns
func (t *Table[E]) Create(ctx context.Context, entity E) (E, error) {
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id, created_at, updated_at",
		pq.QuoteIdentifier(t.name), t.columnList(t.writable), placeholders(len(t.writable), 1))

	if err := t.returning(ctx, t.db, query, &entity); err != nil {
		return entity, fmt.Errorf("failed to create %s row: %w", t.name, err)
	}
	return entity, nil
}

// Update assigns fields on every row matching cond
func (t *Table[E]) Update(ctx context.Context, fields store.Fields, cond store.Conditions) (int64, error) {
	if len(fields) == 0 {
		return 0, fmt.Errorf("update of %s without fields", t.name)
	}

	cols := sortedKeys(fields)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+len(cond))
	for i, col := range cols {
		if !store.HasColumn[E](col) || store.IsManaged(col) {
			return 0, fmt.Errorf("column %q cannot be updated", col)
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), i+1))
		args = append(args, fields[col])
	}
	sets = append(sets, "updated_at = NOW()")

	where, whereArgs, err := t.where(cond, len(args)+1)
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s%s", pq.QuoteIdentifier(t.name), strings.Join(sets, ", "), where)
	res, err := t.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update %s: %w", t.name, err)
	}
	return res.RowsAffected()
}

// Upsert inserts entity or updates the row sharing its identity
func (t *Table[E]) Upsert(ctx context.Context, entity E) (E, error) {
	if err := t.returning(ctx, t.db, t.upsertQuery(entity), &entity); err != nil {
		return entity, fmt.Errorf("failed to upsert %s row: %w", t.name, err)
	}
	return entity, nil
}

// UpsertMany upserts every entity inside one transaction
func (t *Table[E]) UpsertMany(ctx context.Context, entities []E) ([]E, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	out := make([]E, 0, len(entities))
	for _, e := range entities {
		if err := t.returning(ctx, tx, t.upsertQuery(e), &e); err != nil {
			return nil, fmt.Errorf("failed to upsert %s row: %w", t.name, err)
		}
		out = append(out, e)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit upserts: %w", err)
	}
	return out, nil
}

// Delete removes every row matching cond
func (t *Table[E]) Delete(ctx context.Context, cond store.Conditions) (int64, error) {
	where, args, err := t.where(cond, 1)
	if err != nil {
		return 0, err
	}

	res, err := t.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", pq.QuoteIdentifier(t.name), where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", t.name, err)
	}
	return res.RowsAffected()
}

func (t *Table[E]) upsertQuery(entity E) string {
	conflict, _ := entity.Identity()

	updates := make([]string, 0, len(t.writable))
	for _, col := range t.writable {
		if col == conflict {
			continue
		}
		q := pq.QuoteIdentifier(col)
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	updates = append(updates, "updated_at = NOW()")

	return fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)
		ON CONFLICT (%s) DO UPDATE
		SET %s
		RETURNING id, created_at, updated_at`,
		pq.QuoteIdentifier(t.name),
		t.columnList(t.writable),
		placeholders(len(t.writable), 1),
		pq.QuoteIdentifier(conflict),
		strings.Join(updates, ", "),
	)
}

// returning executes an insert whose RETURNING clause fills the managed columns of e
func (t *Table[E]) returning(ctx context.Context, q queryer, query string, e *E) error {
	args := store.Values(*e, t.writable)
	targets, err := store.ScanTargets(e, []string{store.ColumnID, store.ColumnCreatedAt, store.ColumnUpdatedAt})
	if err != nil {
		return err
	}
	return q.QueryRowContext(ctx, query, args...).Scan(targets...)
}

// where builds a WHERE clause with placeholders numbered from start
func (t *Table[E]) where(cond store.Conditions, start int) (string, []any, error) {
	if len(cond) == 0 {
		return "", nil, nil
	}

	cols := sortedKeys(cond)
	clauses := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols))
	for _, col := range cols {
		if !store.HasColumn[E](col) {
			return "", nil, fmt.Errorf("unknown column %q", col)
		}
		v := cond[col]
		if v == nil {
			clauses = append(clauses, pq.QuoteIdentifier(col)+" IS NULL")
			continue
		}
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(col), start+len(args)-1))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func (t *Table[E]) columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n, start int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(ph, ", ")
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
