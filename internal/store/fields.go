package store

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"reflect"
	"sync"
)

// Columns the store manages itself and never takes from the caller
const (
	ColumnID        = "id"
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

type fieldInfo struct {
	name  string
	index int
}

var fieldCache sync.Map // reflect.Type -> []fieldInfo

func fieldsOf(t reflect.Type) []fieldInfo {
	if cached, ok := fieldCache.Load(t); ok {
		return cached.([]fieldInfo)
	}

	var fields []fieldInfo
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		fields = append(fields, fieldInfo{name: tag, index: i})
	}

	fieldCache.Store(t, fields)
	return fields
}

func structType[E any]() reflect.Type {
	var zero E
	return reflect.TypeOf(zero)
}

// Columns returns every db-tagged column of E in declaration order
func Columns[E any]() []string {
	fields := fieldsOf(structType[E]())
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.name
	}
	return cols
}

// WritableColumns returns the columns a caller supplies on insert
func WritableColumns[E any]() []string {
	var cols []string
	for _, c := range Columns[E]() {
		if !IsManaged(c) {
			cols = append(cols, c)
		}
	}
	return cols
}

// IsManaged reports whether a column is maintained by the store
func IsManaged(column string) bool {
	return column == ColumnID || column == ColumnCreatedAt || column == ColumnUpdatedAt
}

// HasColumn reports whether E maps column
func HasColumn[E any](column string) bool {
	for _, f := range fieldsOf(structType[E]()) {
		if f.name == column {
			return true
		}
	}
	return false
}

// Values returns the field values of e for cols, in order
func Values[E any](e E, cols []string) []any {
	v := reflect.ValueOf(e)
	out := make([]any, len(cols))
	for i, c := range cols {
		if f, ok := fieldByColumn(v, c); ok {
			out[i] = f.Interface()
		}
	}
	return out
}

// Value returns the field value of e mapped to column
func Value[E any](e E, column string) (any, bool) {
	f, ok := fieldByColumn(reflect.ValueOf(e), column)
	if !ok {
		return nil, false
	}
	return f.Interface(), true
}

// ScanTargets returns pointers into e for cols, suitable for sql.Rows.Scan
func ScanTargets[E any](e *E, cols []string) ([]any, error) {
	v := reflect.ValueOf(e).Elem()
	out := make([]any, len(cols))
	for i, c := range cols {
		f, ok := fieldByColumn(v, c)
		if !ok {
			return nil, fmt.Errorf("unknown column %q", c)
		}
		out[i] = f.Addr().Interface()
	}
	return out, nil
}

// SetValue assigns value to the field of e mapped to column. Plain values are
// converted within their kind family; nullable types go through sql.Scanner.
func SetValue[E any](e *E, column string, value any) error {
	f, ok := fieldByColumn(reflect.ValueOf(e).Elem(), column)
	if !ok {
		return fmt.Errorf("unknown column %q", column)
	}

	if value == nil {
		if scanner, ok := f.Addr().Interface().(sql.Scanner); ok {
			return scanner.Scan(nil)
		}
		f.Set(reflect.Zero(f.Type()))
		return nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(f.Type()) {
		f.Set(rv)
		return nil
	}
	if sameFamily(rv.Kind(), f.Kind()) && rv.Type().ConvertibleTo(f.Type()) {
		f.Set(rv.Convert(f.Type()))
		return nil
	}
	if scanner, ok := f.Addr().Interface().(sql.Scanner); ok {
		return scanner.Scan(value)
	}
	return fmt.Errorf("column %q: cannot assign %T to %s", column, value, f.Type())
}

// Matches reports whether e satisfies every condition
func Matches[E any](e E, cond Conditions) bool {
	v := reflect.ValueOf(e)
	for col, want := range cond {
		f, ok := fieldByColumn(v, col)
		if !ok || !valueEquals(f, want) {
			return false
		}
	}
	return true
}

func fieldByColumn(v reflect.Value, column string) (reflect.Value, bool) {
	for _, f := range fieldsOf(v.Type()) {
		if f.name == column {
			return v.Field(f.index), true
		}
	}
	return reflect.Value{}, false
}

func valueEquals(field reflect.Value, want any) bool {
	got := field.Interface()
	if valuer, ok := got.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return false
		}
		if want == nil || dv == nil {
			return want == nil && dv == nil
		}
		got = dv
		field = reflect.ValueOf(dv)
	}
	if want == nil {
		return field.IsZero()
	}

	wv := reflect.ValueOf(want)
	if wv.Type() == field.Type() {
		return reflect.DeepEqual(got, want)
	}
	if sameFamily(wv.Kind(), field.Kind()) && wv.Type().ConvertibleTo(field.Type()) {
		return reflect.DeepEqual(got, wv.Convert(field.Type()).Interface())
	}
	return false
}

func sameFamily(a, b reflect.Kind) bool {
	return kindFamily(a) != 0 && kindFamily(a) == kindFamily(b)
}

func kindFamily(k reflect.Kind) int {
	switch k {
	case reflect.String:
		return 1
	case reflect.Bool:
		return 2
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return 3
	case reflect.Slice:
		return 4
	default:
		return 0
	}
}
