package cache

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// keySeparator joins the parts of a Key
const keySeparator = "|"

// Key is an ordered cache key. Its serialized form is
// op|collection|part|part... and always carries at least one part after the
// collection, so CollectionPattern matches every key of a collection.
type Key struct {
	Op         string
	Collection string
	Parts      []string
}

// NewKey builds a key from an operation, a collection and arbitrary values.
// Each value is canonicalized with Canonical.
func NewKey(op, collection string, values ...any) Key {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, Canonical(v))
	}
	if len(parts) == 0 {
		parts = append(parts, "-")
	}
	return Key{Op: op, Collection: collection, Parts: parts}
}

// String returns the serialized key
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Op)
	b.WriteString(keySeparator)
	b.WriteString(k.Collection)
	for _, p := range k.Parts {
		b.WriteString(keySeparator)
		b.WriteString(p)
	}
	return b.String()
}

// CollectionPattern returns the substring shared by every key of collection
func CollectionPattern(collection string) string {
	return keySeparator + collection + keySeparator
}

// Canonical produces a stable textual form of v. Map keys are sorted at every
// depth and scalars, map keys included, carry a type tag, so {"a":1} and
// {"a":"1"} differ while two maps with the same contents always produce the
// same string.
func Canonical(v any) string {
	var b strings.Builder
	writeCanonical(&b, reflect.ValueOf(v))
	return b.String()
}

func writeCanonical(b *strings.Builder, v reflect.Value) {
	if !v.IsValid() {
		b.WriteString("nil")
		return
	}
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			b.WriteString("nil")
			return
		}
		writeCanonical(b, v.Elem())
		return
	}

	if t, ok := v.Interface().(time.Time); ok {
		b.WriteString("t:")
		b.WriteString(t.UTC().Format(time.RFC3339Nano))
		return
	}
	if s, ok := v.Interface().(fmt.Stringer); ok && v.Kind() != reflect.Struct {
		b.WriteString("s:")
		b.WriteString(s.String())
		return
	}

	switch v.Kind() {
	case reflect.String:
		b.WriteString("s:")
		b.WriteString(v.String())
	case reflect.Bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(v.Bool()))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(v.Int(), 10))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatUint(v.Uint(), 10))
	case reflect.Float32, reflect.Float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(v.Float(), 'g', -1, 64))
	case reflect.Map:
		keys := v.MapKeys()
		sorted := make([]string, len(keys))
		index := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			ks := Canonical(k.Interface())
			sorted[i] = ks
			index[ks] = v.MapIndex(k)
		}
		sort.Strings(sorted)
		b.WriteString("{")
		for i, ks := range sorted {
			if i > 0 {
				b.WriteString(",")
			}
			b.WriteString(ks)
			b.WriteString("=")
			writeCanonical(b, index[ks])
		}
		b.WriteString("}")
	case reflect.Slice, reflect.Array:
		b.WriteString("[")
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				b.WriteString(",")
			}
			writeCanonical(b, v.Index(i))
		}
		b.WriteString("]")
	default:
		data, err := json.Marshal(v.Interface())
		if err != nil {
			fmt.Fprintf(b, "v:%v", v.Interface())
			return
		}
		b.WriteString("j:")
		b.Write(data)
	}
}
