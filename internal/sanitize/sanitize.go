// Package sanitize converts arbitrary user-supplied metadata into values that
// are guaranteed to JSON-encode. Cyclic references, unsupported kinds, and
// special numerics are replaced with diagnostic placeholder strings so a
// single bad field can never fail a whole commit.
package sanitize

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

const (
	// maxDepth bounds recursion into nested values. Anything deeper is
	// almost certainly not meaningful metadata.
	maxDepth = 10

	// maxBytes caps inline byte slices. Larger buffers are summarized
	// instead of being base64-encoded into the commit payload.
	maxBytes = 8 << 10
)

// Map sanitizes every value of m. The input map is never mutated.
// A nil map sanitizes to an empty one.
func Map(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = Value(v)
	}
	return out
}

// Value returns a JSON-safe representation of v. It never panics and never
// fails: values that cannot be represented are replaced by a best-effort
// string form.
func Value(v any) any {
	return clean(reflect.ValueOf(v), make(map[uintptr]bool), 0)
}

func clean(v reflect.Value, visited map[uintptr]bool, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > maxDepth {
		return "<max depth exceeded>"
	}

	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return clean(v.Elem(), visited, depth)

	case reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if visited[ptr] {
			return "<cycle>"
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		return clean(v.Elem(), visited, depth)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if visited[ptr] {
			return "<cycle>"
		}
		visited[ptr] = true
		defer delete(visited, ptr)

		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[mapKey(iter.Key())] = clean(iter.Value(), visited, depth+1)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return byteSlice(v)
		}
		ptr := v.Pointer()
		if visited[ptr] {
			return "<cycle>"
		}
		visited[ptr] = true
		defer delete(visited, ptr)
		return sliceValues(v, visited, depth)

	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)
			if len(b) > maxBytes {
				return fmt.Sprintf("<bytes len=%d>", len(b))
			}
			return b
		}
		return sliceValues(v, visited, depth)

	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			return t
		}
		out := make(map[string]any, v.NumField())
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			out[fieldName(f)] = clean(v.Field(i), visited, depth+1)
		}
		return out

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return f

	case reflect.Complex64, reflect.Complex128:
		return fmt.Sprint(v.Complex())

	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Interface()

	default:
		// Chan, Func, UnsafePointer, Uintptr.
		return fmt.Sprintf("<unserializable %s>", v.Kind())
	}
}

func sliceValues(v reflect.Value, visited map[uintptr]bool, depth int) []any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = clean(v.Index(i), visited, depth+1)
	}
	return out
}

func byteSlice(v reflect.Value) any {
	if v.Len() > maxBytes {
		return fmt.Sprintf("<bytes len=%d>", v.Len())
	}
	return v.Bytes()
}

func mapKey(k reflect.Value) string {
	if k.Kind() == reflect.String {
		return k.String()
	}
	return fmt.Sprint(k.Interface())
}

func fieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return f.Name
	}
	for i := 0; i < len(tag); i++ {
		if tag[i] == ',' {
			if i == 0 {
				return f.Name
			}
			return tag[:i]
		}
	}
	return tag
}
