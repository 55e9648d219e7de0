package populate

import (
	"fmt"
	"reflect"
	"strings"
)

// getPath reads a dotted path from doc. found is false when the leaf key is
// missing or any intermediate value is not an object (nil, false, 0 and ""
// included).
func getPath(doc map[string]any, path string) (value any, found bool) {
	segments := strings.Split(path, ".")
	current := doc
	for i, seg := range segments {
		v, ok := current[seg]
		if !ok {
			return nil, false
		}
		if i == len(segments)-1 {
			return v, true
		}
		next, ok := asMap(v)
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// setPath replaces the leaf of a dotted path. Intermediate objects are
// reused; Plainer intermediates are swapped for their plain form first.
func setPath(doc map[string]any, path string, value any) {
	segments := strings.Split(path, ".")
	current := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := asMap(current[seg])
		if !ok {
			next = map[string]any{}
		}
		current[seg] = next
		current = next
	}
	current[segments[len(segments)-1]] = value
}

// deletePath removes the leaf of a dotted path if the path exists.
func deletePath(doc map[string]any, path string) {
	segments := strings.Split(path, ".")
	current := doc
	for _, seg := range segments[:len(segments)-1] {
		next, ok := asMap(current[seg])
		if !ok {
			return
		}
		current[seg] = next
		current = next
	}
	delete(current, segments[len(segments)-1])
}

// asMap converts v to a plain object if it is one or can produce one.
func asMap(v any) (map[string]any, bool) {
	switch val := v.(type) {
	case map[string]any:
		return val, val != nil
	case Plainer:
		m := val.Plain()
		return m, m != nil
	default:
		return nil, false
	}
}

// toPlain serializes a fetched record for write-back.
func toPlain(v any) any {
	if p, ok := v.(Plainer); ok {
		return p.Plain()
	}
	return v
}

// asList reports whether v is an array-valued reference and returns its elements.
func asList(v any) ([]any, bool) {
	switch val := v.(type) {
	case []any:
		return val, true
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out, true
	case []byte, string:
		return nil, false
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func idKey(v any) string {
	return fmt.Sprintf("%v", v)
}
