package queue

import "reflect"

// qualifiedStructName derives the default task name from a payload type,
// e.g. "delivery.EmailJob". Pointer payloads resolve to their element type.
func qualifiedStructName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}
