package logger

import (
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"time"
)

const (
	redacted = "[REDACTED]"

	// Deeper values are logged as is
	maxRedactDepth = 8
)

// Keys that never should reach the logs as is
var sensitiveKey = regexp.MustCompile(`(?i)(password|passwd|secret|token|signature|authorization|cookie)`)

func redact(a slog.Attr) slog.Attr {
	if sensitiveKey.MatchString(a.Key) {
		return slog.String(a.Key, redacted)
	}

	if a.Value.Kind() != slog.KindAny {
		return a
	}

	return slog.Any(a.Key, redactValue(reflect.ValueOf(a.Value.Any()), 0))
}

// Walk maps with string keys, slices and structs
// Containers are copied into map[string]any or []any, so the logged value is never mutated
func redactValue(v reflect.Value, depth int) any {
	if !v.IsValid() {
		return nil
	}
	if depth > maxRedactDepth || isLeaf(v) {
		return v.Interface()
	}

	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return redactValue(v.Elem(), depth+1)

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return v.Interface()
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if sensitiveKey.MatchString(key) {
				out[key] = redacted
				continue
			}
			out[key] = redactValue(iter.Value(), depth+1)
		}
		return out

	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface()
		}
		out := make([]any, v.Len())
		for i := range v.Len() {
			out[i] = redactValue(v.Index(i), depth+1)
		}
		return out

	case reflect.Struct:
		return redactStruct(v, depth)

	default:
		return v.Interface()
	}
}

// Struct as map of exported fields named as encoding/json would name them
func redactStruct(v reflect.Value, depth int) any {
	t := v.Type()
	out := make(map[string]any, t.NumField())

	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name := field.Name
		if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
			continue
		} else if tag != "" {
			name = tag
		}

		if sensitiveKey.MatchString(field.Name) || sensitiveKey.MatchString(name) {
			out[name] = redacted
			continue
		}
		out[name] = redactValue(v.Field(i), depth+1)
	}

	// Nothing exported: let handler render it its own way
	if len(out) == 0 {
		return v.Interface()
	}
	return out
}

// Values with own text form are logged as they are
func isLeaf(v reflect.Value) bool {
	if !v.CanInterface() {
		return true
	}
	switch v.Interface().(type) {
	case error, fmt.Stringer, slog.LogValuer, time.Time:
		return true
	}
	return false
}
