// Package normalize converts arbitrary-shaped inbound payloads into a
// canonical string-keyed mapping. Documents arriving from the queue and
// the change feed have no guaranteed shape, so every conversion strategy
// here degrades instead of failing: Normalize always returns a usable map.
package normalize

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// RawKey holds the string representation of an input that resisted every
// conversion strategy.
const RawKey = "raw"

// wellKnownFields is the last-resort allow-list probed by attribute access
// when generic introspection yields nothing.
var wellKnownFields = []string{
	"Level", "Severity", "AppName", "Application",
	"Message", "RequestId", "RequestID", "Id", "ID",
	"TimeGenerated", "Timestamp", "UserId", "UserID",
	"StatusCode", "FileName",
}

// Normalize converts v into a string-keyed mapping using a fixed fallback
// chain: direct mapping, generic map conversion, JSON round-trip,
// exported-field introspection, allow-list probing, and finally a
// one-field raw wrapper. It never returns nil and never panics.
func Normalize(v any) map[string]any {
	if v == nil {
		return map[string]any{RawKey: "<nil>"}
	}

	if m, ok := v.(map[string]any); ok && m != nil {
		return m
	}

	if m := fromGenericMap(v); m != nil {
		return m
	}

	if m := fromJSONRoundTrip(v); m != nil {
		return m
	}

	if m := fromExportedFields(v); m != nil {
		return m
	}

	if m := fromAllowList(v); m != nil {
		return m
	}

	return map[string]any{RawKey: fmt.Sprint(v)}
}

// fromGenericMap converts any map with string-convertible keys.
func fromGenericMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map {
		return nil
	}

	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := iter.Key()
		if key.Kind() != reflect.String {
			return nil
		}
		out[key.String()] = iter.Value().Interface()
	}
	return out
}

// fromJSONRoundTrip serializes v and parses the output back into a map.
// This covers structs, json.Marshaler implementations, and anything else
// with a usable structured serialization.
func fromJSONRoundTrip(v any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// fromExportedFields reads public, non-func struct fields by reflection.
func fromExportedFields(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	out := map[string]any{}
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		value := rv.Field(i)
		if value.Kind() == reflect.Func {
			continue
		}
		out[field.Name] = value.Interface()
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// fromAllowList probes a fixed set of commonly expected field names.
func fromAllowList(v any) map[string]any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	out := map[string]any{}
	for _, name := range wellKnownFields {
		f := rv.FieldByName(name)
		if f.IsValid() && f.CanInterface() && f.Kind() != reflect.Func {
			out[name] = f.Interface()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Lookup resolves the first present, non-nil value among candidate field
// names, case-insensitively. The second return is false when no candidate
// is present.
func Lookup(doc map[string]any, candidates ...string) (any, bool) {
	if len(doc) == 0 {
		return nil, false
	}
	lowered := make(map[string]any, len(doc))
	for k, v := range doc {
		lowered[strings.ToLower(k)] = v
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if v, ok := lowered[strings.ToLower(c)]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String resolves a candidate field as a string, returning def when no
// candidate is present or the value renders empty.
func String(doc map[string]any, candidates []string, def string) string {
	v, ok := Lookup(doc, candidates...)
	if !ok {
		return def
	}
	s := Stringify(v)
	if s == "" {
		return def
	}
	return s
}

// Int resolves a candidate field as an int, tolerating float64 (JSON
// numbers) and numeric strings. Returns def when absent or unparseable.
func Int(doc map[string]any, candidates []string, def int) int {
	v, ok := Lookup(doc, candidates...)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// Stringify renders a field value for storage: scalars directly, anything
// structured as compact JSON.
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
		return fmt.Sprint(v)
	}
}

// logMarkerKeys identify a document as a log record. A document lacking
// all of them is skipped by aggregation and listing callers.
var logMarkerKeys = []string{"level", "message", "appname", "requestid"}

// LooksLikeLogRecord reports whether doc carries at least one log marker
// key, case-insensitively. This is a filter, not an error: insight
// documents and system documents simply fail the check.
func LooksLikeLogRecord(doc map[string]any) bool {
	for k := range doc {
		lk := strings.ToLower(k)
		for _, marker := range logMarkerKeys {
			if lk == marker {
				return true
			}
		}
	}
	return false
}
