package ingest

import (
	"encoding/json"
	"strings"

	"github.com/loginsight/loginsight/internal/normalize"
)

// envelopeKeys are the single-key wrappers some producers put around the
// actual log payload.
var envelopeKeys = []string{"message", "body", "data"}

// DecodeBody turns a raw queue message body into a document. Invalid JSON
// gets one repair attempt with single quotes swapped for double quotes;
// if that also fails the body is preserved verbatim under the raw key so
// no delivery is ever dropped for being malformed.
func DecodeBody(body []byte) map[string]any {
	s := strings.TrimSpace(string(body))
	if s == "" {
		return map[string]any{normalize.RawKey: ""}
	}

	if doc, ok := decodeJSON(s); ok {
		return unwrapEnvelope(doc)
	}
	if doc, ok := decodeJSON(strings.ReplaceAll(s, "'", `"`)); ok {
		return unwrapEnvelope(doc)
	}
	return map[string]any{normalize.RawKey: s}
}

func decodeJSON(s string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	doc := normalize.Normalize(v)
	// A bare scalar or array is not a usable document.
	if _, isRaw := doc[normalize.RawKey]; isRaw && len(doc) == 1 {
		if _, isMap := v.(map[string]any); !isMap {
			return nil, false
		}
	}
	return doc, true
}

// unwrapEnvelope peels a single-key {message|body|data} wrapper when the
// wrapped value is itself a document. One level only.
func unwrapEnvelope(doc map[string]any) map[string]any {
	if len(doc) != 1 {
		return doc
	}
	for _, key := range envelopeKeys {
		v, ok := normalize.Lookup(doc, key)
		if !ok {
			continue
		}
		switch inner := v.(type) {
		case map[string]any:
			return inner
		case string:
			if nested, ok := decodeJSON(strings.TrimSpace(inner)); ok {
				return nested
			}
		}
		return doc
	}
	return doc
}
