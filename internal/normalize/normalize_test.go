package normalize

import (
	"testing"
)

type plainDoc struct {
	Level   string
	Message string
	count   int // unexported, must be ignored
}

type methodOnly struct{}

func (methodOnly) MarshalJSON() ([]byte, error) {
	return []byte(`{"Level":"Error","AppName":"Billing"}`), nil
}

func TestNormalize_DirectMap(t *testing.T) {
	in := map[string]any{"Level": "Error"}
	out := Normalize(in)
	if out["Level"] != "Error" {
		t.Errorf("direct map not passed through: %v", out)
	}
}

func TestNormalize_GenericMap(t *testing.T) {
	in := map[string]string{"Level": "Warning", "Message": "disk"}
	out := Normalize(in)
	if out["Level"] != "Warning" || out["Message"] != "disk" {
		t.Errorf("generic map conversion failed: %v", out)
	}
}

func TestNormalize_Struct(t *testing.T) {
	out := Normalize(plainDoc{Level: "Error", Message: "boom", count: 3})
	if Stringify(out["Level"]) != "Error" {
		t.Errorf("struct field Level missing: %v", out)
	}
	if _, ok := out["count"]; ok {
		t.Error("unexported field leaked into normalized map")
	}
}

func TestNormalize_Marshaler(t *testing.T) {
	out := Normalize(methodOnly{})
	if Stringify(out["AppName"]) != "Billing" {
		t.Errorf("marshaler output not recovered: %v", out)
	}
}

func TestNormalize_OpaqueFallsBackToRaw(t *testing.T) {
	out := Normalize(42)
	if out[RawKey] != "42" {
		t.Errorf("opaque input should degrade to raw wrapper, got %v", out)
	}

	out = Normalize(nil)
	if _, ok := out[RawKey]; !ok {
		t.Errorf("nil input should degrade to raw wrapper, got %v", out)
	}
}

func TestNormalize_NeverNil(t *testing.T) {
	inputs := []any{nil, 0, "", []int{1, 2}, struct{}{}, (*plainDoc)(nil)}
	for _, in := range inputs {
		if out := Normalize(in); out == nil {
			t.Errorf("Normalize(%v) returned nil", in)
		}
	}
}

func TestLookup_CaseInsensitive(t *testing.T) {
	doc := map[string]any{"LEVEL": "Error", "message": "hi", "nilfield": nil}

	if v, ok := Lookup(doc, "level"); !ok || v != "Error" {
		t.Errorf("Lookup(level) = %v %v", v, ok)
	}
	if v, ok := Lookup(doc, "Message"); !ok || v != "hi" {
		t.Errorf("Lookup(Message) = %v %v", v, ok)
	}
	// Candidate order wins: first present non-nil value.
	if v, _ := Lookup(doc, "missing", "level"); v != "Error" {
		t.Errorf("Lookup candidate order = %v", v)
	}
	// nil values are treated as absent.
	if _, ok := Lookup(doc, "nilfield"); ok {
		t.Error("Lookup should skip nil values")
	}
	if _, ok := Lookup(doc, "absent"); ok {
		t.Error("Lookup(absent) should report not found")
	}
}

func TestString_Default(t *testing.T) {
	doc := map[string]any{"AppName": "Billing"}
	if got := String(doc, []string{"AppName", "app_name"}, "Unknown"); got != "Billing" {
		t.Errorf("String = %q", got)
	}
	if got := String(doc, []string{"missing"}, "Unknown"); got != "Unknown" {
		t.Errorf("String default = %q", got)
	}
}

func TestInt_Coercions(t *testing.T) {
	doc := map[string]any{"a": float64(200), "b": "404", "c": "not a number"}
	if got := Int(doc, []string{"a"}, 0); got != 200 {
		t.Errorf("Int(float64) = %d", got)
	}
	if got := Int(doc, []string{"b"}, 0); got != 404 {
		t.Errorf("Int(string) = %d", got)
	}
	if got := Int(doc, []string{"c"}, -1); got != -1 {
		t.Errorf("Int(garbage) = %d, want default", got)
	}
}

func TestLooksLikeLogRecord(t *testing.T) {
	tests := []struct {
		name string
		doc  map[string]any
		want bool
	}{
		{"level key", map[string]any{"Level": "Error"}, true},
		{"message key", map[string]any{"message": "x"}, true},
		{"request id", map[string]any{"RequestId": "r1"}, true},
		{"app name", map[string]any{"AppName": "svc"}, true},
		{"insight doc", map[string]any{"status": "STABLE", "error_count": 1}, false},
		{"empty", map[string]any{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeLogRecord(tt.doc); got != tt.want {
				t.Errorf("LooksLikeLogRecord = %v, want %v", got, tt.want)
			}
		})
	}
}
