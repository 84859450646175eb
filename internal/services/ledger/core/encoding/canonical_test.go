package encoding

import (
	"encoding/json"
	"testing"
)

func TestCanonicalJSON_SortsKeysAndStripsWhitespace(t *testing.T) {
	got, err := CanonicalJSON(json.RawMessage(`{ "b": 2, "a": {"z": 1, "y": [3, 1]} }`))
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	want := `{"a":{"y":[3,1],"z":1},"b":2}`
	if string(got) != want {
		t.Fatalf("canonical = %s, want %s", got, want)
	}
}

func TestCanonicalJSON_PreservesLargeIntegers(t *testing.T) {
	got, err := CanonicalJSON(json.RawMessage(`{"amount":9007199254740993}`))
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	if string(got) != `{"amount":9007199254740993}` {
		t.Fatalf("canonical = %s", got)
	}
}

func TestCanonicalJSON_EmptyBecomesObject(t *testing.T) {
	got, err := CanonicalJSON(nil)
	if err != nil {
		t.Fatalf("canonical json: %v", err)
	}
	if string(got) != "{}" {
		t.Fatalf("canonical = %s, want {}", got)
	}
}

func TestCanonicalJSON_RejectsTrailingData(t *testing.T) {
	if _, err := CanonicalJSON(json.RawMessage(`{} {}`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}
