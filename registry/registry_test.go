package registry

import (
	"encoding/json"
	"testing"
)

func TestRegisterAndConvert(t *testing.T) {
	r := New()
	r.Register("widget", func(data json.RawMessage) (json.RawMessage, error) {
		return append(append([]byte{}, data...), []byte("_converted")...), nil
	})

	out, err := r.Convert("widget", json.RawMessage("raw"))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "raw_converted" {
		t.Fatalf("out = %s", out)
	}
}

func TestConvertUnregisteredType(t *testing.T) {
	r := New()
	if _, err := r.Convert("unknown", json.RawMessage("{}")); err == nil {
		t.Fatal("expected error for unregistered type")
	}
}

func TestRegisterOverwritesPreviousClosure(t *testing.T) {
	r := New()
	r.Register("widget", func(data json.RawMessage) (json.RawMessage, error) { return []byte("v1"), nil })
	r.Register("widget", func(data json.RawMessage) (json.RawMessage, error) { return []byte("v2"), nil })

	out, err := r.Convert("widget", nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != "v2" {
		t.Fatalf("out = %s, want v2", out)
	}
}
