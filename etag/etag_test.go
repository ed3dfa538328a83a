package etag

import "testing"

func TestComputeIsPure(t *testing.T) {
	a, err := Compute(1000, map[string]any{"n": "a", "v": 1.0})
	if err != nil {
		t.Fatal(err)
	}
	b, err := Compute(1000, map[string]any{"v": 1.0, "n": "a"}) // different field order
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("equal inputs produced different etags: %q != %q", a, b)
	}
}

func TestComputeChangesWithLastModified(t *testing.T) {
	data := map[string]any{"n": "a"}
	a, _ := Compute(1000, data)
	b, _ := Compute(1001, data)
	if a == b {
		t.Fatal("different lastModified produced the same etag")
	}
}

func TestComputeChangesWithData(t *testing.T) {
	a, _ := Compute(1000, map[string]any{"n": "a"})
	b, _ := Compute(1000, map[string]any{"n": "b"})
	if a == b {
		t.Fatal("different data produced the same etag")
	}
}

func TestCanonicalizeNestedDeterministic(t *testing.T) {
	a, err := Canonicalize(map[string]any{
		"z": 1,
		"a": map[string]any{"y": 2, "x": 1},
		"list": []any{
			map[string]any{"b": 1, "a": 2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"a":{"x":1,"y":2},"list":[{"a":2,"b":1}],"z":1}`
	if a != want {
		t.Fatalf("Canonicalize = %s, want %s", a, want)
	}
}
