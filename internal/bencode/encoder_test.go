package bencode

import (
	"testing"
)

func TestMarshal_OK(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"string", "spam", "4:spam"},
		{"empty-string", "", "0:"},
		{"bytes", []byte("spam"), "4:spam"},
		{"int", 42, "i42e"},
		{"int-neg", -1, "i-1e"},
		{"int64", int64(1024), "i1024e"},
		{"uint", uint(7), "i7e"},
		{"bool-true", true, "i1e"},
		{"bool-false", false, "i0e"},
		{"list-simple", []any{"spam", 1}, "l4:spami1ee"},
		{
			"list-nested",
			[]any{1, "spam", 0, []any{"nested", 2}},
			"li1e4:spami0el6:nestedi2eee",
		},
		{
			"dict-sorted-keys",
			map[string]any{"b": 2, "a": 1, "c": []any{"x", 3}},
			"d1:ai1e1:bi2e1:cl1:xi3eee",
		},
		{
			"dict-empty",
			map[string]any{},
			"de",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Marshal(tt.in)
			if err != nil {
				t.Fatalf("Marshal(%v) returned error: %v", tt.in, err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMarshal_UnsupportedType(t *testing.T) {
	if _, err := Marshal(3.14); err == nil {
		t.Fatalf("Marshal(float64) succeeded, want an error")
	}
}

func TestMarshal_RoundTripsThroughDecode(t *testing.T) {
	in := map[string]any{
		"announce": "http://tracker",
		"info": map[string]any{
			"length": 1024,
			"name":   "ubuntu.iso",
			"pieces": []any{"abc", "def"},
		},
	}

	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	dict, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Unmarshal returned %T, want map[string]any", got)
	}
	if dict["announce"] != "http://tracker" {
		t.Fatalf("announce = %v, want %q", dict["announce"], "http://tracker")
	}

	info, ok := dict["info"].(map[string]any)
	if !ok {
		t.Fatalf("info = %T, want map[string]any", dict["info"])
	}
	if info["length"] != int64(1024) {
		t.Fatalf("length = %v, want 1024", info["length"])
	}
	if info["name"] != "ubuntu.iso" {
		t.Fatalf("name = %v, want %q", info["name"], "ubuntu.iso")
	}

	pieces, ok := info["pieces"].([]any)
	if !ok || len(pieces) != 2 || pieces[0] != "abc" || pieces[1] != "def" {
		t.Fatalf("pieces = %v, want [abc def]", info["pieces"])
	}
}
