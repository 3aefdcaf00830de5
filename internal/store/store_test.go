package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryCreateAndLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	if _, _, err := s.Load(ctx, "data/scores.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	v1, err := s.Save(ctx, "data/scores.json", []byte(`{"a":1}`), "", "create")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if v1 == "" {
		t.Fatalf("expected non-empty version after create")
	}

	data, v, err := s.Load(ctx, "data/scores.json")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Fatalf("unexpected data: %s", data)
	}
	if v != v1 {
		t.Fatalf("load version %q != save version %q", v, v1)
	}
}

func TestMemoryCASConflict(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	v1, err := s.Save(ctx, "doc", []byte(`1`), "", "create")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Writer A wins.
	if _, err := s.Save(ctx, "doc", []byte(`2`), v1, "a"); err != nil {
		t.Fatalf("first conditional save: %v", err)
	}
	// Writer B carries the stale token and must lose.
	if _, err := s.Save(ctx, "doc", []byte(`3`), v1, "b"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	data, _, err := s.Load(ctx, "doc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `2` {
		t.Fatalf("loser's write leaked through: %s", data)
	}
}

func TestMemoryCreateOverExisting(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	if _, err := s.Save(ctx, "doc", []byte(`1`), "", "create"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.Save(ctx, "doc", []byte(`2`), "", "create again"); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on blind create, got %v", err)
	}
}

func TestLoadJSONKeepsDefaultWhenAbsent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	out := map[string]int{"seeded": 1}
	ver, found, err := LoadJSON(ctx, s, "missing", &out)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if found {
		t.Fatalf("expected found=false for absent document")
	}
	if ver != "" {
		t.Fatalf("expected absent version, got %q", ver)
	}
	if out["seeded"] != 1 {
		t.Fatalf("default clobbered: %v", out)
	}
}

func TestSaveJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	in := map[string]int{"a": 1, "b": 2}
	ver, err := SaveJSON(ctx, s, "doc", in, "", "create")
	if err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	out := map[string]int{}
	ver2, found, err := LoadJSON(ctx, s, "doc", &out)
	if err != nil || !found {
		t.Fatalf("LoadJSON: found=%v err=%v", found, err)
	}
	if ver2 != ver {
		t.Fatalf("version mismatch: %q vs %q", ver2, ver)
	}
	if out["a"] != 1 || out["b"] != 2 {
		t.Fatalf("unexpected round trip: %v", out)
	}
}
