package cache

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/chazu/garnet/vm"
)

func testProgram(t *testing.T, lit int64) *vm.Program {
	t.Helper()
	a := vm.NewAssembler("unit")
	a.SetLine(1)
	a.PushLiteral(vm.Int(lit))
	a.Ret()
	p, err := a.Finish()
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	return p
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	p := testProgram(t, 7)
	created := time.Unix(1700000000, 0)

	err := s.Put(ctx, Entry{Key: "abc", Unit: "unit", Session: "s1", Program: p, CreatedAt: created})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	e, err := s.Get(ctx, "abc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Unit != "unit" || e.Session != "s1" {
		t.Errorf("metadata = %q/%q", e.Unit, e.Session)
	}
	if !e.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, created)
	}
	if !reflect.DeepEqual(e.Program, p) {
		t.Errorf("program mismatch:\n got %s\nwant %s", e.Program.Disassemble(), p.Disassemble())
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := openMemory(t)
	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	if err := s.Put(ctx, Entry{Key: "k", Unit: "u", Session: "s1", Program: testProgram(t, 1)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, Entry{Key: "k", Unit: "u", Session: "s2", Program: testProgram(t, 2)}); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	n, err := s.Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Errorf("Len = %d, want 1", n)
	}
	e, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Session != "s2" || e.Program.Literals[0].Int != 2 {
		t.Errorf("entry not replaced: session %q, literal %v", e.Session, e.Program.Literals)
	}
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	if err := s.Put(ctx, Entry{Key: "k", Program: testProgram(t, 1)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete: %v", err)
	}
}

func TestStore_SessionKeys(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	for _, e := range []Entry{
		{Key: "b", Session: "one"},
		{Key: "a", Session: "one"},
		{Key: "c", Session: "two"},
	} {
		e.Program = testProgram(t, 0)
		if err := s.Put(ctx, e); err != nil {
			t.Fatalf("Put %s: %v", e.Key, err)
		}
	}

	keys, err := s.SessionKeys(ctx, "one")
	if err != nil {
		t.Fatalf("SessionKeys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("SessionKeys = %v, want [a b]", keys)
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	for i, key := range []string{"late", "early"} {
		e := Entry{
			Key:       key,
			Unit:      key + "-unit",
			Session:   "s",
			Program:   testProgram(t, 0),
			CreatedAt: time.Unix(int64(2000-i*1000), 0),
		}
		if err := s.Put(ctx, e); err != nil {
			t.Fatalf("Put %s: %v", key, err)
		}
	}

	entries, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(entries))
	}
	if entries[0].Key != "early" || entries[1].Key != "late" {
		t.Errorf("order = %s, %s; want early, late", entries[0].Key, entries[1].Key)
	}
	if entries[0].Unit != "early-unit" || entries[0].Program != nil {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestStore_NilProgram(t *testing.T) {
	s := openMemory(t)
	if err := s.Put(context.Background(), Entry{Key: "k"}); err == nil {
		t.Error("expected error storing nil program")
	}
}

func TestStore_Persists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "programs.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Put(ctx, Entry{Key: "k", Unit: "u", Program: testProgram(t, 3)}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	e, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if e.Program.Literals[0].Int != 3 {
		t.Errorf("literal = %v, want 3", e.Program.Literals[0])
	}
	if s.Path() != path {
		t.Errorf("Path() = %q", s.Path())
	}
}
