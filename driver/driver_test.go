package driver

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/chazu/garnet/compiler"
	"github.com/chazu/garnet/manifest"
	"github.com/chazu/garnet/vm"
)

func intUnit(name string, v int64) *compiler.Unit {
	return &compiler.Unit{Name: name, Kind: compiler.UnitScript, Body: &compiler.IntLiteral{Value: v}}
}

func newDriver(t *testing.T, configure func(m *manifest.Manifest)) *Driver {
	t.Helper()
	m := manifest.Default()
	if configure != nil {
		configure(m)
	}
	d, err := New(m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func withMemoryCache(m *manifest.Manifest) {
	m.Cache.Path = ":memory:"
}

func runResult(t *testing.T, r Result) vm.Value {
	t.Helper()
	if r.Err != nil {
		t.Fatalf("%s: %v", r.Unit, r.Err)
	}
	v, err := vm.NewInterpreter().Run(r.Program)
	if err != nil {
		t.Fatalf("%s: Run: %v", r.Unit, err)
	}
	return v
}

func TestNew_Defaults(t *testing.T) {
	d, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Close()

	if d.Store() != nil {
		t.Error("default driver has a cache")
	}
	if d.Options() != compiler.DefaultOptions() {
		t.Errorf("Options() = %+v, want defaults", d.Options())
	}
	if d.Session() == "" {
		t.Error("empty session id")
	}
}

func TestNew_DistinctSessions(t *testing.T) {
	a := newDriver(t, nil)
	b := newDriver(t, nil)
	if a.Session() == b.Session() {
		t.Errorf("sessions collide: %s", a.Session())
	}
}

func TestCompileAll_InputOrder(t *testing.T) {
	d := newDriver(t, func(m *manifest.Manifest) { m.Driver.Workers = 3 })

	var units []*compiler.Unit
	for i := 0; i < 20; i++ {
		units = append(units, intUnit(fmt.Sprintf("unit%d", i), int64(i)))
	}

	results, err := d.CompileAll(context.Background(), units)
	if err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	if len(results) != len(units) {
		t.Fatalf("got %d results, want %d", len(results), len(units))
	}
	for i, r := range results {
		if r.Unit != units[i].Name {
			t.Errorf("result %d is %s, want %s", i, r.Unit, units[i].Name)
		}
		if v := runResult(t, r); v != int64(i) {
			t.Errorf("%s evaluated to %s, want %d", r.Unit, vm.Inspect(v), i)
		}
	}
}

func TestCompileAll_FailureIsolated(t *testing.T) {
	d := newDriver(t, nil)
	units := []*compiler.Unit{
		intUnit("good1", 1),
		{Name: "bad", Body: &compiler.Send{}},
		intUnit("good2", 2),
	}

	results, err := d.CompileAll(context.Background(), units)
	if !errors.Is(err, compiler.ErrMalformedNode) {
		t.Fatalf("err = %v, want ErrMalformedNode", err)
	}
	if results[1].Err == nil || results[1].Program != nil {
		t.Errorf("bad unit result = %+v", results[1])
	}
	if v := runResult(t, results[0]); v != int64(1) {
		t.Errorf("good1 = %s", vm.Inspect(v))
	}
	if v := runResult(t, results[2]); v != int64(2) {
		t.Errorf("good2 = %s", vm.Inspect(v))
	}
}

func TestCompileAll_Cancelled(t *testing.T) {
	d := newDriver(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.CompileAll(ctx, []*compiler.Unit{intUnit("u", 1)})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestCompile_CacheHit(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t, withMemoryCache)
	u := intUnit("answer", 42)

	first := d.Compile(ctx, u)
	if first.Err != nil {
		t.Fatalf("Compile: %v", first.Err)
	}
	if first.Cached {
		t.Error("first compile reported a cache hit")
	}

	second := d.Compile(ctx, intUnit("answer", 42))
	if !second.Cached {
		t.Fatal("second compile missed the cache")
	}
	if second.Key != first.Key {
		t.Errorf("keys differ: %s vs %s", first.Key, second.Key)
	}
	if !reflect.DeepEqual(second.Program, first.Program) {
		t.Errorf("cached program differs:\n got %s\nwant %s", second.Program.Disassemble(), first.Program.Disassemble())
	}
	if v := runResult(t, second); v != int64(42) {
		t.Errorf("cached program = %s, want 42", vm.Inspect(v))
	}

	keys, err := d.Store().SessionKeys(ctx, d.Session())
	if err != nil {
		t.Fatalf("SessionKeys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{first.Key}) {
		t.Errorf("session keys = %v, want [%s]", keys, first.Key)
	}
}

func TestCompile_FailuresNotCached(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t, withMemoryCache)

	r := d.Compile(ctx, &compiler.Unit{Name: "bad", Body: &compiler.Send{}})
	if r.Err == nil {
		t.Fatal("expected compile error")
	}
	n, err := d.Store().Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 0 {
		t.Errorf("cache holds %d programs after a failure", n)
	}
}

func TestCompile_KeyDependsOnOptions(t *testing.T) {
	ctx := context.Background()
	plain := newDriver(t, nil)
	lines := newDriver(t, func(m *manifest.Manifest) { m.Compiler.DebugLines = false })

	a := plain.Compile(ctx, intUnit("u", 1))
	b := lines.Compile(ctx, intUnit("u", 1))
	if a.Key == b.Key {
		t.Error("units compiled with different options share a key")
	}
}

func TestCompile_NilUnit(t *testing.T) {
	d := newDriver(t, nil)
	if r := d.Compile(context.Background(), nil); r.Err == nil {
		t.Error("expected error for nil unit")
	}
}

func TestCompileAll_SharedCache(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t, func(m *manifest.Manifest) {
		withMemoryCache(m)
		m.Driver.Workers = 8
	})

	var units []*compiler.Unit
	for i := 0; i < 16; i++ {
		units = append(units, intUnit("same", 5))
	}
	if _, err := d.CompileAll(ctx, units); err != nil {
		t.Fatalf("CompileAll: %v", err)
	}

	results, err := d.CompileAll(ctx, units)
	if err != nil {
		t.Fatalf("second CompileAll: %v", err)
	}
	for i, r := range results {
		if !r.Cached {
			t.Errorf("unit %d missed the cache", i)
		}
	}
	n, err := d.Store().Len(ctx)
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 1 {
		t.Errorf("cache holds %d programs, want 1", n)
	}
}
