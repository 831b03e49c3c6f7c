package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/chazu/garnet/vm"
)

func TestCompileLiterals(t *testing.T) {
	tests := []struct {
		name string
		node Node
		want vm.Value
	}{
		{"integer", num(42), int64(42)},
		{"negative", num(-5), int64(-5)},
		{"string", str("hi"), "hi"},
		{"symbol", &SymbolLiteral{Value: "sym"}, vm.Symbol("sym")},
		{"nil", &Nil{}, nil},
		{"true", &True{}, true},
		{"false", &False{}, false},
		{"array", list(num(1), str("two")), arr(int64(1), "two")},
		{"empty block", seq(), nil},
		{"block value", seq(num(1), num(2)), int64(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			wantValue(t, h.mustRun(tt.node), tt.want)
		})
	}
}

func TestCompileEmptyUnit(t *testing.T) {
	h := newHarness(t)
	wantValue(t, h.mustRun(nil), nil)
}

func TestCompileSelf(t *testing.T) {
	h := newHarness(t)
	result := h.mustRun(&Self{})
	if result != vm.Value(h.interp.Main) {
		t.Errorf("result = %s, want main", vm.Inspect(result))
	}
}

func TestCompileSendWithSplat(t *testing.T) {
	h := newHarness(t)
	h.interp.Define("collect", func(i *vm.Interpreter, self vm.Value, args []vm.Value) (vm.Value, error) {
		return vm.NewArray(args...), nil
	})

	tree := &Send{Name: "collect", Args: []Node{num(1)}, Splat: list(num(2), num(3))}
	wantValue(t, h.mustRun(tree), arr(int64(1), int64(2), int64(3)))
}

func TestCompileConcatArgs(t *testing.T) {
	h := newHarness(t)
	tree := &ConcatArgs{Array: list(num(1)), Rest: list(num(2), num(3))}
	wantValue(t, h.mustRun(tree), arr(int64(1), int64(2), int64(3)))

	h = newHarness(t)
	tree = &ConcatArgs{Array: list(num(1)), Rest: num(2)}
	wantValue(t, h.mustRun(tree), arr(int64(1), int64(2)))
}

func TestCompileSplatValue(t *testing.T) {
	h := newHarness(t)
	wantValue(t, h.mustRun(&SplatValue{Value: num(1)}), arr(int64(1)))
}

func TestCompileClosedScope(t *testing.T) {
	h := newHarness(t)
	p := h.compile(UnitScript, send(block(num(3)), "call"))

	if len(p.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(p.Blocks))
	}
	if !strings.Contains(p.Blocks[0].Name, "block@") {
		t.Errorf("block name = %q", p.Blocks[0].Name)
	}
	result, err := h.interp.Run(p)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}
	wantValue(t, result, int64(3))
}

func TestClosedScopeResetsContext(t *testing.T) {
	// A return inside a block nested in an ensure must not use the
	// ensure-aware return of the enclosing code.
	p, err := Compile(&Unit{Name: "m", Kind: UnitMethod, Body: NewEnsure(1,
		block(&Return{Value: num(1)}),
		nil,
	)}, DefaultOptions())
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	for _, op := range p.Blocks[0].Ops() {
		if op == vm.OpEnsureReturn {
			t.Error("block body compiled with the enclosing ensure annotation")
		}
	}
	if !containsOp(p.Ops(), vm.OpSetupUnwind) {
		t.Error("outer program lost its ensure region")
	}
}

func containsOp(ops []vm.Opcode, want vm.Opcode) bool {
	for _, op := range ops {
		if op == want {
			return true
		}
	}
	return false
}

func TestLineTable(t *testing.T) {
	tree := &Block{Pos: Pos{1}, Body: []Node{
		&IntLiteral{Pos: Pos{1}, Value: 1},
		&Send{Pos: Pos{2}, Name: "record", Args: []Node{&IntLiteral{Pos: Pos{3}, Value: 2}}},
	}}
	p, err := CompileExpr("lines", tree)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	// 0 push 1 / 1 pop / 2 push_self / 3 push 2 / 4 send / 5 ret
	wantLines := map[int]int{0: 1, 2: 2, 3: 3, 4: 2, 5: 1}
	for ip, want := range wantLines {
		if got := p.LineFor(ip); got != want {
			t.Errorf("LineFor(%d) = %d, want %d", ip, got, want)
		}
	}
}

func TestDebugLinesDisabled(t *testing.T) {
	p, err := Compile(&Unit{Name: "nolines", Body: &IntLiteral{Pos: Pos{4}, Value: 1}}, Options{})
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if len(p.Lines) != 0 {
		t.Errorf("lines = %v, want none", p.Lines)
	}
	if p.StackSize != 0 {
		t.Errorf("stack size = %d without verification", p.StackSize)
	}
}

func TestVerifySetsStackSize(t *testing.T) {
	p, err := CompileExpr("depth", list(num(1), list(num(2), num(3))))
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if p.StackSize != 3 {
		t.Errorf("stack size = %d, want 3", p.StackSize)
	}
}

func TestVerifyRejectsMisplacedRetry(t *testing.T) {
	// retry as an argument jumps back with an extra value on the stack
	tree := &Rescue{
		Body:   raise("RuntimeError", "x"),
		Rescue: &RescueCondition{Conditions: list(konst("StandardError")), Body: record(&Retry{})},
	}
	_, err := CompileExpr("retry", tree)
	if !errors.Is(err, vm.ErrStackImbalance) {
		t.Errorf("err = %v, want ErrStackImbalance", err)
	}
}

func TestCompileRejectsMalformedTrees(t *testing.T) {
	tests := []struct {
		name string
		node Node
	}{
		{"nil statement", seq(num(1), nil)},
		{"scoped constant without parent", &ConstAccess{Name: "X"}},
		{"constant set without name", &ConstSet{Value: num(1)}},
		{"splat without value", &SplatValue{}},
		{"masgn without targets", &MAsgn{Right: nums(1)}},
		{"masgn literal target", &MAsgn{Left: list(num(1)), Right: nums(1)}},
		{"defined without expression", &Defined{}},
		{"rescue without clauses", &Rescue{Body: num(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CompileExpr("bad", tt.node)
			if !errors.Is(err, ErrMalformedNode) {
				t.Errorf("err = %v, want ErrMalformedNode", err)
			}
		})
	}
}

func TestRescueConditionOutsideRescue(t *testing.T) {
	_, err := CompileExpr("bad", &RescueCondition{Body: num(1)})
	if err == nil {
		t.Fatal("expected a compile error")
	}
}

func TestWalkAndCount(t *testing.T) {
	tree := seq(lasgn(0, num(1)), &Rescue{Body: num(2), Rescue: &RescueCondition{Body: num(3)}})
	if got := Count(tree); got != 7 {
		t.Errorf("Count = %d, want 7", got)
	}

	var kinds []string
	Walk(tree, func(n Node) bool {
		if _, ok := n.(*Rescue); ok {
			kinds = append(kinds, "rescue")
			return false
		}
		return true
	})
	if len(kinds) != 1 {
		t.Errorf("visited rescues = %v", kinds)
	}
}

func TestUnitKindString(t *testing.T) {
	if UnitModuleBody.String() != "module" || UnitKind(9).String() != "UnitKind(9)" {
		t.Errorf("unexpected names %q %q", UnitModuleBody, UnitKind(9))
	}
}
