package compiler

import (
	"fmt"
	"testing"

	"github.com/chazu/garnet/vm"
)

// harness compiles trees and runs them on a fresh interpreter that records
// every value passed to record(x).
type harness struct {
	t      *testing.T
	interp *vm.Interpreter
	log    []vm.Value
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, interp: vm.NewInterpreter()}
	h.interp.Define("record", func(i *vm.Interpreter, self vm.Value, args []vm.Value) (vm.Value, error) {
		var v vm.Value
		if len(args) > 0 {
			v = args[0]
		}
		h.log = append(h.log, v)
		return v, nil
	})
	return h
}

func (h *harness) compile(kind UnitKind, body Node) *vm.Program {
	h.t.Helper()
	p, err := Compile(&Unit{Name: h.t.Name(), Kind: kind, Body: body}, DefaultOptions())
	if err != nil {
		h.t.Fatalf("compile error: %v", err)
	}
	return p
}

func (h *harness) run(body Node) (vm.Value, error) {
	h.t.Helper()
	return h.interp.Run(h.compile(UnitScript, body))
}

func (h *harness) mustRun(body Node) vm.Value {
	h.t.Helper()
	v, err := h.run(body)
	if err != nil {
		h.t.Fatalf("run error: %v", err)
	}
	return v
}

func (h *harness) recorded(want ...vm.Value) {
	h.t.Helper()
	if len(h.log) != len(want) {
		h.t.Fatalf("recorded %s, want %s", vm.Inspect(vm.NewArray(h.log...)), vm.Inspect(vm.NewArray(want...)))
	}
	for i := range want {
		if !vm.Equal(h.log[i], want[i]) {
			h.t.Errorf("record[%d] = %s, want %s", i, vm.Inspect(h.log[i]), vm.Inspect(want[i]))
		}
	}
}

func wantValue(t *testing.T, got, want vm.Value) {
	t.Helper()
	if !vm.Equal(got, want) {
		t.Errorf("result = %s, want %s", vm.Inspect(got), vm.Inspect(want))
	}
}

// raiseErrorClass returns the class name of an escaped exception.
func raiseErrorClass(t *testing.T, err error) string {
	t.Helper()
	re, ok := err.(*vm.RaiseError)
	if !ok {
		t.Fatalf("error = %v (%T), want *vm.RaiseError", err, err)
	}
	return re.Exception.Class.Name
}

// AST builders

func num(v int64) *IntLiteral         { return &IntLiteral{Value: v} }
func str(s string) *StringLiteral     { return &StringLiteral{Value: s} }
func seq(stmts ...Node) *Block        { return &Block{Body: stmts} }
func list(elems ...Node) *ArrayLiteral { return &ArrayLiteral{Body: elems} }
func konst(name string) *ConstFind    { return &ConstFind{Name: name} }

func call(name string, args ...Node) *Send {
	return &Send{Name: name, Args: args}
}

func send(recv Node, name string, args ...Node) *Send {
	return &Send{Receiver: recv, Name: name, Args: args}
}

func record(v Node) *Send { return call("record", v) }

func raise(class, msg string) *Send {
	return call("raise", konst(class), str(msg))
}

func lvar(slot int) *LocalVariableAccess {
	return &LocalVariableAccess{Name: fmt.Sprintf("v%d", slot), Var: &LocalRef{Slot: slot}}
}

func lasgn(slot int, v Node) *LocalVariableAssignment {
	return &LocalVariableAssignment{Name: fmt.Sprintf("v%d", slot), Var: &LocalRef{Slot: slot}, Value: v}
}

func gvar(name string) *GlobalVariableAccess { return &GlobalVariableAccess{Name: name} }

func gasgn(name string, v Node) *GlobalVariableAssignment {
	return &GlobalVariableAssignment{Name: name, Value: v}
}

func block(body Node) *ClosedScope { return &ClosedScope{Body: body} }

func rescueOn(t *testing.T, classes []string, body Node, next *RescueCondition) *RescueCondition {
	t.Helper()
	var conds Node
	if classes != nil {
		matchers := make([]Node, len(classes))
		for i, c := range classes {
			matchers[i] = konst(c)
		}
		conds = list(matchers...)
	}
	rc, err := NewRescueCondition(0, conds, body, next)
	if err != nil {
		t.Fatalf("NewRescueCondition: %v", err)
	}
	return rc
}

func arr(vals ...vm.Value) *vm.Array { return vm.NewArray(vals...) }
