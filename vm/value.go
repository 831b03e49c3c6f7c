package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Runtime values of the reference interpreter
// ---------------------------------------------------------------------------

// Value is any value the interpreter manipulates. nil, bool, int64, string
// and Symbol are immediates; the pointer types below are heap objects.
type Value any

// Symbol is an interned name such as :foo.
type Symbol string

// Array is a mutable ordered collection.
type Array struct {
	Elems []Value
}

// NewArray returns an array holding elems.
func NewArray(elems ...Value) *Array {
	return &Array{Elems: elems}
}

// Module is a namespace of constants and class variables. Classes are
// modules with IsClass set; Super links the ancestor chain.
type Module struct {
	Name    string
	Lexical *Module // enclosing namespace, used for naming and lookup
	Super   *Module
	IsClass bool
	Consts  map[string]Value
	CVars   map[string]Value
}

func newModule(name string, lexical, super *Module, isClass bool) *Module {
	return &Module{
		Name:    name,
		Lexical: lexical,
		Super:   super,
		IsClass: isClass,
		Consts:  make(map[string]Value),
		CVars:   make(map[string]Value),
	}
}

// Path returns the fully qualified name, e.g. "A::B".
func (m *Module) Path() string {
	if m.Lexical == nil || m.Lexical.Lexical == nil {
		return m.Name
	}
	return m.Lexical.Path() + "::" + m.Name
}

// lookupConst searches m and its ancestors.
func (m *Module) lookupConst(name string) (Value, bool) {
	for c := m; c != nil; c = c.Super {
		if v, ok := c.Consts[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// lookupCVar searches m and its ancestors, returning the owning module.
func (m *Module) lookupCVar(name string) (*Module, bool) {
	for c := m; c != nil; c = c.Super {
		if _, ok := c.CVars[name]; ok {
			return c, true
		}
	}
	return nil, false
}

// isSubclassOf reports whether m is other or inherits from it.
func (m *Module) isSubclassOf(other *Module) bool {
	for c := m; c != nil; c = c.Super {
		if c == other {
			return true
		}
	}
	return false
}

// Object is an instance with instance variables. Exceptions are objects
// whose class descends from Exception; Message holds their text.
type Object struct {
	Class   *Module
	Ivars   map[string]Value
	Message string
}

// NewObject returns an instance of class.
func NewObject(class *Module) *Object {
	return &Object{Class: class, Ivars: make(map[string]Value)}
}

// GlobalTable holds global variables by name.
type GlobalTable struct {
	vars map[string]Value
}

func newGlobalTable() *GlobalTable {
	return &GlobalTable{vars: make(map[string]Value)}
}

// Get returns the value of a global, or nil.
func (g *GlobalTable) Get(name string) Value {
	return g.vars[name]
}

// Set assigns a global.
func (g *GlobalTable) Set(name string, v Value) {
	g.vars[name] = v
}

// Has reports whether the global has been assigned.
func (g *GlobalTable) Has(name string) bool {
	_, ok := g.vars[name]
	return ok
}

// MatchData is the result of a pattern match. Groups[0] is the whole match.
type MatchData struct {
	Pre    string
	Post   string
	Groups []string
}

// Variables is the variable-binding context of a method activation; blocks
// share the context of their home activation.
type Variables struct {
	LastMatch Value
}

// Block is a closure over the frame that created it.
type Block struct {
	prog   *Program
	parent *frame
	self   Value
	scope  *Module
	vars   *Variables
}

// UnwindKind distinguishes non-exception unwinds.
type UnwindKind uint8

const (
	UnwindBreak UnwindKind = iota
	UnwindReturn
)

// Unwind is the in-flight state of a break or return travelling through
// ensure handlers. Prior is the exception state it displaced.
type Unwind struct {
	Kind  UnwindKind
	Value Value
	Prior Value
}

// Truthy reports Ruby truthiness: only nil and false are false.
func Truthy(v Value) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	}
	return true
}

// Inspect renders a value for messages and test failures.
func Inspect(v Value) string {
	switch x := v.(type) {
	case nil:
		return "nil"
	case bool:
		return fmt.Sprintf("%t", x)
	case int64:
		return fmt.Sprintf("%d", x)
	case string:
		return fmt.Sprintf("%q", x)
	case Symbol:
		return ":" + string(x)
	case *Array:
		parts := make([]string, len(x.Elems))
		for i, e := range x.Elems {
			parts[i] = Inspect(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case *Module:
		return x.Path()
	case *Object:
		if x.Message != "" {
			return fmt.Sprintf("#<%s: %s>", x.Class.Path(), x.Message)
		}
		return fmt.Sprintf("#<%s>", x.Class.Path())
	case *MatchData:
		if len(x.Groups) > 0 {
			return fmt.Sprintf("#<MatchData %q>", x.Groups[0])
		}
		return "#<MatchData>"
	case *Block:
		return "#<Proc>"
	case *GlobalTable:
		return "#<Globals>"
	case *Variables:
		return "#<Variables>"
	case *Unwind:
		if x.Kind == UnwindBreak {
			return "#<break " + Inspect(x.Value) + ">"
		}
		return "#<return " + Inspect(x.Value) + ">"
	}
	return fmt.Sprintf("%v", v)
}

// Equal compares two values the way == does for the built-in types.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case *Array:
		y, ok := b.(*Array)
		if !ok || len(x.Elems) != len(y.Elems) {
			return false
		}
		for i := range x.Elems {
			if !Equal(x.Elems[i], y.Elems[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

func literalValue(l Literal) Value {
	switch l.Kind {
	case LitInt:
		return l.Int
	case LitString:
		return l.Str
	case LitSymbol:
		return Symbol(l.Str)
	}
	return nil
}
