package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/garnet/vm"
)

// ---------------------------------------------------------------------------
// Constant nodes
// ---------------------------------------------------------------------------

// TopLevel is the root namespace (the parent of ::Name).
type TopLevel struct{ Pos }

// ConstFind is a bare constant reference, resolved lexically.
type ConstFind struct {
	Pos
	Name string
}

// ConstAccess is Parent::Name.
type ConstAccess struct {
	Pos
	Parent Node
	Name   string
}

// ConstAtTop is ::Name, resolved from the root namespace.
type ConstAtTop struct {
	Pos
	Name string
}

// ConstName is the bare name being assigned by a ConstSet.
type ConstName struct {
	Pos
	Name string
}

// ConstSet assigns a constant. A nil Parent assigns into the current
// lexical scope. A nil Value means the value is already on the stack.
type ConstSet struct {
	Pos
	Parent Node
	Name   *ConstName
	Value  Node
}

func (n *TopLevel) Children() []Node    { return nil }
func (n *ConstFind) Children() []Node   { return nil }
func (n *ConstAccess) Children() []Node { return []Node{n.Parent} }
func (n *ConstAtTop) Children() []Node  { return nil }
func (n *ConstName) Children() []Node   { return nil }
func (n *ConstSet) Children() []Node {
	return []Node{n.Parent, child(n.Name, n.Name != nil), n.Value}
}

func (n *TopLevel) node()    {}
func (n *ConstFind) node()   {}
func (n *ConstAccess) node() {}
func (n *ConstAtTop) node()  {}
func (n *ConstName) node()   {}
func (n *ConstSet) node()    {}

// NewConstSet builds an assignment to target, which must be a ConstFind
// (lexical scope), a ConstAccess (its parent) or a ConstAtTop (the root).
func NewConstSet(line int, target Node, value Node) (*ConstSet, error) {
	set := &ConstSet{Pos: Pos{line}, Value: value}
	switch t := target.(type) {
	case *ConstFind:
		set.Name = &ConstName{Pos: t.Pos, Name: t.Name}
	case *ConstAccess:
		set.Parent = t.Parent
		set.Name = &ConstName{Pos: t.Pos, Name: t.Name}
	case *ConstAtTop:
		set.Parent = &TopLevel{Pos: t.Pos}
		set.Name = &ConstName{Pos: t.Pos, Name: t.Name}
	default:
		return nil, fmt.Errorf("constant assignment to %T: %w", target, ErrMalformedNode)
	}
	return set, nil
}

// Path returns the textual form of the constant chain, e.g. "A::B::C".
// The second result is false when the chain contains a non-constant parent.
func (n *ConstAccess) Path() (string, bool) {
	path, _, ok := constPath(n)
	return path, ok
}

// constPath renders a constant chain. top reports whether it is rooted at
// the top-level namespace.
func constPath(n Node) (path string, top bool, ok bool) {
	switch c := n.(type) {
	case *ConstFind:
		return c.Name, false, true
	case *ConstAtTop:
		return c.Name, true, true
	case *ConstAccess:
		if _, isTop := c.Parent.(*TopLevel); isTop {
			return c.Name, true, true
		}
		parent, top, ok := constPath(c.Parent)
		if !ok {
			return "", false, false
		}
		var b strings.Builder
		b.WriteString(parent)
		b.WriteString("::")
		b.WriteString(c.Name)
		return b.String(), top, true
	}
	return "", false, false
}

// ---------------------------------------------------------------------------
// Constant compilation
// ---------------------------------------------------------------------------

func (c *Compiler) compileConstAccess(n *ConstAccess, ctx Context) {
	c.compile(n.Parent, ctx.expr())
	c.asm.FindConst(n.Name)
}

func (c *Compiler) compileConstSet(n *ConstSet, ctx Context) {
	a := c.asm
	if n.Name == nil {
		c.errorf("line %d: constant assignment without a name", n.Line())
		a.PushNil()
		return
	}

	pushParent := func() {
		if n.Parent == nil {
			a.PushScope()
		} else {
			c.compile(n.Parent, ctx.expr())
		}
	}

	if ctx.InMasgn || n.Value == nil {
		pushParent()
		a.Swap()
		a.PushLiteral(vm.Sym(n.Name.Name))
		a.Swap()
		a.Send("const_set", 2, false)
		return
	}

	pushParent()
	a.PushLiteral(vm.Sym(n.Name.Name))
	c.compile(n.Value, ctx.expr())
	a.Send("const_set", 2, false)
}

// definedConst emits the definedness probe for a constant reference.
func (c *Compiler) definedConst(n Node, ctx Context) {
	a := c.asm
	switch k := n.(type) {
	case *ConstFind:
		c.definedProbe("constant", func() {
			a.PushScope()
			a.PushLiteral(vm.Sym(k.Name))
			a.Send("const_defined?", 1, false)
		})
	case *ConstAtTop:
		c.definedProbe("constant", func() {
			a.PushCpathTop()
			a.PushLiteral(vm.Str(k.Name))
			a.Send("const_path_defined?", 1, false)
		})
	case *ConstAccess:
		path, top, ok := constPath(k)
		if !ok {
			// Parent is an arbitrary expression; it is evaluated and asked
			// for the last segment only.
			c.definedProbe("constant", func() {
				c.compile(k.Parent, ctx.expr())
				a.PushLiteral(vm.Sym(k.Name))
				a.Send("const_defined?", 1, false)
			})
			return
		}
		c.definedProbe("constant", func() {
			if top {
				a.PushCpathTop()
			} else {
				a.PushScope()
			}
			a.PushLiteral(vm.Str(path))
			a.Send("const_path_defined?", 1, false)
		})
	}
}
