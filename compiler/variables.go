package compiler

import (
	"github.com/chazu/garnet/vm"
)

// ---------------------------------------------------------------------------
// Variable nodes
// ---------------------------------------------------------------------------

// BackRef is one of the match-derived globals $&, $`, $' and $+.
type BackRef struct {
	Pos
	Kind byte
}

// NthRef is a numbered match group, $1 through $9 and beyond.
type NthRef struct {
	Pos
	Which int
}

// LocalRef is a resolved local variable slot. Depth counts enclosing
// closed scopes; 0 is the current one.
type LocalRef struct {
	Slot  int
	Depth int
}

// LocalVariableAccess reads a local variable.
type LocalVariableAccess struct {
	Pos
	Name string
	Var  *LocalRef
}

// LocalVariableAssignment writes a local variable.
type LocalVariableAssignment struct {
	Pos
	Name  string
	Var   *LocalRef
	Value Node
}

// InstanceVariableAccess reads @name.
type InstanceVariableAccess struct {
	Pos
	Name string
}

// InstanceVariableAssignment writes @name.
type InstanceVariableAssignment struct {
	Pos
	Name  string
	Value Node
}

// ClassVariableAccess reads @@name.
type ClassVariableAccess struct {
	Pos
	Name string
}

// ClassVariableAssignment writes @@name.
type ClassVariableAssignment struct {
	Pos
	Name  string
	Value Node
}

// CVarDeclare is a class variable assignment in declaration position. It
// compiles exactly like ClassVariableAssignment.
type CVarDeclare struct {
	Pos
	Name  string
	Value Node
}

// GlobalVariableAccess reads a global. $! and $~ are special: they name the
// current exception and the last match of the current activation.
type GlobalVariableAccess struct {
	Pos
	Name string
}

// GlobalVariableAssignment writes a global. Assigning $! raises the value.
type GlobalVariableAssignment struct {
	Pos
	Name  string
	Value Node
}

// SplatAssignment assigns the leftover values of a multiple assignment, as
// an array, to Value.
type SplatAssignment struct {
	Pos
	Value Node
}

// EmptySplat is a bare * in a target list: leftovers are discarded.
type EmptySplat struct{ Pos }

func (n *BackRef) Children() []Node                 { return nil }
func (n *NthRef) Children() []Node                  { return nil }
func (n *LocalVariableAccess) Children() []Node     { return nil }
func (n *LocalVariableAssignment) Children() []Node { return []Node{n.Value} }
func (n *InstanceVariableAccess) Children() []Node  { return nil }
func (n *InstanceVariableAssignment) Children() []Node {
	return []Node{n.Value}
}
func (n *ClassVariableAccess) Children() []Node { return nil }
func (n *ClassVariableAssignment) Children() []Node {
	return []Node{n.Value}
}
func (n *CVarDeclare) Children() []Node          { return []Node{n.Value} }
func (n *GlobalVariableAccess) Children() []Node { return nil }
func (n *GlobalVariableAssignment) Children() []Node {
	return []Node{n.Value}
}
func (n *SplatAssignment) Children() []Node { return []Node{n.Value} }
func (n *EmptySplat) Children() []Node      { return nil }

func (n *BackRef) node()                    {}
func (n *NthRef) node()                     {}
func (n *LocalVariableAccess) node()        {}
func (n *LocalVariableAssignment) node()    {}
func (n *InstanceVariableAccess) node()     {}
func (n *InstanceVariableAssignment) node() {}
func (n *ClassVariableAccess) node()        {}
func (n *ClassVariableAssignment) node()    {}
func (n *CVarDeclare) node()                {}
func (n *GlobalVariableAccess) node()       {}
func (n *GlobalVariableAssignment) node()   {}
func (n *SplatAssignment) node()            {}
func (n *EmptySplat) node()                 {}

// stackForm reports whether an assignment takes its value from the stack
// instead of compiling its own value.
func stackForm(value Node, ctx Context) bool {
	return ctx.InMasgn || value == nil
}

// ---------------------------------------------------------------------------
// Match references
// ---------------------------------------------------------------------------

func (c *Compiler) compileBackRef(n *BackRef) {
	a := c.asm
	a.PushVariables()
	a.PushLiteral(vm.Sym(string(n.Kind)))
	a.Send("back_ref", 1, false)
}

func (c *Compiler) compileNthRef(n *NthRef) {
	a := c.asm
	a.PushVariables()
	a.PushLiteral(vm.Int(int64(n.Which)))
	a.Send("nth_ref", 1, false)
}

// ---------------------------------------------------------------------------
// Locals and instance variables
// ---------------------------------------------------------------------------

func (c *Compiler) compileLocalAccess(n *LocalVariableAccess) {
	if n.Var == nil {
		c.errorf("line %d: unresolved local variable %s", n.Line(), n.Name)
		c.asm.PushNil()
		return
	}
	if n.Var.Depth == 0 {
		c.asm.PushLocal(n.Var.Slot)
	} else {
		c.asm.PushLocalDepth(n.Var.Depth, n.Var.Slot)
	}
}

func (c *Compiler) compileLocalAssignment(n *LocalVariableAssignment, ctx Context) {
	if !stackForm(n.Value, ctx) {
		c.compile(n.Value, ctx.expr())
	}
	if n.Var == nil {
		c.errorf("line %d: unresolved local variable %s", n.Line(), n.Name)
		return
	}
	if n.Var.Depth == 0 {
		c.asm.SetLocal(n.Var.Slot)
	} else {
		c.asm.SetLocalDepth(n.Var.Depth, n.Var.Slot)
	}
}

func (c *Compiler) compileIvarAssignment(n *InstanceVariableAssignment, ctx Context) {
	if !stackForm(n.Value, ctx) {
		c.compile(n.Value, ctx.expr())
	}
	c.asm.SetIvar(n.Name)
}

// ---------------------------------------------------------------------------
// Class variables
// ---------------------------------------------------------------------------

// pushCVarScope pushes the module owning class variables: self inside a
// class or module body, the lexical scope everywhere else.
func (c *Compiler) pushCVarScope(ctx Context) {
	if ctx.InModule {
		c.asm.PushSelf()
	} else {
		c.asm.PushScope()
	}
}

func (c *Compiler) compileCVarAccess(n *ClassVariableAccess, ctx Context) {
	a := c.asm
	c.pushCVarScope(ctx)
	a.PushLiteral(vm.Sym(n.Name))
	a.Send("class_variable_get", 1, false)
}

// compileCVarOr reads n when it is defined and truthy, otherwise runs
// fallback, without raising for an undefined variable.
func (c *Compiler) compileCVarOr(n *ClassVariableAccess, ctx Context, fallback func()) {
	a := c.asm
	done := a.NewLabel()
	notFound := a.NewLabel()

	c.pushCVarScope(ctx)
	a.PushLiteral(vm.Sym(n.Name))
	a.Send("class_variable_defined?", 1, false)
	a.GotoIfFalse(notFound)

	c.compileCVarAccess(n, ctx)
	a.Dup()
	a.GotoIfTrue(done)
	a.Pop()

	a.Mark(notFound)
	fallback()
	a.Mark(done)
}

func (c *Compiler) compileCVarAssignment(name string, value Node, ctx Context) {
	a := c.asm
	if stackForm(value, ctx) {
		c.pushCVarScope(ctx)
		a.Swap()
		a.PushLiteral(vm.Sym(name))
		a.Swap()
	} else {
		c.pushCVarScope(ctx)
		a.PushLiteral(vm.Sym(name))
		c.compile(value, ctx.expr())
	}
	a.Send("class_variable_set", 2, false)
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// pushGlobals pushes the runtime's global variable table.
func (c *Compiler) pushGlobals() {
	c.asm.FindCpathTopConst("Runtime")
	c.asm.FindConst("Globals")
}

func (c *Compiler) compileGlobalAccess(n *GlobalVariableAccess) {
	a := c.asm
	switch n.Name {
	case "$!":
		a.PushException()
	case "$~":
		a.PushVariables()
		a.Send("last_match", 0, false)
	default:
		c.pushGlobals()
		a.PushLiteral(vm.Sym(n.Name))
		a.Send("[]", 1, false)
	}
}

func (c *Compiler) compileGlobalAssignment(n *GlobalVariableAssignment, ctx Context) {
	a := c.asm
	stack := stackForm(n.Value, ctx)

	switch n.Name {
	case "$!":
		if !stack {
			c.compile(n.Value, ctx.expr())
		}
		a.RaiseExc()
		// Unreachable, but keeps the expression's stack contract.
		a.PushNil()

	case "$~":
		if stack {
			a.FindCpathTopConst("Regexp")
			a.Swap()
		} else {
			a.FindCpathTopConst("Regexp")
			c.compile(n.Value, ctx.expr())
		}
		a.Send("last_match=", 1, false)

	default:
		if stack {
			c.pushGlobals()
			a.Swap()
			a.PushLiteral(vm.Sym(n.Name))
			a.Swap()
		} else {
			c.pushGlobals()
			a.PushLiteral(vm.Sym(n.Name))
			c.compile(n.Value, ctx.expr())
		}
		a.Send("[]=", 2, false)
	}
}

// ---------------------------------------------------------------------------
// Splat targets
// ---------------------------------------------------------------------------

func (c *Compiler) compileSplatAssignment(n *SplatAssignment, ctx Context) {
	c.asm.CastArray()
	c.compile(n.Value, ctx.target())
}
