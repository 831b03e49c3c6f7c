package compiler

import (
	"github.com/chazu/garnet/vm"
)

// ---------------------------------------------------------------------------
// defined?
// ---------------------------------------------------------------------------

// compileDefined emits a side-effect-free probe leaving a descriptive
// string when the expression is defined and nil otherwise. The probed
// expression itself is never evaluated, except for the parent of a
// constant chain that is not itself a constant.
func (c *Compiler) compileDefined(n Node, ctx Context) {
	a := c.asm
	switch e := n.(type) {
	case nil:
		a.PushNil()

	case *ConstFind, *ConstAccess, *ConstAtTop:
		c.definedConst(e, ctx)

	case *GlobalVariableAccess:
		if e.Name == "$!" || e.Name == "$~" {
			a.PushLiteral(vm.Str("global-variable"))
			return
		}
		c.definedProbe("global-variable", func() {
			c.pushGlobals()
			a.PushLiteral(vm.Sym(e.Name))
			a.Send("key?", 1, false)
		})

	case *BackRef, *NthRef:
		c.definedProbe("global-variable", func() {
			c.compile(e, ctx.expr())
		})

	case *LocalVariableAccess:
		a.PushLiteral(vm.Str("local-variable"))

	case *InstanceVariableAccess:
		c.definedProbe("instance-variable", func() {
			a.PushSelf()
			a.PushLiteral(vm.Sym(e.Name))
			a.Send("instance_variable_defined?", 1, false)
		})

	case *ClassVariableAccess:
		c.definedProbe("class variable", func() {
			c.pushCVarScope(ctx)
			a.PushLiteral(vm.Sym(e.Name))
			a.Send("class_variable_defined?", 1, false)
		})

	case *Self:
		a.PushLiteral(vm.Str("self"))
	case *Nil:
		a.PushLiteral(vm.Str("nil"))
	case *True:
		a.PushLiteral(vm.Str("true"))
	case *False:
		a.PushLiteral(vm.Str("false"))

	case *LocalVariableAssignment, *InstanceVariableAssignment,
		*ClassVariableAssignment, *CVarDeclare, *GlobalVariableAssignment,
		*ConstSet, *MAsgn, *OrAssign:
		a.PushLiteral(vm.Str("assignment"))

	default:
		a.PushLiteral(vm.Str("expression"))
	}
}

// definedProbe emits the guarded shape shared by every probe:
//
//	<test>
//	goto_if_true t
//	push_nil
//	goto f
//	t: push_literal marker
//	f:
func (c *Compiler) definedProbe(marker string, test func()) {
	a := c.asm
	t := a.NewLabel()
	f := a.NewLabel()
	test()
	a.GotoIfTrue(t)
	a.PushNil()
	a.Goto(f)
	a.Mark(t)
	a.PushLiteral(vm.Str(marker))
	a.Mark(f)
}
