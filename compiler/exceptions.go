package compiler

import (
	"fmt"

	"github.com/chazu/garnet/vm"
)

// ---------------------------------------------------------------------------
// Exception nodes
// ---------------------------------------------------------------------------

// Begin is a begin...end expression; it compiles to its contents.
type Begin struct {
	Pos
	Rescue Node
}

// Ensure runs Ensure exactly once however Body is left: normally, by an
// exception, by break, by retry or by return.
type Ensure struct {
	Pos
	Body   Node
	Ensure Node
}

// Rescue protects Body with a chain of handlers. Else runs when Body
// completes without raising, and its value replaces Body's.
type Rescue struct {
	Pos
	Body   Node
	Rescue *RescueCondition
	Else   Node
}

// RescueCondition is one handler clause: it matches the current exception
// against Conditions and Splat, binds it with Assignment and runs Body.
// Next is tried when nothing matches.
type RescueCondition struct {
	Pos
	Conditions *ArrayLiteral
	Splat      *RescueSplat
	Assignment Node
	Body       Node
	Next       *RescueCondition
}

// RescueSplat is a splatted matcher list: rescue *errors.
type RescueSplat struct {
	Pos
	Value Node
}

func (n *Begin) Children() []Node  { return []Node{n.Rescue} }
func (n *Ensure) Children() []Node { return []Node{n.Body, n.Ensure} }
func (n *Rescue) Children() []Node {
	return []Node{n.Body, child(n.Rescue, n.Rescue != nil), n.Else}
}
func (n *RescueCondition) Children() []Node {
	return []Node{
		child(n.Conditions, n.Conditions != nil),
		child(n.Splat, n.Splat != nil),
		n.Assignment,
		n.Body,
		child(n.Next, n.Next != nil),
	}
}
func (n *RescueSplat) Children() []Node { return []Node{n.Value} }

func (n *Begin) node()           {}
func (n *Ensure) node()          {}
func (n *Rescue) node()          {}
func (n *RescueCondition) node() {}
func (n *RescueSplat) node()     {}

// NewEnsure builds an ensure region. An absent body evaluates to nil.
func NewEnsure(line int, body, ensure Node) *Ensure {
	if body == nil {
		body = &Nil{Pos: Pos{line}}
	}
	return &Ensure{Pos: Pos{line}, Body: body, Ensure: ensure}
}

// NewRescueCondition builds a handler clause. conditions may be an
// ArrayLiteral of matchers, a ConcatArgs of matchers plus a splat, a
// SplatValue, or nil for the default StandardError matcher. When the first
// statement of body assigns $!, it becomes the clause's Assignment.
func NewRescueCondition(line int, conditions Node, body Node, next *RescueCondition) (*RescueCondition, error) {
	rc := &RescueCondition{Pos: Pos{line}, Next: next}

	switch cond := conditions.(type) {
	case *ArrayLiteral:
		rc.Conditions = cond
	case *ConcatArgs:
		if cond.Array == nil || cond.Rest == nil {
			return nil, fmt.Errorf("line %d: rescue list with a missing part: %w", line, ErrMalformedNode)
		}
		rc.Conditions = cond.Array
		rc.Splat = &RescueSplat{Pos: cond.Pos, Value: cond.Rest}
	case *SplatValue:
		rc.Splat = &RescueSplat{Pos: cond.Pos, Value: cond.Value}
	default:
		rc.Conditions = &ArrayLiteral{
			Pos:  Pos{line},
			Body: []Node{&ConstFind{Pos: Pos{line}, Name: "StandardError"}},
		}
	}

	switch b := body.(type) {
	case *Block:
		if len(b.Body) > 0 && assignsCurrentException(b.Body[0]) {
			rc.Assignment = b.Body[0]
			rest := b.Body[1:]
			if len(rest) == 0 {
				body = nil
			} else {
				body = &Block{Pos: b.Pos, Body: rest}
			}
		}
	default:
		if body != nil && assignsCurrentException(body) {
			rc.Assignment = body
			body = nil
		}
	}
	rc.Body = body
	return rc, nil
}

// assignsCurrentException reports whether n is an assignment of $!.
func assignsCurrentException(n Node) bool {
	var value Node
	switch a := n.(type) {
	case *LocalVariableAssignment:
		value = a.Value
	case *InstanceVariableAssignment:
		value = a.Value
	case *ClassVariableAssignment:
		value = a.Value
	case *CVarDeclare:
		value = a.Value
	case *GlobalVariableAssignment:
		value = a.Value
	case *ConstSet:
		value = a.Value
	default:
		return false
	}
	g, ok := value.(*GlobalVariableAccess)
	return ok && g.Name == "$!"
}

// ---------------------------------------------------------------------------
// Exception compilation
// ---------------------------------------------------------------------------

// compileEnsure lays out:
//
//	setup_unwind ex, ensure
//	<body>
//	pop_unwind
//	goto ok
//	[brk: pop_unwind; <cleanup>; goto outer_break]
//	[rty: pop_unwind; <cleanup>; goto outer_retry]
//	ex: push_exception; <cleanup>; pop_exception; reraise
//	ok: <cleanup>
func (c *Compiler) compileEnsure(n *Ensure, ctx Context) {
	a := c.asm
	ok := a.NewLabel()
	ex := a.NewLabel()

	outerBreak, outerRetry := a.Break(), a.Retry()
	var brk, rty *vm.Label
	if outerBreak != nil {
		brk = a.NewLabel()
		a.SetBreak(brk)
	}
	if outerRetry != nil {
		rty = a.NewLabel()
		a.SetRetry(rty)
	}

	a.SetupUnwind(ex, vm.EnsureType)
	c.compileOrNil(n.Body, ctx.inEnsure())
	a.PopUnwind()
	a.Goto(ok)

	a.SetBreak(outerBreak)
	a.SetRetry(outerRetry)

	// Leaving the body by break: the value rides above the cleanup.
	if brk != nil && brk.Used() {
		a.Mark(brk)
		a.PopUnwind()
		c.compileCleanup(n.Ensure, ctx, 1, false)
		a.Goto(outerBreak)
	}
	if rty != nil && rty.Used() {
		a.Mark(rty)
		a.PopUnwind()
		c.compileCleanup(n.Ensure, ctx, 0, false)
		a.Goto(outerRetry)
	}

	a.Mark(ex)
	a.PushException()
	c.compileCleanup(n.Ensure, ctx, 1, true)
	a.PopException()
	a.Reraise()

	a.Mark(ok)
	c.compileCleanup(n.Ensure, ctx, 1, false)
}

// compileCleanup emits the ensure clause for its effect. drop is the number
// of values the path keeps beneath the clause; a break out of the clause
// discards them, and on the exceptional path also abandons the exception.
func (c *Compiler) compileCleanup(n Node, ctx Context, drop int, exceptional bool) {
	a := c.asm
	a.PushModifiers()
	a.SetRetry(nil)
	c.withBreak(func() {
		c.compileOrNil(n, ctx.expr())
		a.Pop()
	}, func() {
		for i := 0; i < drop; i++ {
			a.Swap()
			a.Pop()
		}
		if exceptional {
			a.ClearException()
		}
	})
	a.PopModifiers()
}

// withBreak compiles body with a private break target when an outer one
// exists. A break taken inside runs leave and then continues to the outer
// target; normal completion skips both.
func (c *Compiler) withBreak(body func(), leave func()) {
	a := c.asm
	outer := a.Break()
	if outer == nil {
		body()
		return
	}
	brk := a.NewLabel()
	a.SetBreak(brk)
	body()
	a.SetBreak(outer)
	if !brk.Used() {
		return
	}
	skip := a.NewLabel()
	a.Goto(skip)
	a.Mark(brk)
	leave()
	a.Goto(outer)
	a.Mark(skip)
}

// compileRescue lays out:
//
//	push_exception
//	retry: setup_unwind ex, rescue
//	<body>
//	pop_unwind
//	goto els
//	[brk: pop_unwind; swap; pop_exception; goto outer_break]
//	ex: <handlers>
//	reraise: reraise
//	els: [pop; <else>]
//	done: swap; pop_exception
func (c *Compiler) compileRescue(n *Rescue, ctx Context) {
	a := c.asm
	a.PushModifiers()
	defer a.PopModifiers()

	if n.Body == nil {
		c.compileOrNil(n.Else, ctx.expr())
		return
	}

	retry := a.NewLabel()
	ex := a.NewLabel()
	reraise := a.NewLabel()
	els := a.NewLabel()
	done := a.NewLabel()
	a.SetRetry(retry)

	a.PushException()
	a.Mark(retry)
	a.SetupUnwind(ex, vm.RescueType)

	currentBreak := a.Break()
	if currentBreak != nil {
		a.SetBreak(a.NewLabel())
	}
	c.compile(n.Body, ctx.protected())
	a.PopUnwind()
	a.Goto(els)

	if currentBreak != nil {
		if brk := a.Break(); brk.Used() {
			a.Mark(brk)
			a.PopUnwind()
			a.Swap()
			a.PopException()
			a.Goto(currentBreak)
		}
		a.SetBreak(currentBreak)
	}

	a.Mark(ex)
	if n.Rescue != nil {
		c.compileRescueCondition(n.Rescue, ctx, reraise, done)
	}
	a.Mark(reraise)
	a.Reraise()

	a.Mark(els)
	if n.Else != nil {
		a.Pop()
		c.withBreak(func() {
			c.compile(n.Else, ctx.protected())
		}, func() {
			a.Swap()
			a.PopException()
		})
	}

	a.Mark(done)
	a.Swap()
	a.PopException()
}

// compileRescueCondition emits one handler clause and, recursively, the
// clauses chained after it. The saved exception state sits on the stack
// beneath everything the handlers push. A break inside a handler body must
// be in statement position: its exit path expects only the saved state and
// the break value on the stack.
func (c *Compiler) compileRescueCondition(n *RescueCondition, ctx Context, reraise, done *vm.Label) {
	a := c.asm
	prev := a.Line()
	c.setLine(n.Line())
	defer c.setLine(prev)

	body := a.NewLabel()
	if n.Conditions != nil {
		for _, cond := range n.Conditions.Body {
			c.compile(cond, ctx.expr())
			a.PushException()
			a.Send("===", 1, false)
			a.GotoIfTrue(body)
		}
	}
	if n.Splat != nil {
		c.compileRescueSplat(n.Splat, ctx)
		a.GotoIfTrue(body)
	}

	var next *vm.Label
	if n.Next != nil {
		next = a.NewLabel()
		a.Goto(next)
	} else {
		a.Goto(reraise)
	}

	a.Mark(body)
	if n.Assignment != nil {
		c.compile(n.Assignment, ctx.expr())
		a.Pop()
	}

	currentBreak := a.Break()
	brk := a.NewLabel()
	a.SetBreak(brk)
	c.compileOrNil(n.Body, ctx.inRescue())
	a.ClearException()
	a.Goto(done)

	if brk.Used() {
		a.Mark(brk)
		a.ClearException()
		a.Swap()
		a.PopException()
		if currentBreak != nil {
			a.Goto(currentBreak)
		} else {
			a.RaiseBreak()
		}
	}
	a.SetBreak(currentBreak)

	if n.Next != nil {
		a.Mark(next)
		c.compileRescueCondition(n.Next, ctx, reraise, done)
	}
}

// compileRescueSplat leaves true on the stack when any element of the
// splatted list matches the current exception. A non-array value is
// matched as a single element.
func (c *Compiler) compileRescueSplat(n *RescueSplat, ctx Context) {
	a := c.asm
	c.compile(n.Value, ctx.expr())
	a.CastArray()
	a.PushException()
	a.Send("__rescue_match__", 1, false)
}

// ---------------------------------------------------------------------------
// Break, retry and return
// ---------------------------------------------------------------------------

func (c *Compiler) compileBreak(n *Break, ctx Context) {
	a := c.asm
	c.compileOrNil(n.Value, ctx.expr())
	switch {
	case a.Break() != nil:
		a.Goto(a.Break())
	case ctx.InBlock:
		a.RaiseBreak()
	default:
		a.Pop()
		c.raiseLocalJump("break from proc-closure")
	}
}

func (c *Compiler) compileRetry(ctx Context) {
	if ctx.InRescue && c.asm.Retry() != nil {
		c.asm.Goto(c.asm.Retry())
		return
	}
	c.raiseLocalJump("retry outside of rescue clause")
}

func (c *Compiler) compileReturn(n *Return, ctx Context) {
	a := c.asm
	if ctx.InRescue {
		a.ClearException()
	}
	c.compileOrNil(n.Value, ctx.expr())
	if ctx.InEnsure {
		a.EnsureReturn()
	} else {
		a.Ret()
	}
}

// raiseLocalJump emits raise(LocalJumpError, msg). Like any expression it
// leaves one value, though control never reaches it.
func (c *Compiler) raiseLocalJump(msg string) {
	a := c.asm
	a.PushSelf()
	a.FindCpathTopConst("LocalJumpError")
	a.PushLiteral(vm.Str(msg))
	a.Send("raise", 2, true)
}
