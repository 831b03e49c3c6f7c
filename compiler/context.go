package compiler

// Context carries the contextual annotations of the code being compiled.
// It is passed by value down the tree, so an annotation set for a subtree
// never leaks to its siblings.
type Context struct {
	// InEnsure is set inside the protected body of an ensure region;
	// returns there must travel through the cleanup code.
	InEnsure bool
	// InRescue is set inside a rescue handler body.
	InRescue bool
	// InMasgn is set on the targets of a multiple assignment: the value
	// being assigned is already on the stack.
	InMasgn bool
	// IterArguments is set on a multiple assignment that destructures
	// block arguments; it leaves no result of its own.
	IterArguments bool
	// InModule is set in a class or module body, where class variables
	// belong to self rather than the lexical scope.
	InModule bool
	// InBlock is set inside a closed scope, where a break with no
	// enclosing loop leaves the block.
	InBlock bool
}

// expr returns the context for a value-producing subexpression.
func (ctx Context) expr() Context {
	ctx.InMasgn = false
	ctx.IterArguments = false
	return ctx
}

// target returns the context for a multiple-assignment target.
func (ctx Context) target() Context {
	ctx.InMasgn = true
	ctx.IterArguments = false
	return ctx
}

func (ctx Context) inEnsure() Context {
	ctx = ctx.expr()
	ctx.InEnsure = true
	return ctx
}

func (ctx Context) inRescue() Context {
	ctx = ctx.expr()
	ctx.InRescue = true
	return ctx
}

// protected returns the context for code guarded by a rescue region,
// where retry has no target.
func (ctx Context) protected() Context {
	ctx = ctx.expr()
	ctx.InRescue = false
	return ctx
}

// closed returns the context for the body of a closed scope: only the
// module annotation survives the boundary.
func (ctx Context) closed() Context {
	return Context{InModule: ctx.InModule, InBlock: true}
}
