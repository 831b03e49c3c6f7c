package compiler

import (
	"fmt"
	"strings"

	"github.com/chazu/garnet/vm"
)

// ---------------------------------------------------------------------------
// Codegen: Compile AST to bytecode
// ---------------------------------------------------------------------------

// Options controls code generation.
type Options struct {
	// Verify runs the stack verifier over every finished program.
	Verify bool
	// DebugLines records a line table for the program.
	DebugLines bool
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{Verify: true, DebugLines: true}
}

// UnitKind says what kind of code a compilation unit holds.
type UnitKind int

const (
	UnitScript     UnitKind = iota // top-level script
	UnitMethod                     // method body
	UnitModuleBody                 // class or module body
)

var unitKindNames = [...]string{"script", "method", "module"}

func (k UnitKind) String() string {
	if int(k) < len(unitKindNames) {
		return unitKindNames[k]
	}
	return fmt.Sprintf("UnitKind(%d)", int(k))
}

// Unit is one compilation unit: a named body of code.
type Unit struct {
	Name string
	Kind UnitKind
	Body Node
}

// Compiler compiles AST nodes to bytecode.
type Compiler struct {
	asm    *vm.Assembler
	opts   Options
	errors []string
}

// NewCompiler creates a new compiler.
func NewCompiler(opts Options) *Compiler {
	return &Compiler{opts: opts}
}

// Errors returns accumulated compilation errors.
func (c *Compiler) Errors() []string {
	return c.errors
}

// errorf records a compilation error.
func (c *Compiler) errorf(format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *Compiler) setLine(line int) {
	if c.opts.DebugLines {
		c.asm.SetLine(line)
	}
}

// CompileUnit compiles u into a finished program. The body's value is
// returned from the program. Any error means no program is produced.
func (c *Compiler) CompileUnit(u *Unit) (*vm.Program, error) {
	if err := Validate(u.Body); err != nil {
		return nil, fmt.Errorf("%s: %w", u.Name, err)
	}

	c.asm = vm.NewAssembler(u.Name)
	c.errors = nil
	ctx := Context{InModule: u.Kind == UnitModuleBody}

	c.compileOrNil(u.Body, ctx)
	c.asm.Ret()

	if len(c.errors) > 0 {
		return nil, fmt.Errorf("%s: compile errors: %s", u.Name, strings.Join(c.errors, "; "))
	}
	return c.finish(c.asm, vm.Verify)
}

// CompileInto emits n into asm under ctx without finishing it. The caller
// owns the assembler, including any break or retry targets set on it.
func (c *Compiler) CompileInto(asm *vm.Assembler, n Node, ctx Context) error {
	if err := Validate(n); err != nil {
		return err
	}
	prev := c.asm
	c.asm = asm
	defer func() { c.asm = prev }()

	c.errors = nil
	c.compileOrNil(n, ctx)
	if len(c.errors) > 0 {
		return fmt.Errorf("compile errors: %s", strings.Join(c.errors, "; "))
	}
	return nil
}

func (c *Compiler) finish(asm *vm.Assembler, verify func(*vm.Program) (*vm.StackInfo, error)) (*vm.Program, error) {
	p, err := asm.Finish()
	if err != nil {
		return nil, err
	}
	if c.opts.Verify {
		info, err := verify(p)
		if err != nil {
			return nil, err
		}
		p.StackSize = info.MaxDepth
	}
	return p, nil
}

// compileOrNil compiles n, or pushes nil when n is absent.
func (c *Compiler) compileOrNil(n Node, ctx Context) {
	if n == nil {
		c.asm.PushNil()
		return
	}
	c.compile(n, ctx)
}

// compile emits n, leaving exactly one value on the stack. The node's line
// is current while it compiles and the previous line is restored after.
func (c *Compiler) compile(n Node, ctx Context) {
	prev := c.asm.Line()
	c.setLine(n.Line())
	defer c.setLine(prev)

	a := c.asm
	switch e := n.(type) {
	case *Nil:
		a.PushNil()
	case *True:
		a.PushTrue()
	case *False:
		a.PushFalse()
	case *Self:
		a.PushSelf()
	case *IntLiteral:
		a.PushLiteral(vm.Int(e.Value))
	case *StringLiteral:
		a.PushLiteral(vm.Str(e.Value))
	case *SymbolLiteral:
		a.PushLiteral(vm.Sym(e.Value))
	case *ArrayLiteral:
		c.compileArray(e.Body, ctx)
	case *SplatValue:
		c.compile(e.Value, ctx.expr())
		a.CastArray()
	case *ConcatArgs:
		c.compileConcatArgs(e, ctx)
	case *Send:
		c.compileSend(e, ctx)
	case *Block:
		c.compileBlock(e, ctx)
	case *ClosedScope:
		c.compileClosedScope(e, ctx)
	case *Defined:
		c.compileDefined(e.Expr, ctx)
	case *OrAssign:
		c.compileOrAssign(e, ctx)

	case *Break:
		c.compileBreak(e, ctx)
	case *Retry:
		c.compileRetry(ctx)
	case *Return:
		c.compileReturn(e, ctx)

	case *TopLevel:
		a.PushCpathTop()
	case *ConstFind:
		a.PushConst(e.Name)
	case *ConstAccess:
		c.compileConstAccess(e, ctx)
	case *ConstAtTop:
		a.FindCpathTopConst(e.Name)
	case *ConstName:
		a.PushLiteral(vm.Sym(e.Name))
	case *ConstSet:
		c.compileConstSet(e, ctx)

	case *Begin:
		c.compileOrNil(e.Rescue, ctx)
	case *Ensure:
		c.compileEnsure(e, ctx)
	case *Rescue:
		c.compileRescue(e, ctx)
	case *RescueSplat:
		c.compileRescueSplat(e, ctx)
	case *RescueCondition:
		c.errorf("line %d: rescue clause outside of a rescue", e.Line())
		a.PushNil()

	case *BackRef:
		c.compileBackRef(e)
	case *NthRef:
		c.compileNthRef(e)
	case *LocalVariableAccess:
		c.compileLocalAccess(e)
	case *LocalVariableAssignment:
		c.compileLocalAssignment(e, ctx)
	case *InstanceVariableAccess:
		a.PushIvar(e.Name)
	case *InstanceVariableAssignment:
		c.compileIvarAssignment(e, ctx)
	case *ClassVariableAccess:
		c.compileCVarAccess(e, ctx)
	case *ClassVariableAssignment:
		c.compileCVarAssignment(e.Name, e.Value, ctx)
	case *CVarDeclare:
		c.compileCVarAssignment(e.Name, e.Value, ctx)
	case *GlobalVariableAccess:
		c.compileGlobalAccess(e)
	case *GlobalVariableAssignment:
		c.compileGlobalAssignment(e, ctx)
	case *SplatAssignment:
		c.compileSplatAssignment(e, ctx)
	case *EmptySplat:
		// Nothing to assign.
	case *MAsgn:
		c.compileMAsgn(e, ctx)

	default:
		c.errorf("line %d: unknown node type: %T", n.Line(), n)
		a.PushNil()
	}
}

// ---------------------------------------------------------------------------
// Collaborator nodes
// ---------------------------------------------------------------------------

func (c *Compiler) compileArray(elems []Node, ctx Context) {
	for _, e := range elems {
		c.compile(e, ctx.expr())
	}
	c.asm.MakeArray(len(elems))
}

func (c *Compiler) compileConcatArgs(n *ConcatArgs, ctx Context) {
	a := c.asm
	if n.Array != nil {
		c.compileArray(n.Array.Body, ctx)
	} else {
		a.MakeArray(0)
	}
	c.compileOrNil(n.Rest, ctx.expr())
	a.CastArray()
	a.Send("+", 1, false)
}

func (c *Compiler) compileSend(n *Send, ctx Context) {
	a := c.asm
	private := n.Receiver == nil
	if private {
		a.PushSelf()
	} else {
		c.compile(n.Receiver, ctx.expr())
	}
	for _, arg := range n.Args {
		c.compile(arg, ctx.expr())
	}
	if n.Splat == nil {
		a.Send(n.Name, len(n.Args), private)
		return
	}
	c.compile(n.Splat, ctx.expr())
	a.CastArray()
	a.SendWithSplat(n.Name, len(n.Args), private, false)
}

func (c *Compiler) compileBlock(n *Block, ctx Context) {
	if len(n.Body) == 0 {
		c.asm.PushNil()
		return
	}
	for i, stmt := range n.Body {
		c.compile(stmt, ctx.expr())
		if i < len(n.Body)-1 {
			c.asm.Pop()
		}
	}
}

// compileClosedScope compiles the closure body into a child program and
// emits the instruction that creates it. The child starts with its
// argument array on the stack.
func (c *Compiler) compileClosedScope(n *ClosedScope, ctx Context) {
	name := n.Name
	if name == "" {
		name = fmt.Sprintf("%s:block@%d", c.asm.Name(), n.Line())
	}

	parent := c.asm
	c.asm = vm.NewAssembler(name)
	c.setLine(n.Line())

	inner := ctx.closed()
	if n.Params != nil {
		params := inner
		params.IterArguments = true
		c.compile(n.Params, params)
	}
	c.asm.Pop()
	c.compileOrNil(n.Body, inner)
	c.asm.Ret()

	child, err := c.finish(c.asm, vm.VerifyBlock)
	c.asm = parent
	if err != nil {
		c.errorf("line %d: %v", n.Line(), err)
		c.asm.PushNil()
		return
	}
	c.asm.CreateBlock(child)
}

// compileOrAssign emits access || assignment. A class variable read is
// guarded so an undefined variable takes the assignment branch.
func (c *Compiler) compileOrAssign(n *OrAssign, ctx Context) {
	a := c.asm
	assign := func() {
		c.compile(n.Assignment, ctx.expr())
	}
	if cv, ok := n.Access.(*ClassVariableAccess); ok {
		c.compileCVarOr(cv, ctx, assign)
		return
	}
	done := a.NewLabel()
	c.compile(n.Access, ctx.expr())
	a.Dup()
	a.GotoIfTrue(done)
	a.Pop()
	assign()
	a.Mark(done)
}

// ---------------------------------------------------------------------------
// Compile helpers for external use
// ---------------------------------------------------------------------------

// Compile compiles u with opts.
func Compile(u *Unit, opts Options) (*vm.Program, error) {
	return NewCompiler(opts).CompileUnit(u)
}

// CompileExpr compiles a single expression as a script with the default
// options.
func CompileExpr(name string, body Node) (*vm.Program, error) {
	return Compile(&Unit{Name: name, Kind: UnitScript, Body: body}, DefaultOptions())
}
