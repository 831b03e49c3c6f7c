package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Reference interpreter
// ---------------------------------------------------------------------------

// frame is one activation of a Program.
type frame struct {
	prog    *Program
	ip      int
	stack   []Value
	locals  []Value
	parent  *frame // lexically enclosing activation, for blocks
	self    Value
	scope   *Module
	vars    *Variables
	unwinds []unwindEntry
}

// Builtin implements a private method callable as a receiverless send.
type Builtin func(i *Interpreter, self Value, args []Value) (Value, error)

// Interpreter executes Programs. It models the runtime contract the code
// generator targets: lexical constant scopes, class variables, a globals
// table, the current exception state and unwind regions.
type Interpreter struct {
	Object  *Module
	Regexp  *Module
	Globals *GlobalTable
	Main    *Object

	exceptionClass *Module
	runtimeError   *Module
	exception      Value
	builtins       map[string]Builtin
}

// NewInterpreter creates an interpreter with the core namespace populated.
func NewInterpreter() *Interpreter {
	i := &Interpreter{
		Globals:  newGlobalTable(),
		builtins: make(map[string]Builtin),
	}
	i.Object = newModule("Object", nil, nil, true)
	i.Object.Consts["Object"] = i.Object

	i.exceptionClass = i.DefineClass("Exception", i.Object, i.Object)
	standard := i.DefineClass("StandardError", i.Object, i.exceptionClass)
	i.runtimeError = i.DefineClass("RuntimeError", i.Object, standard)
	nameError := i.DefineClass("NameError", i.Object, standard)
	i.DefineClass("NoMethodError", i.Object, nameError)
	i.DefineClass("TypeError", i.Object, standard)
	i.DefineClass("ArgumentError", i.Object, standard)
	i.DefineClass("LocalJumpError", i.Object, standard)

	i.Regexp = i.DefineClass("Regexp", i.Object, i.Object)
	runtime := i.DefineModule("Runtime", i.Object)
	runtime.Consts["Globals"] = i.Globals

	i.Main = NewObject(i.Object)
	i.Define("raise", builtinRaise)
	return i
}

// DefineModule creates module name inside lexical.
func (i *Interpreter) DefineModule(name string, lexical *Module) *Module {
	m := newModule(name, lexical, nil, false)
	lexical.Consts[name] = m
	return m
}

// DefineClass creates class name inside lexical with superclass super.
func (i *Interpreter) DefineClass(name string, lexical, super *Module) *Module {
	c := newModule(name, lexical, super, true)
	lexical.Consts[name] = c
	return c
}

// Class returns the top-level class or module called name, or nil.
func (i *Interpreter) Class(name string) *Module {
	m, _ := i.Object.Consts[name].(*Module)
	return m
}

// Define registers a builtin private method.
func (i *Interpreter) Define(name string, fn Builtin) {
	i.builtins[name] = fn
}

// Exception returns the current exception state ($!).
func (i *Interpreter) Exception() Value {
	return i.exception
}

// Run executes p at top level: self is the main object and the lexical
// scope is Object.
func (i *Interpreter) Run(p *Program) (Value, error) {
	return i.RunIn(p, i.Main, i.Object)
}

// RunIn executes p with the given self and lexical scope.
func (i *Interpreter) RunIn(p *Program, self Value, scope *Module) (Value, error) {
	f := i.newFrame(p, nil, self, scope, &Variables{})
	v, err := i.execute(f)
	return v, i.publicError(err)
}

func (i *Interpreter) newFrame(p *Program, parent *frame, self Value, scope *Module, vars *Variables) *frame {
	return &frame{
		prog:   p,
		stack:  make([]Value, 0, p.StackSize+1),
		locals: make([]Value, p.NumLocals),
		parent: parent,
		self:   self,
		scope:  scope,
		vars:   vars,
	}
}

func (i *Interpreter) publicError(err error) error {
	var r *raised
	if !errors.As(err, &r) {
		return err
	}
	switch p := r.payload.(type) {
	case *Object:
		return &RaiseError{Exception: p}
	case *Unwind:
		i.exception = p.Prior
		return &UnwindError{Unwind: p}
	}
	return err
}

// execute runs f until it returns or raises past its last handler.
func (i *Interpreter) execute(f *frame) (Value, error) {
	code := f.prog.Code
	for {
		if f.ip >= len(code) {
			if len(f.stack) == 0 {
				return nil, nil
			}
			return f.stack[len(f.stack)-1], nil
		}
		ins := code[f.ip]
		f.ip++

		result, done, err := i.step(f, ins)
		if err != nil {
			var r *raised
			if !errors.As(err, &r) {
				return nil, err
			}
			if i.handle(f, r) {
				continue
			}
			if u, ok := r.payload.(*Unwind); ok && u.Kind == UnwindReturn {
				i.exception = u.Prior
				return u.Value, nil
			}
			return nil, r
		}
		if done {
			return result, nil
		}
	}
}

func (f *frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() Value {
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v
}

func (f *frame) top() Value {
	return f.stack[len(f.stack)-1]
}

func (f *frame) popN(n int) []Value {
	args := make([]Value, n)
	copy(args, f.stack[len(f.stack)-n:])
	f.stack = f.stack[:len(f.stack)-n]
	return args
}

func (f *frame) outer(depth int) *frame {
	o := f
	for ; depth > 0 && o != nil; depth-- {
		o = o.parent
	}
	return o
}

func castArray(v Value) *Array {
	switch x := v.(type) {
	case *Array:
		return x
	case nil:
		return &Array{}
	}
	return NewArray(v)
}

// step executes one instruction. done reports a return from the frame.
func (i *Interpreter) step(f *frame, ins Instruction) (result Value, done bool, err error) {
	if need, _ := ins.StackEffect(); len(f.stack) < need {
		return nil, false, fmt.Errorf("%s: %s at %d: stack underflow", f.prog.Name, ins.Op, f.ip-1)
	}

	switch ins.Op {
	case OpNOP:
	case OpPOP:
		f.pop()
	case OpDUP:
		f.push(f.top())
	case OpSWAP:
		n := len(f.stack)
		f.stack[n-1], f.stack[n-2] = f.stack[n-2], f.stack[n-1]
	case OpROTATE:
		s := f.stack[len(f.stack)-int(ins.A):]
		for l, r := 0, len(s)-1; l < r; l, r = l+1, r-1 {
			s[l], s[r] = s[r], s[l]
		}
	case OpMakeArray:
		f.push(NewArray(f.popN(int(ins.A))...))
	case OpCastArray:
		f.push(castArray(f.pop()))
	case OpShiftArray:
		arr := castArray(f.pop())
		if len(arr.Elems) == 0 {
			f.push(arr)
			f.push(nil)
			break
		}
		rest := make([]Value, len(arr.Elems)-1)
		copy(rest, arr.Elems[1:])
		f.push(NewArray(rest...))
		f.push(arr.Elems[0])

	case OpPushNil:
		f.push(nil)
	case OpPushTrue:
		f.push(true)
	case OpPushFalse:
		f.push(false)
	case OpPushSelf:
		f.push(f.self)
	case OpPushLiteral:
		f.push(literalValue(f.prog.Literals[ins.A]))
	case OpPushScope:
		f.push(f.scope)
	case OpPushCpathTop:
		f.push(i.Object)
	case OpPushVariables:
		f.push(f.vars)

	case OpPushLocal:
		f.push(f.locals[ins.A])
	case OpSetLocal:
		f.locals[ins.A] = f.top()
	case OpPushLocalDepth:
		o := f.outer(int(ins.A))
		if o == nil {
			return nil, false, fmt.Errorf("%s: no scope %d levels out", f.prog.Name, ins.A)
		}
		f.push(o.locals[ins.B])
	case OpSetLocalDepth:
		o := f.outer(int(ins.A))
		if o == nil {
			return nil, false, fmt.Errorf("%s: no scope %d levels out", f.prog.Name, ins.A)
		}
		o.locals[ins.B] = f.top()
	case OpPushIvar:
		var v Value
		if obj, ok := f.self.(*Object); ok {
			v = obj.Ivars[f.prog.LiteralName(ins.A)]
		}
		f.push(v)
	case OpSetIvar:
		obj, ok := f.self.(*Object)
		if !ok {
			return nil, false, i.raiseNew("RuntimeError", "can't modify instance variables of %s", Inspect(f.self))
		}
		obj.Ivars[f.prog.LiteralName(ins.A)] = f.top()

	case OpFindConst:
		name := f.prog.LiteralName(ins.A)
		ns, ok := f.pop().(*Module)
		if !ok {
			return nil, false, i.raiseNew("TypeError", "%s is not a class/module", name)
		}
		v, ok := ns.lookupConst(name)
		if !ok && ns == i.Object {
			v, ok = i.Object.Consts[name]
		}
		if !ok {
			return nil, false, i.raiseNew("NameError", "uninitialized constant %s::%s", ns.Path(), name)
		}
		f.push(v)
	case OpPushConst:
		name := f.prog.LiteralName(ins.A)
		v, ok := i.lexicalConst(f.scope, name)
		if !ok {
			return nil, false, i.raiseNew("NameError", "uninitialized constant %s", name)
		}
		f.push(v)

	case OpSend:
		args := f.popN(int(ins.B))
		recv := f.pop()
		v, err := i.send(f, recv, f.prog.LiteralName(ins.A), args, ins.C&SendPrivate != 0)
		if err != nil {
			return nil, false, err
		}
		f.push(v)
	case OpSendWithSplat:
		var extra *Array
		if ins.C&SplatExtra != 0 {
			extra = castArray(f.pop())
		}
		splat := castArray(f.pop())
		args := f.popN(int(ins.B))
		args = append(args, splat.Elems...)
		if extra != nil {
			args = append(args, extra.Elems...)
		}
		recv := f.pop()
		v, err := i.send(f, recv, f.prog.LiteralName(ins.A), args, ins.C&SendPrivate != 0)
		if err != nil {
			return nil, false, err
		}
		f.push(v)

	case OpGoto:
		f.ip = int(ins.A)
	case OpGotoIfTrue:
		if Truthy(f.pop()) {
			f.ip = int(ins.A)
		}
	case OpGotoIfFalse:
		if !Truthy(f.pop()) {
			f.ip = int(ins.A)
		}

	case OpSetupUnwind:
		f.unwinds = append(f.unwinds, unwindEntry{handler: int(ins.A), kind: int(ins.B), sp: len(f.stack)})
	case OpPopUnwind:
		if len(f.unwinds) == 0 {
			return nil, false, fmt.Errorf("%s: POP_UNWIND at %d without a handler", f.prog.Name, f.ip-1)
		}
		f.unwinds = f.unwinds[:len(f.unwinds)-1]
	case OpPushException:
		f.push(i.exception)
	case OpPopException:
		i.exception = f.pop()
	case OpClearException:
		i.exception = nil
	case OpReraise:
		if i.exception == nil {
			return nil, false, i.raiseNew("RuntimeError", "unhandled exception")
		}
		return nil, false, i.raise(i.exception)
	case OpRaiseExc:
		return nil, false, i.raiseValue(f.pop())
	case OpRaiseBreak:
		return nil, false, i.raiseUnwind(UnwindBreak, f.pop())

	case OpRet:
		return f.pop(), true, nil
	case OpEnsureReturn:
		return nil, false, i.raiseUnwind(UnwindReturn, f.pop())

	case OpCreateBlock:
		f.push(&Block{
			prog:   f.prog.Blocks[ins.A],
			parent: f,
			self:   f.self,
			scope:  f.scope,
			vars:   f.vars,
		})

	default:
		return nil, false, fmt.Errorf("%s: unknown opcode %s at %d", f.prog.Name, ins.Op, f.ip-1)
	}
	return nil, false, nil
}

// lexicalConst resolves name through the lexical scope chain, then the
// ancestors of the innermost scope, then Object.
func (i *Interpreter) lexicalConst(scope *Module, name string) (Value, bool) {
	for m := scope; m != nil; m = m.Lexical {
		if v, ok := m.Consts[name]; ok {
			return v, true
		}
	}
	if scope != nil {
		if v, ok := scope.lookupConst(name); ok {
			return v, true
		}
	}
	v, ok := i.Object.Consts[name]
	return v, ok
}

// callBlock invokes b with args. A break out of the block ends the call
// with the break value.
func (i *Interpreter) callBlock(b *Block, args []Value) (Value, error) {
	f := i.newFrame(b.prog, b.parent, b.self, b.scope, b.vars)
	f.push(NewArray(args...))
	v, err := i.execute(f)
	if err != nil {
		var r *raised
		if errors.As(err, &r) {
			if u, ok := r.payload.(*Unwind); ok && u.Kind == UnwindBreak {
				i.exception = u.Prior
				return u.Value, nil
			}
		}
		return nil, err
	}
	return v, nil
}
