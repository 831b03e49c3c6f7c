package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Assembler: the emission target for the code generator
// ---------------------------------------------------------------------------

// ErrUnresolvedLabel is returned by Finish when a jump targets a label that
// was never placed.
var ErrUnresolvedLabel = errors.New("unresolved label")

// Label is a jump target. It is declared with NewLabel, referenced by jumps
// and unwind setups, and placed with Mark. Offsets are resolved by Finish.
type Label struct {
	id   int
	pos  int
	used bool
}

// Used reports whether any instruction references the label.
func (l *Label) Used() bool {
	return l.used
}

// Placed reports whether the label has been marked.
func (l *Label) Placed() bool {
	return l.pos >= 0
}

type modifiers struct {
	breakLabel *Label
	retryLabel *Label
}

// Assembler accumulates instructions for one program. It is not safe for
// concurrent use; give each compilation unit its own Assembler.
type Assembler struct {
	name       string
	code       []Instruction
	literals   []Literal
	literalMap map[Literal]int
	labels     []*Label
	labelRefs  []int
	blocks     []*Program
	lines      []LineEntry
	line       int
	numLocals  int

	breakLabel *Label
	retryLabel *Label
	modifiers  []modifiers
}

// NewAssembler creates an assembler for a program called name.
func NewAssembler(name string) *Assembler {
	return &Assembler{
		name:       name,
		code:       make([]Instruction, 0, 64),
		literalMap: make(map[Literal]int),
	}
}

// Name returns the program name.
func (a *Assembler) Name() string {
	return a.name
}

// Len returns the number of instructions emitted so far.
func (a *Assembler) Len() int {
	return len(a.code)
}

// ---------------------------------------------------------------------------
// Positions
// ---------------------------------------------------------------------------

// SetLine records that the following instructions belong to source line.
func (a *Assembler) SetLine(line int) {
	if line <= 0 || line == a.line {
		return
	}
	a.line = line
	ip := len(a.code)
	if n := len(a.lines); n > 0 && a.lines[n-1].IP == ip {
		a.lines[n-1].Line = line
		return
	}
	a.lines = append(a.lines, LineEntry{IP: ip, Line: line})
}

// Line returns the line most recently passed to SetLine.
func (a *Assembler) Line() int {
	return a.line
}

// ---------------------------------------------------------------------------
// Raw emission
// ---------------------------------------------------------------------------

func (a *Assembler) emit(op Opcode, operands ...int32) {
	ins := Instruction{Op: op}
	if len(operands) > 0 {
		ins.A = operands[0]
	}
	if len(operands) > 1 {
		ins.B = operands[1]
	}
	if len(operands) > 2 {
		ins.C = operands[2]
	}
	a.code = append(a.code, ins)
}

func (a *Assembler) emitJump(op Opcode, l *Label, operands ...int32) {
	l.used = true
	a.labelRefs = append(a.labelRefs, len(a.code))
	a.emit(op, append([]int32{int32(l.id)}, operands...)...)
}

// addLiteral adds a literal to the pool, returning its index.
func (a *Assembler) addLiteral(lit Literal) int32 {
	if idx, ok := a.literalMap[lit]; ok {
		return int32(idx)
	}
	idx := len(a.literals)
	a.literals = append(a.literals, lit)
	a.literalMap[lit] = idx
	return int32(idx)
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

// PushLiteral pushes a literal value.
func (a *Assembler) PushLiteral(lit Literal) {
	if lit.Kind == LitNil {
		a.PushNil()
		return
	}
	a.emit(OpPushLiteral, a.addLiteral(lit))
}

func (a *Assembler) PushNil()       { a.emit(OpPushNil) }
func (a *Assembler) PushTrue()      { a.emit(OpPushTrue) }
func (a *Assembler) PushFalse()     { a.emit(OpPushFalse) }
func (a *Assembler) PushSelf()      { a.emit(OpPushSelf) }
func (a *Assembler) PushScope()     { a.emit(OpPushScope) }
func (a *Assembler) PushCpathTop()  { a.emit(OpPushCpathTop) }
func (a *Assembler) PushVariables() { a.emit(OpPushVariables) }
func (a *Assembler) Dup()           { a.emit(OpDUP) }
func (a *Assembler) Pop()           { a.emit(OpPOP) }
func (a *Assembler) Swap()          { a.emit(OpSWAP) }
func (a *Assembler) CastArray()     { a.emit(OpCastArray) }
func (a *Assembler) ShiftArray()    { a.emit(OpShiftArray) }

// Rotate reverses the order of the top n stack entries.
func (a *Assembler) Rotate(n int) {
	a.emit(OpROTATE, int32(n))
}

// MakeArray collects the top n entries into an array, first pushed first.
func (a *Assembler) MakeArray(n int) {
	a.emit(OpMakeArray, int32(n))
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// NewLabel declares a label to be placed later.
func (a *Assembler) NewLabel() *Label {
	l := &Label{id: len(a.labels), pos: -1}
	a.labels = append(a.labels, l)
	return l
}

// Mark places label at the current position.
func (a *Assembler) Mark(l *Label) {
	if l.pos >= 0 {
		panic(fmt.Sprintf("label %d already placed", l.id))
	}
	l.pos = len(a.code)
}

func (a *Assembler) Goto(l *Label)        { a.emitJump(OpGoto, l) }
func (a *Assembler) GotoIfTrue(l *Label)  { a.emitJump(OpGotoIfTrue, l) }
func (a *Assembler) GotoIfFalse(l *Label) { a.emitJump(OpGotoIfFalse, l) }

// ---------------------------------------------------------------------------
// Messages and constants
// ---------------------------------------------------------------------------

// Send emits a message send of name with argc arguments.
func (a *Assembler) Send(name string, argc int, private bool) {
	var flags int32
	if private {
		flags |= SendPrivate
	}
	a.emit(OpSend, a.addLiteral(Sym(name)), int32(argc), flags)
}

// SendWithSplat emits a send whose last argument is an array to be spread.
// With extra set, one more array follows the splat and is appended to it.
func (a *Assembler) SendWithSplat(name string, argc int, private, extra bool) {
	var flags int32
	if private {
		flags |= SendPrivate
	}
	if extra {
		flags |= SplatExtra
	}
	a.emit(OpSendWithSplat, a.addLiteral(Sym(name)), int32(argc), flags)
}

// FindConst replaces the namespace on top of the stack with its constant name.
func (a *Assembler) FindConst(name string) {
	a.emit(OpFindConst, a.addLiteral(Sym(name)))
}

// PushConst pushes constant name resolved against the current lexical scope.
func (a *Assembler) PushConst(name string) {
	a.emit(OpPushConst, a.addLiteral(Sym(name)))
}

// FindCpathTopConst pushes the root namespace's constant name.
func (a *Assembler) FindCpathTopConst(name string) {
	a.PushCpathTop()
	a.FindConst(name)
}

// ---------------------------------------------------------------------------
// Unwind regions and exception state
// ---------------------------------------------------------------------------

// SetupUnwind opens a protected region whose handler is at l.
func (a *Assembler) SetupUnwind(l *Label, kind int) {
	a.emitJump(OpSetupUnwind, l, int32(kind))
}

func (a *Assembler) PopUnwind()      { a.emit(OpPopUnwind) }
func (a *Assembler) PushException()  { a.emit(OpPushException) }
func (a *Assembler) PopException()   { a.emit(OpPopException) }
func (a *Assembler) ClearException() { a.emit(OpClearException) }
func (a *Assembler) Reraise()        { a.emit(OpReraise) }
func (a *Assembler) RaiseExc()       { a.emit(OpRaiseExc) }
func (a *Assembler) RaiseBreak()     { a.emit(OpRaiseBreak) }
func (a *Assembler) EnsureReturn()   { a.emit(OpEnsureReturn) }
func (a *Assembler) Ret()            { a.emit(OpRet) }

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

func (a *Assembler) PushIvar(name string) { a.emit(OpPushIvar, a.addLiteral(Sym(name))) }
func (a *Assembler) SetIvar(name string)  { a.emit(OpSetIvar, a.addLiteral(Sym(name))) }

// PushLocal pushes local slot of the current scope.
func (a *Assembler) PushLocal(slot int) {
	a.useSlot(slot)
	a.emit(OpPushLocal, int32(slot))
}

// SetLocal stores the top of the stack into slot, leaving it on the stack.
func (a *Assembler) SetLocal(slot int) {
	a.useSlot(slot)
	a.emit(OpSetLocal, int32(slot))
}

// PushLocalDepth pushes slot of the scope depth levels out.
func (a *Assembler) PushLocalDepth(depth, slot int) {
	a.emit(OpPushLocalDepth, int32(depth), int32(slot))
}

// SetLocalDepth stores into slot of the scope depth levels out.
func (a *Assembler) SetLocalDepth(depth, slot int) {
	a.emit(OpSetLocalDepth, int32(depth), int32(slot))
}

func (a *Assembler) useSlot(slot int) {
	if slot+1 > a.numLocals {
		a.numLocals = slot + 1
	}
}

// ---------------------------------------------------------------------------
// Closed scopes
// ---------------------------------------------------------------------------

// CreateBlock adds child as a nested program and pushes a block for it.
func (a *Assembler) CreateBlock(child *Program) {
	idx := len(a.blocks)
	a.blocks = append(a.blocks, child)
	a.emit(OpCreateBlock, int32(idx))
}

// ---------------------------------------------------------------------------
// Break and retry targets
// ---------------------------------------------------------------------------

// Break returns the current break target, or nil.
func (a *Assembler) Break() *Label { return a.breakLabel }

// SetBreak replaces the current break target.
func (a *Assembler) SetBreak(l *Label) { a.breakLabel = l }

// Retry returns the current retry target, or nil.
func (a *Assembler) Retry() *Label { return a.retryLabel }

// SetRetry replaces the current retry target.
func (a *Assembler) SetRetry(l *Label) { a.retryLabel = l }

// PushModifiers saves the break and retry targets.
func (a *Assembler) PushModifiers() {
	a.modifiers = append(a.modifiers, modifiers{a.breakLabel, a.retryLabel})
}

// PopModifiers restores the targets saved by the matching PushModifiers.
func (a *Assembler) PopModifiers() {
	n := len(a.modifiers)
	if n == 0 {
		panic("PopModifiers without PushModifiers")
	}
	m := a.modifiers[n-1]
	a.modifiers = a.modifiers[:n-1]
	a.breakLabel, a.retryLabel = m.breakLabel, m.retryLabel
}

// ---------------------------------------------------------------------------
// Finishing
// ---------------------------------------------------------------------------

// Finish resolves label references and returns the assembled program.
func (a *Assembler) Finish() (*Program, error) {
	code := make([]Instruction, len(a.code))
	copy(code, a.code)
	for _, ref := range a.labelRefs {
		l := a.labels[code[ref].A]
		if l.pos < 0 {
			return nil, fmt.Errorf("%s: instruction %d (%s): %w", a.name, ref, code[ref].Op, ErrUnresolvedLabel)
		}
		code[ref].A = int32(l.pos)
	}
	return &Program{
		Name:      a.name,
		Code:      code,
		Literals:  append([]Literal(nil), a.literals...),
		Blocks:    append([]*Program(nil), a.blocks...),
		Lines:     append([]LineEntry(nil), a.lines...),
		NumLocals: a.numLocals,
	}, nil
}
