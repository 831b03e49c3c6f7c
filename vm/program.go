package vm

import (
	"fmt"
	"sort"
)

// ---------------------------------------------------------------------------
// Program: the output of one compilation unit
// ---------------------------------------------------------------------------

// Instruction is a decoded instruction. Operand meaning depends on Op; see
// OpcodeInfo.Operands. Label operands hold resolved instruction indexes.
type Instruction struct {
	Op Opcode `cbor:"1,keyasint"`
	A  int32  `cbor:"2,keyasint,omitempty"`
	B  int32  `cbor:"3,keyasint,omitempty"`
	C  int32  `cbor:"4,keyasint,omitempty"`
}

// LiteralKind identifies the type of a literal pool entry.
type LiteralKind uint8

const (
	LitNil LiteralKind = iota
	LitInt
	LitString
	LitSymbol
)

// Literal is an entry in a program's literal pool.
type Literal struct {
	Kind LiteralKind `cbor:"1,keyasint"`
	Int  int64       `cbor:"2,keyasint,omitempty"`
	Str  string      `cbor:"3,keyasint,omitempty"`
}

// Int returns an integer literal.
func Int(v int64) Literal { return Literal{Kind: LitInt, Int: v} }

// Str returns a string literal.
func Str(s string) Literal { return Literal{Kind: LitString, Str: s} }

// Sym returns a symbol literal.
func Sym(name string) Literal { return Literal{Kind: LitSymbol, Str: name} }

// String renders the literal the way the disassembler prints it.
func (l Literal) String() string {
	switch l.Kind {
	case LitInt:
		return fmt.Sprintf("%d", l.Int)
	case LitString:
		return fmt.Sprintf("%q", l.Str)
	case LitSymbol:
		return ":" + l.Str
	default:
		return "nil"
	}
}

// LineEntry maps the instruction at IP (and those after it, up to the next
// entry) to a source line.
type LineEntry struct {
	IP   int `cbor:"1,keyasint"`
	Line int `cbor:"2,keyasint"`
}

// Program is an assembled instruction stream with its literal pool, child
// programs for closed scopes and a line table.
type Program struct {
	Name      string        `cbor:"1,keyasint"`
	Code      []Instruction `cbor:"2,keyasint"`
	Literals  []Literal     `cbor:"3,keyasint,omitempty"`
	Blocks    []*Program    `cbor:"4,keyasint,omitempty"`
	Lines     []LineEntry   `cbor:"5,keyasint,omitempty"`
	NumLocals int           `cbor:"6,keyasint,omitempty"`
	StackSize int           `cbor:"7,keyasint,omitempty"`
}

// LineFor returns the source line recorded for the instruction at ip, or 0.
func (p *Program) LineFor(ip int) int {
	i := sort.Search(len(p.Lines), func(i int) bool { return p.Lines[i].IP > ip })
	if i == 0 {
		return 0
	}
	return p.Lines[i-1].Line
}

// Ops returns the opcode sequence, which is convenient for comparing shapes.
func (p *Program) Ops() []Opcode {
	ops := make([]Opcode, len(p.Code))
	for i, ins := range p.Code {
		ops[i] = ins.Op
	}
	return ops
}

// LiteralName returns the string payload of literal idx, used for names of
// constants, methods and instance variables.
func (p *Program) LiteralName(idx int32) string {
	if idx < 0 || int(idx) >= len(p.Literals) {
		return fmt.Sprintf("<bad literal %d>", idx)
	}
	return p.Literals[idx].Str
}
