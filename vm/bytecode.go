package vm

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single instruction of the garnet stack machine.
type Opcode byte

// Stack Operations
const (
	OpNOP        Opcode = 0x00 // no operation
	OpPOP        Opcode = 0x01 // discard top of stack
	OpDUP        Opcode = 0x02 // duplicate top of stack
	OpSWAP       Opcode = 0x03 // exchange the top two entries
	OpROTATE     Opcode = 0x04 // reverse the top A entries
	OpMakeArray  Opcode = 0x05 // pop A entries into a new array
	OpCastArray  Opcode = 0x06 // coerce top of stack to an array
	OpShiftArray Opcode = 0x07 // pop array, push rest then former first element
)

// Push Constants
const (
	OpPushNil       Opcode = 0x10 // push nil
	OpPushTrue      Opcode = 0x11 // push true
	OpPushFalse     Opcode = 0x12 // push false
	OpPushSelf      Opcode = 0x13 // push self
	OpPushLiteral   Opcode = 0x14 // push literal A
	OpPushScope     Opcode = 0x15 // push the current lexical scope
	OpPushCpathTop  Opcode = 0x16 // push the root namespace
	OpPushVariables Opcode = 0x17 // push the current variable-binding context
)

// Variable Operations
const (
	OpPushLocal      Opcode = 0x20 // push local slot A
	OpSetLocal       Opcode = 0x21 // store top of stack in local slot A (value stays)
	OpPushLocalDepth Opcode = 0x22 // push local slot B of the scope A levels out
	OpSetLocalDepth  Opcode = 0x23 // store into local slot B of the scope A levels out
	OpPushIvar       Opcode = 0x24 // push instance variable named by literal A
	OpSetIvar        Opcode = 0x25 // store into instance variable named by literal A
)

// Constants
const (
	OpFindConst Opcode = 0x28 // pop namespace, push its constant named by literal A
	OpPushConst Opcode = 0x29 // push constant named by literal A from the lexical scope
)

// Message Sends
const (
	OpSend          Opcode = 0x30 // send literal A with B args; C=1 allows private
	OpSendWithSplat Opcode = 0x31 // like SEND plus a trailing splat array; C bit 1 = extra array
)

// Control Flow
const (
	OpGoto        Opcode = 0x60 // unconditional jump to A
	OpGotoIfTrue  Opcode = 0x61 // pop, jump to A if truthy
	OpGotoIfFalse Opcode = 0x62 // pop, jump to A if falsy
)

// Unwinding and exceptions
const (
	OpSetupUnwind    Opcode = 0x68 // install handler at A, region kind B
	OpPopUnwind      Opcode = 0x69 // cancel the innermost handler
	OpPushException  Opcode = 0x6A // push the current exception state
	OpPopException   Opcode = 0x6B // pop into the current exception state
	OpClearException Opcode = 0x6C // reset the current exception state
	OpReraise        Opcode = 0x6D // raise the current exception state again
	OpRaiseExc       Opcode = 0x6E // pop and raise as an exception
	OpRaiseBreak     Opcode = 0x6F // pop and unwind as a non-local break
)

// Returns
const (
	OpRet          Opcode = 0x70 // return top of stack
	OpEnsureReturn Opcode = 0x71 // pop and unwind as a return through ensure handlers
)

// Blocks
const (
	OpCreateBlock Opcode = 0x80 // push a block for child program A
)

// Unwind region kinds (operand B of SETUP_UNWIND).
const (
	RescueType = 0
	EnsureType = 1
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// Operand describes how an instruction operand is interpreted.
type Operand uint8

const (
	OperandNone Operand = iota
	OperandCount
	OperandLiteral
	OperandLabel
	OperandSlot
	OperandBlock
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name     string     // human-readable name
	Operands []Operand  // interpretation of A, B, C
	Pops     int        // entries consumed (-1 = depends on operands)
	Pushes   int        // entries produced
	Flow     Flow       // effect on control flow
}

// Flow classifies how an instruction continues.
type Flow uint8

const (
	FlowNext   Flow = iota // falls through
	FlowBranch             // falls through or jumps to A
	FlowJump               // always jumps to A
	FlowStop               // never falls through
)

// opcodeTable maps opcodes to their metadata.
var opcodeTable = map[Opcode]OpcodeInfo{
	OpNOP:        {"NOP", nil, 0, 0, FlowNext},
	OpPOP:        {"POP", nil, 1, 0, FlowNext},
	OpDUP:        {"DUP", nil, 1, 2, FlowNext},
	OpSWAP:       {"SWAP", nil, 2, 2, FlowNext},
	OpROTATE:     {"ROTATE", []Operand{OperandCount}, -1, -1, FlowNext},
	OpMakeArray:  {"MAKE_ARRAY", []Operand{OperandCount}, -1, 1, FlowNext},
	OpCastArray:  {"CAST_ARRAY", nil, 1, 1, FlowNext},
	OpShiftArray: {"SHIFT_ARRAY", nil, 1, 2, FlowNext},

	OpPushNil:       {"PUSH_NIL", nil, 0, 1, FlowNext},
	OpPushTrue:      {"PUSH_TRUE", nil, 0, 1, FlowNext},
	OpPushFalse:     {"PUSH_FALSE", nil, 0, 1, FlowNext},
	OpPushSelf:      {"PUSH_SELF", nil, 0, 1, FlowNext},
	OpPushLiteral:   {"PUSH_LITERAL", []Operand{OperandLiteral}, 0, 1, FlowNext},
	OpPushScope:     {"PUSH_SCOPE", nil, 0, 1, FlowNext},
	OpPushCpathTop:  {"PUSH_CPATH_TOP", nil, 0, 1, FlowNext},
	OpPushVariables: {"PUSH_VARIABLES", nil, 0, 1, FlowNext},

	OpPushLocal:      {"PUSH_LOCAL", []Operand{OperandSlot}, 0, 1, FlowNext},
	OpSetLocal:       {"SET_LOCAL", []Operand{OperandSlot}, 1, 1, FlowNext},
	OpPushLocalDepth: {"PUSH_LOCAL_DEPTH", []Operand{OperandCount, OperandSlot}, 0, 1, FlowNext},
	OpSetLocalDepth:  {"SET_LOCAL_DEPTH", []Operand{OperandCount, OperandSlot}, 1, 1, FlowNext},
	OpPushIvar:       {"PUSH_IVAR", []Operand{OperandLiteral}, 0, 1, FlowNext},
	OpSetIvar:        {"SET_IVAR", []Operand{OperandLiteral}, 1, 1, FlowNext},

	OpFindConst: {"FIND_CONST", []Operand{OperandLiteral}, 1, 1, FlowNext},
	OpPushConst: {"PUSH_CONST", []Operand{OperandLiteral}, 0, 1, FlowNext},

	OpSend:          {"SEND", []Operand{OperandLiteral, OperandCount, OperandCount}, -1, 1, FlowNext},
	OpSendWithSplat: {"SEND_WITH_SPLAT", []Operand{OperandLiteral, OperandCount, OperandCount}, -1, 1, FlowNext},

	OpGoto:        {"GOTO", []Operand{OperandLabel}, 0, 0, FlowJump},
	OpGotoIfTrue:  {"GOTO_IF_TRUE", []Operand{OperandLabel}, 1, 0, FlowBranch},
	OpGotoIfFalse: {"GOTO_IF_FALSE", []Operand{OperandLabel}, 1, 0, FlowBranch},

	OpSetupUnwind:    {"SETUP_UNWIND", []Operand{OperandLabel, OperandCount}, 0, 0, FlowNext},
	OpPopUnwind:      {"POP_UNWIND", nil, 0, 0, FlowNext},
	OpPushException:  {"PUSH_EXCEPTION", nil, 0, 1, FlowNext},
	OpPopException:   {"POP_EXCEPTION", nil, 1, 0, FlowNext},
	OpClearException: {"CLEAR_EXCEPTION", nil, 0, 0, FlowNext},
	OpReraise:        {"RERAISE", nil, 0, 0, FlowStop},
	OpRaiseExc:       {"RAISE_EXC", nil, 1, 0, FlowStop},
	OpRaiseBreak:     {"RAISE_BREAK", nil, 1, 0, FlowStop},

	OpRet:          {"RET", nil, 1, 0, FlowStop},
	OpEnsureReturn: {"ENSURE_RETURN", nil, 1, 0, FlowStop},

	OpCreateBlock: {"CREATE_BLOCK", []Operand{OperandBlock}, 0, 1, FlowNext},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// StackEffect returns how many entries ins consumes and produces.
func (ins Instruction) StackEffect() (pops, pushes int) {
	info := ins.Op.Info()
	pops, pushes = info.Pops, info.Pushes
	switch ins.Op {
	case OpROTATE:
		pops, pushes = int(ins.A), int(ins.A)
	case OpMakeArray:
		pops = int(ins.A)
	case OpSend:
		pops = int(ins.B) + 1
	case OpSendWithSplat:
		pops = int(ins.B) + 2
		if ins.C&SplatExtra != 0 {
			pops++
		}
	}
	return pops, pushes
}

// Flags for the C operand of SEND and SEND_WITH_SPLAT.
const (
	SendPrivate int32 = 1 << 0
	SplatExtra  int32 = 1 << 1
)
