package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at ip.
func (p *Program) DisassembleInstruction(ip int) string {
	ins := p.Code[ip]
	info := ins.Op.Info()

	switch ins.Op {
	case OpPushLiteral:
		return fmt.Sprintf("%04d  %s %s", ip, info.Name, p.literal(ins.A))

	case OpPushIvar, OpSetIvar, OpFindConst, OpPushConst:
		return fmt.Sprintf("%04d  %s %s", ip, info.Name, p.LiteralName(ins.A))

	case OpSend, OpSendWithSplat:
		s := fmt.Sprintf("%04d  %s %s argc=%d", ip, info.Name, p.LiteralName(ins.A), ins.B)
		if ins.C&SendPrivate != 0 {
			s += " private"
		}
		if ins.C&SplatExtra != 0 {
			s += " extra"
		}
		return s

	case OpGoto, OpGotoIfTrue, OpGotoIfFalse:
		return fmt.Sprintf("%04d  %s -> %04d", ip, info.Name, ins.A)

	case OpSetupUnwind:
		kind := "rescue"
		if ins.B == EnsureType {
			kind = "ensure"
		}
		return fmt.Sprintf("%04d  %s -> %04d %s", ip, info.Name, ins.A, kind)

	case OpROTATE, OpMakeArray, OpPushLocal, OpSetLocal, OpCreateBlock:
		return fmt.Sprintf("%04d  %s %d", ip, info.Name, ins.A)

	case OpPushLocalDepth, OpSetLocalDepth:
		return fmt.Sprintf("%04d  %s %d %d", ip, info.Name, ins.A, ins.B)

	default:
		return fmt.Sprintf("%04d  %s", ip, info.Name)
	}
}

func (p *Program) literal(idx int32) string {
	if idx < 0 || int(idx) >= len(p.Literals) {
		return fmt.Sprintf("<bad literal %d>", idx)
	}
	return p.Literals[idx].String()
}

// Disassemble returns a full listing of the program and its blocks.
func (p *Program) Disassemble() string {
	var sb strings.Builder
	p.disassembleTo(&sb, "")
	return strings.TrimRight(sb.String(), "\n")
}

func (p *Program) disassembleTo(sb *strings.Builder, indent string) {
	fmt.Fprintf(sb, "%s== %s ==\n", indent, p.Name)
	for ip := range p.Code {
		sb.WriteString(indent)
		sb.WriteString(p.DisassembleInstruction(ip))
		sb.WriteByte('\n')
	}
	for _, b := range p.Blocks {
		b.disassembleTo(sb, indent+"  ")
	}
}

// DisassembleToLines returns one line per instruction without the header,
// which keeps test expectations short.
func (p *Program) DisassembleToLines() []string {
	lines := make([]string, len(p.Code))
	for ip := range p.Code {
		// drop the "0000  " prefix
		lines[ip] = p.DisassembleInstruction(ip)[6:]
	}
	return lines
}
