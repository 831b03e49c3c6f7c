package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Stack-effect verification
// ---------------------------------------------------------------------------

// ErrStackImbalance is wrapped by every error Verify reports.
var ErrStackImbalance = errors.New("stack imbalance")

// StackInfo is the result of a successful verification.
type StackInfo struct {
	MaxDepth     int
	ReturnDepths map[int]int // RET instruction index -> depth before it
}

// Verify follows every reachable path through p, including unwind handler
// entries, and checks that each instruction is always reached with the same
// stack depth and never pops more than is available. Blocks are verified
// recursively.
func Verify(p *Program) (*StackInfo, error) {
	return verify(p, 0)
}

// VerifyBlock verifies a block body, which starts with its argument array
// on the stack.
func VerifyBlock(p *Program) (*StackInfo, error) {
	return verify(p, 1)
}

func verify(p *Program, entry int) (*StackInfo, error) {
	info := &StackInfo{MaxDepth: entry, ReturnDepths: make(map[int]int)}
	if len(p.Code) == 0 {
		return info, nil
	}

	depths := make([]int, len(p.Code)+1)
	for i := range depths {
		depths[i] = -1
	}

	type workItem struct {
		ip    int
		depth int
	}
	work := []workItem{{0, entry}}

	reach := func(ip, depth, from int) error {
		if ip < 0 || ip > len(p.Code) {
			return fmt.Errorf("%s: instruction %d jumps out of range to %d: %w", p.Name, from, ip, ErrStackImbalance)
		}
		if depths[ip] >= 0 {
			if depths[ip] != depth {
				return fmt.Errorf("%s: instruction %d reached with depth %d and %d: %w", p.Name, ip, depths[ip], depth, ErrStackImbalance)
			}
			return nil
		}
		depths[ip] = depth
		work = append(work, workItem{ip, depth})
		return nil
	}
	depths[0] = entry

	for len(work) > 0 {
		item := work[len(work)-1]
		work = work[:len(work)-1]
		ip, depth := item.ip, item.depth
		if ip == len(p.Code) {
			// falling off the end behaves like RET
			continue
		}

		ins := p.Code[ip]
		pops, pushes := ins.StackEffect()
		if depth < pops {
			return nil, fmt.Errorf("%s: instruction %d (%s) needs %d entries, has %d: %w", p.Name, ip, ins.Op, pops, depth, ErrStackImbalance)
		}
		next := depth - pops + pushes
		if next > info.MaxDepth {
			info.MaxDepth = next
		}

		switch ins.Op {
		case OpRet:
			info.ReturnDepths[ip] = depth
		case OpSetupUnwind:
			// the handler runs with the stack cut back to this depth
			if err := reach(int(ins.A), depth, ip); err != nil {
				return nil, err
			}
		}

		switch ins.Op.Info().Flow {
		case FlowNext:
			if err := reach(ip+1, next, ip); err != nil {
				return nil, err
			}
		case FlowBranch:
			if err := reach(ip+1, next, ip); err != nil {
				return nil, err
			}
			if err := reach(int(ins.A), next, ip); err != nil {
				return nil, err
			}
		case FlowJump:
			if err := reach(int(ins.A), next, ip); err != nil {
				return nil, err
			}
		case FlowStop:
		}
	}

	for _, b := range p.Blocks {
		if _, err := VerifyBlock(b); err != nil {
			return nil, err
		}
	}
	return info, nil
}
