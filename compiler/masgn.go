package compiler

import (
	"fmt"
)

// ---------------------------------------------------------------------------
// Multiple assignment
// ---------------------------------------------------------------------------

// MAsgn is a, b, *c = values. Left holds the targets, Right the values and
// Splat the optional SplatAssignment or EmptySplat. With Right an
// ArrayLiteral the assignment is fixed: every value is pushed directly.
// Otherwise Right is a single value converted to an array at run time.
type MAsgn struct {
	Pos
	Left  *ArrayLiteral
	Right Node
	Splat Node
}

func (n *MAsgn) Children() []Node {
	return []Node{child(n.Left, n.Left != nil), n.Right, n.Splat}
}

func (n *MAsgn) node() {}

// Fixed reports whether the right side is a literal list.
func (n *MAsgn) Fixed() bool {
	_, ok := n.Right.(*ArrayLiteral)
	return ok
}

// NewMAsgn builds a multiple assignment. splat may be nil, an EmptySplat,
// a SplatAssignment or a bare assignment node, which is wrapped in a
// SplatAssignment.
func NewMAsgn(line int, left *ArrayLiteral, right Node, splat Node) (*MAsgn, error) {
	if left != nil {
		for _, t := range left.Body {
			if !isAssignTarget(t) {
				return nil, fmt.Errorf("line %d: cannot assign to %T: %w", line, t, ErrMalformedNode)
			}
		}
	}
	switch s := splat.(type) {
	case nil, *EmptySplat, *SplatAssignment:
	default:
		if !isAssignTarget(s) {
			return nil, fmt.Errorf("line %d: cannot splat into %T: %w", line, s, ErrMalformedNode)
		}
		splat = &SplatAssignment{Pos: Pos{s.Line()}, Value: s}
	}
	if left == nil && splat == nil {
		return nil, fmt.Errorf("line %d: multiple assignment without targets: %w", line, ErrMalformedNode)
	}
	return &MAsgn{Pos: Pos{line}, Left: left, Right: right, Splat: splat}, nil
}

// isAssignTarget reports whether n can take its value from the stack.
func isAssignTarget(n Node) bool {
	switch n.(type) {
	case *LocalVariableAssignment, *InstanceVariableAssignment,
		*ClassVariableAssignment, *CVarDeclare, *GlobalVariableAssignment,
		*ConstSet, *MAsgn:
		return true
	}
	return false
}

func (c *Compiler) compileMAsgn(n *MAsgn, ctx Context) {
	a := c.asm
	var targets []Node
	if n.Left != nil {
		targets = n.Left.Body
	}
	tctx := ctx.target()

	if right, ok := n.Right.(*ArrayLiteral); ok {
		l, r := len(targets), len(right.Body)

		if n.Splat == nil {
			for k := r; k < l; k++ {
				a.PushNil()
			}
		}
		for _, v := range right.Body {
			c.compile(v, ctx.expr())
		}

		if n.Splat != nil {
			// Targets that outnumber the values get nil, and the
			// leftovers (possibly none) become the splat's array.
			for k := r; k < l; k++ {
				a.PushNil()
			}
			a.MakeArray(max(r-l, 0))
			if l > 0 {
				a.Rotate(l + 1)
			}
		} else if r > 1 {
			a.Rotate(r)
		}

		for _, t := range targets {
			if _, nested := t.(*MAsgn); nested {
				a.CastArray()
			}
			c.compile(t, tctx)
			a.Pop()
		}
		if n.Splat == nil {
			for k := l; k < r; k++ {
				a.Pop()
			}
		}
	} else {
		if n.Right != nil {
			c.compile(n.Right, ctx.expr())
			a.CastArray()
		}
		for _, t := range targets {
			a.ShiftArray()
			if _, nested := t.(*MAsgn); nested {
				a.CastArray()
			}
			c.compile(t, tctx)
			a.Pop()
		}
	}

	if n.Splat != nil {
		c.compile(n.Splat, tctx)
	}

	if !ctx.IterArguments {
		if !n.Fixed() || n.Splat != nil {
			a.Pop()
		}
		a.PushTrue()
	}
}
