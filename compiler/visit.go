package compiler

import (
	"fmt"
)

// Walk calls fn for n and then, if fn returns true, for each non-nil child
// in order.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		if c != nil {
			Walk(c, fn)
		}
	}
}

// Count returns the number of nodes in the tree rooted at n.
func Count(n Node) int {
	count := 0
	Walk(n, func(Node) bool {
		count++
		return true
	})
	return count
}

// Validate checks the shape invariants that constructors enforce, for trees
// assembled directly from struct literals. It reports the first violation.
func Validate(root Node) error {
	var err error
	Walk(root, func(n Node) bool {
		if err != nil {
			return false
		}
		err = validateNode(n)
		return err == nil
	})
	return err
}

func malformed(n Node, format string, args ...any) error {
	return fmt.Errorf("line %d: %s: %w", n.Line(), fmt.Sprintf(format, args...), ErrMalformedNode)
}

func validateNode(n Node) error {
	switch e := n.(type) {
	case *ArrayLiteral:
		return noNilEntries(e, e.Body)
	case *Block:
		return noNilEntries(e, e.Body)
	case *Send:
		if e.Name == "" {
			return malformed(e, "send without a name")
		}
		return noNilEntries(e, e.Args)
	case *SplatValue:
		if e.Value == nil {
			return malformed(e, "splat without a value")
		}
	case *RescueSplat:
		if e.Value == nil {
			return malformed(e, "rescue splat without a value")
		}
	case *ConcatArgs:
		if e.Rest == nil {
			return malformed(e, "concatenation without a splat")
		}
	case *Rescue:
		if e.Body != nil && e.Rescue == nil {
			return malformed(e, "rescue without clauses")
		}
	case *ConstAccess:
		if e.Parent == nil {
			return malformed(e, "scoped constant %s without a parent", e.Name)
		}
	case *ConstSet:
		if e.Name == nil {
			return malformed(e, "constant assignment without a name")
		}
	case *Defined:
		if e.Expr == nil {
			return malformed(e, "defined? without an expression")
		}
	case *OrAssign:
		if e.Access == nil || e.Assignment == nil {
			return malformed(e, "incomplete ||=")
		}
	case *SplatAssignment:
		if !isAssignTarget(e.Value) {
			return malformed(e, "cannot splat into %T", e.Value)
		}
	case *MAsgn:
		if e.Left == nil && e.Splat == nil {
			return malformed(e, "multiple assignment without targets")
		}
		if e.Left != nil {
			for _, t := range e.Left.Body {
				if !isAssignTarget(t) {
					return malformed(e, "cannot assign to %T", t)
				}
			}
		}
		switch e.Splat.(type) {
		case nil, *SplatAssignment, *EmptySplat:
		default:
			return malformed(e, "splat target %T", e.Splat)
		}
	case *ClosedScope:
		if e.Params != nil && e.Params.Right != nil {
			return malformed(e, "block parameters with a value")
		}
	}
	return nil
}

func noNilEntries(n Node, entries []Node) error {
	for i, x := range entries {
		if x == nil {
			return malformed(n, "%T entry %d is nil", n, i)
		}
	}
	return nil
}
