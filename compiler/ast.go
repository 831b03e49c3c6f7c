package compiler

import (
	"errors"
)

// ---------------------------------------------------------------------------
// AST: nodes handed to the code generator by the parser
// ---------------------------------------------------------------------------

// ErrMalformedNode is wrapped by every construction-time failure: a tree
// shape that cannot represent any valid program.
var ErrMalformedNode = errors.New("malformed node")

// Node is the interface implemented by all AST nodes. The set of
// implementations is closed; Compiler.compile handles every one of them.
type Node interface {
	// Line returns the source line the node starts on.
	Line() int
	// Children returns the node's subtrees in a fixed order. Absent
	// optional children appear as nil entries.
	Children() []Node
	node() // marker method
}

// Pos records a node's source line.
type Pos struct {
	LineNo int
}

func (p Pos) Line() int { return p.LineNo }

// child converts an optional concrete child into a Node, keeping absent
// children as untyped nil.
func child[T Node](n T, present bool) Node {
	if !present {
		return nil
	}
	return n
}

// ---------------------------------------------------------------------------
// Literals and other collaborator nodes
// ---------------------------------------------------------------------------

// Nil is the nil literal.
type Nil struct{ Pos }

// True is the true literal.
type True struct{ Pos }

// False is the false literal.
type False struct{ Pos }

// Self is a reference to the current receiver.
type Self struct{ Pos }

// IntLiteral is an integer literal.
type IntLiteral struct {
	Pos
	Value int64
}

// StringLiteral is a string literal.
type StringLiteral struct {
	Pos
	Value string
}

// SymbolLiteral is a symbol literal (:foo).
type SymbolLiteral struct {
	Pos
	Value string
}

// ArrayLiteral is a literal sequence [a, b, c]. It also carries rescue
// matcher lists and the target list of a multiple assignment.
type ArrayLiteral struct {
	Pos
	Body []Node
}

// SplatValue is *value in an argument or value position.
type SplatValue struct {
	Pos
	Value Node
}

// ConcatArgs is a fixed list followed by a splat: a, b, *rest.
type ConcatArgs struct {
	Pos
	Array *ArrayLiteral
	Rest  Node
}

// Send is a method call. A nil Receiver is a private call on self.
type Send struct {
	Pos
	Receiver Node
	Name     string
	Args     []Node
	Splat    Node // optional trailing *arg
}

// Block is a sequence of statements; its value is the last statement's.
type Block struct {
	Pos
	Body []Node
}

// ClosedScope is a closure body. It compiles into a child program, and
// contextual annotations of the enclosing code do not reach into it.
type ClosedScope struct {
	Pos
	Name   string
	Params *MAsgn // destructured arguments, compiled as iter arguments
	Body   Node
}

// Defined is defined?(Expr).
type Defined struct {
	Pos
	Expr Node
}

// OrAssign is Access ||= value, where Assignment assigns the value.
type OrAssign struct {
	Pos
	Access     Node
	Assignment Node
}

func (n *Nil) Children() []Node           { return nil }
func (n *True) Children() []Node          { return nil }
func (n *False) Children() []Node         { return nil }
func (n *Self) Children() []Node          { return nil }
func (n *IntLiteral) Children() []Node    { return nil }
func (n *StringLiteral) Children() []Node { return nil }
func (n *SymbolLiteral) Children() []Node { return nil }
func (n *ArrayLiteral) Children() []Node  { return append([]Node(nil), n.Body...) }
func (n *SplatValue) Children() []Node    { return []Node{n.Value} }
func (n *ConcatArgs) Children() []Node {
	return []Node{child(n.Array, n.Array != nil), n.Rest}
}
func (n *Send) Children() []Node {
	kids := make([]Node, 0, len(n.Args)+2)
	kids = append(kids, n.Receiver)
	kids = append(kids, n.Args...)
	return append(kids, n.Splat)
}
func (n *Block) Children() []Node { return append([]Node(nil), n.Body...) }
func (n *ClosedScope) Children() []Node {
	return []Node{child(n.Params, n.Params != nil), n.Body}
}
func (n *Defined) Children() []Node  { return []Node{n.Expr} }
func (n *OrAssign) Children() []Node { return []Node{n.Access, n.Assignment} }

func (n *Nil) node()           {}
func (n *True) node()          {}
func (n *False) node()         {}
func (n *Self) node()          {}
func (n *IntLiteral) node()    {}
func (n *StringLiteral) node() {}
func (n *SymbolLiteral) node() {}
func (n *ArrayLiteral) node()  {}
func (n *SplatValue) node()    {}
func (n *ConcatArgs) node()    {}
func (n *Send) node()          {}
func (n *Block) node()         {}
func (n *ClosedScope) node()   {}
func (n *Defined) node()       {}
func (n *OrAssign) node()      {}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

// Break is break [value].
type Break struct {
	Pos
	Value Node
}

// Retry is retry inside a rescue clause.
type Retry struct{ Pos }

// Return is return [value].
type Return struct {
	Pos
	Value Node
}

func (n *Break) Children() []Node  { return []Node{n.Value} }
func (n *Retry) Children() []Node  { return nil }
func (n *Return) Children() []Node { return []Node{n.Value} }

func (n *Break) node()  {}
func (n *Retry) node()  {}
func (n *Return) node() {}
