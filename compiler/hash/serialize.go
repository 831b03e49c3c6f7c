package hash

import (
	"encoding/binary"
	"fmt"

	"github.com/chazu/garnet/compiler"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of AST trees.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Node: tag byte, [line as int64], attributes, uint32 child count,
//     children in Children() order
//   - Absent child: TagAbsent
//   - Integers: big-endian fixed-width (int64=8B, uint16=2B)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Local variables: scope depth and slot only; names never appear
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of the tree rooted
// at node, ignoring source positions.
func Serialize(node compiler.Node) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

// SerializeWithLines is Serialize with every node's line included.
func SerializeWithLines(node compiler.Node) []byte {
	s := &serializer{buf: make([]byte, 0, 256), lines: true}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf   []byte
	lines bool
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeUint16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeInt(v int) {
	s.writeInt64(int64(v))
}

func (s *serializer) writeLocal(ref *compiler.LocalRef) {
	if ref == nil {
		s.writeBool(false)
		return
	}
	s.writeBool(true)
	s.writeUint16(uint16(ref.Depth))
	s.writeUint16(uint16(ref.Slot))
}

func (s *serializer) serializeNode(node compiler.Node) {
	if node == nil {
		s.writeByte(TagAbsent)
		return
	}

	s.writeByte(tagOf(node))
	if s.lines {
		s.writeInt(node.Line())
	}

	switch n := node.(type) {
	case *compiler.IntLiteral:
		s.writeInt64(n.Value)
	case *compiler.StringLiteral:
		s.writeString(n.Value)
	case *compiler.SymbolLiteral:
		s.writeString(n.Value)
	case *compiler.Send:
		s.writeString(n.Name)
	case *compiler.ClosedScope:
		s.writeString(n.Name)

	case *compiler.ConstFind:
		s.writeString(n.Name)
	case *compiler.ConstAccess:
		s.writeString(n.Name)
	case *compiler.ConstAtTop:
		s.writeString(n.Name)
	case *compiler.ConstName:
		s.writeString(n.Name)

	case *compiler.BackRef:
		s.writeByte(n.Kind)
	case *compiler.NthRef:
		s.writeInt(n.Which)
	case *compiler.LocalVariableAccess:
		s.writeLocal(n.Var)
	case *compiler.LocalVariableAssignment:
		s.writeLocal(n.Var)
	case *compiler.InstanceVariableAccess:
		s.writeString(n.Name)
	case *compiler.InstanceVariableAssignment:
		s.writeString(n.Name)
	case *compiler.ClassVariableAccess:
		s.writeString(n.Name)
	case *compiler.ClassVariableAssignment:
		s.writeString(n.Name)
	case *compiler.CVarDeclare:
		s.writeString(n.Name)
	case *compiler.GlobalVariableAccess:
		s.writeString(n.Name)
	case *compiler.GlobalVariableAssignment:
		s.writeString(n.Name)
	}

	kids := node.Children()
	s.writeUint32(uint32(len(kids)))
	for _, kid := range kids {
		s.serializeNode(kid)
	}
}

func tagOf(node compiler.Node) byte {
	switch node.(type) {
	case *compiler.Nil:
		return TagNil
	case *compiler.True:
		return TagTrue
	case *compiler.False:
		return TagFalse
	case *compiler.Self:
		return TagSelf
	case *compiler.IntLiteral:
		return TagIntLiteral
	case *compiler.StringLiteral:
		return TagStringLiteral
	case *compiler.SymbolLiteral:
		return TagSymbolLiteral
	case *compiler.ArrayLiteral:
		return TagArrayLiteral

	case *compiler.SplatValue:
		return TagSplatValue
	case *compiler.ConcatArgs:
		return TagConcatArgs
	case *compiler.Send:
		return TagSend
	case *compiler.Block:
		return TagBlock
	case *compiler.ClosedScope:
		return TagClosedScope
	case *compiler.Defined:
		return TagDefined
	case *compiler.OrAssign:
		return TagOrAssign

	case *compiler.Break:
		return TagBreak
	case *compiler.Retry:
		return TagRetry
	case *compiler.Return:
		return TagReturn

	case *compiler.TopLevel:
		return TagTopLevel
	case *compiler.ConstFind:
		return TagConstFind
	case *compiler.ConstAccess:
		return TagConstAccess
	case *compiler.ConstAtTop:
		return TagConstAtTop
	case *compiler.ConstName:
		return TagConstName
	case *compiler.ConstSet:
		return TagConstSet

	case *compiler.Begin:
		return TagBegin
	case *compiler.Ensure:
		return TagEnsure
	case *compiler.Rescue:
		return TagRescue
	case *compiler.RescueCondition:
		return TagRescueCondition
	case *compiler.RescueSplat:
		return TagRescueSplat

	case *compiler.BackRef:
		return TagBackRef
	case *compiler.NthRef:
		return TagNthRef
	case *compiler.LocalVariableAccess:
		return TagLocalVariableAccess
	case *compiler.LocalVariableAssignment:
		return TagLocalVariableAssignment
	case *compiler.InstanceVariableAccess:
		return TagInstanceVariableAccess
	case *compiler.InstanceVariableAssignment:
		return TagInstanceVariableAssignment
	case *compiler.ClassVariableAccess:
		return TagClassVariableAccess
	case *compiler.ClassVariableAssignment:
		return TagClassVariableAssignment
	case *compiler.CVarDeclare:
		return TagCVarDeclare
	case *compiler.GlobalVariableAccess:
		return TagGlobalVariableAccess
	case *compiler.GlobalVariableAssignment:
		return TagGlobalVariableAssignment
	case *compiler.SplatAssignment:
		return TagSplatAssignment
	case *compiler.EmptySplat:
		return TagEmptySplat
	case *compiler.MAsgn:
		return TagMAsgn
	}
	panic(fmt.Sprintf("hash: no tag for %T", node))
}
