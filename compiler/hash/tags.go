package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the hashing AST serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed content hashes and every cached program.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing content hashes.
const HashVersion byte = 1

// TagAbsent marks an optional child that is not present.
const TagAbsent byte = 0x00

// AST node type tags. Each tag uniquely identifies a node kind in the
// serialized byte stream.
const (
	// Literal values
	TagNil           byte = 0x01
	TagTrue          byte = 0x02
	TagFalse         byte = 0x03
	TagSelf          byte = 0x04
	TagIntLiteral    byte = 0x05
	TagStringLiteral byte = 0x06
	TagSymbolLiteral byte = 0x07
	TagArrayLiteral  byte = 0x08

	// Collaborators
	TagSplatValue  byte = 0x10
	TagConcatArgs  byte = 0x11
	TagSend        byte = 0x12
	TagBlock       byte = 0x13
	TagClosedScope byte = 0x14
	TagDefined     byte = 0x15
	TagOrAssign    byte = 0x16

	// Control flow
	TagBreak  byte = 0x20
	TagRetry  byte = 0x21
	TagReturn byte = 0x22

	// Constants
	TagTopLevel    byte = 0x30
	TagConstFind   byte = 0x31
	TagConstAccess byte = 0x32
	TagConstAtTop  byte = 0x33
	TagConstName   byte = 0x34
	TagConstSet    byte = 0x35

	// Exceptions
	TagBegin           byte = 0x40
	TagEnsure          byte = 0x41
	TagRescue          byte = 0x42
	TagRescueCondition byte = 0x43
	TagRescueSplat     byte = 0x44

	// Variables
	TagBackRef                    byte = 0x50
	TagNthRef                     byte = 0x51
	TagLocalVariableAccess        byte = 0x52
	TagLocalVariableAssignment    byte = 0x53
	TagInstanceVariableAccess     byte = 0x54
	TagInstanceVariableAssignment byte = 0x55
	TagClassVariableAccess        byte = 0x56
	TagClassVariableAssignment    byte = 0x57
	TagCVarDeclare                byte = 0x58
	TagGlobalVariableAccess       byte = 0x59
	TagGlobalVariableAssignment   byte = 0x5A
	TagSplatAssignment            byte = 0x5B
	TagEmptySplat                 byte = 0x5C
	TagMAsgn                      byte = 0x5D

	// Reserved 0xFE-0xFF

	// Compilation unit header
	TagUnit byte = 0x70
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagAbsent,
	TagNil, TagTrue, TagFalse, TagSelf,
	TagIntLiteral, TagStringLiteral, TagSymbolLiteral, TagArrayLiteral,
	TagSplatValue, TagConcatArgs, TagSend, TagBlock, TagClosedScope,
	TagDefined, TagOrAssign,
	TagBreak, TagRetry, TagReturn,
	TagTopLevel, TagConstFind, TagConstAccess, TagConstAtTop, TagConstName, TagConstSet,
	TagBegin, TagEnsure, TagRescue, TagRescueCondition, TagRescueSplat,
	TagBackRef, TagNthRef,
	TagLocalVariableAccess, TagLocalVariableAssignment,
	TagInstanceVariableAccess, TagInstanceVariableAssignment,
	TagClassVariableAccess, TagClassVariableAssignment, TagCVarDeclare,
	TagGlobalVariableAccess, TagGlobalVariableAssignment,
	TagSplatAssignment, TagEmptySplat, TagMAsgn,
	TagUnit,
}
