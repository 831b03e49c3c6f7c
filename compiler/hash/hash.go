package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/chazu/garnet/compiler"
)

// HashNode computes the SHA-256 content hash of an AST tree.
//
// The hash is computed over a deterministic serialization of the tree that
// ignores source lines and local variable names: two trees that compile to
// the same instructions produce the same hash.
func HashNode(node compiler.Node) [32]byte {
	return sha256.Sum256(Serialize(node))
}

// HashUnit computes the hash identifying the program that compiling u with
// opts produces. Everything that reaches the program is included: the
// unit's name and kind, the options, and the tree itself, with lines when
// the options record them.
func HashUnit(u *compiler.Unit, opts compiler.Options) [32]byte {
	s := &serializer{buf: make([]byte, 0, 256), lines: opts.DebugLines}
	s.writeByte(HashVersion)
	s.writeByte(TagUnit)
	s.writeString(u.Name)
	s.writeByte(byte(u.Kind))
	s.writeBool(opts.Verify)
	s.writeBool(opts.DebugLines)
	s.serializeNode(u.Body)
	return sha256.Sum256(s.buf)
}

// Key renders a hash as the lowercase hex string used for storage keys.
func Key(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
