// Package metadata defines the extensible, namespaced token system for
// per-buffer attributes.
//
// A metadata kind is identified by a Type: a namespace string plus a code.
// The namespace partitions the code space so unrelated vendors cannot
// collide. Values are opaque byte sequences; the encoding of each kind is
// owned by its registry entry, never by the mapping service itself.
package metadata

import (
	"encoding/binary"
	"fmt"
)

// StandardNamespace carries the standardized tokens every implementation
// recognizes. Any other namespace denotes vendor-defined tokens.
const StandardNamespace = "gfxbuf.standard"

// Type uniquely identifies one metadata kind.
type Type struct {
	Namespace string
	Code      int64
}

// String renders the token as "namespace#code".
func (t Type) String() string {
	return fmt.Sprintf("%s#%d", t.Namespace, t.Code)
}

// Description describes one token an implementation recognizes.
type Description struct {
	Type     Type
	Name     string
	Gettable bool
	Settable bool
}

// Fixed-width little-endian codecs for the standard tokens. Vendor entries
// are free to use any encoding; these helpers exist so the standard token
// values stay interoperable.

// EncodeU32 encodes v as 4 little-endian bytes.
func EncodeU32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// DecodeU32 decodes a value produced by EncodeU32.
func DecodeU32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("metadata: want 4 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// EncodeU64 encodes v as 8 little-endian bytes.
func EncodeU64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// DecodeU64 decodes a value produced by EncodeU64.
func DecodeU64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("metadata: want 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// EncodeI64 encodes v as 8 little-endian bytes.
func EncodeI64(v int64) []byte {
	return EncodeU64(uint64(v))
}

// DecodeI64 decodes a value produced by EncodeI64.
func DecodeI64(b []byte) (int64, error) {
	u, err := DecodeU64(b)
	return int64(u), err
}

// EncodeString encodes s as a 4-byte length prefix followed by UTF-8 bytes.
func EncodeString(s string) []byte {
	b := make([]byte, 4+len(s))
	binary.LittleEndian.PutUint32(b, uint32(len(s)))
	copy(b[4:], s)
	return b
}

// DecodeString decodes a value produced by EncodeString.
func DecodeString(b []byte) (string, error) {
	if len(b) < 4 {
		return "", fmt.Errorf("metadata: truncated string value")
	}
	n := binary.LittleEndian.Uint32(b)
	if uint32(len(b)-4) != n {
		return "", fmt.Errorf("metadata: string length %d does not match payload %d", n, len(b)-4)
	}
	return string(b[4:]), nil
}
