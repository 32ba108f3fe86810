// Package wire implements the mesh transport's on-air encodings: LEB128
// varints, UUID16, fee tiers, relative timestamps, address interning, the
// protobuf-lite schemas for the three UTXO message kinds, a UTXO-custom
// binary packer, a dictionary codec, and gzip/lz4 adapters (spec.md §4.B).
package wire

import "fmt"

// PutUvarint appends a LEB128-encoded unsigned varint (1-5 bytes, enough for
// the 32-bit field widths used throughout the mesh wire formats) to dst and
// returns the extended slice.
func PutUvarint(dst []byte, v uint32) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ReadUvarint decodes a LEB128 varint from the front of b, returning the
// value and the number of bytes consumed.
func ReadUvarint(b []byte) (uint32, int, error) {
	var v uint32
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if shift >= 35 {
			return 0, 0, fmt.Errorf("wire: varint: overflow")
		}
		v |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("wire: varint: truncated")
}

// PutUvarint64 is the 64-bit counterpart of PutUvarint.
func PutUvarint64(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ReadUvarint64 is the 64-bit counterpart of ReadUvarint.
func ReadUvarint64(b []byte) (uint64, int, error) {
	var v uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if shift >= 70 {
			return 0, 0, fmt.Errorf("wire: varint: overflow")
		}
		v |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("wire: varint: truncated")
}
