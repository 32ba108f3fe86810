// Package fragment splits blockchain messages into signed, checksummed
// radio frames and reassembles them on the receiving side (spec.md §4.C).
package fragment

import (
	"encoding/binary"

	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
)

const (
	headerSize      = 27
	maxFrame        = 256
	flagFirst       = 1 << 0
	flagLast        = 1 << 1
	flagPriority    = 1 << 2
	flagAckRequired = 1 << 3
)

// PayloadCap returns the per-type maximum fragment payload size (spec.md §4.C).
func PayloadCap(t meshtransport.MessageType) int {
	switch t {
	case meshtransport.MsgTypeUTXOTransaction:
		return 180
	case meshtransport.MsgTypeBlock:
		return 197
	case meshtransport.MsgTypeMerkleProof:
		return 150
	default:
		return 197
	}
}

// Fragment is one unit of radio transmission: a 27-byte header, a payload of
// at most 197 bytes, and a detached signature over header∥payload.
type Fragment struct {
	MessageID      [16]byte
	SequenceNumber uint16
	TotalFragments uint16
	FragmentSize   uint16
	Flags          uint8
	Checksum       uint32
	Payload        []byte
	SigAlgorithm   meshcrypto.Algorithm
	Signature      []byte
}

func (f *Fragment) IsFirst() bool       { return f.Flags&flagFirst != 0 }
func (f *Fragment) IsLast() bool        { return f.Flags&flagLast != 0 }
func (f *Fragment) IsPriority() bool    { return f.Flags&flagPriority != 0 }
func (f *Fragment) IsAckRequired() bool { return f.Flags&flagAckRequired != 0 }

// encodeHeader writes the 27-byte header (spec.md §6).
func (f *Fragment) encodeHeader() []byte {
	b := make([]byte, headerSize)
	copy(b[0:16], f.MessageID[:])
	binary.LittleEndian.PutUint16(b[16:18], f.SequenceNumber)
	binary.LittleEndian.PutUint16(b[18:20], f.TotalFragments)
	binary.LittleEndian.PutUint16(b[20:22], f.FragmentSize)
	b[22] = f.Flags
	binary.LittleEndian.PutUint32(b[23:27], f.Checksum)
	return b
}

// Encode produces the full on-air frame: header ∥ payload ∥ algorithm-tagged
// signature.
func (f *Fragment) Encode() []byte {
	out := make([]byte, 0, maxFrame)
	out = append(out, f.encodeHeader()...)
	out = append(out, f.Payload...)
	out = append(out, byte(f.SigAlgorithm))
	out = append(out, f.Signature...)
	return out
}

// Decode parses a wire frame into a Fragment without verifying its checksum
// or signature; callers must call Validate before trusting the result.
func Decode(frame []byte) (*Fragment, error) {
	if len(frame) < headerSize+1 {
		return nil, meshtransport.New(meshtransport.InvalidFragment, "fragment.Decode", nil)
	}
	f := &Fragment{}
	copy(f.MessageID[:], frame[0:16])
	f.SequenceNumber = binary.LittleEndian.Uint16(frame[16:18])
	f.TotalFragments = binary.LittleEndian.Uint16(frame[18:20])
	f.FragmentSize = binary.LittleEndian.Uint16(frame[20:22])
	f.Flags = frame[22]
	f.Checksum = binary.LittleEndian.Uint32(frame[23:27])

	rest := frame[headerSize:]
	if int(f.FragmentSize) > len(rest) {
		return nil, meshtransport.New(meshtransport.InvalidFragment, "fragment.Decode", nil)
	}
	f.Payload = append([]byte(nil), rest[:f.FragmentSize]...)
	rest = rest[f.FragmentSize:]

	if len(rest) < 1 {
		return nil, meshtransport.New(meshtransport.InvalidFragment, "fragment.Decode", nil)
	}
	f.SigAlgorithm = meshcrypto.Algorithm(rest[0])
	sigLen := f.SigAlgorithm.SignatureLen()
	if sigLen == 0 || len(rest) < 1+sigLen {
		return nil, meshtransport.New(meshtransport.InvalidFragment, "fragment.Decode", nil)
	}
	f.Signature = append([]byte(nil), rest[1:1+sigLen]...)
	return f, nil
}

// Validate checks structural invariants (spec.md §3), the CRC32 over the
// payload, and the signature over header∥payload.
func Validate(f *Fragment, crypto meshcrypto.Provider, publicKey []byte) error {
	if f.SequenceNumber >= f.TotalFragments {
		return meshtransport.New(meshtransport.InvalidFragment, "fragment.Validate", nil)
	}
	if f.IsFirst() != (f.SequenceNumber == 0) {
		return meshtransport.New(meshtransport.InvalidFragment, "fragment.Validate", nil)
	}
	if f.IsLast() != (f.SequenceNumber == f.TotalFragments-1) {
		return meshtransport.New(meshtransport.InvalidFragment, "fragment.Validate", nil)
	}
	if int(f.FragmentSize) != len(f.Payload) {
		return meshtransport.New(meshtransport.InvalidFragment, "fragment.Validate", nil)
	}
	if crypto.CRC32(f.Payload) != f.Checksum {
		return meshtransport.New(meshtransport.CRC32Mismatch, "fragment.Validate", nil)
	}
	ok, err := crypto.Verify(f.SigAlgorithm, publicKey, signedBytes(f), f.Signature)
	if err != nil {
		return meshtransport.New(meshtransport.InvalidSignature, "fragment.Validate", err)
	}
	if !ok {
		return meshtransport.New(meshtransport.InvalidSignature, "fragment.Validate", nil)
	}
	return nil
}

func signedBytes(f *Fragment) []byte {
	b := f.encodeHeader()
	return append(b, f.Payload...)
}

// Split breaks payload into an ordered sequence of signed, checksummed
// fragments (spec.md §4.C "Fragmentation"). messageId = hash(payload)[0:16].
func Split(payload []byte, msgType meshtransport.MessageType, priority bool, ackRequired bool, crypto meshcrypto.Provider, kp meshcrypto.KeyPair) ([]*Fragment, error) {
	capBytes := PayloadCap(msgType)
	hash := crypto.Hash(payload)
	var msgID [16]byte
	copy(msgID[:], hash[:16])

	total := 1
	if len(payload) > capBytes {
		total = (len(payload) + capBytes - 1) / capBytes
	}

	fragments := make([]*Fragment, 0, total)
	for seq := 0; seq < total; seq++ {
		start := seq * capBytes
		end := start + capBytes
		if end > len(payload) {
			end = len(payload)
		}
		chunk := payload[start:end]

		flags := uint8(0)
		isFirst := seq == 0
		isLast := seq == total-1
		if isFirst {
			flags |= flagFirst
		}
		if isLast {
			flags |= flagLast
		}
		if priority && (isFirst || isLast) {
			flags |= flagPriority
		}
		if ackRequired {
			flags |= flagAckRequired
		}

		f := &Fragment{
			MessageID:      msgID,
			SequenceNumber: uint16(seq),
			TotalFragments: uint16(total),
			FragmentSize:   uint16(len(chunk)),
			Flags:          flags,
			Checksum:       crypto.CRC32(chunk),
			Payload:        append([]byte(nil), chunk...),
			SigAlgorithm:   kp.Algorithm,
		}
		sig, err := crypto.Sign(kp, signedBytes(f))
		if err != nil {
			return nil, meshtransport.New(meshtransport.InvalidSignature, "fragment.Split", err)
		}
		f.Signature = sig
		fragments = append(fragments, f)
	}
	return fragments, nil
}
