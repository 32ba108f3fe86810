package wire

import "fmt"

// protobuf-lite wire types, matching real protobuf's tag encoding
// conventions (field_num<<3 | wire_type) so the byte layout reads the same
// way any protobuf sniffer would expect, without pulling in a reflection-
// based codegen runtime for three fixed message shapes.
const (
	wireVarint = 0
	wireBytes  = 2
)

func putTag(dst []byte, field int, wireType int) []byte {
	return PutUvarint(dst, uint32(field)<<3|uint32(wireType))
}

func readTag(b []byte) (field int, wireType int, n int, err error) {
	v, n, err := ReadUvarint(b)
	if err != nil {
		return 0, 0, 0, err
	}
	return int(v >> 3), int(v & 0x7), n, nil
}

func putVarintField(dst []byte, field int, v uint64) []byte {
	dst = putTag(dst, field, wireVarint)
	return PutUvarint64(dst, v)
}

func putBytesField(dst []byte, field int, b []byte) []byte {
	dst = putTag(dst, field, wireBytes)
	dst = PutUvarint(dst, uint32(len(b)))
	return append(dst, b...)
}

// skipField advances past one field's value given its wire type, for
// forward-compatible decoding of unknown fields.
func skipField(b []byte, wireType int) (int, error) {
	switch wireType {
	case wireVarint:
		_, n, err := ReadUvarint64(b)
		return n, err
	case wireBytes:
		l, n, err := ReadUvarint(b)
		if err != nil {
			return 0, err
		}
		total := n + int(l)
		if total > len(b) {
			return 0, fmt.Errorf("wire: protobuf-lite: truncated length-delimited field")
		}
		return total, nil
	default:
		return 0, fmt.Errorf("wire: protobuf-lite: unsupported wire type %d", wireType)
	}
}

// --- UTXOInput ---

func EncodeUTXOInput(in UTXOInput) []byte {
	var out []byte
	out = putBytesField(out, 1, in.TxHash[:])
	out = putVarintField(out, 2, uint64(in.OutputIndex))
	out = putBytesField(out, 3, in.ScriptSig)
	return out
}

func DecodeUTXOInput(b []byte) (UTXOInput, error) {
	var in UTXOInput
	off := 0
	for off < len(b) {
		field, wt, n, err := readTag(b[off:])
		if err != nil {
			return UTXOInput{}, err
		}
		off += n
		switch {
		case field == 1 && wt == wireBytes:
			l, n2, err := ReadUvarint(b[off:])
			if err != nil {
				return UTXOInput{}, err
			}
			off += n2
			if off+int(l) > len(b) || l != 32 {
				return UTXOInput{}, fmt.Errorf("wire: utxo input: tx_hash must be 32 bytes")
			}
			copy(in.TxHash[:], b[off:off+int(l)])
			off += int(l)
		case field == 2 && wt == wireVarint:
			v, n2, err := ReadUvarint64(b[off:])
			if err != nil {
				return UTXOInput{}, err
			}
			off += n2
			in.OutputIndex = uint32(v)
		case field == 3 && wt == wireBytes:
			l, n2, err := ReadUvarint(b[off:])
			if err != nil {
				return UTXOInput{}, err
			}
			off += n2
			if off+int(l) > len(b) {
				return UTXOInput{}, fmt.Errorf("wire: utxo input: truncated script_sig")
			}
			in.ScriptSig = append([]byte(nil), b[off:off+int(l)]...)
			off += int(l)
		default:
			n2, err := skipField(b[off:], wt)
			if err != nil {
				return UTXOInput{}, err
			}
			off += n2
		}
	}
	return in, nil
}

// --- UTXOOutput ---

func EncodeUTXOOutput(out UTXOOutput) []byte {
	var b []byte
	b = putVarintField(b, 1, uint64(out.Amount))
	b = putVarintField(b, 2, uint64(out.AddressID))
	b = putBytesField(b, 3, out.ScriptPubkey)
	return b
}

func DecodeUTXOOutput(b []byte) (UTXOOutput, error) {
	var out UTXOOutput
	off := 0
	for off < len(b) {
		field, wt, n, err := readTag(b[off:])
		if err != nil {
			return UTXOOutput{}, err
		}
		off += n
		switch {
		case field == 1 && wt == wireVarint:
			v, n2, err := ReadUvarint64(b[off:])
			if err != nil {
				return UTXOOutput{}, err
			}
			off += n2
			out.Amount = uint32(v)
		case field == 2 && wt == wireVarint:
			v, n2, err := ReadUvarint64(b[off:])
			if err != nil {
				return UTXOOutput{}, err
			}
			off += n2
			out.AddressID = uint32(v)
		case field == 3 && wt == wireBytes:
			l, n2, err := ReadUvarint(b[off:])
			if err != nil {
				return UTXOOutput{}, err
			}
			off += n2
			if off+int(l) > len(b) {
				return UTXOOutput{}, fmt.Errorf("wire: utxo output: truncated script_pubkey")
			}
			out.ScriptPubkey = append([]byte(nil), b[off:off+int(l)]...)
			off += int(l)
		default:
			n2, err := skipField(b[off:], wt)
			if err != nil {
				return UTXOOutput{}, err
			}
			off += n2
		}
	}
	return out, nil
}

// --- CompressedUTXOTransaction ---

func EncodeCompressedUTXOTransaction(tx CompressedUTXOTransaction) []byte {
	var b []byte
	b = putBytesField(b, 1, tx.ID)
	for _, in := range tx.Inputs {
		b = putBytesField(b, 2, EncodeUTXOInput(in))
	}
	for _, out := range tx.Outputs {
		b = putBytesField(b, 3, EncodeUTXOOutput(out))
	}
	b = putVarintField(b, 4, uint64(tx.Fee))
	b = putVarintField(b, 5, uint64(tx.Timestamp))
	b = putBytesField(b, 6, tx.Signature)
	return b
}

func DecodeCompressedUTXOTransaction(b []byte) (CompressedUTXOTransaction, error) {
	var tx CompressedUTXOTransaction
	off := 0
	for off < len(b) {
		field, wt, n, err := readTag(b[off:])
		if err != nil {
			return CompressedUTXOTransaction{}, err
		}
		off += n
		switch {
		case field == 1 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			off += consumed
			tx.ID = v
		case field == 2 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			off += consumed
			in, err := DecodeUTXOInput(v)
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			tx.Inputs = append(tx.Inputs, in)
		case field == 3 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			off += consumed
			out, err := DecodeUTXOOutput(v)
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			tx.Outputs = append(tx.Outputs, out)
		case field == 4 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			off += consumed
			tx.Fee = uint32(v)
		case field == 5 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			off += consumed
			tx.Timestamp = uint32(v)
		case field == 6 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			off += consumed
			tx.Signature = v
		default:
			consumed, err := skipField(b[off:], wt)
			if err != nil {
				return CompressedUTXOTransaction{}, err
			}
			off += consumed
		}
	}
	return tx, nil
}

func readBytesField(b []byte) ([]byte, int, error) {
	l, n, err := ReadUvarint(b)
	if err != nil {
		return nil, 0, err
	}
	if n+int(l) > len(b) {
		return nil, 0, fmt.Errorf("wire: protobuf-lite: truncated bytes field")
	}
	return append([]byte(nil), b[n:n+int(l)]...), n + int(l), nil
}

// --- CompressedUTXOBlock ---

func EncodeCompressedUTXOBlock(blk CompressedUTXOBlock) []byte {
	var b []byte
	b = putVarintField(b, 1, blk.Index)
	b = putVarintField(b, 2, uint64(blk.Timestamp))
	for _, tx := range blk.Transactions {
		b = putBytesField(b, 3, EncodeCompressedUTXOTransaction(tx))
	}
	b = putBytesField(b, 4, blk.PreviousHash[:])
	b = putBytesField(b, 5, blk.Hash[:])
	b = putBytesField(b, 6, blk.MerkleRoot[:])
	b = putVarintField(b, 7, blk.Nonce)
	b = putVarintField(b, 8, uint64(blk.Difficulty))
	return b
}

func DecodeCompressedUTXOBlock(b []byte) (CompressedUTXOBlock, error) {
	var blk CompressedUTXOBlock
	off := 0
	for off < len(b) {
		field, wt, n, err := readTag(b[off:])
		if err != nil {
			return CompressedUTXOBlock{}, err
		}
		off += n
		switch {
		case field == 1 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			blk.Index = v
		case field == 2 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			blk.Timestamp = uint32(v)
		case field == 3 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			tx, err := DecodeCompressedUTXOTransaction(v)
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			blk.Transactions = append(blk.Transactions, tx)
		case field == 4 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			if len(v) != 32 {
				return CompressedUTXOBlock{}, fmt.Errorf("wire: block: previous_hash must be 32 bytes")
			}
			copy(blk.PreviousHash[:], v)
		case field == 5 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			if len(v) != 32 {
				return CompressedUTXOBlock{}, fmt.Errorf("wire: block: hash must be 32 bytes")
			}
			copy(blk.Hash[:], v)
		case field == 6 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			if len(v) != 32 {
				return CompressedUTXOBlock{}, fmt.Errorf("wire: block: merkle_root must be 32 bytes")
			}
			copy(blk.MerkleRoot[:], v)
		case field == 7 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			blk.Nonce = v
		case field == 8 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
			blk.Difficulty = uint32(v)
		default:
			consumed, err := skipField(b[off:], wt)
			if err != nil {
				return CompressedUTXOBlock{}, err
			}
			off += consumed
		}
	}
	return blk, nil
}

// --- CompressedUTXOMeshMessage ---

func EncodeCompressedUTXOMeshMessage(m CompressedUTXOMeshMessage) []byte {
	var b []byte
	b = putVarintField(b, 1, uint64(m.Type))
	b = putBytesField(b, 2, m.Payload)
	b = putVarintField(b, 3, uint64(m.Timestamp))
	b = putVarintField(b, 4, uint64(m.FromID))
	b = putVarintField(b, 5, uint64(m.ToID))
	b = putBytesField(b, 6, m.Signature)
	return b
}

func DecodeCompressedUTXOMeshMessage(b []byte) (CompressedUTXOMeshMessage, error) {
	var m CompressedUTXOMeshMessage
	off := 0
	for off < len(b) {
		field, wt, n, err := readTag(b[off:])
		if err != nil {
			return CompressedUTXOMeshMessage{}, err
		}
		off += n
		switch {
		case field == 1 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOMeshMessage{}, err
			}
			off += consumed
			m.Type = uint32(v)
		case field == 2 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOMeshMessage{}, err
			}
			off += consumed
			m.Payload = v
		case field == 3 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOMeshMessage{}, err
			}
			off += consumed
			m.Timestamp = uint32(v)
		case field == 4 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOMeshMessage{}, err
			}
			off += consumed
			m.FromID = uint32(v)
		case field == 5 && wt == wireVarint:
			v, consumed, err := ReadUvarint64(b[off:])
			if err != nil {
				return CompressedUTXOMeshMessage{}, err
			}
			off += consumed
			m.ToID = uint32(v)
		case field == 6 && wt == wireBytes:
			v, consumed, err := readBytesField(b[off:])
			if err != nil {
				return CompressedUTXOMeshMessage{}, err
			}
			off += consumed
			m.Signature = v
		default:
			consumed, err := skipField(b[off:], wt)
			if err != nil {
				return CompressedUTXOMeshMessage{}, err
			}
			off += consumed
		}
	}
	return m, nil
}
