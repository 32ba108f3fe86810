package wire

import "fmt"

// EncodeUTXOCustom packs a transaction using the mesh's bespoke binary
// layout: varint counts, fixed-width hashes, fee-tier byte in place of a
// full fee, relative timestamp, and a trailing detached signature. It is
// denser than protobuf-lite for the common case (few inputs/outputs) at the
// cost of losing forward-compatible unknown-field skipping (spec.md §4.B).
func EncodeUTXOCustom(tx CompressedUTXOTransaction) []byte {
	var b []byte
	b = PutUvarint(b, uint32(len(tx.ID)))
	b = append(b, tx.ID...)

	b = PutUvarint(b, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		b = append(b, in.TxHash[:]...)
		b = PutUvarint(b, in.OutputIndex)
		b = PutUvarint(b, uint32(len(in.ScriptSig)))
		b = append(b, in.ScriptSig...)
	}

	b = PutUvarint(b, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		b = PutUvarint(b, out.Amount)
		b = PutUvarint(b, out.AddressID)
		b = PutUvarint(b, uint32(len(out.ScriptPubkey)))
		b = append(b, out.ScriptPubkey...)
	}

	b = append(b, EncodeFeeTier(uint64(tx.Fee)))
	b = PutUvarint(b, tx.Timestamp)
	b = PutUvarint(b, uint32(len(tx.Signature)))
	b = append(b, tx.Signature...)
	return b
}

// DecodeUTXOCustom reverses EncodeUTXOCustom. Only tx.Fee is fee-tier
// snapped; output amounts are full varints and decode byte-identical to
// what was encoded (spec.md §4.B scopes fee-tier compression to the fee,
// not transferred value).
func DecodeUTXOCustom(b []byte) (CompressedUTXOTransaction, error) {
	var tx CompressedUTXOTransaction
	off := 0

	idLen, n, err := ReadUvarint(b[off:])
	if err != nil {
		return tx, err
	}
	off += n
	if off+int(idLen) > len(b) {
		return tx, fmt.Errorf("wire: utxo-custom: truncated id")
	}
	tx.ID = append([]byte(nil), b[off:off+int(idLen)]...)
	off += int(idLen)

	inCount, n, err := ReadUvarint(b[off:])
	if err != nil {
		return tx, err
	}
	off += n
	tx.Inputs = make([]UTXOInput, 0, inCount)
	for i := uint32(0); i < inCount; i++ {
		var in UTXOInput
		if off+32 > len(b) {
			return tx, fmt.Errorf("wire: utxo-custom: truncated input tx_hash")
		}
		copy(in.TxHash[:], b[off:off+32])
		off += 32

		idx, n, err := ReadUvarint(b[off:])
		if err != nil {
			return tx, err
		}
		off += n
		in.OutputIndex = idx

		sigLen, n, err := ReadUvarint(b[off:])
		if err != nil {
			return tx, err
		}
		off += n
		if off+int(sigLen) > len(b) {
			return tx, fmt.Errorf("wire: utxo-custom: truncated input script_sig")
		}
		in.ScriptSig = append([]byte(nil), b[off:off+int(sigLen)]...)
		off += int(sigLen)

		tx.Inputs = append(tx.Inputs, in)
	}

	outCount, n, err := ReadUvarint(b[off:])
	if err != nil {
		return tx, err
	}
	off += n
	tx.Outputs = make([]UTXOOutput, 0, outCount)
	for i := uint32(0); i < outCount; i++ {
		var out UTXOOutput
		amount, n, err := ReadUvarint(b[off:])
		if err != nil {
			return tx, err
		}
		off += n
		out.Amount = amount

		addrID, n, err := ReadUvarint(b[off:])
		if err != nil {
			return tx, err
		}
		off += n
		out.AddressID = addrID

		pkLen, n, err := ReadUvarint(b[off:])
		if err != nil {
			return tx, err
		}
		off += n
		if off+int(pkLen) > len(b) {
			return tx, fmt.Errorf("wire: utxo-custom: truncated output script_pubkey")
		}
		out.ScriptPubkey = append([]byte(nil), b[off:off+int(pkLen)]...)
		off += int(pkLen)

		tx.Outputs = append(tx.Outputs, out)
	}

	if off >= len(b) {
		return tx, fmt.Errorf("wire: utxo-custom: truncated fee tier")
	}
	fee, err := DecodeFeeTier(b[off])
	if err != nil {
		return tx, err
	}
	off++
	tx.Fee = uint32(fee)

	ts, n, err := ReadUvarint(b[off:])
	if err != nil {
		return tx, err
	}
	off += n
	tx.Timestamp = ts

	sigLen, n, err := ReadUvarint(b[off:])
	if err != nil {
		return tx, err
	}
	off += n
	if off+int(sigLen) > len(b) {
		return tx, fmt.Errorf("wire: utxo-custom: truncated signature")
	}
	tx.Signature = append([]byte(nil), b[off:off+int(sigLen)]...)
	off += int(sigLen)

	return tx, nil
}
