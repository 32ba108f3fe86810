package wire

// The structs below are the normative static schema for the three UTXO
// message kinds the protobuf-lite codec carries (spec.md §6). Field
// numbers in the protobuflite.go encoder/decoder match the tags given in
// the spec table; building them at runtime from reflection (as the
// consensus node's source does) is an implementation shortcut this module
// does not repeat — the schema is fixed Go structs plus a hand-written
// tag/wire-type codec.

type UTXOInput struct {
	TxHash      [32]byte
	OutputIndex uint32
	ScriptSig   []byte
}

type UTXOOutput struct {
	Amount       uint32
	AddressID    uint32
	ScriptPubkey []byte
}

type CompressedUTXOTransaction struct {
	ID        []byte
	Inputs    []UTXOInput
	Outputs   []UTXOOutput
	Fee       uint32
	Timestamp uint32
	Signature []byte
}

type CompressedUTXOBlock struct {
	Index        uint64
	Timestamp    uint32
	Transactions []CompressedUTXOTransaction
	PreviousHash [32]byte
	Hash         [32]byte
	MerkleRoot   [32]byte
	Nonce        uint64
	Difficulty   uint32
}

type CompressedUTXOMeshMessage struct {
	Type      uint32
	Payload   []byte
	Timestamp uint32
	FromID    uint32
	ToID      uint32
	Signature []byte
}
