package wire

// Algorithm identifies which codec a CompressedUTXOMeshMessage payload was
// encoded with, carried alongside the payload so the receiving side knows
// how to reverse it without guessing.
type Algorithm string

const (
	AlgoNone           Algorithm = "none"
	AlgoProtobufLite   Algorithm = "protobuf-lite"
	AlgoUTXOCustom     Algorithm = "utxo-custom"
	AlgoDictionary     Algorithm = "dictionary"
	AlgoGzip           Algorithm = "gzip"
	AlgoLZ4            Algorithm = "lz4"
)

// PayloadKind tells SelectAlgorithm what shape of data it is choosing a
// codec for, since the static UTXO schemas warrant their own codecs while
// opaque control payloads fall back to general compression.
type PayloadKind int

const (
	KindOpaque PayloadKind = iota
	KindUTXOTransaction
	KindUTXOBlock
)

// SelectionParams carries the inputs to the selection policy (spec.md
// §4.B): the payload itself, what kind of payload it is, whether a
// dictionary match is known to exist for it, and whether the current
// transmission is duty-cycle constrained (favoring faster codecs over
// better ratios).
type SelectionParams struct {
	Payload             []byte
	Kind                PayloadKind
	HasDictionaryMatch  bool
	DutyCycleConstrained bool
}

// SelectAlgorithm implements the codec selection policy: tiny payloads skip
// compression entirely (the framing overhead would outweigh any savings);
// typed UTXO payloads prefer their bespoke codecs; payloads with a known
// dictionary match use it; duty-cycle-constrained transmissions prefer the
// cheaper lz4 path; everything else falls back to gzip.
func SelectAlgorithm(p SelectionParams) Algorithm {
	const smallPayloadThreshold = 16

	if len(p.Payload) < smallPayloadThreshold {
		return AlgoNone
	}
	switch p.Kind {
	case KindUTXOTransaction, KindUTXOBlock:
		if p.DutyCycleConstrained {
			return AlgoUTXOCustom
		}
		return AlgoProtobufLite
	}
	if p.HasDictionaryMatch {
		return AlgoDictionary
	}
	if p.DutyCycleConstrained {
		return AlgoLZ4
	}
	return AlgoGzip
}
