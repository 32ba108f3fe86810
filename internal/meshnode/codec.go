package meshnode

import (
	"time"

	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/wire"
)

// constrainedUtilizationThreshold is the band-utilization fraction above
// which a transmission is treated as duty-cycle constrained for codec
// selection purposes: past this point, airtime is scarce enough that a
// denser/cheaper codec is worth its worse ratio (spec.md §4.B).
const constrainedUtilizationThreshold = 0.5

// codecTag prefixes every outbound payload with a 1-byte marker naming the
// compression codec actually applied, mirroring how fragment.Fragment itself
// tags its detached signature with a 1-byte meshcrypto.Algorithm (spec.md
// §6). SelectAlgorithm only picks the codec; something has to tell the
// receiving side which one was picked, and the fragment/priority layers
// carry no such field of their own.
type codecTag byte

const (
	codecNone         codecTag = 0
	codecProtobufLite codecTag = 1
	codecUTXOCustom   codecTag = 2
	codecDictionary   codecTag = 3
	codecGzip         codecTag = 4
	codecLZ4          codecTag = 5
)

func tagFor(a wire.Algorithm) codecTag {
	switch a {
	case wire.AlgoProtobufLite:
		return codecProtobufLite
	case wire.AlgoUTXOCustom:
		return codecUTXOCustom
	case wire.AlgoDictionary:
		return codecDictionary
	case wire.AlgoGzip:
		return codecGzip
	case wire.AlgoLZ4:
		return codecLZ4
	default:
		return codecNone
	}
}

// wrapCodec prepends body's codec tag, producing the bytes actually handed
// to fragment.Split.
func wrapCodec(tag codecTag, body []byte) []byte {
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(tag))
	return append(out, body...)
}

// unwrapCodec splits a reassembled payload back into its codec tag and body.
func unwrapCodec(payload []byte) (codecTag, []byte, error) {
	if len(payload) < 1 {
		return codecNone, nil, meshtransport.New(meshtransport.InvalidFragment, "meshnode.unwrapCodec", nil)
	}
	return codecTag(payload[0]), payload[1:], nil
}

// hasDictionaryMatch reports whether encoding payload against the node's
// dictionary would shrink it at all, the cheapest available signal for
// wire.SelectionParams.HasDictionaryMatch without a dry-run ratio check.
func (n *Node) hasDictionaryMatch(payload []byte) bool {
	if n.dict == nil {
		return false
	}
	return len(wire.EncodeDictionary(payload, n.dict)) < len(payload)
}

// dutyCycleConstrained reports whether the current band utilization is high
// enough that SelectAlgorithm should prefer cheaper/denser codecs over
// better ratios (spec.md §4.B "duty-cycle constrained transmissions").
func (n *Node) dutyCycleConstrained(now time.Time) bool {
	util, err := n.scheduler.Utilization(n.frequency, now)
	if err != nil {
		return false
	}
	return util >= constrainedUtilizationThreshold
}

// compressGeneric applies the general-purpose codec SelectAlgorithm picked
// for an opaque or dictionary-eligible payload (never called for the
// UTXO-typed kinds, which pick between protobuf-lite and utxo-custom
// directly in send.go).
func (n *Node) compressGeneric(payload []byte, kind wire.PayloadKind, constrained bool) ([]byte, wire.Algorithm, error) {
	algo := wire.SelectAlgorithm(wire.SelectionParams{
		Payload:              payload,
		Kind:                 kind,
		HasDictionaryMatch:   n.hasDictionaryMatch(payload),
		DutyCycleConstrained: constrained,
	})
	switch algo {
	case wire.AlgoDictionary:
		return wire.EncodeDictionary(payload, n.dict), algo, nil
	case wire.AlgoGzip:
		out, err := wire.GzipCompress(payload, wire.GzipBalanced)
		if err != nil {
			return nil, algo, err
		}
		return out, algo, nil
	case wire.AlgoLZ4:
		out, err := wire.LZ4Compress(payload)
		if err != nil {
			return nil, algo, err
		}
		return out, algo, nil
	default:
		return payload, wire.AlgoNone, nil
	}
}

// decompressGeneric reverses compressGeneric given the codec tag carried on
// the wire.
func (n *Node) decompressGeneric(tag codecTag, body []byte) ([]byte, error) {
	switch tag {
	case codecNone:
		return body, nil
	case codecDictionary:
		return wire.DecodeDictionary(body, n.dict)
	case codecGzip:
		return wire.GzipDecompress(body)
	case codecLZ4:
		return wire.LZ4Decompress(body)
	default:
		return nil, meshtransport.New(meshtransport.DecompressionFailed, "meshnode.decompressGeneric", nil)
	}
}
