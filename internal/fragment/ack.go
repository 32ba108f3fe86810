package fragment

import (
	"time"

	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
)

// Ack is an incoming fragment-level acknowledgment (spec.md §6). Exactly one
// of CumulativeAck or AcknowledgedFragments is populated.
type Ack struct {
	MessageID             [16]byte
	FromNodeID            string
	Timestamp             time.Time
	CumulativeAck         *uint16
	AcknowledgedFragments []uint16
	SigAlgorithm          meshcrypto.Algorithm
	Signature             []byte
}

// Nack is an incoming fragment-level negative acknowledgment naming
// sequences that must be re-sent immediately.
type Nack struct {
	MessageID     [16]byte
	FromNodeID    string
	Timestamp     time.Time
	NackFragments []uint16
	SigAlgorithm  meshcrypto.Algorithm
	Signature     []byte
}

// SentTracker tracks which fragments of one outbound message have been
// acknowledged by the receiver, so the sender only retransmits what is
// actually still missing instead of the whole message.
type SentTracker struct {
	MessageID [16]byte
	Total     uint16
	acked     []bool
}

// NewSentTracker returns a tracker for an outbound message of the given
// fragment count.
func NewSentTracker(messageID [16]byte, total uint16) *SentTracker {
	return &SentTracker{MessageID: messageID, Total: total, acked: make([]bool, total)}
}

// ApplyAck marks fragments acknowledged per ack's contents. A cumulative ack
// marks every sequence up to and including the given value; an explicit list
// marks exactly those sequences.
func (t *SentTracker) ApplyAck(ack *Ack) {
	if ack.CumulativeAck != nil {
		for i := uint16(0); i <= *ack.CumulativeAck && int(i) < len(t.acked); i++ {
			t.acked[i] = true
		}
		return
	}
	for _, seq := range ack.AcknowledgedFragments {
		if int(seq) < len(t.acked) {
			t.acked[seq] = true
		}
	}
}

// Outstanding returns the sequences not yet acknowledged.
func (t *SentTracker) Outstanding() []uint16 {
	var out []uint16
	for i, acked := range t.acked {
		if !acked {
			out = append(out, uint16(i))
		}
	}
	return out
}

// Complete reports whether every fragment has been acknowledged.
func (t *SentTracker) Complete() bool {
	for _, acked := range t.acked {
		if !acked {
			return false
		}
	}
	return true
}

// VerifyAck checks the signature on an incoming Ack/Nack-shaped payload
// (signedBytes excludes the signature field per spec.md §6). Unverified
// acks/nacks must be ignored by the caller, not applied.
func VerifyAck(crypto meshcrypto.Provider, publicKey []byte, signedPayload []byte, sigAlgorithm meshcrypto.Algorithm, signature []byte) error {
	ok, err := crypto.Verify(sigAlgorithm, publicKey, signedPayload, signature)
	if err != nil {
		return meshtransport.New(meshtransport.InvalidSignature, "fragment.VerifyAck", err)
	}
	if !ok {
		return meshtransport.New(meshtransport.InvalidSignature, "fragment.VerifyAck", nil)
	}
	return nil
}
