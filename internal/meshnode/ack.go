package meshnode

import (
	"time"

	"rubin.dev/mesh/internal/fragment"
)

// ackSignedBytes and nackSignedBytes are the canonical byte encodings an
// Ack/Nack's signature covers. fragment.Ack/Nack export no signedBytes of
// their own (unlike routing's RouteRequest/RouteReply/...), since the
// signing scheme for acks is a caller concern (fragment.VerifyAck takes the
// signed payload as an opaque argument); this mirrors the pattern routing
// messages use, generalized to the ack shapes.
func ackSignedBytes(a *fragment.Ack) []byte {
	b := append([]byte(nil), a.MessageID[:]...)
	b = append(b, []byte(a.FromNodeID)...)
	b = append(b, 0)
	if a.CumulativeAck != nil {
		b = append(b, 1)
		b = appendUint16(b, *a.CumulativeAck)
		return b
	}
	b = append(b, 0)
	for _, seq := range a.AcknowledgedFragments {
		b = appendUint16(b, seq)
	}
	return b
}

func nackSignedBytes(a *fragment.Nack) []byte {
	b := append([]byte(nil), a.MessageID[:]...)
	b = append(b, []byte(a.FromNodeID)...)
	b = append(b, 0)
	for _, seq := range a.NackFragments {
		b = appendUint16(b, seq)
	}
	return b
}

func appendUint16(b []byte, v uint16) []byte {
	return append(b, byte(v), byte(v>>8))
}

// signAck signs ack in place.
func (n *Node) signAck(a *fragment.Ack) error {
	sig, err := n.crypto.Sign(n.kp, ackSignedBytes(a))
	if err != nil {
		return err
	}
	a.SigAlgorithm = n.kp.Algorithm
	a.Signature = sig
	return nil
}

func (n *Node) signNack(a *fragment.Nack) error {
	sig, err := n.crypto.Sign(n.kp, nackSignedBytes(a))
	if err != nil {
		return err
	}
	a.SigAlgorithm = n.kp.Algorithm
	a.Signature = sig
	return nil
}

// cumulativeAck returns the highest contiguous sequence number received so
// far in s, if any.
func cumulativeAck(s *fragment.Session) (uint16, bool) {
	var cum uint16
	found := false
	for i := uint16(0); i < s.TotalFragments; i++ {
		if !s.Bit(i) {
			break
		}
		cum = i
		found = true
	}
	return cum, found
}

// sendAckFor builds, signs, and transmits a cumulative ack covering s's
// current bitmap, if anything has been received yet (spec.md §4.C
// "Acknowledgments").
func (n *Node) sendAckFor(messageID [16]byte, s *fragment.Session, now time.Time) error {
	cum, ok := cumulativeAck(s)
	if !ok {
		return nil
	}
	ack := &fragment.Ack{
		MessageID:     messageID,
		FromNodeID:    n.selfID,
		Timestamp:     now,
		CumulativeAck: &cum,
	}
	if err := n.signAck(ack); err != nil {
		return err
	}
	return n.transmitControl(controlEnvelope{Kind: controlAck, Ack: ack})
}
