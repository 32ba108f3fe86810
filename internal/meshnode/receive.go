package meshnode

import (
	"time"

	"rubin.dev/mesh/internal/fragment"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/wire"
)

// ReceiveMessage feeds one inbound radio frame through validation and
// reassembly, returning a complete MeshMessage only once every fragment of
// the original send has arrived (spec.md §4.H "receiveMessage"). Unlike the
// informal single-argument pseudocode, this also takes the sender's node id:
// every real radio/packet driver delivers sender identity alongside payload
// bytes, and a public-key lookup is required before any signature here can
// be verified. senderID must already be registered via RegisterPeer.
func (n *Node) ReceiveMessage(frame []byte, senderID string, now time.Time) (*MeshMessage, error) {
	if len(frame) < 1 {
		return nil, meshtransport.New(meshtransport.InvalidFragment, "meshnode.ReceiveMessage", nil)
	}
	tag, body := frame[0], frame[1:]
	switch tag {
	case frameTagFragment:
		return n.receiveFragment(body, senderID, now)
	case frameTagControl:
		return nil, n.receiveControl(body, senderID, now)
	default:
		return nil, meshtransport.New(meshtransport.InvalidFragment, "meshnode.ReceiveMessage", nil)
	}
}

func (n *Node) publicKeyOf(nodeID string) ([]byte, error) {
	pub, ok := n.peers[nodeID]
	if !ok {
		return nil, meshtransport.New(meshtransport.InvalidSignature, "meshnode.publicKeyOf", nil)
	}
	return pub, nil
}

func (n *Node) receiveFragment(body []byte, senderID string, now time.Time) (*MeshMessage, error) {
	f, err := fragment.Decode(body)
	if err != nil {
		return nil, err
	}
	pub, err := n.publicKeyOf(senderID)
	if err != nil {
		return nil, err
	}
	if err := fragment.Validate(f, n.crypto, pub); err != nil {
		return nil, err
	}

	// The fragment's priority flag is the only signal the receiver has of
	// the original message's queue priority before reassembly completes;
	// msgType is approximated since neither is repeated in the fragment
	// header (spec.md §6) and is only used here for session bookkeeping,
	// not correctness.
	priority := meshtransport.PriorityNormal
	if f.IsPriority() {
		priority = meshtransport.PriorityHigh
	}

	result, err := n.arena.Accept(f, senderID, priority, meshtransport.MsgTypeUTXOTransaction, now)
	if err != nil {
		return nil, err
	}
	if result.Evicted {
		n.log.WithField("evictedSession", result.EvictedKey).Warn("reassembly arena full, evicted oldest session")
	}
	if result.Session != nil {
		if err := n.sendAckFor(f.MessageID, result.Session, now); err != nil {
			n.log.WithError(err).Warn("failed to sign/send fragment ack")
		}
	}
	if !result.Complete {
		return nil, nil
	}

	tagByte, decoded, err := unwrapCodec(result.Payload)
	if err != nil {
		return nil, err
	}
	var payload []byte
	switch tagByte {
	case codecProtobufLite, codecUTXOCustom, codecNone:
		payload = decoded
	default:
		payload, err = n.decompressGeneric(tagByte, decoded)
		if err != nil {
			return nil, err
		}
	}

	msg := MeshMessage{
		MessageID:  f.MessageID,
		MsgType:    result.Session.MsgType,
		Priority:   result.Session.Priority,
		Origin:     senderID,
		Payload:    payload,
		ReceivedAt: now,
	}
	if n.OnMessageReceived != nil {
		n.OnMessageReceived(msg)
	}
	return &msg, nil
}

// receiveControl dispatches a decoded control envelope to the router or
// delivery manager, never surfacing a MeshMessage of its own (control
// traffic isn't application payload, spec.md §4.H).
func (n *Node) receiveControl(body []byte, senderID string, now time.Time) error {
	env, err := decodeControlFrame(body)
	if err != nil {
		return err
	}
	pub, err := n.publicKeyOf(senderID)
	if err != nil {
		return err
	}

	switch env.Kind {
	case controlRouteRequest:
		if env.Req == nil {
			return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
		}
		reply, forward, err := n.router.HandleRouteRequest(*env.Req, pub, n.nodeType, n.blockchainHeight, n.utxoCompleteness, n.lastUTXOSync, n.services, now)
		if err != nil {
			return err
		}
		if reply != nil {
			if err := n.transmitControl(controlEnvelope{Kind: controlRouteReply, Reply: reply}); err != nil {
				return err
			}
		}
		if forward != nil {
			if err := n.transmitControl(controlEnvelope{Kind: controlRouteRequest, Req: forward}); err != nil {
				return err
			}
		}
		return nil

	case controlRouteReply:
		if env.Reply == nil {
			return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
		}
		_, shouldForward, err := n.router.HandleRouteReply(*env.Reply, senderID, pub, now)
		if err != nil {
			return err
		}
		if shouldForward {
			return n.transmitControl(controlEnvelope{Kind: controlRouteReply, Reply: env.Reply})
		}
		return nil

	case controlRouteError:
		if env.Err == nil {
			return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
		}
		_, err := n.router.HandleRouteError(*env.Err, pub, now)
		return err

	case controlHello:
		if env.Hello == nil {
			return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
		}
		return n.router.ReceiveHello(*env.Hello, pub, now)

	case controlAck:
		if env.Ack == nil {
			return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
		}
		if err := fragment.VerifyAck(n.crypto, pub, ackSignedBytes(env.Ack), env.Ack.SigAlgorithm, env.Ack.Signature); err != nil {
			return err
		}
		if queueID, ob, ok := n.outstandingFor(env.Ack.MessageID); ok {
			ob.sentTracker.ApplyAck(env.Ack)
			if ob.sentTracker.Complete() {
				n.delivery.ConfirmDelivery(wire.HexEncode(env.Ack.MessageID[:]), now)
				delete(n.outstanding, queueID)
			}
		}
		return nil

	case controlNack:
		if env.Nack == nil {
			return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
		}
		return fragment.VerifyAck(n.crypto, pub, nackSignedBytes(env.Nack), env.Nack.SigAlgorithm, env.Nack.Signature)

	case controlRetransmissionRequest:
		if env.Retx == nil {
			return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
		}
		return n.retransmitRequested(*env.Retx, now)

	default:
		return meshtransport.New(meshtransport.InvalidFragment, "meshnode.receiveControl", nil)
	}
}

// outstandingFor finds the outstanding send whose sentTracker matches
// messageID, if any is still being tracked.
func (n *Node) outstandingFor(messageID [16]byte) (string, *outboundState, bool) {
	for queueID, ob := range n.outstanding {
		if ob.sentTracker != nil && ob.sentTracker.MessageID == messageID {
			return queueID, ob, true
		}
	}
	return "", nil, false
}

// retransmitRequested re-sends the fragments a peer's RetransmissionRequest
// names, re-walking n.outstanding for the matching send (spec.md §3
// "Missing-fragment detection & retransmission"). Each re-send still passes
// through the duty-cycle scheduler like any other fragment transmission.
func (n *Node) retransmitRequested(req fragment.RetransmissionRequest, now time.Time) error {
	for _, ob := range n.outstanding {
		if ob.sentTracker == nil || ob.sentTracker.MessageID != req.MessageID {
			continue
		}
		missing := req.MissingFragments
		if missing == nil && req.CompressedBitmap != nil {
			missing = missingFromBitmap(req.CompressedBitmap, len(ob.fragments))
		}
		for _, seq := range missing {
			if int(seq) >= len(ob.fragments) {
				continue
			}
			frame := ob.fragments[seq].Encode()
			decision, err := n.scheduler.Admit(n.frequency, len(frame), ob.msg.EmergencyFlag, now)
			if err != nil {
				n.log.WithError(err).Warn("duty cycle admission check failed for retransmission")
				continue
			}
			if !decision.Admitted {
				continue
			}
			if err := n.radio.Transmit(append([]byte{frameTagFragment}, frame...)); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

// missingFromBitmap expands a packed receive bitmap (set bit = fragment
// already held) into the sequence numbers still missing, up to total.
func missingFromBitmap(bitmap []byte, total int) []uint16 {
	var out []uint16
	for i := 0; i < total; i++ {
		byteIdx := i / 8
		if byteIdx >= len(bitmap) {
			out = append(out, uint16(i))
			continue
		}
		if bitmap[byteIdx]&(1<<uint(i%8)) == 0 {
			out = append(out, uint16(i))
		}
	}
	return out
}
