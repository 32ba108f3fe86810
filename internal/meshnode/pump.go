package meshnode

import (
	"time"

	"rubin.dev/mesh/internal/delivery"
	"rubin.dev/mesh/internal/fragment"
	"rubin.dev/mesh/internal/routing"
	"rubin.dev/mesh/internal/wire"
)

// Pump is the node's single tick: drain the priority queue against
// duty-cycle admission, advance route discovery, retransmit what the
// delivery manager says is due, and sweep every component's expiry state
// (spec.md §4.H "pump/tick loop"). It sends all queued data fragments;
// ReceiveMessage also transmits, answering inbound traffic with acks,
// route replies and forwards, and requested retransmissions. Both run on
// the caller's single goroutine, matching the single-writer model
// (spec.md §5). Callers
// invoke it on a fixed interval or whenever armed timers fire; Pump itself
// blocks on nothing.
func (n *Node) Pump(now time.Time) {
	n.admitNewWork(now)
	n.advanceOutstanding(now)
	n.retryDue(now)
	n.maybeSendHello(now)
	n.sweep(now)
	n.persist(now)
}

// admitNewWork pulls messages off the priority queue and starts tracking
// them as outstanding sends; it does not itself put bytes on the radio.
func (n *Node) admitNewWork(now time.Time) {
	for {
		msg, ok := n.queue.Dequeue(now)
		if !ok {
			return
		}
		dest := n.destinations[msg.QueueID]
		delete(n.destinations, msg.QueueID)
		required := n.deliveryRequired[msg.QueueID]
		delete(n.deliveryRequired, msg.QueueID)
		n.outstanding[msg.QueueID] = &outboundState{msg: msg, destination: dest, deliveryRequired: required}
	}
}

// advanceOutstanding moves every outstanding send one step forward: route
// discovery if the destination isn't known yet, fragmentation once it is,
// and transmission of whatever the duty-cycle scheduler currently admits.
func (n *Node) advanceOutstanding(now time.Time) {
	for queueID, ob := range n.outstanding {
		if ob.fragments == nil {
			entry, ok := n.router.Table().Best(ob.destination, now)
			if !ok {
				if !ob.awaitingRoute {
					n.startRouteDiscovery(ob, now)
				}
				continue
			}
			_ = entry // next-hop addressing is carried by the radio layer's own framing, not this payload
			if err := n.fragmentOutbound(queueID, ob, now); err != nil {
				n.log.WithError(err).WithField("queueId", queueID).Warn("failed to fragment outbound message")
				delete(n.outstanding, queueID)
				continue
			}
		}
		n.transmitPending(queueID, ob, now)
	}
}

func (n *Node) startRouteDiscovery(ob *outboundState, now time.Time) {
	req, entry, known, err := n.router.DiscoverRoute(ob.destination, routing.Capabilities{}, now)
	if err != nil {
		n.log.WithError(err).WithField("destination", ob.destination).Warn("route discovery failed")
		return
	}
	if known {
		_ = entry
		return
	}
	ob.awaitingRoute = true
	if req != nil {
		if err := n.transmitControl(controlEnvelope{Kind: controlRouteRequest, Req: req}); err != nil {
			n.log.WithError(err).Warn("failed to transmit route request")
		}
	}
}

func (n *Node) fragmentOutbound(queueID string, ob *outboundState, now time.Time) error {
	fragments, err := fragment.Split(ob.msg.Payload, ob.msg.MsgType, ob.msg.Priority <= 1, ob.deliveryRequired, n.crypto, n.kp)
	if err != nil {
		return err
	}
	ob.fragments = fragments
	ob.sentTracker = fragment.NewSentTracker(fragments[0].MessageID, uint16(len(fragments)))

	policy := delivery.RetryPolicy{
		Base:        n.cfg.RetryPolicy.Base,
		Max:         n.cfg.RetryPolicy.Max,
		Multiplier:  n.cfg.RetryPolicy.Multiplier,
		Jitter:      n.cfg.RetryPolicy.Jitter,
		MaxAttempts: n.cfg.RetryPolicy.MaxAttempts,
	}
	if err := n.delivery.Send(wire.HexEncode(fragments[0].MessageID[:]), ob.destination, ob.deliveryRequired, policy, now); err != nil {
		n.log.WithError(err).WithField("queueId", queueID).Warn("peer circuit open, holding message")
	}
	return nil
}

// transmitPending sends as many of ob's remaining fragments as the
// duty-cycle scheduler admits right now, leaving the rest queued for a
// later tick (spec.md §4.B "transmissions the scheduler refuses stay
// queued, they are never dropped").
func (n *Node) transmitPending(queueID string, ob *outboundState, now time.Time) {
	for ob.nextFragment < len(ob.fragments) {
		f := ob.fragments[ob.nextFragment]
		frame := f.Encode()
		decision, err := n.scheduler.Admit(n.frequency, len(frame), ob.msg.EmergencyFlag, now)
		if err != nil {
			n.log.WithError(err).Warn("duty cycle admission check failed")
			return
		}
		if !decision.Admitted {
			return
		}
		if err := n.radio.Transmit(append([]byte{frameTagFragment}, frame...)); err != nil {
			n.log.WithError(err).WithField("queueId", queueID).Warn("radio transmit failed")
			return
		}
		ob.nextFragment++
	}
	// A fire-and-forget send is done once every fragment has been handed to
	// the radio. A delivery-required send stays in n.outstanding after that
	// point too, since the ack/retransmission-request flow still needs
	// ob.fragments and ob.sentTracker to re-walk; it is only removed once
	// the delivery manager confirms or gives up (receive.go, node.go).
	if ob.nextFragment == len(ob.fragments) && !ob.deliveryRequired {
		delete(n.outstanding, queueID)
	}
}

// retryDue re-transmits the outstanding fragments of any message the
// delivery manager's backoff schedule says is due again.
func (n *Node) retryDue(now time.Time) {
	for _, messageID := range n.delivery.PendingRetries(now) {
		for queueID, ob := range n.outstanding {
			if ob.sentTracker == nil || wire.HexEncode(ob.sentTracker.MessageID[:]) != messageID {
				continue
			}
			ob.nextFragment = 0
			n.transmitPending(queueID, ob, now)
		}
	}
	n.delivery.SweepExhausted(now)
}

// maybeSendHello broadcasts this node's routing state on helloInterval
// (spec.md §4.G).
func (n *Node) maybeSendHello(now time.Time) {
	if now.Sub(n.lastHello) < helloInterval {
		return
	}
	beacon, err := n.router.BuildHello(n.nodeType, n.blockchainHeight, n.utxoCompleteness, n.services)
	if err != nil {
		n.log.WithError(err).Warn("failed to build hello beacon")
		return
	}
	if err := n.transmitControl(controlEnvelope{Kind: controlHello, Hello: beacon}); err != nil {
		n.log.WithError(err).Warn("failed to transmit hello beacon")
		return
	}
	n.lastHello = now
}

// sweep expires stale reassembly sessions, routing-table entries, pending
// route discoveries, and priority-queue entries, and requests retransmission
// of any fragment still missing from an in-progress reassembly in one pass.
func (n *Node) sweep(now time.Time) {
	n.arena.SweepExpired(now)
	n.requestMissingFragments(now)
	n.router.Table().SweepExpired(now)
	n.router.PruneStaleNeighbours(now, 3*helloInterval)
	for _, dest := range n.router.SweepPendingDiscoveries(now) {
		if n.OnNoRoute != nil {
			n.OnNoRoute(dest)
		}
	}
	n.queue.RemoveExpired(now)
	n.queue.Tick(now)
}

// requestMissingFragments walks every reassembly session still missing
// fragments and, once its backoff window has elapsed, asks the origin to
// resend them (spec.md §3 "Missing-fragment detection & retransmission").
func (n *Node) requestMissingFragments(now time.Time) {
	for _, s := range n.arena.Sessions() {
		if s.State != fragment.StateReceiving && s.State != fragment.StateWaitingRetransmission {
			continue
		}
		req, due := fragment.BuildRetransmissionRequest(s, now, n.selfID)
		if !due {
			continue
		}
		if err := n.transmitControl(controlEnvelope{Kind: controlRetransmissionRequest, Retx: req}); err != nil {
			n.log.WithError(err).Warn("failed to transmit retransmission request")
			continue
		}
		fragment.AdvanceRetransmission(s, now, n.cfg.RetryPolicy.MaxAttempts)
	}
}
