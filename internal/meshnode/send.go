package meshnode

import (
	"time"

	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/priority"
	"rubin.dev/mesh/internal/wire"
)

// SendOptions carries the per-message knobs a caller of SendMessage can set;
// the convenience wrappers (SendUTXOTransaction/SendBlock/SendMerkleProof)
// fill in sensible defaults for their payload kind and only expose what a
// caller genuinely needs to vary.
type SendOptions struct {
	Destination      string
	Priority         meshtransport.MessagePriority
	Emergency        bool
	Fee              uint64
	InputCount       int
	OutputCount      int
	TTL              time.Duration
	MaxRetries       int
	DeliveryRequired bool
	BlockHeight      uint64
}

// priorityForFee derives a message priority from its fee-per-byte, the
// convenience wrappers' default unless the caller overrides it explicitly
// (spec.md §4.D "fee-weighted priority"; thresholds spec.md §6
// highFeeSatoshiPerByte/normalFeeSatoshiPerByte).
func (n *Node) priorityForFee(fee uint64, sizeBytes int) meshtransport.MessagePriority {
	if sizeBytes <= 0 {
		return meshtransport.PriorityNormal
	}
	perByte := float64(fee) / float64(sizeBytes)
	switch {
	case perByte >= n.cfg.HighFeeSatoshiPerByte:
		return meshtransport.PriorityHigh
	case perByte >= n.cfg.NormalFeeSatoshiPerByte:
		return meshtransport.PriorityNormal
	default:
		return meshtransport.PriorityLow
	}
}

// SendMessage enqueues wireBody as given (the Send* wrappers compress and
// codec-tag it beforehand) on the priority queue, and returns a durable queueId the caller can use to track it
// (spec.md §4.H "sendMessage"). The message is not transmitted synchronously;
// Pump drains the queue against duty-cycle admission.
func (n *Node) SendMessage(wireBody []byte, msgType meshtransport.MessageType, opts SendOptions, now time.Time) (string, error) {
	priorityLevel := opts.Priority
	if opts.Emergency {
		priorityLevel = boostPriority(priorityLevel)
	}

	queueID := wire.HexEncode(wire.EncodeUUID16(wire.NewMessageUUID()))
	msg := &priority.Message{
		Payload:            wireBody,
		Priority:           priorityLevel,
		EmergencyFlag:      opts.Emergency,
		Fee:                opts.Fee,
		EstimatedSizeBytes: len(wireBody),
		InputCount:         opts.InputCount,
		OutputCount:        opts.OutputCount,
		CreatedAt:          now,
		TTL:                opts.TTL,
		MaxRetries:         opts.MaxRetries,
		QueueID:            queueID,
		MsgType:            msgType,
		BlockHeight:        opts.BlockHeight,
	}

	evictedID, evicted, err := n.queue.Enqueue(msg, now)
	if err != nil {
		return "", err
	}
	if evicted {
		n.log.WithField("evictedQueueId", evictedID).Warn("priority queue full, evicted lower-priority message")
		if n.OnQueueOverflow != nil {
			n.OnQueueOverflow(evictedID)
		}
	}
	n.destinations[queueID] = opts.Destination
	n.deliveryRequired[queueID] = opts.DeliveryRequired
	return queueID, nil
}

// boostPriority raises priority by one step (CRITICAL is already the top),
// the emergency-preemption rule from spec.md §4.D.
func boostPriority(p meshtransport.MessagePriority) meshtransport.MessagePriority {
	if p > meshtransport.PriorityCritical {
		return p - 1
	}
	return p
}

// SendUTXOTransaction compresses and queues tx (spec.md §4.H
// "sendUTXOTransaction"). The reference encoding is always computed via
// protobuf-lite first so SelectAlgorithm can judge size/kind; only when the
// transmission is duty-cycle constrained does the denser utxo-custom codec
// replace it, since utxo-custom trades away forward-compatible field
// skipping for a smaller frame count.
func (n *Node) SendUTXOTransaction(tx wire.CompressedUTXOTransaction, destination string, emergency, deliveryRequired bool, now time.Time) (string, error) {
	reference := wire.EncodeCompressedUTXOTransaction(tx)
	constrained := n.dutyCycleConstrained(now)
	algo := wire.SelectAlgorithm(wire.SelectionParams{
		Payload:              reference,
		Kind:                 wire.KindUTXOTransaction,
		DutyCycleConstrained: constrained,
	})

	var body []byte
	var tag codecTag
	if algo == wire.AlgoUTXOCustom {
		body = wire.EncodeUTXOCustom(tx)
		tag = codecUTXOCustom
	} else {
		body = reference
		tag = codecProtobufLite
	}

	opts := SendOptions{
		Destination:      destination,
		Priority:         n.priorityForFee(uint64(tx.Fee), len(body)),
		Emergency:        emergency,
		Fee:              uint64(tx.Fee),
		InputCount:       len(tx.Inputs),
		OutputCount:      len(tx.Outputs),
		TTL:              5 * time.Minute,
		MaxRetries:       n.cfg.RetryPolicy.MaxAttempts,
		DeliveryRequired: deliveryRequired,
	}
	return n.SendMessage(wrapCodec(tag, body), meshtransport.MsgTypeUTXOTransaction, opts, now)
}

// SendBlock compresses and queues b at critical priority (spec.md §4.H
// "sendBlock"). wire.EncodeUTXOCustom only covers CompressedUTXOTransaction,
// not blocks, so blocks always go out protobuf-lite encoded regardless of
// what SelectAlgorithm would nominally pick for a duty-cycle-constrained
// transmission of this kind.
func (n *Node) SendBlock(b wire.CompressedUTXOBlock, destination string, now time.Time) (string, error) {
	body := wire.EncodeCompressedUTXOBlock(b)
	opts := SendOptions{
		Destination:      destination,
		Priority:         meshtransport.PriorityCritical,
		TTL:              30 * time.Minute,
		MaxRetries:       n.cfg.RetryPolicy.MaxAttempts,
		DeliveryRequired: true,
		BlockHeight:      b.Index,
	}
	return n.SendMessage(wrapCodec(codecProtobufLite, body), meshtransport.MsgTypeBlock, opts, now)
}

// SendMerkleProof compresses and queues opaque proof bytes at high priority
// (spec.md §4.H "sendMerkleProof"). Proofs are not one of the static UTXO
// schemas, so they're compressed via the generic opaque-payload path
// (dictionary/lz4/gzip) rather than wrapped in a CompressedUTXOMeshMessage,
// avoiding a dependency on the address-interning layer for this flow.
func (n *Node) SendMerkleProof(proof []byte, destination string, now time.Time) (string, error) {
	constrained := n.dutyCycleConstrained(now)
	body, algo, err := n.compressGeneric(proof, wire.KindOpaque, constrained)
	if err != nil {
		n.log.WithError(err).Warn("merkle proof compression failed, sending uncompressed")
		if n.OnCompressionFallback != nil {
			n.OnCompressionFallback("", err)
		}
		body, algo = proof, wire.AlgoNone
	}
	opts := SendOptions{
		Destination:      destination,
		Priority:         meshtransport.PriorityHigh,
		TTL:              10 * time.Minute,
		MaxRetries:       n.cfg.RetryPolicy.MaxAttempts,
		DeliveryRequired: true,
	}
	return n.SendMessage(wrapCodec(tagFor(algo), body), meshtransport.MsgTypeMerkleProof, opts, now)
}
