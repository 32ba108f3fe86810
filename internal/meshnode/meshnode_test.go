package meshnode

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"rubin.dev/mesh/internal/config"
	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/routing"
	"rubin.dev/mesh/internal/wire"
)

// recordingRadio captures every frame passed to Transmit, and optionally
// forwards it straight to a peer node for loopback-style tests.
type recordingRadio struct {
	frames [][]byte
	peer   *Node
	from   string
}

func (r *recordingRadio) Transmit(frame []byte) error {
	r.frames = append(r.frames, append([]byte(nil), frame...))
	if r.peer != nil {
		if _, err := r.peer.ReceiveMessage(frame, r.from, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

// dropRadio behaves like recordingRadio but silently swallows the first
// transmission of any fragment sequence number named in dropSeq, simulating
// a lost-on-air frame; subsequent retransmissions of that sequence go
// through normally.
type dropRadio struct {
	frames  [][]byte
	peer    *Node
	from    string
	dropSeq map[uint16]bool
	dropped map[uint16]bool
}

func (r *dropRadio) Transmit(frame []byte) error {
	r.frames = append(r.frames, append([]byte(nil), frame...))
	if len(frame) >= 21 && frame[0] == frameTagFragment {
		seq := binary.LittleEndian.Uint16(frame[17:19])
		if r.dropSeq[seq] && !r.dropped[seq] {
			if r.dropped == nil {
				r.dropped = make(map[uint16]bool)
			}
			r.dropped[seq] = true
			return nil
		}
	}
	if r.peer != nil {
		if _, err := r.peer.ReceiveMessage(frame, r.from, time.Now()); err != nil {
			return err
		}
	}
	return nil
}

func testNode(t *testing.T, selfID string, radio Radio) *Node {
	t.Helper()
	crypto := meshcrypto.DefaultProvider{}
	kp, err := crypto.GenerateKeyPair(meshcrypto.AlgorithmEd25519)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	n, err := NewNode(Config{
		SelfID:     selfID,
		Crypto:     crypto,
		KeyPair:    kp,
		Transport:  config.DefaultConfig(dutycycle.Regions["EU"]),
		LoRaParams: dutycycle.DefaultLoRaParams,
		Frequency:  868.1,
		Radio:      radio,
		NodeType:   routing.NodeTypeFull,
	})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return n
}

func TestNewNodeRequiresSelfIDAndRadio(t *testing.T) {
	base := Config{
		Transport:  config.DefaultConfig(dutycycle.Regions["EU"]),
		LoRaParams: dutycycle.DefaultLoRaParams,
	}
	if _, err := NewNode(base); err == nil {
		t.Fatalf("expected error for missing selfId and radio")
	}
	base.SelfID = "node-1"
	if _, err := NewNode(base); err == nil {
		t.Fatalf("expected error for missing radio")
	}
}

func TestCodecTagRoundTrip(t *testing.T) {
	body := []byte("hello mesh")
	wrapped := wrapCodec(codecGzip, body)
	tag, rest, err := unwrapCodec(wrapped)
	if err != nil {
		t.Fatalf("unwrapCodec: %v", err)
	}
	if tag != codecGzip {
		t.Fatalf("expected codecGzip, got %v", tag)
	}
	if !bytes.Equal(rest, body) {
		t.Fatalf("expected body %q, got %q", body, rest)
	}
}

func TestControlEnvelopeRoundTrip(t *testing.T) {
	env := controlEnvelope{
		Kind: controlHello,
		Hello: &routing.HelloBeacon{
			NodeID:   "node-1",
			NodeType: routing.NodeTypeFull,
		},
	}
	frame, err := encodeControlFrame(env)
	if err != nil {
		t.Fatalf("encodeControlFrame: %v", err)
	}
	if frame[0] != frameTagControl {
		t.Fatalf("expected control tag prefix")
	}
	decoded, err := decodeControlFrame(frame[1:])
	if err != nil {
		t.Fatalf("decodeControlFrame: %v", err)
	}
	if decoded.Kind != controlHello || decoded.Hello == nil || decoded.Hello.NodeID != "node-1" {
		t.Fatalf("unexpected round-tripped envelope: %+v", decoded)
	}
}

func TestPriorityForFeeThresholds(t *testing.T) {
	n := testNode(t, "node-1", &recordingRadio{})
	n.cfg.HighFeeSatoshiPerByte = 10
	n.cfg.NormalFeeSatoshiPerByte = 2

	if got := n.priorityForFee(1000, 100); got != meshtransport.PriorityHigh {
		t.Fatalf("expected PriorityHigh, got %v", got)
	}
	if got := n.priorityForFee(300, 100); got != meshtransport.PriorityNormal {
		t.Fatalf("expected PriorityNormal, got %v", got)
	}
	if got := n.priorityForFee(10, 100); got != meshtransport.PriorityLow {
		t.Fatalf("expected PriorityLow, got %v", got)
	}
}

func TestBoostPriorityStopsAtCritical(t *testing.T) {
	if got := boostPriority(meshtransport.PriorityCritical); got != meshtransport.PriorityCritical {
		t.Fatalf("expected PriorityCritical to stay put, got %v", got)
	}
	if got := boostPriority(meshtransport.PriorityHigh); got != meshtransport.PriorityCritical {
		t.Fatalf("expected PriorityHigh to boost to PriorityCritical, got %v", got)
	}
}

// TestSendPumpReceiveRoundTrip exercises the full pipeline: enqueue via
// SendMessage, drain and fragment via Pump, reassemble and decompress via
// ReceiveMessage on the peer, without ever touching the network — the
// "network" here is a route pre-seeded directly into the routing table so
// the test isn't also exercising route discovery.
func TestSendPumpReceiveRoundTrip(t *testing.T) {
	now := time.Now()

	b := testNode(t, "node-b", &recordingRadio{})

	radioA := &recordingRadio{peer: b, from: "node-a"}
	a := testNode(t, "node-a", radioA)

	b.RegisterPeer("node-a", a.kp.PublicKey)
	a.RegisterPeer("node-b", b.kp.PublicKey)

	a.router.Table().Offer(routing.Entry{
		Destination: "node-b",
		NextHop:     "node-b",
		HopCount:    1,
		Sequence:    1,
		IsActive:    true,
		InstalledAt: now,
		LastRefresh: now,
	}, now)

	var received *MeshMessage
	b.OnMessageReceived = func(m MeshMessage) {
		msg := m
		received = &msg
	}

	payload := []byte(`{"kind":"utxo-transaction","id":"tx-1"}`)
	queueID, err := a.SendMessage(wrapCodec(codecNone, payload), meshtransport.MsgTypeUTXOTransaction, SendOptions{
		Destination:      "node-b",
		Priority:         meshtransport.PriorityNormal,
		DeliveryRequired: true,
	}, now)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if queueID == "" {
		t.Fatalf("expected non-empty queueId")
	}

	a.Pump(now)

	if len(radioA.frames) == 0 {
		t.Fatalf("expected at least one transmitted frame")
	}
	if received == nil {
		t.Fatalf("expected peer to receive a reassembled message")
	}
	if !bytes.Equal(received.Payload, payload) {
		t.Fatalf("expected payload %q, got %q", payload, received.Payload)
	}
}

// TestRetransmissionRequestRecoversDroppedFragment drops one fragment of a
// three-fragment send on the air, confirms the receiver notices and asks for
// it back once its backoff window elapses, and confirms the sender's
// re-walk of n.outstanding actually re-emits that one fragment (spec.md §3,
// Testable Scenario 2: "receiver emits retransmission request after base
// backoff; sender re-emits fragment 1").
func TestRetransmissionRequestRecoversDroppedFragment(t *testing.T) {
	now := time.Now()

	radioB := &recordingRadio{}
	b := testNode(t, "node-b", radioB)

	radioA := &dropRadio{dropSeq: map[uint16]bool{1: true}}
	a := testNode(t, "node-a", radioA)

	radioA.peer, radioA.from = b, "node-a"
	radioB.peer, radioB.from = a, "node-b"

	b.RegisterPeer("node-a", a.kp.PublicKey)
	a.RegisterPeer("node-b", b.kp.PublicKey)

	a.router.Table().Offer(routing.Entry{
		Destination: "node-b",
		NextHop:     "node-b",
		HopCount:    1,
		Sequence:    1,
		IsActive:    true,
		InstalledAt: now,
		LastRefresh: now,
	}, now)

	payload := bytes.Repeat([]byte("x"), 400) // cap 180 -> 3 fragments
	_, err := a.SendMessage(wrapCodec(codecNone, payload), meshtransport.MsgTypeUTXOTransaction, SendOptions{
		Destination:      "node-b",
		Priority:         meshtransport.PriorityNormal,
		DeliveryRequired: true,
	}, now)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	a.Pump(now) // transmits fragments 0,1,2; fragment 1 is dropped on the air

	if b.arena.Len() != 1 {
		t.Fatalf("expected one in-progress reassembly session on b, got %d", b.arena.Len())
	}

	var received *MeshMessage
	b.OnMessageReceived = func(m MeshMessage) {
		msg := m
		received = &msg
	}

	// Past retransmitBase's backoff window: b's Pump notices the missing
	// fragment, emits a retransmission request, which a's Pump-independent
	// receiveControl handles synchronously by re-walking n.outstanding and
	// re-sending fragment 1 straight back.
	b.Pump(now.Add(2 * time.Second))

	if received == nil {
		t.Fatalf("expected b to reassemble the message after the retransmission round trip")
	}
	if !bytes.Equal(received.Payload, payload) {
		t.Fatalf("expected recovered payload to match original, got %d bytes", len(received.Payload))
	}
	if b.arena.Len() != 0 {
		t.Fatalf("expected the completed session to be removed from b's arena")
	}
}

func TestSendUTXOTransactionUsesFeeForPriority(t *testing.T) {
	n := testNode(t, "node-1", &recordingRadio{})
	tx := wire.CompressedUTXOTransaction{
		ID:  []byte{0x01},
		Fee: 50000,
		Inputs: []wire.UTXOInput{
			{OutputIndex: 0},
		},
		Outputs: []wire.UTXOOutput{
			{Amount: 1000, AddressID: 1},
		},
	}
	queueID, err := n.SendUTXOTransaction(tx, "node-2", false, true, time.Now())
	if err != nil {
		t.Fatalf("SendUTXOTransaction: %v", err)
	}
	if queueID == "" {
		t.Fatalf("expected non-empty queueId")
	}
	if n.queue.Size() != 1 {
		t.Fatalf("expected one queued message, got %d", n.queue.Size())
	}
	// 50000 sat over a protobuf-lite body of well under 100 bytes is far
	// above the default 10 sat/byte high-fee threshold.
	if msg, ok := n.queue.Peek(); !ok || msg.Priority != meshtransport.PriorityHigh {
		t.Fatalf("expected fee-derived PriorityHigh, got %+v", msg)
	}
}

func TestSendBlockAlwaysUsesProtobufLite(t *testing.T) {
	n := testNode(t, "node-1", &recordingRadio{})
	blk := wire.CompressedUTXOBlock{Index: 42}
	queueID, err := n.SendBlock(blk, "node-2", time.Now())
	if err != nil {
		t.Fatalf("SendBlock: %v", err)
	}
	if queueID == "" {
		t.Fatalf("expected non-empty queueId")
	}
	msg, ok := n.queue.Peek()
	if !ok {
		t.Fatalf("expected queued block message")
	}
	tag, _, err := unwrapCodec(msg.Payload)
	if err != nil {
		t.Fatalf("unwrapCodec: %v", err)
	}
	if tag != codecProtobufLite {
		t.Fatalf("expected codecProtobufLite tag, got %v", tag)
	}
}

func TestUpdateChainStateRefreshesAdvertisedState(t *testing.T) {
	n := testNode(t, "node-1", &recordingRadio{})
	now := time.Now()
	n.UpdateChainState(100, 0.5, now)
	if n.blockchainHeight != 100 || n.utxoCompleteness != 0.5 || !n.lastUTXOSync.Equal(now) {
		t.Fatalf("expected chain state to update, got height=%d completeness=%v lastSync=%v",
			n.blockchainHeight, n.utxoCompleteness, n.lastUTXOSync)
	}
}

func TestConnectDisconnectIdempotent(t *testing.T) {
	n := testNode(t, "node-1", &recordingRadio{})
	var events []ConnectionState
	n.OnConnectionChanged = func(e ConnectionEvent) { events = append(events, e.State) }

	now := time.Now()
	n.Connect(now)
	n.Connect(now)
	n.Disconnect(now)
	n.Disconnect(now)

	if len(events) != 2 || events[0] != Connected || events[1] != Disconnected {
		t.Fatalf("expected exactly one connect and one disconnect event, got %v", events)
	}
}
