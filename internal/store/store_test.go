package store

import (
	"testing"
	"time"

	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/fragment"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/priority"
	"rubin.dev/mesh/internal/routing"
)

func TestBoltStorePutGetDelete(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.Put(NamespaceRoutingTable, "k1", []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, ok, err := s.Get(NamespaceRoutingTable, "k1")
	if err != nil || !ok || string(v) != "v1" {
		t.Fatalf("get: v=%q ok=%v err=%v", v, ok, err)
	}
	if err := s.Delete(NamespaceRoutingTable, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := s.Get(NamespaceRoutingTable, "k1"); ok {
		t.Fatalf("expected key gone after delete")
	}
}

func TestBoltStoreForEach(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	s.Put(NamespacePriorityQueue, "a", []byte("1"))
	s.Put(NamespacePriorityQueue, "b", []byte("2"))

	seen := map[string]string{}
	err = s.ForEach(NamespacePriorityQueue, func(k string, v []byte) error {
		seen[k] = string(v)
		return nil
	})
	if err != nil {
		t.Fatalf("foreach: %v", err)
	}
	if seen["a"] != "1" || seen["b"] != "2" {
		t.Fatalf("unexpected contents: %v", seen)
	}
}

func TestRouteEntryRoundTrip(t *testing.T) {
	now := time.Now().Truncate(time.Nanosecond)
	e := routing.Entry{
		Destination: "Y", NextHop: "R", HopCount: 3, Sequence: 7,
		NodeType: routing.NodeTypeFull, UTXOSetCompleteness: 0.97,
		BlockchainHeight: 12345, LinkQuality: 0.8,
		LastUTXOSync: now, InstalledAt: now, LastRefresh: now, IsActive: true,
	}
	got, err := DecodeRouteEntry(EncodeRouteEntry(e))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Destination != e.Destination || got.NextHop != e.NextHop || got.Sequence != e.Sequence || got.HopCount != e.HopCount {
		t.Fatalf("round-trip mismatch: %+v != %+v", got, e)
	}
	if got.UTXOSetCompleteness != e.UTXOSetCompleteness || got.LinkQuality != e.LinkQuality {
		t.Fatalf("float fields mismatch: %+v != %+v", got, e)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	m := &priority.Message{
		Payload: []byte{1, 2, 3}, Priority: meshtransport.PriorityHigh,
		EmergencyFlag: true, Fee: 500, EstimatedSizeBytes: 250,
		InputCount: 1, OutputCount: 2, CreatedAt: time.Now(),
		TTL: 5 * time.Minute, RetryCount: 1, MaxRetries: 3,
		QueueID: "q-1", CompressionApplied: true,
		MsgType: meshtransport.MsgTypeUTXOTransaction, BlockHeight: 42,
	}
	got, err := DecodeMessage(EncodeMessage(m))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.QueueID != m.QueueID || got.Fee != m.Fee || got.Priority != m.Priority || !got.EmergencyFlag {
		t.Fatalf("round-trip mismatch: %+v != %+v", got, m)
	}
	if len(got.Payload) != 3 || got.Payload[2] != 3 {
		t.Fatalf("payload mismatch: %v", got.Payload)
	}
}

func TestTransmissionRecordRoundTrip(t *testing.T) {
	r := dutycycle.TransmissionRecord{StartMs: 1000, DurationMs: 250, Frequency: 868.1, PowerLevel: 14, MessageType: meshtransport.MsgTypeBlock}
	got, err := DecodeTransmissionRecord(EncodeTransmissionRecord(r))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != r {
		t.Fatalf("round-trip mismatch: %+v != %+v", got, r)
	}
}

func TestSessionSnapshotRoundTrip(t *testing.T) {
	now := time.Now()
	snap := fragment.SessionSnapshot{
		Origin: "peer-1", TotalFragments: 3,
		Received: []uint16{0, 2},
		Payloads: map[uint16][]byte{0: []byte("aaa"), 2: []byte("ccc")},
		CreatedAt: now, LastActivity: now, TimeoutAt: now.Add(time.Minute),
		State: fragment.StateWaitingRetransmission, Priority: meshtransport.PriorityNormal,
		MsgType: meshtransport.MsgTypeBlock,
	}
	got, err := DecodeSessionSnapshot(EncodeSessionSnapshot(snap))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Origin != snap.Origin || got.TotalFragments != snap.TotalFragments || got.State != snap.State {
		t.Fatalf("round-trip mismatch: %+v != %+v", got, snap)
	}
	if string(got.Payloads[0]) != "aaa" || string(got.Payloads[2]) != "ccc" {
		t.Fatalf("payload mismatch: %+v", got.Payloads)
	}

	restored := fragment.RestoreSession(got)
	if restored.Key() == "" {
		t.Fatalf("expected restored session to have a usable key")
	}
}
