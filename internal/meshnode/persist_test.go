package meshnode

import (
	"testing"
	"time"

	"rubin.dev/mesh/internal/config"
	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/routing"
	"rubin.dev/mesh/internal/store"
)

func testNodeWithStore(t *testing.T, selfID string, radio Radio, kv store.KV) *Node {
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
		Store:      kv,
		NodeType:   routing.NodeTypeFull,
	})
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return n
}

// TestPersistRestoreRoundTrip forces an immediate snapshot, rebuilds a fresh
// Node against the same store, and confirms the routing table and priority
// queue come back populated (spec.md §6 "Persisted state").
func TestPersistRestoreRoundTrip(t *testing.T) {
	kv, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer kv.Close()

	now := time.Now()
	n := testNodeWithStore(t, "node-1", &recordingRadio{}, kv)

	n.router.Table().Offer(routing.Entry{
		Destination: "node-9",
		NextHop:     "node-2",
		HopCount:    2,
		Sequence:    1,
		IsActive:    true,
		InstalledAt: now,
		LastRefresh: now,
	}, now)

	_, err = n.SendMessage([]byte("payload"), meshtransport.MsgTypeUTXOTransaction, SendOptions{
		Destination: "node-9",
		Priority:    meshtransport.PriorityNormal,
	}, now)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	// Bypass persistInterval's throttling; force a snapshot right now.
	n.lastPersist = time.Time{}
	n.persist(now)

	restored := testNodeWithStore(t, "node-1", &recordingRadio{}, kv)

	if _, ok := restored.router.Table().Best("node-9", now); !ok {
		t.Fatalf("expected restored node to have a route to node-9")
	}
	if restored.queue.Size() != 1 {
		t.Fatalf("expected restored queue to hold 1 message, got %d", restored.queue.Size())
	}
}
