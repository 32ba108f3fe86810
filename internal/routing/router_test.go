package routing

import (
	"testing"
	"time"

	"rubin.dev/mesh/internal/meshcrypto"
)

type testNode struct {
	id     string
	kp     meshcrypto.KeyPair
	router *Router
}

func newTestNode(t *testing.T, id string, crypto meshcrypto.Provider) *testNode {
	t.Helper()
	kp, err := crypto.GenerateKeyPair(meshcrypto.AlgorithmEd25519)
	if err != nil {
		t.Fatalf("generate key for %s: %v", id, err)
	}
	return &testNode{
		id:     id,
		kp:     kp,
		router: NewRouter(id, DefaultConfig(), crypto, kp),
	}
}

// TestRouteDiscoveryThreeHop models spec.md §8 scenario 5: X discovers Y
// through a relay R, Y replies, and X installs a route via R.
func TestRouteDiscoveryThreeHop(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	now := time.Now()

	x := newTestNode(t, "X", crypto)
	r := newTestNode(t, "R", crypto)
	y := newTestNode(t, "Y", crypto)

	req, _, cached, err := x.router.DiscoverRoute("Y", Capabilities{}, now)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if cached {
		t.Fatalf("expected no cached route yet")
	}

	reply, fwd, err := r.router.HandleRouteRequest(*req, x.kp.PublicKey, NodeTypeLight, 0, 0, now, nil, now)
	if err != nil {
		t.Fatalf("relay handle request: %v", err)
	}
	if reply != nil || fwd == nil {
		t.Fatalf("expected relay to forward, not answer directly")
	}

	yReply, yFwd, err := y.router.HandleRouteRequest(*fwd, r.kp.PublicKey, NodeTypeFull, 100, 1.0, now, nil, now)
	if err != nil {
		t.Fatalf("destination handle request: %v", err)
	}
	if yReply == nil || yFwd != nil {
		t.Fatalf("expected destination to answer, not forward")
	}

	// Reply retraces Y -> R -> X.
	nextHop, shouldForward, err := r.router.HandleRouteReply(*yReply, "Y", y.kp.PublicKey, now)
	if err != nil {
		t.Fatalf("relay handle reply: %v", err)
	}
	if !shouldForward || nextHop != "X" {
		t.Fatalf("expected relay to forward reply to X, got hop=%q forward=%v", nextHop, shouldForward)
	}

	_, shouldForward, err = x.router.HandleRouteReply(*yReply, "R", y.kp.PublicKey, now)
	if err != nil {
		t.Fatalf("x handle reply: %v", err)
	}
	if shouldForward {
		t.Fatalf("expected reply to terminate at originator X")
	}

	entry, ok := x.router.Table().Best("Y", now)
	if !ok || entry.NextHop != "R" {
		t.Fatalf("expected X to install a route to Y via R, got %+v ok=%v", entry, ok)
	}
}

func TestRouteRequestRejectsLoop(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	now := time.Now()
	a := newTestNode(t, "A", crypto)
	b := newTestNode(t, "B", crypto)

	req, _, _, err := a.router.DiscoverRoute("Z", Capabilities{}, now)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	// Forward once through B, then feed the forwarded request back to A,
	// which already appears in the path.
	_, fwd, err := b.router.HandleRouteRequest(*req, a.kp.PublicKey, NodeTypeLight, 0, 0, now, nil, now)
	if err != nil || fwd == nil {
		t.Fatalf("expected B to forward: %v", err)
	}
	loopback := *fwd
	loopback.Path = append(loopback.Path, "A")
	if err := loopback.Sign(crypto, b.kp); err != nil {
		t.Fatalf("sign loopback: %v", err)
	}
	_, _, err = a.router.HandleRouteRequest(loopback, b.kp.PublicKey, NodeTypeLight, 0, 0, now, nil, now)
	if err == nil {
		t.Fatalf("expected RouteLoop error when self already in path")
	}
}

func TestFloodSuppressedOnSecondSighting(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	now := time.Now()
	a := newTestNode(t, "A", crypto)
	b := newTestNode(t, "B", crypto)

	req, _, _, _ := a.router.DiscoverRoute("Z", Capabilities{}, now)

	_, fwd1, err := b.router.HandleRouteRequest(*req, a.kp.PublicKey, NodeTypeLight, 0, 0, now, nil, now)
	if err != nil || fwd1 == nil {
		t.Fatalf("expected first sighting to forward: %v", err)
	}
	reply, fwd2, err := b.router.HandleRouteRequest(*req, a.kp.PublicKey, NodeTypeLight, 0, 0, now, nil, now)
	if err != nil {
		t.Fatalf("second sighting: %v", err)
	}
	if reply != nil || fwd2 != nil {
		t.Fatalf("expected second sighting of same (originator,sequence) to be suppressed")
	}
}

func TestTTLExhaustionStopsForward(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	now := time.Now()
	a := newTestNode(t, "A", crypto)
	b := newTestNode(t, "B", crypto)

	req, _, _, _ := a.router.DiscoverRoute("Z", Capabilities{}, now)
	req.TTL = 0
	if err := req.Sign(crypto, a.kp); err != nil {
		t.Fatalf("resign: %v", err)
	}

	_, _, err := b.router.HandleRouteRequest(*req, a.kp.PublicKey, NodeTypeLight, 0, 0, now, nil, now)
	if err == nil {
		t.Fatalf("expected TTLExceeded when TTL already 0")
	}
}

func TestRouteErrorTriggersHoldDown(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	now := time.Now()
	node := newTestNode(t, "X", crypto)
	node.router.Table().Offer(Entry{Destination: "D", NextHop: "broken-peer", Sequence: 1}, now)

	rerr := RouteError{From: "X", To: "broken-peer", Unreachable: []string{"D"}, Sequence: 2}
	if err := rerr.Sign(crypto, node.kp); err != nil {
		t.Fatalf("sign: %v", err)
	}
	affected, err := node.router.HandleRouteError(rerr, node.kp.PublicKey, now)
	if err != nil {
		t.Fatalf("handle route error: %v", err)
	}
	if len(affected) != 1 || affected[0] != "D" {
		t.Fatalf("expected D reported unreachable, got %v", affected)
	}
	if _, ok := node.router.Table().Best("D", now); ok {
		t.Fatalf("expected route removed")
	}
}

func TestHelloBeaconUpdatesNeighbours(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	now := time.Now()
	a := newTestNode(t, "A", crypto)
	b := newTestNode(t, "B", crypto)

	hello, err := b.router.BuildHello(NodeTypeFull, 42, 1.0, []string{"utxo"})
	if err != nil {
		t.Fatalf("build hello: %v", err)
	}
	if err := a.router.ReceiveHello(*hello, b.kp.PublicKey, now); err != nil {
		t.Fatalf("receive hello: %v", err)
	}
	if _, ok := a.router.neighbours["B"]; !ok {
		t.Fatalf("expected B recorded as a neighbour of A")
	}
}
