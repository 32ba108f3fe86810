// Package routing implements AODV-style on-demand route discovery biased
// toward full nodes, signed path vectors, sequence-number freshness, and
// TTL-bounded controlled flooding (spec.md §4.G).
package routing

import (
	"time"

	"rubin.dev/mesh/internal/meshcrypto"
)

// NodeType orders route preference: full outranks light, mining sits
// between the two for tie-break purposes (spec.md §3 Route).
type NodeType int

const (
	NodeTypeLight NodeType = iota
	NodeTypeMining
	NodeTypeFull
)

func (t NodeType) String() string {
	switch t {
	case NodeTypeFull:
		return "full"
	case NodeTypeMining:
		return "mining"
	default:
		return "light"
	}
}

// Capabilities constrains which nodes may answer a RouteRequest.
type Capabilities struct {
	MinNodeType         NodeType
	MinUTXOCompleteness float64
	MinBlockchainHeight uint64
}

// Satisfies reports whether a replying node's advertised state meets c.
func (c Capabilities) Satisfies(nodeType NodeType, utxoCompleteness float64, height uint64) bool {
	return nodeType >= c.MinNodeType &&
		utxoCompleteness >= c.MinUTXOCompleteness &&
		height >= c.MinBlockchainHeight
}

// RouteRequest is controlled-flooded to discover a path to Destination
// (spec.md §4.G "Route discovery"). Path is the vector of node ids visited
// so far, starting with the originator.
type RouteRequest struct {
	Originator   string
	Destination  string
	Sequence     uint64
	Path         []string
	TTL          int
	Capabilities Capabilities
	SigAlgorithm meshcrypto.Algorithm
	Signature    []byte
}

// signedBytes returns the canonical bytes a RouteRequest's signature covers
// (everything but the signature itself).
func (r RouteRequest) signedBytes() []byte {
	var b []byte
	b = append(b, []byte(r.Originator)...)
	b = append(b, 0)
	b = append(b, []byte(r.Destination)...)
	b = append(b, 0)
	b = appendUint64(b, r.Sequence)
	for _, hop := range r.Path {
		b = append(b, []byte(hop)...)
		b = append(b, 0)
	}
	b = appendUint64(b, uint64(r.TTL))
	b = appendUint64(b, uint64(r.Capabilities.MinNodeType))
	b = appendUint64(b, uint64(r.Capabilities.MinBlockchainHeight))
	return b
}

// Sign signs the request in place using kp.
func (r *RouteRequest) Sign(crypto meshcrypto.Provider, kp meshcrypto.KeyPair) error {
	sig, err := crypto.Sign(kp, r.signedBytes())
	if err != nil {
		return err
	}
	r.SigAlgorithm = kp.Algorithm
	r.Signature = sig
	return nil
}

// Verify checks the request's signature under publicKey.
func (r RouteRequest) Verify(crypto meshcrypto.Provider, publicKey []byte) (bool, error) {
	return crypto.Verify(r.SigAlgorithm, publicKey, r.signedBytes(), r.Signature)
}

// ContainsSelf reports whether id already appears in the path (loop check).
func (r RouteRequest) ContainsSelf(id string) bool {
	for _, hop := range r.Path {
		if hop == id {
			return true
		}
	}
	return false
}

// RouteReply answers a RouteRequest once it reaches a capable destination,
// carrying the reversed path and the replier's advertised state.
type RouteReply struct {
	Originator          string
	Destination         string
	Path                []string // destination -> ... -> originator
	NodeType            NodeType
	UTXOSetCompleteness float64
	BlockchainHeight    uint64
	LastUTXOSync        time.Time
	Services            []string
	Sequence            uint64
	SigAlgorithm        meshcrypto.Algorithm
	Signature           []byte
}

func (r RouteReply) signedBytes() []byte {
	var b []byte
	b = append(b, []byte(r.Originator)...)
	b = append(b, 0)
	b = append(b, []byte(r.Destination)...)
	b = append(b, 0)
	for _, hop := range r.Path {
		b = append(b, []byte(hop)...)
		b = append(b, 0)
	}
	b = appendUint64(b, uint64(r.NodeType))
	b = appendUint64(b, uint64(r.BlockchainHeight))
	b = appendUint64(b, r.Sequence)
	return b
}

// Sign signs the reply in place using kp.
func (r *RouteReply) Sign(crypto meshcrypto.Provider, kp meshcrypto.KeyPair) error {
	sig, err := crypto.Sign(kp, r.signedBytes())
	if err != nil {
		return err
	}
	r.SigAlgorithm = kp.Algorithm
	r.Signature = sig
	return nil
}

// Verify checks the reply's signature under publicKey.
func (r RouteReply) Verify(crypto meshcrypto.Provider, publicKey []byte) (bool, error) {
	return crypto.Verify(r.SigAlgorithm, publicKey, r.signedBytes(), r.Signature)
}

// NextHop returns the neighbour this reply should be forwarded to next
// while retracing Path, or ok=false once it has reached the originator.
func (r RouteReply) NextHop(currentNode string) (hop string, ok bool) {
	for i, n := range r.Path {
		if n == currentNode && i+1 < len(r.Path) {
			return r.Path[i+1], true
		}
	}
	return "", false
}

// RouteError reports a broken link and the destinations no longer
// reachable through it (spec.md §4.G "Route errors").
type RouteError struct {
	From         string
	To           string
	Unreachable  []string
	Sequence     uint64
	SigAlgorithm meshcrypto.Algorithm
	Signature    []byte
}

func (r RouteError) signedBytes() []byte {
	var b []byte
	b = append(b, []byte(r.From)...)
	b = append(b, 0)
	b = append(b, []byte(r.To)...)
	b = append(b, 0)
	for _, d := range r.Unreachable {
		b = append(b, []byte(d)...)
		b = append(b, 0)
	}
	b = appendUint64(b, r.Sequence)
	return b
}

// Sign signs the error in place using kp.
func (r *RouteError) Sign(crypto meshcrypto.Provider, kp meshcrypto.KeyPair) error {
	sig, err := crypto.Sign(kp, r.signedBytes())
	if err != nil {
		return err
	}
	r.SigAlgorithm = kp.Algorithm
	r.Signature = sig
	return nil
}

// Verify checks the error's signature under publicKey.
func (r RouteError) Verify(crypto meshcrypto.Provider, publicKey []byte) (bool, error) {
	return crypto.Verify(r.SigAlgorithm, publicKey, r.signedBytes(), r.Signature)
}

// HelloBeacon is broadcast every helloInterval (default 30s) advertising a
// node's type, height, completeness, and known neighbours (spec.md §4.G
// "Hello beacons").
type HelloBeacon struct {
	NodeID              string
	NodeType            NodeType
	BlockchainHeight    uint64
	UTXOSetCompleteness float64
	Services            []string
	Neighbours          []string
	SigAlgorithm        meshcrypto.Algorithm
	Signature           []byte
}

func (h HelloBeacon) signedBytes() []byte {
	var b []byte
	b = append(b, []byte(h.NodeID)...)
	b = append(b, 0)
	b = appendUint64(b, uint64(h.NodeType))
	b = appendUint64(b, h.BlockchainHeight)
	for _, n := range h.Neighbours {
		b = append(b, []byte(n)...)
		b = append(b, 0)
	}
	return b
}

// Sign signs the beacon in place using kp.
func (h *HelloBeacon) Sign(crypto meshcrypto.Provider, kp meshcrypto.KeyPair) error {
	sig, err := crypto.Sign(kp, h.signedBytes())
	if err != nil {
		return err
	}
	h.SigAlgorithm = kp.Algorithm
	h.Signature = sig
	return nil
}

// Verify checks the beacon's signature under publicKey.
func (h HelloBeacon) Verify(crypto meshcrypto.Provider, publicKey []byte) (bool, error) {
	return crypto.Verify(h.SigAlgorithm, publicKey, h.signedBytes(), h.Signature)
}

func appendUint64(b []byte, v uint64) []byte {
	var tmp [8]byte
	for i := 0; i < 8; i++ {
		tmp[i] = byte(v >> (8 * i))
	}
	return append(b, tmp[:]...)
}
