package routing

import (
	"time"

	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
)

const (
	defaultMaxPathLength     = 15
	defaultMaxFloodTTL       = 10
	defaultRouteDiscoveryTTL = 30 * time.Second
	defaultHelloInterval     = 30 * time.Second
)

// Config bundles the routing knobs from spec.md §6.
type Config struct {
	MaxPathLength       int
	MaxFloodTTL         int
	FloodCacheSize      int
	RouteExpiryTime     time.Duration
	HoldDownTime        time.Duration
	MaxRoutingTableSize int
	RouteDiscoveryTimeout time.Duration
}

// DefaultConfig returns the spec's default routing parameters.
func DefaultConfig() Config {
	return Config{
		MaxPathLength:         defaultMaxPathLength,
		MaxFloodTTL:           defaultMaxFloodTTL,
		FloodCacheSize:        defaultFloodCacheSize,
		RouteExpiryTime:       defaultRouteExpiryTime,
		HoldDownTime:          defaultHoldDownTime,
		MaxRoutingTableSize:   defaultMaxRoutingTableSize,
		RouteDiscoveryTimeout: defaultRouteDiscoveryTTL,
	}
}

// pendingDiscovery tracks one outstanding discoverRoute call awaiting a
// RouteReply.
type pendingDiscovery struct {
	destination string
	sequence    uint64
	startedAt   time.Time
	deadline    time.Time
}

// Router owns the route table, flood cache, and this node's sequence
// counter, and implements the discovery/forward/reply state machine from
// spec.md §4.G.
type Router struct {
	selfID string
	cfg    Config
	crypto meshcrypto.Provider
	kp     meshcrypto.KeyPair

	table      *Table
	floods     *FloodCache
	sequence   uint64
	pending    map[string]*pendingDiscovery // destination -> discovery
	neighbours map[string]time.Time         // neighbour id -> last hello seen
	originSeq  map[string]uint64            // originator -> highest RouteRequest sequence seen

	OnRouteFound func(dest string, entry Entry)
	OnNoRoute    func(dest string)
}

// NewRouter returns a router for selfID using cfg (zero fields fall back to
// DefaultConfig's values).
func NewRouter(selfID string, cfg Config, crypto meshcrypto.Provider, kp meshcrypto.KeyPair) *Router {
	d := DefaultConfig()
	if cfg.MaxPathLength <= 0 {
		cfg.MaxPathLength = d.MaxPathLength
	}
	if cfg.MaxFloodTTL <= 0 {
		cfg.MaxFloodTTL = d.MaxFloodTTL
	}
	if cfg.FloodCacheSize <= 0 {
		cfg.FloodCacheSize = d.FloodCacheSize
	}
	if cfg.RouteExpiryTime <= 0 {
		cfg.RouteExpiryTime = d.RouteExpiryTime
	}
	if cfg.HoldDownTime <= 0 {
		cfg.HoldDownTime = d.HoldDownTime
	}
	if cfg.MaxRoutingTableSize <= 0 {
		cfg.MaxRoutingTableSize = d.MaxRoutingTableSize
	}
	if cfg.RouteDiscoveryTimeout <= 0 {
		cfg.RouteDiscoveryTimeout = d.RouteDiscoveryTimeout
	}
	return &Router{
		selfID:     selfID,
		cfg:        cfg,
		crypto:     crypto,
		kp:         kp,
		table:      NewTable(cfg.RouteExpiryTime, cfg.HoldDownTime, cfg.MaxRoutingTableSize),
		floods:     NewFloodCache(cfg.FloodCacheSize),
		pending:    make(map[string]*pendingDiscovery),
		neighbours: make(map[string]time.Time),
		originSeq:  make(map[string]uint64),
	}
}

// Table exposes the underlying route table for observability.
func (r *Router) Table() *Table { return r.table }

// nextSequence returns a fresh, strictly increasing sequence number for
// this node's own originated messages.
func (r *Router) nextSequence() uint64 {
	r.sequence++
	return r.sequence
}

// DiscoverRoute builds and signs a RouteRequest for dest and registers a
// pending discovery, returning the request for the caller to flood onto
// the radio (spec.md §4.G "Route discovery"). If a fresh, unexpired route
// is already known, it is returned immediately and no request is built.
func (r *Router) DiscoverRoute(dest string, caps Capabilities, now time.Time) (*RouteRequest, Entry, bool, error) {
	if e, ok := r.table.Best(dest, now); ok {
		return nil, e, true, nil
	}
	req := &RouteRequest{
		Originator:   r.selfID,
		Destination:  dest,
		Sequence:     r.nextSequence(),
		Path:         []string{r.selfID},
		TTL:          r.cfg.MaxFloodTTL,
		Capabilities: caps,
	}
	if err := req.Sign(r.crypto, r.kp); err != nil {
		return nil, Entry{}, false, err
	}
	r.pending[dest] = &pendingDiscovery{
		destination: dest,
		sequence:    req.Sequence,
		startedAt:   now,
		deadline:    now.Add(r.cfg.RouteDiscoveryTimeout),
	}
	r.floods.ShouldForwardFlood(req.Originator, req.Sequence, now)
	return req, Entry{}, false, nil
}

// HandleRouteRequest applies the forwarding rules from spec.md §4.G step
// (i)-(v): loop check, flood-cache dedup, freshness, TTL decrement, and
// append-self. Returns the (possibly destination-local) reply to send
// back if this node can answer, and/or the forwarded request to
// rebroadcast; a nil reply or forward means that message is not sent.
func (r *Router) HandleRouteRequest(req RouteRequest, publicKey []byte, selfNodeType NodeType, selfHeight uint64, selfUTXOCompleteness float64, lastSync time.Time, services []string, now time.Time) (reply *RouteReply, forward *RouteRequest, err error) {
	ok, err := req.Verify(r.crypto, publicKey)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, meshtransport.New(meshtransport.InvalidSignature, "routing.HandleRouteRequest", nil)
	}
	if req.ContainsSelf(r.selfID) {
		return nil, nil, meshtransport.New(meshtransport.RouteLoop, "routing.HandleRouteRequest", nil)
	}
	if len(req.Path) >= r.cfg.MaxPathLength {
		return nil, nil, meshtransport.New(meshtransport.TTLExceeded, "routing.HandleRouteRequest", nil)
	}
	if known, ok := r.originSeq[req.Originator]; ok && req.Sequence < known {
		return nil, nil, nil
	}
	if !r.floods.ShouldForwardFlood(req.Originator, req.Sequence, now) {
		return nil, nil, nil
	}
	if cur, ok := r.originSeq[req.Originator]; !ok || req.Sequence > cur {
		r.originSeq[req.Originator] = req.Sequence
	}
	if req.TTL <= 0 {
		return nil, nil, meshtransport.New(meshtransport.TTLExceeded, "routing.HandleRouteRequest", nil)
	}

	if req.Destination == r.selfID && req.Capabilities.Satisfies(selfNodeType, selfUTXOCompleteness, selfHeight) {
		reversed := append([]string{r.selfID}, reverse(req.Path)...)
		rep := &RouteReply{
			Originator:          req.Originator,
			Destination:         r.selfID,
			Path:                reversed,
			NodeType:            selfNodeType,
			UTXOSetCompleteness: selfUTXOCompleteness,
			BlockchainHeight:    selfHeight,
			LastUTXOSync:        lastSync,
			Services:            services,
			Sequence:            r.nextSequence(),
		}
		if err := rep.Sign(r.crypto, r.kp); err != nil {
			return nil, nil, err
		}
		return rep, nil, nil
	}

	fwd := req
	fwd.TTL--
	fwd.Path = append(append([]string(nil), req.Path...), r.selfID)
	if err := fwd.Sign(r.crypto, r.kp); err != nil {
		return nil, nil, err
	}
	return nil, &fwd, nil
}

// HandleRouteReply installs a route entry for the hop this reply arrived
// from and returns the next hop to forward the reply toward, if any
// (spec.md §4.G "replies travel the reverse path; each hop inserts a route
// entry").
func (r *Router) HandleRouteReply(rep RouteReply, receivedFrom string, publicKey []byte, now time.Time) (nextHop string, shouldForward bool, err error) {
	ok, err := rep.Verify(r.crypto, publicKey)
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, meshtransport.New(meshtransport.InvalidSignature, "routing.HandleRouteReply", nil)
	}

	hopCount := pathIndex(rep.Path, r.selfID)
	if hopCount < 0 {
		hopCount = len(rep.Path)
	}
	r.table.Offer(Entry{
		Destination:         rep.Destination,
		NextHop:             receivedFrom,
		HopCount:            hopCount,
		Sequence:            rep.Sequence,
		NodeType:            rep.NodeType,
		UTXOSetCompleteness: rep.UTXOSetCompleteness,
		BlockchainHeight:    rep.BlockchainHeight,
		LinkQuality:         1.0,
		LastUTXOSync:        rep.LastUTXOSync,
	}, now)

	if rep.Originator == r.selfID {
		delete(r.pending, rep.Destination)
	}
	if entry, found := r.table.Best(rep.Destination, now); found && r.OnRouteFound != nil {
		r.OnRouteFound(rep.Destination, entry)
	}

	hop, ok := rep.NextHop(r.selfID)
	return hop, ok, nil
}

// HandleRouteError removes every route broken by the link and applies a
// hold-down, returning the affected destinations (spec.md §4.G
// "Route errors").
func (r *Router) HandleRouteError(rerr RouteError, publicKey []byte, now time.Time) ([]string, error) {
	ok, err := rerr.Verify(r.crypto, publicKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, meshtransport.New(meshtransport.InvalidSignature, "routing.HandleRouteError", nil)
	}
	return r.table.RemoveLink(rerr.To, rerr.Sequence, now), nil
}

// SweepPendingDiscoveries surfaces NoRoute for any discovery whose timeout
// has elapsed, returning the destinations that failed.
func (r *Router) SweepPendingDiscoveries(now time.Time) []string {
	var failed []string
	for dest, p := range r.pending {
		if now.After(p.deadline) {
			delete(r.pending, dest)
			failed = append(failed, dest)
			if r.OnNoRoute != nil {
				r.OnNoRoute(dest)
			}
		}
	}
	return failed
}

// BuildHello constructs and signs this node's periodic hello beacon
// (spec.md §4.G "Hello beacons").
func (r *Router) BuildHello(nodeType NodeType, height uint64, completeness float64, services []string) (*HelloBeacon, error) {
	neighbours := make([]string, 0, len(r.neighbours))
	for n := range r.neighbours {
		neighbours = append(neighbours, n)
	}
	h := &HelloBeacon{
		NodeID:              r.selfID,
		NodeType:            nodeType,
		BlockchainHeight:    height,
		UTXOSetCompleteness: completeness,
		Services:            services,
		Neighbours:          neighbours,
	}
	if err := h.Sign(r.crypto, r.kp); err != nil {
		return nil, err
	}
	return h, nil
}

// ReceiveHello records the sender as a fresh neighbour (spec.md §4.G
// "neighbours update freshness").
func (r *Router) ReceiveHello(h HelloBeacon, publicKey []byte, now time.Time) error {
	ok, err := h.Verify(r.crypto, publicKey)
	if err != nil {
		return err
	}
	if !ok {
		return meshtransport.New(meshtransport.InvalidSignature, "routing.ReceiveHello", nil)
	}
	r.neighbours[h.NodeID] = now
	return nil
}

// PruneStaleNeighbours drops neighbours not heard from within maxAge.
func (r *Router) PruneStaleNeighbours(now time.Time, maxAge time.Duration) {
	for id, last := range r.neighbours {
		if now.Sub(last) > maxAge {
			delete(r.neighbours, id)
		}
	}
}

func reverse(path []string) []string {
	out := make([]string, len(path))
	for i, p := range path {
		out[len(path)-1-i] = p
	}
	return out
}

func pathIndex(path []string, id string) int {
	for i, p := range path {
		if p == id {
			return i
		}
	}
	return -1
}
