// Package meshnode is the orchestrator that ties compression, the
// priority queue, the duty-cycle scheduler, fragmentation, reliable
// delivery, and routing together behind the single public mesh-node API
// (spec.md §4.H). Its loop is the only mutator of the shared priority
// queue, duty-cycle ledger, routing table, flood cache, and reassembly
// arena (spec.md §5 "Shared resources") — grounded on the teacher's
// `node/p2p/peer.go` Peer.Run single-writer event loop, generalized from
// one peer connection to the whole mesh node's command/tick loop.
package meshnode

import (
	"time"

	"github.com/sirupsen/logrus"

	"rubin.dev/mesh/internal/config"
	"rubin.dev/mesh/internal/delivery"
	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/fragment"
	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
	"rubin.dev/mesh/internal/priority"
	"rubin.dev/mesh/internal/routing"
	"rubin.dev/mesh/internal/store"
	"rubin.dev/mesh/internal/wire"
)

// helloInterval is how often Pump re-broadcasts this node's hello beacon
// (spec.md §4.G "Hello beacons", default 30s).
const helloInterval = 30 * time.Second

// Radio is the narrow on-air transport the orchestrator drives. The
// physical LoRa driver is an external collaborator (spec.md §1); this is
// the only surface this package consumes from it.
type Radio interface {
	Transmit(frame []byte) error
}

// ConnectionState is the node's connect/disconnect lifecycle state
// (spec.md §4.H "connect()/disconnect(); idempotent; transitions
// event-signalled").
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connected
)

func (s ConnectionState) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// ConnectionEvent fires once per actual connect/disconnect transition
// (idempotent calls that don't change state fire nothing).
type ConnectionEvent struct {
	State ConnectionState
	At    time.Time
}

// MeshMessage is a fully reassembled, decompressed inbound payload
// (spec.md §4.H "receiveMessage... returns a complete MeshMessage only
// when a reassembled payload is ready").
type MeshMessage struct {
	MessageID  [16]byte
	MsgType    meshtransport.MessageType
	Priority   meshtransport.MessagePriority
	Origin     string
	Payload    []byte
	ReceivedAt time.Time
}

// Config bundles everything one running node needs to be constructed.
// Loading it from disk/flags/env is out of scope (spec.md §1); cmd/meshnode
// is the thin CLI that fills it in from flags and calls NewNode.
type Config struct {
	SelfID     string
	Crypto     meshcrypto.Provider
	KeyPair    meshcrypto.KeyPair
	Transport  config.Config
	LoRaParams dutycycle.LoRaParams
	Frequency  float64
	Radio      Radio
	Store      store.KV
	Dictionary *wire.DictionaryTable
	Logger     *logrus.Logger

	// NodeType/BlockchainHeight/UTXOCompleteness/Services are this node's
	// own advertised routing state, echoed into every RouteReply and
	// HelloBeacon it originates (spec.md §4.G).
	NodeType         routing.NodeType
	BlockchainHeight uint64
	UTXOCompleteness float64
	Services         []string
}

// Node is one running mesh transport endpoint. Every field below is
// mutated only from the orchestrator's own methods (connect/disconnect,
// Send*, ReceiveMessage, Pump); there is no background goroutine and no
// internal locking, matching the single-writer cooperative model
// (spec.md §5).
type Node struct {
	selfID     string
	crypto     meshcrypto.Provider
	kp         meshcrypto.KeyPair
	cfg        config.Config
	loraParams dutycycle.LoRaParams
	frequency  float64
	radio      Radio
	kv         store.KV
	dict       *wire.DictionaryTable
	log        logrus.FieldLogger

	queue     *priority.Queue
	scheduler *dutycycle.Scheduler
	arena     *fragment.Arena
	delivery  *delivery.Manager
	router    *routing.Router

	// peers is the node's known-public-key directory. Identity
	// distribution (a mesh PKI) is out of scope (spec.md §1); the
	// embedder populates it via RegisterPeer, e.g. from the UTXO chain's
	// validator set. Route-request hops are authenticated against the
	// immediate forwarder's key (each hop re-signs, see routing.Router);
	// route replies and hello beacons are authenticated against their
	// original signer's key since they are relayed unmodified.
	peers map[string][]byte

	// destinations remembers the addressee for a queued message, since
	// priority.Message intentionally carries no routing fields (spec.md
	// §4.D stays decoupled from §4.G).
	destinations map[string]string

	// deliveryRequired remembers whether a queued message needs guaranteed
	// (acked/retried) delivery, for the same reason destinations does:
	// priority.Message carries no delivery-semantics field of its own.
	deliveryRequired map[string]bool

	// outstanding tracks the unsent/partially-sent fragments of a message
	// currently held back by the duty-cycle scheduler or awaiting route
	// discovery, keyed by queueId.
	outstanding map[string]*outboundState

	state       ConnectionState
	lastHello   time.Time
	lastPersist time.Time

	nodeType         routing.NodeType
	blockchainHeight uint64
	utxoCompleteness float64
	services         []string
	lastUTXOSync     time.Time

	OnConnectionChanged   func(ConnectionEvent)
	OnMessageReceived     func(MeshMessage)
	OnNoRoute             func(destination string)
	OnQueueOverflow       func(evictedQueueID string)
	OnCompressionFallback func(queueID string, err error)
}

// outboundState is the in-progress state of one dequeued message working
// its way through route discovery, fragmentation, and transmission.
type outboundState struct {
	msg              *priority.Message
	destination      string
	deliveryRequired bool
	fragments        []*fragment.Fragment
	nextFragment     int
	sentTracker      *fragment.SentTracker
	awaitingRoute    bool
}

// NewNode validates cfg and wires every component together. The only
// synchronous failure is ConfigInvalid (spec.md §7).
func NewNode(cfg Config) (*Node, error) {
	if err := cfg.Transport.Validate(); err != nil {
		return nil, err
	}
	if cfg.SelfID == "" {
		return nil, meshtransport.New(meshtransport.ConfigInvalid, "meshnode.NewNode", errRequired("selfId"))
	}
	if cfg.Radio == nil {
		return nil, meshtransport.New(meshtransport.ConfigInvalid, "meshnode.NewNode", errRequired("radio"))
	}
	if cfg.Crypto == nil {
		cfg.Crypto = meshcrypto.DefaultProvider{}
	}
	if cfg.Dictionary == nil {
		cfg.Dictionary = wire.DefaultDictionary
	}
	var log logrus.FieldLogger = cfg.Logger
	if cfg.Logger == nil {
		l := logrus.New()
		log = l
	}

	dutyCfg := dutycycle.Config{
		Region:                      cfg.Transport.Region.Code,
		MaxDutyCyclePercentOverride: cfg.Transport.MaxDutyCyclePercentOverride,
		TrackingWindowHours:         float64(cfg.Transport.TrackingWindowHours),
		MaxTransmissionTimeMs:       cfg.Transport.MaxTransmissionTimeMs,
		EmergencyOverrideEnabled:    cfg.Transport.EmergencyOverrideEnabled,
		StrictComplianceMode:        cfg.Transport.StrictComplianceMode,
	}
	scheduler, err := dutycycle.NewScheduler(dutyCfg, cfg.LoRaParams)
	if err != nil {
		return nil, err
	}

	queueCfg := priority.CapacityConfig{
		MaxTotalMessages:         cfg.Transport.QueueCapacity.MaxTotalMessages,
		MemoryLimitBytes:         cfg.Transport.QueueCapacity.MemoryLimitBytes,
		CapacityByPriority:       cfg.Transport.QueueCapacity.CapacityByPriority,
		EmergencyCapacityReserve: cfg.Transport.QueueCapacity.EmergencyCapacityReserve,
	}

	n := &Node{
		selfID:     cfg.SelfID,
		crypto:     cfg.Crypto,
		kp:         cfg.KeyPair,
		cfg:        cfg.Transport,
		loraParams: cfg.LoRaParams,
		frequency:  cfg.Frequency,
		radio:      cfg.Radio,
		kv:         cfg.Store,
		dict:       cfg.Dictionary,
		log:        log.WithField("node", cfg.SelfID),

		queue:     priority.NewQueue(queueCfg),
		scheduler: scheduler,
		arena:     fragment.NewArena(0, fragment.OriginQuota{}),
		delivery: delivery.NewManager(1000, 5, 60*time.Second),
		router: routing.NewRouter(cfg.SelfID, routing.Config{
			MaxPathLength:         cfg.Transport.MaxPathLength,
			MaxFloodTTL:           cfg.Transport.MaxFloodTTL,
			FloodCacheSize:        cfg.Transport.FloodCacheSize,
			RouteExpiryTime:       cfg.Transport.RouteExpiryTime,
			HoldDownTime:          cfg.Transport.HoldDownTime,
			MaxRoutingTableSize:   cfg.Transport.MaxRoutingTableSize,
			RouteDiscoveryTimeout: cfg.Transport.RouteDiscoveryTimeout,
		}, cfg.Crypto, cfg.KeyPair),

		peers:            make(map[string][]byte),
		destinations:     make(map[string]string),
		deliveryRequired: make(map[string]bool),
		outstanding:      make(map[string]*outboundState),

		nodeType:         cfg.NodeType,
		blockchainHeight: cfg.BlockchainHeight,
		utxoCompleteness: cfg.UTXOCompleteness,
		services:         cfg.Services,
	}
	n.wireComponentLogging()
	n.restore(time.Now())
	return n, nil
}

// wireComponentLogging subscribes to every component's typed event
// callbacks and logs them, centralizing the ambient logging stack in the
// orchestrator rather than threading a logger through every leaf
// component's constructor (each leaf already exposes its state changes as
// typed events for exactly this purpose).
func (n *Node) wireComponentLogging() {
	n.scheduler.OnWarning = func(e meshtransport.DutyCycleWarningEvent) {
		n.log.WithFields(logrus.Fields{"band": e.Band, "utilization": e.Utilization, "threshold": e.Threshold}).Warn("duty cycle approaching limit")
	}
	n.scheduler.OnViolation = func(e meshtransport.DutyCycleViolationEvent) {
		n.log.WithFields(logrus.Fields{"band": e.Band, "utilization": e.Utilization, "forced": e.Forced}).Warn("duty cycle limit exceeded")
	}
	n.delivery.OnDelivered = func(e meshtransport.DeliveredEvent) {
		n.log.WithFields(logrus.Fields{"messageId": e.MessageID, "peer": e.NodeID, "attempts": e.Attempts}).Debug("message delivered")
	}
	n.delivery.OnRetry = func(e meshtransport.RetryEvent) {
		n.log.WithFields(logrus.Fields{"messageId": e.MessageID, "peer": e.NodeID, "attempt": e.Attempt}).Debug("scheduling retry")
	}
	n.delivery.OnFailed = func(e meshtransport.FailedEvent) {
		n.log.WithFields(logrus.Fields{"messageId": e.MessageID, "peer": e.NodeID, "attempts": e.Attempts, "reason": e.Reason}).Warn("message moved to dead-letter queue")
		for queueID, ob := range n.outstanding {
			if ob.sentTracker != nil && wire.HexEncode(ob.sentTracker.MessageID[:]) == e.MessageID {
				delete(n.outstanding, queueID)
			}
		}
	}
	n.delivery.OnCircuitStateChanged = func(e meshtransport.CircuitStateChangedEvent) {
		n.log.WithFields(logrus.Fields{"peer": e.PeerID, "from": e.From, "to": e.To}).Info("circuit breaker state changed")
	}
	n.router.OnRouteFound = func(dest string, e routing.Entry) {
		n.log.WithFields(logrus.Fields{"destination": dest, "nextHop": e.NextHop, "hopCount": e.HopCount}).Info("route found")
	}
	n.router.OnNoRoute = func(dest string) {
		n.log.WithField("destination", dest).Warn("route discovery timed out")
		if n.OnNoRoute != nil {
			n.OnNoRoute(dest)
		}
	}
}

// RegisterPeer records a known node's public key, required before any of
// its signed control/fragment traffic can be verified.
func (n *Node) RegisterPeer(nodeID string, publicKey []byte) {
	n.peers[nodeID] = append([]byte(nil), publicKey...)
}

// State reports the current connection lifecycle state.
func (n *Node) State() ConnectionState { return n.state }

// Connect transitions the node to Connected, firing OnConnectionChanged
// only if it was not already connected (idempotent, spec.md §4.H).
func (n *Node) Connect(now time.Time) {
	if n.state == Connected {
		return
	}
	n.state = Connected
	n.log.Info("connected")
	if n.OnConnectionChanged != nil {
		n.OnConnectionChanged(ConnectionEvent{State: Connected, At: now})
	}
}

// Disconnect transitions the node to Disconnected, firing
// OnConnectionChanged only if it was connected (idempotent, spec.md §4.H).
func (n *Node) Disconnect(now time.Time) {
	if n.state == Disconnected {
		return
	}
	n.state = Disconnected
	n.log.Info("disconnected")
	if n.OnConnectionChanged != nil {
		n.OnConnectionChanged(ConnectionEvent{State: Disconnected, At: now})
	}
}

// UpdateChainState refreshes the node's advertised blockchain height and
// UTXO-set completeness, consulted by every RouteReply/HelloBeacon this node
// originates afterward (spec.md §4.G). The chain itself is an external
// collaborator (spec.md §1); this is how it informs the mesh layer of
// progress.
func (n *Node) UpdateChainState(height uint64, completeness float64, lastSync time.Time) {
	n.blockchainHeight = height
	n.utxoCompleteness = completeness
	n.lastUTXOSync = lastSync
}

type configErr string

func (e configErr) Error() string { return string(e) }

func errRequired(field string) error { return configErr(field + " is required") }
