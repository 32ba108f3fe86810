package meshnode

// Stats is a point-in-time snapshot of every component the orchestrator
// drives, for dashboards and health checks (spec.md §4.H "observability").
// It is assembled fresh on each call, never cached.
type Stats struct {
	ConnectionState  ConnectionState
	QueueDepth       int
	OutstandingSends int
	ActiveSessions   int
	RoutingTableSize int
	DeadLetterCount  int
	DutyCycleRecords int
	KnownPeers       int
}

// Stats reports the node's current load across every shared resource.
func (n *Node) Stats() Stats {
	return Stats{
		ConnectionState:  n.state,
		QueueDepth:       n.queue.Size(),
		OutstandingSends: len(n.outstanding),
		ActiveSessions:   n.arena.Len(),
		RoutingTableSize: n.router.Table().Size(),
		DeadLetterCount:  len(n.delivery.DeadLetters()),
		DutyCycleRecords: len(n.scheduler.Records()),
		KnownPeers:       len(n.peers),
	}
}
