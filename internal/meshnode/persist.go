package meshnode

import (
	"strconv"
	"time"

	"rubin.dev/mesh/internal/dutycycle"
	"rubin.dev/mesh/internal/fragment"
	"rubin.dev/mesh/internal/store"
)

// persistInterval bounds how often Pump writes a fresh snapshot through
// n.kv, the same fixed-tick shape as helloInterval (spec.md §6 "Persisted
// state").
const persistInterval = 1 * time.Minute

// persist snapshots the routing table, priority queue, duty-cycle ledger,
// and reassembly arena through n.kv, keyed by the namespaces store.KV
// recognises (spec.md §6). A node started without -datadir has a nil kv and
// this is a no-op.
func (n *Node) persist(now time.Time) {
	if n.kv == nil {
		return
	}
	if now.Sub(n.lastPersist) < persistInterval {
		return
	}
	n.lastPersist = now

	for i, e := range n.router.Table().AllEntries() {
		key := e.Destination + "|" + e.NextHop + "|" + strconv.Itoa(i)
		if err := n.kv.Put(store.NamespaceRoutingTable, key, store.EncodeRouteEntry(e)); err != nil {
			n.log.WithError(err).Warn("failed to persist routing table entry")
		}
	}
	for _, m := range n.queue.Messages() {
		if err := n.kv.Put(store.NamespacePriorityQueue, m.QueueID, store.EncodeMessage(m)); err != nil {
			n.log.WithError(err).Warn("failed to persist queued message")
		}
	}
	for i, r := range n.scheduler.Records() {
		if err := n.kv.Put(store.NamespaceTransmissionLog, strconv.Itoa(i), store.EncodeTransmissionRecord(r)); err != nil {
			n.log.WithError(err).Warn("failed to persist transmission record")
		}
	}
	for key, snap := range n.arena.Snapshot() {
		if err := n.kv.Put(store.NamespaceReassemblySession, key, store.EncodeSessionSnapshot(snap)); err != nil {
			n.log.WithError(err).Warn("failed to persist reassembly session")
		}
	}
}

// restore repopulates the routing table, priority queue, duty-cycle ledger,
// and reassembly arena from n.kv, once at construction, so a restarted node
// picks up where the last one left off instead of starting from nothing
// (spec.md §6 "Persisted state").
func (n *Node) restore(now time.Time) {
	if n.kv == nil {
		return
	}

	if err := n.kv.ForEach(store.NamespaceRoutingTable, func(_ string, v []byte) error {
		e, err := store.DecodeRouteEntry(v)
		if err != nil {
			return err
		}
		n.router.Table().Offer(e, now)
		return nil
	}); err != nil {
		n.log.WithError(err).Warn("failed to restore routing table")
	}

	if err := n.kv.ForEach(store.NamespacePriorityQueue, func(_ string, v []byte) error {
		m, err := store.DecodeMessage(v)
		if err != nil {
			return err
		}
		_, _, err = n.queue.Enqueue(m, now)
		return err
	}); err != nil {
		n.log.WithError(err).Warn("failed to restore priority queue")
	}

	var records []dutycycle.TransmissionRecord
	if err := n.kv.ForEach(store.NamespaceTransmissionLog, func(_ string, v []byte) error {
		r, err := store.DecodeTransmissionRecord(v)
		if err != nil {
			return err
		}
		records = append(records, r)
		return nil
	}); err != nil {
		n.log.WithError(err).Warn("failed to restore transmission log")
	}
	if len(records) > 0 {
		n.scheduler.Restore(records)
	}

	snaps := make(map[string]fragment.SessionSnapshot)
	if err := n.kv.ForEach(store.NamespaceReassemblySession, func(key string, v []byte) error {
		snap, err := store.DecodeSessionSnapshot(v)
		if err != nil {
			return err
		}
		snaps[key] = snap
		return nil
	}); err != nil {
		n.log.WithError(err).Warn("failed to restore reassembly sessions")
	}
	if len(snaps) > 0 {
		n.arena.Restore(snaps)
	}
}
