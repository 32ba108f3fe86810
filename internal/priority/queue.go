package priority

import (
	"container/heap"
	"time"

	"rubin.dev/mesh/internal/meshtransport"
)

// heapNode pairs a Message with its cached score and heap index, so that
// updatePriority can locate and re-sift it in O(log n) instead of O(n)
// (spec.md §9 "Heap with id→index map").
type heapNode struct {
	msg        *Message
	score      float64
	insertedAt time.Time
	index      int
}

type nodeHeap []*heapNode

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	// Ties broken by insertion time (spec.md §5 "Ordering").
	return h[i].insertedAt.Before(h[j].insertedAt)
}
func (h nodeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *nodeHeap) Push(x any) {
	n := x.(*heapNode)
	n.index = len(*h)
	*h = append(*h, n)
}
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	node := old[n-1]
	old[n-1] = nil
	node.index = -1
	*h = old[:n-1]
	return node
}

// CapacityConfig bounds queue memory and admission (spec.md §3, §6
// queueCapacity.*).
type CapacityConfig struct {
	MaxTotalMessages       int
	MemoryLimitBytes       int
	CapacityByPriority     map[meshtransport.MessagePriority]int
	EmergencyCapacityReserve int
}

// DefaultCapacityConfig mirrors the reference defaults.
var DefaultCapacityConfig = CapacityConfig{
	MaxTotalMessages:         1000,
	MemoryLimitBytes:         4 * 1024 * 1024,
	EmergencyCapacityReserve: 5,
}

// FeeBucketCounters tallies dequeues into fee bands for metrics.
type FeeBucketCounters struct {
	High   int
	Normal int
	Low    int
}

// Queue is a binary min-heap keyed by Message.Score, bounded by
// CapacityConfig, with an emergency reserve pool and a queueId→index map for
// O(log n) re-prioritisation (spec.md §4.D).
type Queue struct {
	heap     nodeHeap
	byID     map[string]*heapNode
	capacity CapacityConfig
	bytes    int

	FeeBuckets    FeeBucketCounters
	waitTimeEWMA  map[meshtransport.MessagePriority]time.Duration
}

const ewmaAlpha = 0.2

// NewQueue returns an empty queue bounded by cfg (DefaultCapacityConfig when
// cfg is the zero value).
func NewQueue(cfg CapacityConfig) *Queue {
	if cfg.MaxTotalMessages == 0 {
		cfg = DefaultCapacityConfig
	}
	q := &Queue{
		byID:         make(map[string]*heapNode),
		capacity:     cfg,
		waitTimeEWMA: make(map[meshtransport.MessagePriority]time.Duration),
	}
	heap.Init(&q.heap)
	return q
}

func (q *Queue) nonEmergencyCount() int {
	count := 0
	for _, n := range q.heap {
		if !n.msg.EmergencyFlag {
			count++
		}
	}
	return count
}

// Enqueue admits msg, evicting the lowest-priority non-emergency message if
// the queue is full and msg cannot use the emergency reserve (spec.md §4.D).
// Returns the evicted message's QueueID, if any, and whether an eviction
// occurred (QueueOverflow).
func (q *Queue) Enqueue(msg *Message, now time.Time) (evictedID string, evicted bool, err error) {
	if msg.QueueID == "" {
		return "", false, meshtransport.New(meshtransport.ConfigInvalid, "priority.Enqueue", nil)
	}
	total := q.heap.Len()
	overTotal := total >= q.capacity.MaxTotalMessages
	overPriority := false
	if limit, ok := q.capacity.CapacityByPriority[msg.Priority]; ok && limit > 0 {
		overPriority = q.countByPriority(msg.Priority) >= limit
	}
	if overTotal || overPriority {
		reserveAvailable := msg.EmergencyFlag && (total-q.nonEmergencyCount()) < q.capacity.EmergencyCapacityReserve
		if !reserveAvailable {
			victim := q.lowestNonEmergency()
			if victim == nil {
				return "", false, meshtransport.New(meshtransport.QueueOverflow, "priority.Enqueue", nil)
			}
			q.removeNode(victim)
			evictedID, evicted = victim.msg.QueueID, true
		}
	}

	node := &heapNode{msg: msg, score: msg.Score(now), insertedAt: now}
	heap.Push(&q.heap, node)
	q.byID[msg.QueueID] = node
	q.bytes += msg.EstimatedSizeBytes
	return evictedID, evicted, nil
}

func (q *Queue) countByPriority(p meshtransport.MessagePriority) int {
	count := 0
	for _, n := range q.heap {
		if n.msg.Priority == p {
			count++
		}
	}
	return count
}

func (q *Queue) lowestNonEmergency() *heapNode {
	var worst *heapNode
	for _, n := range q.heap {
		if n.msg.EmergencyFlag {
			continue
		}
		if worst == nil || n.score > worst.score {
			worst = n
		}
	}
	return worst
}

func (q *Queue) removeNode(n *heapNode) {
	heap.Remove(&q.heap, n.index)
	delete(q.byID, n.msg.QueueID)
	q.bytes -= n.msg.EstimatedSizeBytes
}

// Dequeue pops the lowest-score message, updating fee-bucket counters and
// the per-priority wait-time EWMA.
func (q *Queue) Dequeue(now time.Time) (*Message, bool) {
	if q.heap.Len() == 0 {
		return nil, false
	}
	node := heap.Pop(&q.heap).(*heapNode)
	delete(q.byID, node.msg.QueueID)
	q.bytes -= node.msg.EstimatedSizeBytes

	q.recordFeeBucket(node.msg)
	q.recordWait(node.msg.Priority, now.Sub(node.insertedAt))
	return node.msg, true
}

func (q *Queue) recordFeeBucket(m *Message) {
	switch {
	case m.FeePerByte() >= 10:
		q.FeeBuckets.High++
	case m.FeePerByte() >= 1:
		q.FeeBuckets.Normal++
	default:
		q.FeeBuckets.Low++
	}
}

func (q *Queue) recordWait(priority meshtransport.MessagePriority, wait time.Duration) {
	prev, ok := q.waitTimeEWMA[priority]
	if !ok {
		q.waitTimeEWMA[priority] = wait
		return
	}
	q.waitTimeEWMA[priority] = time.Duration(ewmaAlpha*float64(wait) + (1-ewmaAlpha)*float64(prev))
}

// WaitTimeEWMA returns the current wait-time moving average for priority.
func (q *Queue) WaitTimeEWMA(priority meshtransport.MessagePriority) time.Duration {
	return q.waitTimeEWMA[priority]
}

// Peek returns the lowest-score message without removing it.
func (q *Queue) Peek() (*Message, bool) {
	if q.heap.Len() == 0 {
		return nil, false
	}
	return q.heap[0].msg, true
}

// Size reports the number of queued messages.
func (q *Queue) Size() int { return q.heap.Len() }

// Messages returns every currently queued message, in no particular order,
// for persistence (spec.md §6 "Persisted state: priority-queue snapshot").
func (q *Queue) Messages() []*Message {
	out := make([]*Message, 0, len(q.heap))
	for _, n := range q.heap {
		out = append(out, n.msg)
	}
	return out
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.heap = nil
	q.byID = make(map[string]*heapNode)
	q.bytes = 0
}

// UpdatePriority recomputes and re-sifts the score for an already-queued
// message, in O(log n) via the byID index (spec.md §4.D).
func (q *Queue) UpdatePriority(queueID string, now time.Time) bool {
	node, ok := q.byID[queueID]
	if !ok {
		return false
	}
	node.score = node.msg.Score(now)
	heap.Fix(&q.heap, node.index)
	return true
}

// RemoveExpired sweeps the queue for TTL-expired messages, an O(n)
// operation (spec.md §4.D).
func (q *Queue) RemoveExpired(now time.Time) []*Message {
	var removed []*Message
	for _, n := range append(nodeHeap(nil), q.heap...) {
		if n.msg.Expired(now) {
			q.removeNode(n)
			removed = append(removed, n.msg)
		}
	}
	if len(removed) > 0 {
		heap.Init(&q.heap)
	}
	return removed
}

// Tick recomputes every message's score against now and restores heap order.
// Age-derived scores otherwise go stale between explicit UpdatePriority
// calls, since Score depends on elapsed time (spec.md §8 "Age boost bound").
func (q *Queue) Tick(now time.Time) {
	for _, n := range q.heap {
		n.score = n.msg.Score(now)
	}
	heap.Init(&q.heap)
}
