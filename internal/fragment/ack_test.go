package fragment

import "testing"

func TestSentTrackerCumulativeAck(t *testing.T) {
	tracker := NewSentTracker([16]byte{1}, 5)
	up := uint16(2)
	tracker.ApplyAck(&Ack{CumulativeAck: &up})
	outstanding := tracker.Outstanding()
	if len(outstanding) != 2 || outstanding[0] != 3 || outstanding[1] != 4 {
		t.Fatalf("unexpected outstanding set: %v", outstanding)
	}
}

func TestSentTrackerExplicitAckList(t *testing.T) {
	tracker := NewSentTracker([16]byte{1}, 4)
	tracker.ApplyAck(&Ack{AcknowledgedFragments: []uint16{0, 2}})
	outstanding := tracker.Outstanding()
	if len(outstanding) != 2 || outstanding[0] != 1 || outstanding[1] != 3 {
		t.Fatalf("unexpected outstanding set: %v", outstanding)
	}
}

func TestSentTrackerComplete(t *testing.T) {
	tracker := NewSentTracker([16]byte{1}, 2)
	if tracker.Complete() {
		t.Fatalf("expected incomplete tracker")
	}
	tracker.ApplyAck(&Ack{AcknowledgedFragments: []uint16{0, 1}})
	if !tracker.Complete() {
		t.Fatalf("expected complete tracker after acking all fragments")
	}
}
