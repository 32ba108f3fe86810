package fragment

import (
	"testing"
	"time"

	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
)

func newTestSession(total uint16) *Session {
	now := time.Now()
	return &Session{
		TotalFragments: total,
		bitmap:         make([]bool, total),
		payloads:       make(map[uint16][]byte),
		CreatedAt:      now,
		LastActivity:   now,
		TimeoutAt:      now.Add(defaultSessionTimeout),
		perSeqAttempts: make(map[uint16]int),
	}
}

func TestBuildRetransmissionRequestUsesListBelowThreshold(t *testing.T) {
	s := newTestSession(3)
	s.bitmap[0] = true
	now := time.Now()
	req, due := BuildRetransmissionRequest(s, now, "node-1")
	if !due {
		t.Fatalf("expected a retransmission request to be due")
	}
	if len(req.MissingFragments) != 2 || req.CompressedBitmap != nil {
		t.Fatalf("expected fragment list for small missing set, got %+v", req)
	}
}

func TestBuildRetransmissionRequestUsesBitmapAboveThreshold(t *testing.T) {
	s := newTestSession(20)
	s.bitmap[0] = true
	now := time.Now()
	req, due := BuildRetransmissionRequest(s, now, "node-1")
	if !due {
		t.Fatalf("expected a retransmission request to be due")
	}
	if req.CompressedBitmap == nil || req.MissingFragments != nil {
		t.Fatalf("expected compressed bitmap above threshold, got %+v", req)
	}
}

func TestBuildRetransmissionRequestNotDueBeforeBackoff(t *testing.T) {
	s := newTestSession(3)
	now := time.Now()
	AdvanceRetransmission(s, now, 3)
	_, due := BuildRetransmissionRequest(s, now, "node-1")
	if due {
		t.Fatalf("expected no retransmission request immediately after scheduling backoff")
	}
}

func TestNotifyNackForcesImmediateRetransmission(t *testing.T) {
	s := newTestSession(3)
	now := time.Now()
	AdvanceRetransmission(s, now, 3)
	NotifyNack(s, now)
	_, due := BuildRetransmissionRequest(s, now, "node-1")
	if !due {
		t.Fatalf("expected NotifyNack to make a retransmission request immediately due")
	}
}

func TestExpiredSession(t *testing.T) {
	s := newTestSession(2)
	s.LastActivity = time.Now().Add(-10 * time.Minute)
	if !Expired(s, time.Now()) {
		t.Fatalf("expected session past sessionTimeout to be expired")
	}
}

func TestAcceptTransitionsOutOfWaitingRetransmission(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	kp, err := crypto.GenerateKeyPair(meshcrypto.AlgorithmEd25519)
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	frags, err := Split([]byte("hello"), meshtransport.MsgTypeUTXOTransaction, false, false, crypto, kp)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	s := newSession(frags[0], time.Now(), "peer", meshtransport.PriorityNormal, meshtransport.MsgTypeUTXOTransaction)
	s.State = StateWaitingRetransmission
	_, complete, err := Accept(s, frags[0], time.Now())
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !complete {
		t.Fatalf("expected single fragment to complete the session")
	}
}
