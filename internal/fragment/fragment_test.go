package fragment

import (
	"bytes"
	"testing"

	"rubin.dev/mesh/internal/meshcrypto"
	"rubin.dev/mesh/internal/meshtransport"
)

func testKeyPair(t *testing.T) meshcrypto.KeyPair {
	t.Helper()
	kp, err := meshcrypto.DefaultProvider{}.GenerateKeyPair(meshcrypto.AlgorithmEd25519)
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	return kp
}

func TestSplitSingleFragment(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	kp := testKeyPair(t)
	payload := bytes.Repeat([]byte{0x01}, 50)

	frags, err := Split(payload, meshtransport.MsgTypeUTXOTransaction, false, false, crypto, kp)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("expected 1 fragment, got %d", len(frags))
	}
	f := frags[0]
	if !f.IsFirst() || !f.IsLast() {
		t.Fatalf("single fragment must be FIRST and LAST: flags=%x", f.Flags)
	}
	if err := Validate(f, crypto, kp.PublicKey); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestSplitMultiFragment(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	kp := testKeyPair(t)
	payload := bytes.Repeat([]byte{0xAB}, 500)

	frags, err := Split(payload, meshtransport.MsgTypeBlock, true, true, crypto, kp)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	wantTotal := (len(payload) + PayloadCap(meshtransport.MsgTypeBlock) - 1) / PayloadCap(meshtransport.MsgTypeBlock)
	if len(frags) != wantTotal {
		t.Fatalf("expected %d fragments, got %d", wantTotal, len(frags))
	}
	for i, f := range frags {
		if int(f.SequenceNumber) != i {
			t.Fatalf("fragment %d has sequence %d", i, f.SequenceNumber)
		}
		if f.IsFirst() != (i == 0) {
			t.Fatalf("fragment %d FIRST flag mismatch", i)
		}
		if f.IsLast() != (i == len(frags)-1) {
			t.Fatalf("fragment %d LAST flag mismatch", i)
		}
		if !f.IsAckRequired() {
			t.Fatalf("fragment %d missing ACK_REQUIRED flag", i)
		}
		if err := Validate(f, crypto, kp.PublicKey); err != nil {
			t.Fatalf("validate fragment %d: %v", i, err)
		}
	}

	// Reassembling in order reproduces the original payload.
	var rebuilt []byte
	for _, f := range frags {
		rebuilt = append(rebuilt, f.Payload...)
	}
	if !bytes.Equal(rebuilt, payload) {
		t.Fatalf("reassembled payload mismatch")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	kp := testKeyPair(t)
	frags, err := Split([]byte("hello mesh"), meshtransport.MsgTypeMerkleProof, false, false, crypto, kp)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	frame := frags[0].Encode()
	if len(frame) > 256 {
		t.Fatalf("frame exceeds max radio frame size: %d", len(frame))
	}
	got, err := Decode(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := Validate(got, crypto, kp.PublicKey); err != nil {
		t.Fatalf("validate decoded fragment: %v", err)
	}
	if !bytes.Equal(got.Payload, frags[0].Payload) {
		t.Fatalf("payload mismatch after decode")
	}
}

func TestValidateRejectsBadChecksum(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	kp := testKeyPair(t)
	frags, _ := Split([]byte("data"), meshtransport.MsgTypeUTXOTransaction, false, false, crypto, kp)
	frags[0].Payload[0] ^= 0xFF
	err := Validate(frags[0], crypto, kp.PublicKey)
	kind, ok := meshtransport.KindOf(err)
	if !ok || kind != meshtransport.CRC32Mismatch {
		t.Fatalf("expected CRC32Mismatch, got %v", err)
	}
}

func TestValidateRejectsBadSignature(t *testing.T) {
	crypto := meshcrypto.DefaultProvider{}
	kp := testKeyPair(t)
	frags, _ := Split([]byte("data"), meshtransport.MsgTypeUTXOTransaction, false, false, crypto, kp)
	otherKP := testKeyPair(t)
	err := Validate(frags[0], crypto, otherKP.PublicKey)
	kind, ok := meshtransport.KindOf(err)
	if !ok || kind != meshtransport.InvalidSignature {
		t.Fatalf("expected InvalidSignature, got %v", err)
	}
}
