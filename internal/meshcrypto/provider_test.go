package meshcrypto

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	p := DefaultProvider{}
	for _, alg := range []Algorithm{AlgorithmEd25519, AlgorithmSecp256k1} {
		t.Run(alg.String(), func(t *testing.T) {
			kp, err := p.GenerateKeyPair(alg)
			if err != nil {
				t.Fatalf("GenerateKeyPair: %v", err)
			}
			msg := []byte("fragment header || payload")
			sig, err := p.Sign(kp, msg)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			if len(sig) != alg.SignatureLen() {
				t.Fatalf("signature length = %d, want %d", len(sig), alg.SignatureLen())
			}
			ok, err := p.Verify(alg, kp.PublicKey, msg, sig)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if !ok {
				t.Fatalf("Verify returned false for a valid signature")
			}

			tampered := append([]byte(nil), msg...)
			tampered[0] ^= 0xff
			ok, err = p.Verify(alg, kp.PublicKey, tampered, sig)
			if err != nil {
				t.Fatalf("Verify(tampered): %v", err)
			}
			if ok {
				t.Fatalf("Verify returned true for a tampered message")
			}
		})
	}
}

func TestVerifyUnsupportedAlgorithm(t *testing.T) {
	p := DefaultProvider{}
	if _, err := p.Verify(Algorithm(0xEE), nil, nil, nil); err != ErrUnsupportedAlgorithm {
		t.Fatalf("err = %v, want ErrUnsupportedAlgorithm", err)
	}
}

func TestHashDeterministic(t *testing.T) {
	p := DefaultProvider{}
	a := p.Hash([]byte("abc"))
	b := p.Hash([]byte("abc"))
	if a != b {
		t.Fatalf("Hash not deterministic: %x != %x", a, b)
	}
}

func TestCRC32KnownVector(t *testing.T) {
	p := DefaultProvider{}
	// CRC-32/ISO-HDLC of "123456789" is the standard check value.
	got := p.CRC32([]byte("123456789"))
	const want = 0xCBF43926
	if got != want {
		t.Fatalf("CRC32 = %#x, want %#x", got, want)
	}
}
