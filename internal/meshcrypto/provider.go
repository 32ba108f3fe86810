// Package meshcrypto provides the deterministic signing, hashing, and
// checksum primitives every fragment and control message in the mesh
// transport is built on (spec.md §4.A). Unlike the consensus node's
// CryptoProvider (which still carries ML-DSA/SLH-DSA stub verifies), every
// algorithm here is real: there is no placeholder path.
package meshcrypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"hash/crc32"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Algorithm identifies a signing scheme. The wire tag values match
// spec.md §6's fragment signature encoding (1-byte algorithm prefix).
type Algorithm uint8

const (
	AlgorithmEd25519    Algorithm = 0x01
	AlgorithmSecp256k1  Algorithm = 0x02
	ed25519SigLen                 = ed25519.SignatureSize // 64
	secp256k1SigLen               = 64                    // compact (R||S) signature
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmEd25519:
		return "ed25519"
	case AlgorithmSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

// SignatureLen returns the detached signature length for the algorithm, or
// 0 if the algorithm is unrecognized.
func (a Algorithm) SignatureLen() int {
	switch a {
	case AlgorithmEd25519:
		return ed25519SigLen
	case AlgorithmSecp256k1:
		return secp256k1SigLen
	default:
		return 0
	}
}

// KeyPair holds a private/public key pair for one algorithm.
type KeyPair struct {
	Algorithm  Algorithm
	PrivateKey []byte
	PublicKey  []byte
}

// Provider is the narrow crypto interface consumed by the fragmenter,
// delivery manager, and router. It is intentionally small: every signature
// this system produces is detached and deterministic (RFC 8032 for
// Ed25519, RFC 6979 for secp256k1/ECDSA).
type Provider interface {
	Sign(kp KeyPair, message []byte) (signature []byte, err error)
	Verify(algorithm Algorithm, publicKey, message, signature []byte) (bool, error)
	Hash(message []byte) [32]byte
	CRC32(payload []byte) uint32
	GenerateKeyPair(algorithm Algorithm) (KeyPair, error)
}

// ErrUnsupportedAlgorithm, ErrMalformedKey and ErrInvalidSignature are the
// sentinel causes wrapped by *meshtransport.Error{Kind: InvalidSignature/...}
// at call sites; they're exported so tests and callers can use errors.Is.
type algErr string

func (e algErr) Error() string { return string(e) }

const (
	ErrUnsupportedAlgorithm = algErr("meshcrypto: unsupported algorithm")
	ErrMalformedKey         = algErr("meshcrypto: malformed key")
	ErrInvalidSignature     = algErr("meshcrypto: invalid signature")
)

// DefaultProvider is the standard Ed25519/secp256k1 implementation used
// throughout the mesh stack. There is no placeholder/stub provider: every
// verify call does real cryptography.
type DefaultProvider struct{}

var _ Provider = DefaultProvider{}

func (DefaultProvider) Hash(message []byte) [32]byte {
	return sha256.Sum256(message)
}

func (DefaultProvider) CRC32(payload []byte) uint32 {
	return crc32.ChecksumIEEE(payload)
}

func (DefaultProvider) GenerateKeyPair(algorithm Algorithm) (KeyPair, error) {
	switch algorithm {
	case AlgorithmEd25519:
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return KeyPair{}, err
		}
		return KeyPair{Algorithm: algorithm, PrivateKey: priv, PublicKey: pub}, nil
	case AlgorithmSecp256k1:
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return KeyPair{}, err
		}
		return KeyPair{
			Algorithm:  algorithm,
			PrivateKey: priv.Serialize(),
			PublicKey:  priv.PubKey().SerializeCompressed(),
		}, nil
	default:
		return KeyPair{}, ErrUnsupportedAlgorithm
	}
}

func (DefaultProvider) Sign(kp KeyPair, message []byte) ([]byte, error) {
	switch kp.Algorithm {
	case AlgorithmEd25519:
		if len(kp.PrivateKey) != ed25519.PrivateKeySize {
			return nil, ErrMalformedKey
		}
		return ed25519.Sign(ed25519.PrivateKey(kp.PrivateKey), message), nil
	case AlgorithmSecp256k1:
		priv := secp256k1.PrivKeyFromBytes(kp.PrivateKey)
		if priv == nil {
			return nil, ErrMalformedKey
		}
		digest := sha256.Sum256(message)
		sig := ecdsa.SignCompact(priv, digest[:], false)
		// SignCompact prefixes a 1-byte recovery/header code; the detached
		// wire signature is the fixed 64-byte R||S that follows it.
		if len(sig) != 1+secp256k1SigLen {
			return nil, ErrInvalidSignature
		}
		return append([]byte(nil), sig[1:]...), nil
	default:
		return nil, ErrUnsupportedAlgorithm
	}
}

func (DefaultProvider) Verify(algorithm Algorithm, publicKey, message, signature []byte) (bool, error) {
	switch algorithm {
	case AlgorithmEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return false, ErrMalformedKey
		}
		if len(signature) != ed25519SigLen {
			return false, nil
		}
		return ed25519.Verify(ed25519.PublicKey(publicKey), message, signature), nil
	case AlgorithmSecp256k1:
		pub, err := secp256k1.ParsePubKey(publicKey)
		if err != nil {
			return false, ErrMalformedKey
		}
		if len(signature) != secp256k1SigLen {
			return false, nil
		}
		var r, s secp256k1.ModNScalar
		if overflow := r.SetByteSlice(signature[:32]); overflow {
			return false, nil
		}
		if overflow := s.SetByteSlice(signature[32:]); overflow {
			return false, nil
		}
		sig := ecdsa.NewSignature(&r, &s)
		digest := sha256.Sum256(message)
		return sig.Verify(digest[:], pub), nil
	default:
		return false, ErrUnsupportedAlgorithm
	}
}
