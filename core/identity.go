package core

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
)

// PeerID is the stable identifier derived from a peer's ed25519 public key,
// hex encoded for use as a map key and for display (§3).
type PeerID string

// Identity holds the process's long-term ed25519 keypair. A fresh keypair
// is generated at process start (§3 "Peer") - unlike the teacher, which
// persists its secp256k1 key to the config file, this keypair is
// intentionally not persisted: the spec names "transport encryption key
// persistence" as an explicit Non-goal (§1).
type Identity struct {
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// NewIdentity generates a fresh ed25519 keypair.
func NewIdentity() (Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return Identity{}, err
	}
	return Identity{PublicKey: pub, PrivateKey: priv}, nil
}

// ID returns the peer id derived from the public key.
func (id Identity) ID() PeerID {
	return PeerIDFromPublicKey(id.PublicKey)
}

// PeerIDFromPublicKey derives the PeerID a remote peer presents once its
// ed25519 public key is known, e.g. from a completed Noise handshake
// (transport.Muxer.RemoteID).
func PeerIDFromPublicKey(pub ed25519.PublicKey) PeerID {
	return PeerID(hex.EncodeToString(pub))
}
