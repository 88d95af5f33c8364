package did

import (
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"
)

// Identity is a signing key pair plus the identifier derived from its
// public half.  The private key stays in the process that generated
// it; only DID is meant to leave.
type Identity struct {
	Private ed25519.PrivateKey
	Public  ed25519.PublicKey
	DID     string
}

// Generate creates a new identity using rd as the source of
// randomness.  Pass crypto/rand.Reader outside of tests.
func Generate(rd io.Reader) (id *Identity, err error) {
	seed := make([]byte, ed25519.SeedSize)
	_, err = io.ReadFull(rd, seed)
	if err != nil {
		return nil, errors.Wrap(err, "reading key seed")
	}
	return FromSeed(seed)
}

// FromSeed derives an identity from a 32-byte Ed25519 seed.
func FromSeed(seed []byte) (id *Identity, err error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("seed is %d bytes, expected %d", len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Identity{Private: priv, Public: pub, DID: Encode(pub)}, nil
}
