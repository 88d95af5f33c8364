package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"

	. "github.com/stevegt/goadapt"
	"github.com/t7a/trueledger/did"
)

// Sign returns the Ed25519 signature of digest.  The digest itself is
// the signed message.  A private key of the wrong size is a
// programmer error and panics.
func Sign(priv ed25519.PrivateKey, digest [sha256.Size]byte) []byte {
	Assert(len(priv) == ed25519.PrivateKeySize, "malformed private key: %d bytes", len(priv))
	return ed25519.Sign(priv, digest[:])
}

// Sign hashes tx, signs the hash with id's private key, and bundles
// the result.  tx is copied, so later changes to the caller's value
// don't reach the signed transaction.
func (tx Transaction) Sign(id *did.Identity) *SignedTransaction {
	Assert(id != nil, "nil identity")
	payload := tx.Clone()
	sig := Sign(id.Private, payload.Hash())
	return &SignedTransaction{
		Payload:   payload,
		Signature: hex.EncodeToString(sig),
	}
}
