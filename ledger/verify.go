package ledger

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/t7a/trueledger/did"
	"go.uber.org/multierr"
)

// Verify checks stx in a fixed order and returns the first failure:
//
//  1. author_did decodes to a public key      (*IdentityError)
//  2. the signature is 64 bytes of hex        (*SignatureFormatError)
//  3. the payload hash is recomputed
//  4. the signature verifies                  (*SignatureInvalidError)
//  5. amounts parse and debits equal credits  (*AmountFormatError, *ImbalanceError)
//
// A nil return means the transaction is authentic and balanced.
func Verify(stx *SignedTransaction) error {
	err := VerifySignature(stx)
	if err != nil {
		return err
	}
	return VerifyBalance(&stx.Payload)
}

// VerifyAll runs the signature checks and the balance check
// independently and returns every failure, combined with multierr.
func VerifyAll(stx *SignedTransaction) error {
	return multierr.Combine(
		VerifySignature(stx),
		VerifyBalance(&stx.Payload),
	)
}

// VerifySignature performs steps 1 through 4 of Verify.
func VerifySignature(stx *SignedTransaction) error {
	pub, err := did.Decode(stx.Payload.AuthorDID)
	if err != nil {
		return &IdentityError{DID: stx.Payload.AuthorDID, Err: err}
	}
	return VerifyWith(stx, pub)
}

// VerifyWith checks the signature of stx against pub, ignoring
// author_did.
func VerifyWith(stx *SignedTransaction, pub ed25519.PublicKey) error {
	sig, err := decodeSignature(stx.Signature)
	if err != nil {
		return err
	}
	digest := stx.Payload.Hash()
	if len(pub) != ed25519.PublicKeySize || !ed25519.Verify(pub, digest[:], sig) {
		return &SignatureInvalidError{DID: stx.Payload.AuthorDID}
	}
	return nil
}

func decodeSignature(txt string) (sig []byte, err error) {
	sig, err = hex.DecodeString(txt)
	if err != nil {
		return nil, &SignatureFormatError{Signature: txt, Reason: err.Error()}
	}
	if len(sig) != ed25519.SignatureSize {
		reason := fmt.Sprintf("got %d bytes, expected %d", len(sig), ed25519.SignatureSize)
		return nil, &SignatureFormatError{Signature: txt, Reason: reason}
	}
	return sig, nil
}

// VerifyBalance performs step 5 of Verify.
func VerifyBalance(tx *Transaction) error {
	debits, credits, scale, err := sum(tx)
	if err != nil {
		return err
	}
	if !debits.Equal(credits) {
		return &ImbalanceError{TotalDebits: debits, TotalCredits: credits, Scale: scale}
	}
	return nil
}
