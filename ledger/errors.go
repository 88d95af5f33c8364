package ledger

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Check names one stage of the verification pipeline.
type Check string

const (
	CheckNone            Check = ""
	CheckIdentity        Check = "identity"
	CheckSignatureFormat Check = "signature format"
	CheckSignature       Check = "signature"
	CheckAmountFormat    Check = "amount format"
	CheckBalance         Check = "balance"
)

// IdentityError means author_did could not be decoded.  Err is the
// *did.DecodeError carrying the reason.
type IdentityError struct {
	DID string
	Err error
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("identity recovery failed: %v", e.Err)
}

func (e *IdentityError) Unwrap() error {
	return e.Err
}

// SignatureFormatError means the stored signature is not hex or is
// not exactly 64 bytes long.
type SignatureFormatError struct {
	Signature string
	Reason    string
}

func (e *SignatureFormatError) Error() string {
	return fmt.Sprintf("malformed signature: %s", e.Reason)
}

// SignatureInvalidError means the signature does not verify against
// the payload hash and the author's key.  A tampered payload and a
// signature made with a different key look the same here; a detached
// signature cannot tell them apart.
type SignatureInvalidError struct {
	DID string
}

func (e *SignatureInvalidError) Error() string {
	return fmt.Sprintf("signature verification failed for %s: payload tampered or signed by another key", e.DID)
}

// AmountFormatError means a debit or credit is not a non-negative
// decimal string.
type AmountFormatError struct {
	Index     int    // entry position
	AccountID string
	Field     string // "debit" or "credit"
	Value     string
}

func (e *AmountFormatError) Error() string {
	return fmt.Sprintf("invalid %s amount %q in entry %d (account %s)", e.Field, e.Value, e.Index, e.AccountID)
}

// ImbalanceError carries both totals when they differ.
type ImbalanceError struct {
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	Scale        int32 // digits after the point used when printing
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("imbalance: debits (%s) != credits (%s)",
		e.TotalDebits.StringFixed(e.Scale), e.TotalCredits.StringFixed(e.Scale))
}

// FailedCheck reports which verification stage produced err.  It
// returns CheckNone for nil and for errors outside the taxonomy.
func FailedCheck(err error) Check {
	var (
		identity *IdentityError
		sigfmt   *SignatureFormatError
		sig      *SignatureInvalidError
		amount   *AmountFormatError
		balance  *ImbalanceError
	)
	switch {
	case err == nil:
		return CheckNone
	case errors.As(err, &identity):
		return CheckIdentity
	case errors.As(err, &sigfmt):
		return CheckSignatureFormat
	case errors.As(err, &sig):
		return CheckSignature
	case errors.As(err, &amount):
		return CheckAmountFormat
	case errors.As(err, &balance):
		return CheckBalance
	}
	return CheckNone
}

// NotFoundError means a persisted artifact does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("transaction not found: %s", e.Name)
}

// CorruptError means a persisted artifact exists but is not a
// well-formed signed transaction envelope.
type CorruptError struct {
	Name string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("corrupt transaction %s: %v", e.Name, e.Err)
}

func (e *CorruptError) Unwrap() error {
	return e.Err
}
