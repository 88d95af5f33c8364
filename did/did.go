package did

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
)

// Scheme is the human-readable prefix of every identifier.
const Scheme = "did:key:"

// Ed25519Tag is the multicodec prefix for an Ed25519 public key: the
// unsigned varint of the ed25519-pub code, 0xed 0x01.
var Ed25519Tag = varint.ToUvarint(uint64(multicodec.Ed25519Pub))

// Decode failure reasons.  Each *DecodeError wraps exactly one of these.
var (
	ErrMissingPrefix    = errors.New("missing did:key: scheme prefix")
	ErrMissingMultibase = errors.New("missing base58btc multibase marker")
	ErrBase58           = errors.New("invalid base58btc encoding")
	ErrKeyLength        = errors.New("wrong decoded key length")
	ErrCodec            = errors.New("not an ed25519-pub multicodec tag")
	ErrKeyPoint         = errors.New("key is not a valid ed25519 point")
)

type DecodeError struct {
	DID    string
	Reason error
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%v: %q", e.Reason, e.DID)
	}
	return fmt.Sprintf("%v: %s: %q", e.Reason, e.Detail, e.DID)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}

// Encode returns the did:key identifier for pub.
func Encode(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(Ed25519Tag)+len(pub))
	buf = append(buf, Ed25519Tag...)
	buf = append(buf, pub...)
	// multibase only fails for unknown encodings
	txt, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		panic(err)
	}
	return Scheme + txt
}

// Decode recovers the Ed25519 public key embedded in a did:key
// identifier.  Every rejection is a *DecodeError whose Reason names
// the check that failed.
func Decode(id string) (pub ed25519.PublicKey, err error) {
	fail := func(reason error, detail string) (ed25519.PublicKey, error) {
		return nil, &DecodeError{DID: id, Reason: reason, Detail: detail}
	}

	if !strings.HasPrefix(id, Scheme) {
		return fail(ErrMissingPrefix, "")
	}
	body := strings.TrimPrefix(id, Scheme)
	if len(body) == 0 || rune(body[0]) != rune(multibase.Base58BTC) {
		return fail(ErrMissingMultibase, "")
	}
	body = body[1:]
	if len(body) == 0 {
		return fail(ErrBase58, "empty key")
	}
	raw, err := base58.Decode(body)
	if err != nil {
		return fail(ErrBase58, err.Error())
	}

	expect := len(Ed25519Tag) + ed25519.PublicKeySize
	if len(raw) != expect {
		return fail(ErrKeyLength, fmt.Sprintf("got %d bytes, expected %d", len(raw), expect))
	}
	if !bytes.Equal(raw[:len(Ed25519Tag)], Ed25519Tag) {
		return fail(ErrCodec, codecName(raw))
	}

	key := raw[len(Ed25519Tag):]
	_, err = new(edwards25519.Point).SetBytes(key)
	if err != nil {
		return fail(ErrKeyPoint, err.Error())
	}

	pub = make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, key)
	return pub, nil
}

// codecName describes the multicodec a rejected identifier claims to
// carry, for diagnostics only.
func codecName(raw []byte) string {
	code, _, err := varint.FromUvarint(raw)
	if err != nil {
		return fmt.Sprintf("unparseable tag % x", raw[:len(Ed25519Tag)])
	}
	return fmt.Sprintf("found %s (0x%x)", multicodec.Code(code).String(), code)
}
