package ledger

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"os"
	"strings"

	"github.com/google/renameio"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack"
)

// Marshal renders stx as the persisted envelope: indented JSON with a
// trailing newline.  The envelope layout doesn't affect the signature;
// only Payload.Canonical() is hashed.
func (stx *SignedTransaction) Marshal() (buf []byte, err error) {
	buf, err = json.MarshalIndent(stx, "", "  ")
	if err != nil {
		return
	}
	return append(buf, '\n'), nil
}

// Unmarshal parses a persisted envelope.  Keys must be spelled exactly
// and appear once per object; unknown keys are ignored.
func Unmarshal(buf []byte) (stx *SignedTransaction, err error) {
	err = ckKeys(json.NewDecoder(bytes.NewReader(buf)))
	if err != nil {
		return nil, err
	}
	stx = &SignedTransaction{}
	dec := json.NewDecoder(bytes.NewReader(buf))
	err = dec.Decode(stx)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after envelope")
	}
	return
}

// envelope field names; encoding/json would otherwise match any case
var fieldNames = []string{
	"payload", "signature",
	"timestamp", "author_did", "entries", "memo",
	"account_id", "debit", "credit",
}

// ckKeys walks one JSON value and rejects duplicate keys and keys that
// differ from a field name only in case.
func ckKeys(dec *json.Decoder) (err error) {
	tok, err := dec.Token()
	if err != nil {
		return
	}
	switch tok {
	case json.Delim('{'):
		seen := make(map[string]bool)
		for dec.More() {
			tok, err = dec.Token()
			if err != nil {
				return
			}
			key := tok.(string)
			if seen[key] {
				return errors.Errorf("duplicate key %q", key)
			}
			seen[key] = true
			for _, name := range fieldNames {
				if key != name && strings.EqualFold(key, name) {
					return errors.Errorf("unknown key %q, expected %q", key, name)
				}
			}
			err = ckKeys(dec)
			if err != nil {
				return
			}
		}
		_, err = dec.Token()
	case json.Delim('['):
		for dec.More() {
			err = ckKeys(dec)
			if err != nil {
				return
			}
		}
		_, err = dec.Token()
	}
	return
}

// MarshalMsgpack encodes stx for the wire.
func (stx *SignedTransaction) MarshalMsgpack() ([]byte, error) {
	return msgpack.Marshal((*signedAlias)(stx))
}

// UnmarshalMsgpack decodes a wire-encoded transaction.
func (stx *SignedTransaction) UnmarshalMsgpack(buf []byte) error {
	return msgpack.Unmarshal(buf, (*signedAlias)(stx))
}

// signedAlias drops the Marshal/UnmarshalMsgpack methods so msgpack
// falls back to encoding the struct fields.
type signedAlias SignedTransaction

// WriteFile atomically replaces fn with the envelope for stx.
func WriteFile(fn string, stx *SignedTransaction) (err error) {
	buf, err := stx.Marshal()
	if err != nil {
		return
	}
	return renameio.WriteFile(fn, buf, 0644)
}

// ReadFile loads the envelope at fn.  A missing file is reported as
// *NotFoundError and a malformed one as *CorruptError.
func ReadFile(fn string) (stx *SignedTransaction, err error) {
	buf, err := ioutil.ReadFile(fn)
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Name: fn}
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", fn)
	}
	stx, err = Unmarshal(buf)
	if err != nil {
		return nil, &CorruptError{Name: fn, Err: err}
	}
	return
}
