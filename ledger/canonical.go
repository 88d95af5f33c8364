package ledger

import (
	"bytes"
	"crypto/sha256"
	"strconv"
	"unicode/utf8"
)

// Canonical returns the byte form of tx that is hashed and signed.
// The layout is fixed here rather than borrowed from a serializer:
//
//	{"timestamp":N,"author_did":S,"entries":[{"account_id":S,"debit":S,"credit":S},...],"memo":S}
//
// No whitespace, base-10 timestamp, and strings escaped as described
// in writeString.  Changing any of this changes every hash ever signed.
func (tx *Transaction) Canonical() []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"timestamp":`)
	buf.WriteString(strconv.FormatUint(tx.Timestamp, 10))
	buf.WriteString(`,"author_did":`)
	writeString(&buf, tx.AuthorDID)
	buf.WriteString(`,"entries":[`)
	for i, e := range tx.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`{"account_id":`)
		writeString(&buf, e.AccountID)
		buf.WriteString(`,"debit":`)
		writeString(&buf, e.Debit)
		buf.WriteString(`,"credit":`)
		writeString(&buf, e.Credit)
		buf.WriteByte('}')
	}
	buf.WriteString(`],"memo":`)
	writeString(&buf, tx.Memo)
	buf.WriteByte('}')
	return buf.Bytes()
}

// Hash returns the SHA-256 digest of the canonical form.
func (tx *Transaction) Hash() [sha256.Size]byte {
	return sha256.Sum256(tx.Canonical())
}

const hexdigits = "0123456789abcdef"

// writeString quotes s.  Only '"', '\\' and control characters are
// escaped; the five with short forms use them, the rest use \u00xx.
// All other text is written as raw UTF-8, with invalid bytes replaced
// by U+FFFD.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				if c < 0x20 {
					buf.WriteString(`\u00`)
					buf.WriteByte(hexdigits[c>>4])
					buf.WriteByte(hexdigits[c&0xf])
				} else {
					buf.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune(utf8.RuneError)
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}
