package ledger

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/t7a/trueledger/did"
	"go.uber.org/multierr"
)

const (
	seedA = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	didA  = "did:key:z6MktwupdmLXVVqTzCw4i46r4uGyosGXRnR3XjN4Zq7oMMsw"
	seedB = "4ccd089b28ff96da9db6c346ec114e0f5b8a319f35aba624da8cf6ed4fb8a6fb"
	didB  = "did:key:z6MkiaMbhXHNA4eJVCCj8dbzKzTgYDKf6crKgHVHid1F1WCT"

	genesisCanon = `{"timestamp":1730814442,"author_did":"did:key:z6MktwupdmLXVVqTzCw4i46r4uGyosGXRnR3XjN4Zq7oMMsw","entries":[{"account_id":"10100","debit":"10000.00","credit":"0.00"},{"account_id":"30100","debit":"0.00","credit":"10000.00"}],"memo":"Initial capital contribution by owner."}`
	genesisHash  = "5746c4a7d63cd07fb0bfc04a53a093bbf7423245ea3227da31482005e940ab2d"
	genesisSig   = "05bf9a9db8e6d323954f46ab86f3fcf064bd10d4397d5fced96277775be14cdabb3930baefed505b53495ec0f10e9d6f176b078b24968de0066720fe8500e90d"

	imbalancedHash = "aca7b4d33310e0029f35059963362c7cb2faefdaf0eb8f14453e2bacf58751ce"
	imbalancedSig  = "dfaaa464f430bd396562fc6349c64211bacefae0fb718941fc5999320f022b46ff4787f460d26daa781a2722be580a4a4b58c97d4c967c784b06d62dbc652400"
)

// test boolean condition
func tassert(t *testing.T, cond bool, txt string, args ...interface{}) {
	t.Helper() // cause file:line info to show caller
	if !cond {
		t.Fatalf(txt, args...)
	}
}

func mkid(t *testing.T, seedhex string) *did.Identity {
	t.Helper()
	seed, err := hex.DecodeString(seedhex)
	tassert(t, err == nil, "%v", err)
	id, err := did.FromSeed(seed)
	tassert(t, err == nil, "%v", err)
	return id
}

func imbalanced(author string) Transaction {
	tx := Genesis(author, 0)
	tx.Entries[1].Credit = "9999.99"
	return tx
}

func TestGenesis(t *testing.T) {
	tx := Genesis(didA, 0)
	tassert(t, tx.Timestamp == 1730814442, "got %d", tx.Timestamp)
	tassert(t, tx.Memo == "Initial capital contribution by owner.", "got %q", tx.Memo)
	tassert(t, len(tx.Entries) == 2, "got %d entries", len(tx.Entries))
	tx = Genesis(didA, 42)
	tassert(t, tx.Timestamp == 42, "got %d", tx.Timestamp)
}

func TestCanonical(t *testing.T) {
	tx := Genesis(didA, 0)
	got := string(tx.Canonical())
	tassert(t, got == genesisCanon, "expected\n%s\ngot\n%s", genesisCanon, got)
}

func TestCanonicalEscapes(t *testing.T) {
	tx := Transaction{AuthorDID: "x", Memo: "tab\there \"q\" back\\slash\n\x01 é <&>"}
	expect := `{"timestamp":0,"author_did":"x","entries":[],"memo":"tab\there \"q\" back\\slash\n\u0001 é <&>"}`
	got := string(tx.Canonical())
	tassert(t, got == expect, "expected\n%s\ngot\n%s", expect, got)

	digest := tx.Hash()
	hexhash := hex.EncodeToString(digest[:])
	expect = "e8f5c17630d343a6f3ac61b41fa2ae4e1106abacbec482aceb32982118b2f94e"
	tassert(t, hexhash == expect, "expected %s, got %s", expect, hexhash)
}

func TestCanonicalControlChars(t *testing.T) {
	tx := Transaction{Memo: "\b\f\r\x1f\x7f"}
	expect := `{"timestamp":0,"author_did":"","entries":[],"memo":"\b\f\r\u001f` + "\x7f" + `"}`
	got := string(tx.Canonical())
	tassert(t, got == expect, "expected %q, got %q", expect, got)
}

func TestCanonicalInvalidUTF8(t *testing.T) {
	a := Transaction{Memo: "bad \xff byte"}
	b := Transaction{Memo: "bad � byte"}
	tassert(t, bytes.Equal(a.Canonical(), b.Canonical()), "got %q and %q", a.Canonical(), b.Canonical())
}

func TestCanonicalEmptyEntries(t *testing.T) {
	a := Transaction{Entries: nil}
	b := Transaction{Entries: []JournalEntry{}}
	tassert(t, bytes.Equal(a.Canonical(), b.Canonical()), "nil and empty entries differ")
	tassert(t, bytes.Contains(a.Canonical(), []byte(`"entries":[]`)), "got %s", a.Canonical())
}

func TestHash(t *testing.T) {
	tx := Genesis(didA, 0)
	digest := tx.Hash()
	got := hex.EncodeToString(digest[:])
	tassert(t, got == genesisHash, "expected %s, got %s", genesisHash, got)

	// determinism
	for i := 0; i < 10; i++ {
		clone := tx.Clone()
		tassert(t, clone.Hash() == digest, "hash changed on call %d", i)
	}

	// entry order is significant
	swapped := tx.Clone()
	swapped.Entries[0], swapped.Entries[1] = swapped.Entries[1], swapped.Entries[0]
	tassert(t, swapped.Hash() != digest, "entry order did not change the hash")
}

func TestSignVector(t *testing.T) {
	id := mkid(t, seedA)
	tassert(t, id.DID == didA, "got %s", id.DID)
	stx := Genesis(id.DID, 0).Sign(id)
	tassert(t, stx.Signature == genesisSig, "expected %s, got %s", genesisSig, stx.Signature)

	stx = imbalanced(id.DID).Sign(id)
	digest := stx.Payload.Hash()
	tassert(t, hex.EncodeToString(digest[:]) == imbalancedHash, "got %x", digest)
	tassert(t, stx.Signature == imbalancedSig, "expected %s, got %s", imbalancedSig, stx.Signature)
}

func TestSignCopiesPayload(t *testing.T) {
	id := mkid(t, seedA)
	tx := Genesis(id.DID, 0)
	stx := tx.Sign(id)
	tx.Entries[0].Debit = "1.00"
	err := Verify(stx)
	tassert(t, err == nil, "%v", err)
}

func TestSignBadKey(t *testing.T) {
	defer func() {
		r := recover()
		tassert(t, r != nil, "expected panic on malformed private key")
	}()
	var digest [32]byte
	Sign([]byte{1, 2, 3}, digest)
}

func TestVerifyValid(t *testing.T) {
	id := mkid(t, seedA)
	stx := Genesis(id.DID, 0).Sign(id)
	err := Verify(stx)
	tassert(t, err == nil, "%v", err)
	err = VerifyAll(stx)
	tassert(t, err == nil, "%v", err)
	tassert(t, FailedCheck(err) == CheckNone, "got %q", FailedCheck(err))
}

func TestTamper(t *testing.T) {
	id := mkid(t, seedA)
	cases := []struct {
		name   string
		mutate func(tx *Transaction)
	}{
		{"timestamp", func(tx *Transaction) { tx.Timestamp++ }},
		{"memo", func(tx *Transaction) { tx.Memo += "!" }},
		{"debit", func(tx *Transaction) { tx.Entries[0].Debit = "10000.01" }},
		{"credit", func(tx *Transaction) { tx.Entries[1].Credit = "10000.0" }},
		{"account", func(tx *Transaction) { tx.Entries[0].AccountID = "10200" }},
		{"order", func(tx *Transaction) { tx.Entries[0], tx.Entries[1] = tx.Entries[1], tx.Entries[0] }},
		{"drop entry", func(tx *Transaction) { tx.Entries = tx.Entries[:1] }},
		{"author", func(tx *Transaction) { tx.AuthorDID = didB }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			stx := Genesis(id.DID, 0).Sign(id)
			c.mutate(&stx.Payload)
			err := Verify(stx)
			var serr *SignatureInvalidError
			tassert(t, errors.As(err, &serr), "expected *SignatureInvalidError, got %v", err)
			tassert(t, FailedCheck(err) == CheckSignature, "got %q", FailedCheck(err))
		})
	}
}

func TestWrongKey(t *testing.T) {
	a := mkid(t, seedA)
	b := mkid(t, seedB)
	tassert(t, b.DID == didB, "got %s", b.DID)
	stx := Genesis(a.DID, 0).Sign(a)

	err := VerifyWith(stx, b.Public)
	var serr *SignatureInvalidError
	tassert(t, errors.As(err, &serr), "expected *SignatureInvalidError, got %v", err)

	err = VerifyWith(stx, a.Public)
	tassert(t, err == nil, "%v", err)

	// payload names a, but b signed it
	forged := Genesis(a.DID, 0).Sign(b)
	err = Verify(forged)
	tassert(t, errors.As(err, &serr), "expected *SignatureInvalidError, got %v", err)
}

func TestBalanceBoundary(t *testing.T) {
	tx := Genesis(didA, 0)
	err := VerifyBalance(&tx)
	tassert(t, err == nil, "%v", err)

	debits, credits, err := Balance(&tx)
	tassert(t, err == nil, "%v", err)
	tassert(t, debits.Equal(decimal.RequireFromString("10000")), "got %s", debits)
	tassert(t, credits.Equal(debits), "got %s", credits)

	tx = imbalanced(didA)
	err = VerifyBalance(&tx)
	var ierr *ImbalanceError
	tassert(t, errors.As(err, &ierr), "expected *ImbalanceError, got %v", err)
	tassert(t, ierr.TotalDebits.Equal(decimal.RequireFromString("10000.00")), "got %s", ierr.TotalDebits)
	tassert(t, ierr.TotalCredits.Equal(decimal.RequireFromString("9999.99")), "got %s", ierr.TotalCredits)
	msg := err.Error()
	tassert(t, strings.Contains(msg, "10000.00") && strings.Contains(msg, "9999.99"), "got %q", msg)
	tassert(t, FailedCheck(err) == CheckBalance, "got %q", FailedCheck(err))
}

func TestBalanceExact(t *testing.T) {
	// 0.1 + 0.2 == 0.3 must hold exactly
	tx := Transaction{Entries: []JournalEntry{
		{AccountID: "1", Debit: "0.1", Credit: "0"},
		{AccountID: "2", Debit: "0.2", Credit: "0"},
		{AccountID: "3", Debit: "0", Credit: "0.3"},
	}}
	err := VerifyBalance(&tx)
	tassert(t, err == nil, "%v", err)

	// and a difference far below any float epsilon must not
	tx.Entries[2].Credit = "0.3000000000000000000001"
	err = VerifyBalance(&tx)
	tassert(t, FailedCheck(err) == CheckBalance, "got %v", err)

	// no entries balance trivially
	err = VerifyBalance(&Transaction{})
	tassert(t, err == nil, "%v", err)
}

func TestAmountFormat(t *testing.T) {
	bad := []string{"abc", "", "-1.00", "+1", "1e3", ".5", "1.", " 1", "1,000.00", "0x10", "NaN"}
	for _, amt := range bad {
		tx := Genesis(didA, 0)
		tx.Entries[1].Credit = amt
		err := VerifyBalance(&tx)
		var aerr *AmountFormatError
		tassert(t, errors.As(err, &aerr), "%q: expected *AmountFormatError, got %v", amt, err)
		tassert(t, aerr.Index == 1 && aerr.Field == "credit" && aerr.Value == amt, "got %#v", aerr)
		tassert(t, aerr.AccountID == "30100", "got %#v", aerr)
	}
	good := []string{"0", "12", "0.001", "007.50"}
	for _, amt := range good {
		tx := Transaction{Entries: []JournalEntry{{Debit: amt, Credit: amt}}}
		err := VerifyBalance(&tx)
		tassert(t, err == nil, "%q: %v", amt, err)
	}
}

func TestMalformedAmountSigned(t *testing.T) {
	id := mkid(t, seedA)
	tx := Genesis(id.DID, 0)
	tx.Entries[0].Debit = "abc"
	err := Verify(tx.Sign(id))
	var aerr *AmountFormatError
	tassert(t, errors.As(err, &aerr), "expected *AmountFormatError, got %v", err)
	tassert(t, aerr.Field == "debit" && aerr.Index == 0, "got %#v", aerr)
	tassert(t, FailedCheck(err) == CheckAmountFormat, "got %q", FailedCheck(err))
}

func TestMalformedIdentifier(t *testing.T) {
	cases := []struct {
		author string
		reason error
	}{
		{"did:web:example.com", did.ErrMissingPrefix},
		{"6MktwupdmLXVVqTzCw4i46r4uGyosGXRnR3XjN4Zq7oMMsw", did.ErrMissingPrefix},
		{"did:key:z6LSrApwZptxFR4jy6U8Z8exYPwTqSXniWLqihApE1oK9WsK", did.ErrCodec},
		{"did:key:z0OIl", did.ErrBase58},
		{"did:key:z6Mkeb4rtEhc8DUtvt5ehaVjdx3TLbQPpnTArkXhqfb1Mq75", did.ErrKeyPoint},
	}
	for _, c := range cases {
		// the signature is malformed too; the identity check must win
		stx := &SignedTransaction{Payload: Genesis(c.author, 0), Signature: "not hex"}
		err := Verify(stx)
		var ierr *IdentityError
		tassert(t, errors.As(err, &ierr), "%s: expected *IdentityError, got %v", c.author, err)
		tassert(t, errors.Is(err, c.reason), "%s: expected %v, got %v", c.author, c.reason, err)
		var derr *did.DecodeError
		tassert(t, errors.As(err, &derr), "expected *did.DecodeError inside, got %v", err)
		tassert(t, FailedCheck(err) == CheckIdentity, "got %q", FailedCheck(err))
	}
}

func TestSignatureFormat(t *testing.T) {
	for _, sig := range []string{"", "not hex", genesisSig[:126], genesisSig + "00", genesisSig[:127]} {
		stx := &SignedTransaction{Payload: Genesis(didA, 0), Signature: sig}
		err := Verify(stx)
		var ferr *SignatureFormatError
		tassert(t, errors.As(err, &ferr), "%q: expected *SignatureFormatError, got %v", sig, err)
		tassert(t, FailedCheck(err) == CheckSignatureFormat, "got %q", FailedCheck(err))
	}

	// uppercase hex is still hex
	stx := &SignedTransaction{Payload: Genesis(didA, 0), Signature: strings.ToUpper(genesisSig)}
	err := Verify(stx)
	tassert(t, err == nil, "%v", err)
}

func TestVerifyAll(t *testing.T) {
	id := mkid(t, seedA)
	stx := imbalanced(id.DID).Sign(id)
	stx.Payload.Memo = "changed"

	// short-circuit stops at the signature
	err := Verify(stx)
	tassert(t, FailedCheck(err) == CheckSignature, "got %v", err)

	// full diagnostics report both
	err = VerifyAll(stx)
	errs := multierr.Errors(err)
	tassert(t, len(errs) == 2, "expected 2 errors, got %d: %v", len(errs), err)
	tassert(t, FailedCheck(errs[0]) == CheckSignature, "got %v", errs[0])
	tassert(t, FailedCheck(errs[1]) == CheckBalance, "got %v", errs[1])
}

func TestEndToEnd(t *testing.T) {
	id := mkid(t, seedA)
	stx := Genesis(id.DID, 0).Sign(id)

	buf, err := stx.Marshal()
	tassert(t, err == nil, "%v", err)
	got, err := Unmarshal(buf)
	tassert(t, err == nil, "%v", err)
	err = Verify(got)
	tassert(t, err == nil, "%v", err)

	// flip each signature character in turn
	txt := string(buf)
	start := strings.Index(txt, stx.Signature)
	tassert(t, start > 0, "signature not found in envelope")
	for i := 0; i < len(stx.Signature); i++ {
		flipped := []byte(txt)
		c := flipped[start+i]
		if c == '0' {
			flipped[start+i] = '1'
		} else {
			flipped[start+i] = '0'
		}
		got, err := Unmarshal(flipped)
		tassert(t, err == nil, "%v", err)
		err = Verify(got)
		check := FailedCheck(err)
		tassert(t, check == CheckSignature || check == CheckSignatureFormat,
			"flip at %d: expected signature failure, got %v", i, err)
	}

	// a non-hex character is a format error
	flipped := []byte(txt)
	flipped[start] = 'g'
	got, err = Unmarshal(flipped)
	tassert(t, err == nil, "%v", err)
	err = Verify(got)
	tassert(t, FailedCheck(err) == CheckSignatureFormat, "got %v", err)
}

func TestEnvelope(t *testing.T) {
	id := mkid(t, seedA)
	stx := Genesis(id.DID, 0).Sign(id)
	buf, err := stx.Marshal()
	tassert(t, err == nil, "%v", err)
	txt := string(buf)
	for _, want := range []string{
		`"payload": {`,
		`"timestamp": 1730814442`,
		`"author_did": "` + didA + `"`,
		`"account_id": "10100"`,
		`"signature": "` + genesisSig + `"`,
	} {
		tassert(t, strings.Contains(txt, want), "missing %s in\n%s", want, txt)
	}
	tassert(t, strings.HasSuffix(txt, "}\n"), "no trailing newline")

	_, err = Unmarshal([]byte(`{"payload": {"timestamp": -1}}`))
	tassert(t, err != nil, "negative timestamp accepted")
	_, err = Unmarshal([]byte(`{} {}`))
	tassert(t, err != nil, "trailing data accepted")
}

func TestEnvelopeKeys(t *testing.T) {
	id := mkid(t, seedA)
	buf, err := Genesis(id.DID, 0).Sign(id).Marshal()
	tassert(t, err == nil, "%v", err)
	txt := string(buf)

	bad := []struct {
		name string
		old  string
		new  string
	}{
		{"case", `"signature":`, `"Signature":`},
		{"nested case", `"account_id":`, `"Account_ID":`},
		{"duplicate", `"payload": {`, `"signature": "00",` + "\n" + `  "payload": {`},
		{"nested duplicate", `"memo":`, `"memo": "x",` + "\n" + `    "memo":`},
	}
	for _, c := range bad {
		edited := strings.Replace(txt, c.old, c.new, 1)
		tassert(t, edited != txt, "%s: no edit", c.name)
		_, err := Unmarshal([]byte(edited))
		tassert(t, err != nil, "%s: accepted\n%s", c.name, edited)
	}

	// unknown keys are ignored
	edited := strings.Replace(txt, `"payload": {`, `"extra": [1, {"memo": 2}],`+"\n"+`  "payload": {`, 1)
	stx, err := Unmarshal([]byte(edited))
	tassert(t, err == nil, "%v", err)
	err = Verify(stx)
	tassert(t, err == nil, "%v", err)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	id := mkid(t, seedA)
	stx := Genesis(id.DID, 0).Sign(id)

	fn := filepath.Join(dir, "genesis_transaction.json")
	err := WriteFile(fn, stx)
	tassert(t, err == nil, "%v", err)
	got, err := ReadFile(fn)
	tassert(t, err == nil, "%v", err)
	tassert(t, got.Signature == stx.Signature, "got %s", got.Signature)
	err = Verify(got)
	tassert(t, err == nil, "%v", err)

	_, err = ReadFile(filepath.Join(dir, "missing.json"))
	var nerr *NotFoundError
	tassert(t, errors.As(err, &nerr), "expected *NotFoundError, got %v", err)

	corrupt := filepath.Join(dir, "corrupt.json")
	err = ioutil.WriteFile(corrupt, []byte(`{"payload": `), 0644)
	tassert(t, err == nil, "%v", err)
	_, err = ReadFile(corrupt)
	var cerr *CorruptError
	tassert(t, errors.As(err, &cerr), "expected *CorruptError, got %v", err)
	tassert(t, FailedCheck(err) == CheckNone, "got %q", FailedCheck(err))
}

func TestMsgpack(t *testing.T) {
	id := mkid(t, seedA)
	stx := Genesis(id.DID, 0).Sign(id)
	buf, err := stx.MarshalMsgpack()
	tassert(t, err == nil, "%v", err)

	got := &SignedTransaction{}
	err = got.UnmarshalMsgpack(buf)
	tassert(t, err == nil, "%v", err)
	tassert(t, got.Signature == stx.Signature, "got %s", got.Signature)
	tassert(t, bytes.Equal(got.Payload.Canonical(), stx.Payload.Canonical()), "payload changed on the wire")
	err = Verify(got)
	tassert(t, err == nil, "%v", err)
}

func TestConcurrentVerify(t *testing.T) {
	id := mkid(t, seedA)
	stxs := make([]*SignedTransaction, 32)
	for i := range stxs {
		stxs[i] = Genesis(id.DID, uint64(i+1)).Sign(id)
	}
	var wg sync.WaitGroup
	errs := make(chan error, len(stxs))
	for _, stx := range stxs {
		wg.Add(1)
		go func(stx *SignedTransaction) {
			defer wg.Done()
			err := Verify(stx)
			if err != nil {
				errs <- fmt.Errorf("%d: %v", stx.Payload.Timestamp, err)
			}
		}(stx)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
