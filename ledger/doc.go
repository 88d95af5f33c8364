/*

Package ledger defines a signed double-entry transaction and the
protocol for producing and checking one.

Vocabulary:

- entry: one accounting line; an account id plus debit and credit
  amounts written as exact decimal strings
- payload: a Transaction; timestamp, author did, ordered entries, memo
- canonical form: the fixed JSON byte layout of a payload, see
  Transaction.Canonical; this is the only thing that is hashed
- hash: SHA-256 of the canonical form
- signature: Ed25519 signature of the hash by the author, stored as hex
  next to the payload in a SignedTransaction
- envelope: the persisted JSON document holding payload and signature

Producer:

	id, _ := did.Generate(rand.Reader)
	stx := ledger.Genesis(id.DID, 0).Sign(id)
	err := ledger.WriteFile("genesis_transaction.json", stx)

Verifier:

	stx, err := ledger.ReadFile("genesis_transaction.json")
	err = ledger.Verify(stx)
	fmt.Println(ledger.FailedCheck(err))

Everything here is a pure function of its inputs except ReadFile and
WriteFile, and is safe for concurrent use.

*/

package ledger
