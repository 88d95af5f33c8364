package ledger

// JournalEntry is one accounting line.  Amounts are kept as decimal
// strings so that no precision is lost between producer and verifier.
// Conventionally only one of Debit or Credit is non-zero, but that is
// not enforced here; only the transaction as a whole must balance.
type JournalEntry struct {
	AccountID string `json:"account_id" msgpack:"account_id"` // e.g. "10100" (Assets:Cash)
	Debit     string `json:"debit" msgpack:"debit"`
	Credit    string `json:"credit" msgpack:"credit"`
}

// Transaction is the signed payload.  Entry order is part of the
// canonical form, so reordering entries changes the hash.
type Transaction struct {
	Timestamp uint64         `json:"timestamp" msgpack:"timestamp"` // seconds since epoch
	AuthorDID string         `json:"author_did" msgpack:"author_did"`
	Entries   []JournalEntry `json:"entries" msgpack:"entries"`
	Memo      string         `json:"memo" msgpack:"memo"`
}

// SignedTransaction bundles a payload with a detached signature over
// the payload's canonical hash.
type SignedTransaction struct {
	Payload   Transaction `json:"payload" msgpack:"payload"`
	Signature string      `json:"signature" msgpack:"signature"` // hex
}

// GenesisTimestamp is the timestamp Genesis uses when given zero.
const GenesisTimestamp = 1730814442

// GenesisMemo describes the sample transaction.
const GenesisMemo = "Initial capital contribution by owner."

// Genesis assembles the sample transaction: the owner's initial
// capital contribution, debiting cash and crediting owner's capital.
func Genesis(author string, ts uint64) Transaction {
	if ts == 0 {
		ts = GenesisTimestamp
	}
	return Transaction{
		Timestamp: ts,
		AuthorDID: author,
		Memo:      GenesisMemo,
		Entries: []JournalEntry{
			{AccountID: "10100", Debit: "10000.00", Credit: "0.00"}, // Assets:Cash
			{AccountID: "30100", Debit: "0.00", Credit: "10000.00"}, // Equity:Owner's Capital
		},
	}
}

// Clone returns a deep copy of tx.
func (tx Transaction) Clone() Transaction {
	out := tx
	if tx.Entries != nil {
		out.Entries = make([]JournalEntry, len(tx.Entries))
		copy(out.Entries, tx.Entries)
	}
	return out
}
