package db

import (
	"github.com/pkg/errors"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/trueledger/ledger"
)

// each signed transaction is stored as one object of class tx,
// holding the same envelope bytes ledger.WriteFile would produce
const txClass = "tx"

// PutTx stores the envelope for stx and returns its path.  The store
// does not verify; callers decide what they are willing to keep.
func (db *Db) PutTx(algo string, stx *ledger.SignedTransaction) (path *Path, err error) {
	defer Return(&err)
	buf, err := stx.Marshal()
	Ck(err)
	return db.PutBlob(txClass, algo, buf)
}

// GetTx loads the transaction stored at path.  A stored object that
// does not parse is reported as a *ledger.CorruptError.
func (db *Db) GetTx(path *Path) (stx *ledger.SignedTransaction, err error) {
	if path.Class != txClass {
		return nil, errors.Errorf("not a transaction: %s", path.Canon)
	}
	buf, err := db.GetBlob(path)
	if err != nil {
		return nil, err
	}
	stx, err = ledger.Unmarshal(buf)
	if err != nil {
		return nil, &ledger.CorruptError{Name: path.Canon, Err: err}
	}
	return
}
