package ledger

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// amounts are plain non-negative decimals: no sign, no exponent, and
// at least one digit on each side of an optional point
var amountRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// Balance returns the exact total debits and credits of tx.
func Balance(tx *Transaction) (debits, credits decimal.Decimal, err error) {
	debits, credits, _, err = sum(tx)
	return
}

// sum also returns the widest number of fractional digits seen, so
// totals can be reported the way the entries were written.
func sum(tx *Transaction) (debits, credits decimal.Decimal, scale int32, err error) {
	debits = decimal.Zero
	credits = decimal.Zero
	for i, e := range tx.Entries {
		var d, c decimal.Decimal
		d, err = parseAmount(i, e, "debit", e.Debit)
		if err != nil {
			return
		}
		c, err = parseAmount(i, e, "credit", e.Credit)
		if err != nil {
			return
		}
		debits = debits.Add(d)
		credits = credits.Add(c)
		if -d.Exponent() > scale {
			scale = -d.Exponent()
		}
		if -c.Exponent() > scale {
			scale = -c.Exponent()
		}
	}
	return
}

func parseAmount(i int, e JournalEntry, field, txt string) (amt decimal.Decimal, err error) {
	fail := &AmountFormatError{Index: i, AccountID: e.AccountID, Field: field, Value: txt}
	if !amountRe.MatchString(txt) {
		return decimal.Zero, fail
	}
	amt, err = decimal.NewFromString(txt)
	if err != nil {
		return decimal.Zero, fail
	}
	return amt, nil
}
