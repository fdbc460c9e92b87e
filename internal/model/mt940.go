package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Mt940Balance is a :60:, :62: or :64: balance line.
type Mt940Balance struct {
	Mark     CreditDebit
	Date     time.Time
	Currency string
	Amount   decimal.Decimal
}

// Signed applies the credit/debit mark.
func (b Mt940Balance) Signed() decimal.Decimal {
	if b.Mark == Debit {
		return b.Amount.Neg()
	}
	return b.Amount
}

// Mt940Record is one '-'-terminated statement message.
type Mt940Record struct {
	Header          []string
	Reference       string
	AccountLabel    string
	StatementNumber string
	Opening         *Mt940Balance
	Closing         *Mt940Balance
	Available       *Mt940Balance
	// Information is :86: text that precedes the first :61:.
	Information string
	Entries     []Mt940Entry
}

// Mt940File is an ordered sequence of records.
type Mt940File struct {
	Encoding    string
	Records     []Mt940Record
	Diagnostics []Diagnostic
}

// Entries flattens all records' entries in file order.
func (f *Mt940File) Entries() []Mt940Entry {
	var out []Mt940Entry
	for _, r := range f.Records {
		out = append(out, r.Entries...)
	}
	return out
}
