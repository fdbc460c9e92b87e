package qif

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// builder accumulates the fields of one transaction between ^ markers.
type builder struct {
	txn     model.QifTransaction
	started bool
	hasT    bool
	hasU    bool
	amountU decimal.Decimal
	err     error

	split     *model.QifSplit
	splitSeen map[byte]bool
}

func newBuilder(kind, account string) *builder {
	return &builder{txn: model.QifTransaction{Kind: kind, Account: account}}
}

// fail keeps the first error; the transaction is dropped when flushed.
func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// field applies one prefixed line. It reports false for an unknown prefix.
func (b *builder) field(prefix byte, value string, line int) bool {
	if !b.started {
		b.started = true
		b.txn.Line = line
	}
	switch prefix {
	case 'S', 'E', '$', '%':
		if prefix == '$' && b.txn.Kind == kindInvst {
			b.closeSplit()
			b.txn.TransferAmount = value
			return true
		}
		b.splitField(prefix, value, line)
		return true
	}

	b.closeSplit()
	switch prefix {
	case 'D':
		b.txn.RawDate = value
	case 'T':
		b.hasT = true
		b.setAmount(value, "T", line)
	case 'U':
		// U duplicates T; it must parse even when T is present.
		amt, err := parseMoney(value)
		if err != nil {
			b.fail(&model.ParseError{Kind: model.KindUnparseableAmount, Format: formatName, Line: line, Tag: "U", Value: value, Err: err})
			return true
		}
		b.hasU = true
		b.amountU = amt
	case 'P':
		b.txn.Payee = value
	case 'M':
		b.txn.Memo = value
	case 'L':
		b.txn.Category, b.txn.Transfer = splitCategory(value)
	case 'N':
		b.txn.Number = value
	case 'C':
		b.txn.Cleared = value
	case 'A':
		b.txn.Address = append(b.txn.Address, value)
	case 'Y':
		b.txn.Security = value
	case 'I':
		b.txn.Price = value
	case 'Q':
		b.txn.Quantity = value
	case 'O':
		b.txn.Commission = value
	default:
		return false
	}
	return true
}

func (b *builder) setAmount(value, tag string, line int) {
	amt, err := parseMoney(value)
	if err != nil {
		b.fail(&model.ParseError{Kind: model.KindUnparseableAmount, Format: formatName, Line: line, Tag: tag, Value: value, Err: err})
		return
	}
	b.txn.Amount = amt
}

// splitField fills the open split. S always starts a new split; E, $ and %
// start one when their field is already set.
func (b *builder) splitField(prefix byte, value string, line int) {
	if b.split == nil || prefix == 'S' || b.splitSeen[prefix] {
		b.closeSplit()
		b.split = &model.QifSplit{}
		b.splitSeen = make(map[byte]bool)
	}
	b.splitSeen[prefix] = true

	switch prefix {
	case 'S':
		b.split.Category, _ = splitCategory(value)
	case 'E':
		b.split.Memo = value
	case '$':
		amt, err := parseMoney(value)
		if err != nil {
			b.fail(&model.ParseError{Kind: model.KindUnparseableAmount, Format: formatName, Line: line, Tag: "$", Value: value, Err: err})
			return
		}
		b.split.Amount = amt
	case '%':
		b.split.Percent = strings.TrimSuffix(value, "%")
	}
}

func (b *builder) closeSplit() {
	if b.split == nil {
		return
	}
	b.txn.Splits = append(b.txn.Splits, *b.split)
	b.split = nil
	b.splitSeen = nil
}

// finish closes the transaction. The date is resolved later, once the
// date order of the whole file is known.
func (b *builder) finish() (model.QifTransaction, error) {
	b.closeSplit()
	if b.err != nil {
		return b.txn, b.err
	}
	if !b.hasT && b.hasU {
		b.txn.Amount = b.amountU
	}
	if !b.hasT && !b.hasU {
		return b.txn, &model.ParseError{Kind: model.KindIncompleteRecord, Format: formatName, Line: b.txn.Line, Tag: "T", Err: errNoAmount}
	}
	if strings.TrimSpace(b.txn.RawDate) == "" {
		return b.txn, &model.ParseError{Kind: model.KindMissingRequiredField, Format: formatName, Line: b.txn.Line, Tag: "D"}
	}
	return b.txn, nil
}
