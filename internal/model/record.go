package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Record is a format-native transaction. Implemented by OfxTransaction,
// QifTransaction and Mt940Entry only.
type Record interface {
	recordFormat() string
}

// OfxTransaction is one STMTTRN element.
type OfxTransaction struct {
	TrnType    string
	DatePosted time.Time
	DateUser   *time.Time
	DateAvail  *time.Time
	Amount     decimal.Decimal
	FITID      string
	CheckNum   string
	Payee      string
	Memo       string
	SIC        string
	RefNum     string
	PayeeID    string
	Currency   string
	AccountTo  string
	// Investment is set for INVTRANLIST buys, sells and income.
	Investment *Investment
	Line       int
}

// Investment carries the security side of an OFX investment transaction.
type Investment struct {
	Action       string // BUYSTOCK, SELLMF, INCOME, REINVEST...
	SecurityID   string
	SecurityType string // UNIQUEIDTYPE, usually CUSIP
	SecurityName string
	Ticker       string
	Units        decimal.Decimal
	UnitPrice    decimal.Decimal
	Commission   decimal.Decimal
	Fees         decimal.Decimal
	IncomeType   string
}

// QifTransaction is one ^-terminated QIF record.
type QifTransaction struct {
	Kind       string
	RawDate    string
	Date       time.Time
	Amount     decimal.Decimal
	Payee      string
	Memo       string
	Category   string
	Transfer   bool
	Number     string
	Cleared    string
	Address    []string
	Security   string
	Price      string
	Quantity   string
	Commission string
	// TransferAmount is the investment "$" field.
	TransferAmount string
	// Account is the name from the most recent !Account block.
	Account string
	Splits  []QifSplit
	Line    int
}

// QifSplit is one S/E/$ block of a split transaction.
type QifSplit struct {
	Category string
	Memo     string
	Amount   decimal.Decimal
	Percent  string
}

// HasSplits reports whether the transaction carries S lines.
func (q QifTransaction) HasSplits() bool {
	return len(q.Splits) > 0
}

// CreditDebit is the MT940 SollHabenKennung.
type CreditDebit string

const (
	Credit CreditDebit = "CREDIT"
	Debit  CreditDebit = "DEBIT"
)

// Mt940Entry is one :61: statement line plus its :86: narrative.
type Mt940Entry struct {
	ValutaDate  time.Time
	BookingDate *time.Time
	// BookingDateGuessed is set when the digits after the value date were
	// taken as a booking date; the format does not mark them unambiguously.
	BookingDateGuessed bool
	Mark               CreditDebit
	Amount             decimal.Decimal // always positive
	TypeCode           string
	CustomerRef        string
	BankRef            string
	// Supplementary holds the :61: text after the 16 character bank reference.
	Supplementary string
	Narrative     string
	AccountLabel  string
	Line          int
}

// SignedAmount applies the credit/debit mark to the amount.
func (e Mt940Entry) SignedAmount() decimal.Decimal {
	if e.Mark == Debit {
		return e.Amount.Neg()
	}
	return e.Amount
}

func (OfxTransaction) recordFormat() string { return "ofx" }
func (QifTransaction) recordFormat() string { return "qif" }
func (Mt940Entry) recordFormat() string     { return "mt940" }

// Normalize converts a format-native record into an ImportTransaction.
func Normalize(r Record) (ImportTransaction, error) {
	var t ImportTransaction
	switch rec := r.(type) {
	case OfxTransaction:
		t = ImportTransaction{
			Amount:          rec.Amount,
			DatePosted:      rec.DatePosted,
			DateUser:        rec.DateUser,
			CheckNumber:     rec.CheckNum,
			Payee:           rec.Payee,
			Memo:            rec.Memo,
			ExternalID:      rec.FITID,
			TransactionType: rec.TrnType,
			PayeeID:         rec.PayeeID,
			SIC:             rec.SIC,
			RefNum:          rec.RefNum,
			Currency:        rec.Currency,
			AccountTo:       rec.AccountTo,
			Investment:      rec.Investment,
		}
	case QifTransaction:
		t = ImportTransaction{
			Amount:      rec.Amount,
			DatePosted:  rec.Date,
			CheckNumber: rec.Number,
			Payee:       rec.Payee,
			Memo:        rec.Memo,
			Category:    rec.Category,
			AccountHint: rec.Account,
		}
		if rec.Transfer {
			t.AccountTo = rec.Category
		}
		for _, s := range rec.Splits {
			t.Splits = append(t.Splits, Split{
				Amount:   s.Amount,
				Memo:     s.Memo,
				Category: s.Category,
				Percent:  s.Percent,
			})
		}
	case Mt940Entry:
		t = ImportTransaction{
			Amount:          rec.SignedAmount(),
			DatePosted:      rec.ValutaDate,
			Payee:           rec.Narrative,
			Memo:            rec.Narrative,
			ExternalID:      rec.BankRef,
			AccountHint:     strings.TrimSpace(rec.AccountLabel),
			TransactionType: rec.TypeCode,
		}
	default:
		return ImportTransaction{}, fmt.Errorf("unknown record type %T", r)
	}
	if t.DatePosted.IsZero() {
		return ImportTransaction{}, fmt.Errorf("%s record: missing posted date", r.recordFormat())
	}
	t.ID = uuid.NewString()
	t.MatchState = MatchNew
	t.Source = r
	return t, nil
}
