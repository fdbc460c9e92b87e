package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// ChaseParser parses Chase bank checking CSV exports.
type ChaseParser struct{}

const (
	chaseFormat     = "chase"
	chaseHeader     = "Details,Posting Date,Description,Amount,Type,Balance,Check or Slip #"
	chaseDateFormat = "01/02/2006"
	chaseNumFields  = 7
	chaseColDate    = 1
	chaseColDesc    = 2
	chaseColAmount  = 3
	chaseColType    = 4
	chaseColCheck   = 6
)

// Format returns the parser name.
func (p *ChaseParser) Format() string { return chaseFormat }

// Detect reports whether head starts with the Chase CSV header.
func (p *ChaseParser) Detect(head []byte) bool {
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	return bytes.HasPrefix(head, []byte(chaseHeader))
}

// Parse reads a Chase CSV. A row with a bad date or amount is skipped with
// a diagnostic unless opts.Strict is set.
func (p *ChaseParser) Parse(r io.Reader, opts model.ParseOptions) (*model.Statement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = chaseNumFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading chase CSV: %w", err)
	}

	st := &model.Statement{Format: chaseFormat, Encoding: "UTF-8", Currency: "USD"}
	if len(records) <= 1 {
		return st, nil
	}

	for i, rec := range records[1:] {
		txn, err := parseChaseRow(rec, i+2)
		if err != nil {
			if err := st.Skip(err, opts.Strict); err != nil {
				return nil, fmt.Errorf("row %d: %w", i+2, err)
			}
			continue
		}
		st.Transactions = append(st.Transactions, txn)
	}
	return st, nil
}

func parseChaseRow(rec []string, row int) (model.ImportTransaction, error) {
	date, err := time.Parse(chaseDateFormat, rec[chaseColDate])
	if err != nil {
		return model.ImportTransaction{}, &model.ParseError{
			Kind:   model.KindUnparseableDate,
			Format: chaseFormat,
			Line:   row,
			Value:  rec[chaseColDate],
			Err:    fmt.Errorf("parsing date %q: %w", rec[chaseColDate], err),
		}
	}

	amount, err := decimal.NewFromString(rec[chaseColAmount])
	if err != nil {
		return model.ImportTransaction{}, &model.ParseError{
			Kind:   model.KindUnparseableAmount,
			Format: chaseFormat,
			Line:   row,
			Value:  rec[chaseColAmount],
			Err:    fmt.Errorf("parsing amount %q: %w", rec[chaseColAmount], err),
		}
	}

	desc := rec[chaseColDesc]
	return model.ImportTransaction{
		ID:              uuid.NewString(),
		Amount:          amount,
		DatePosted:      date,
		CheckNumber:     strings.TrimSpace(rec[chaseColCheck]),
		Payee:           desc,
		ExternalID:      makeChaseRef(date, desc),
		TransactionType: rec[chaseColType],
		MatchState:      model.MatchNew,
	}, nil
}

// makeChaseRef creates a reference like chase_20250103_GITHUB.
func makeChaseRef(date time.Time, desc string) string {
	prefix := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, desc)
	if len(prefix) > 10 {
		prefix = prefix[:10]
	}
	return fmt.Sprintf("chase_%s_%s", date.Format("20060102"), prefix)
}
