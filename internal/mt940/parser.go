// Package mt940 reads SWIFT MT940 account statements.
package mt940

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/stmtimport/internal/charset"
	"github.com/cleared-dev/stmtimport/internal/model"
)

const formatName = "mt940"

// Parser reads MT940 files as exported by most European banks.
type Parser struct{}

// Format returns the parser name.
func (p *Parser) Format() string { return formatName }

// Detect reports whether head looks like an MT940 message.
func (p *Parser) Detect(head []byte) bool {
	if !bytes.Contains(head, []byte(":20:")) {
		return false
	}
	for _, tag := range []string{":25:", ":28C:", ":60F:", ":61:"} {
		if bytes.Contains(head, []byte(tag)) {
			return true
		}
	}
	return false
}

// line is a physical line, or after merging a tagged line plus its
// continuation lines. num is the source line number of the first.
type line struct {
	text string
	num  int
	cont []string
}

// joined returns the line with its continuations appended.
func (l line) joined() string {
	return l.text + strings.Join(l.cont, "")
}

// ParseFile reads every record of an MT940 file. Structural errors abort
// the whole file; only unparseable balances are reported as diagnostics.
func ParseFile(r io.Reader, opts model.ParseOptions) (*model.Mt940File, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading MT940: %w", err)
	}
	fallback := opts.DefaultEncoding
	if fallback == "" {
		fallback = charset.Latin1
	}
	text, enc, err := charset.Decode(raw, opts.Encoding, fallback)
	if err != nil {
		return nil, fmt.Errorf("decoding MT940: %w", err)
	}

	file := &model.Mt940File{Encoding: enc}
	for _, lines := range splitRecords(text) {
		rec, notes, err := parseRecord(lines)
		if err != nil {
			return nil, err
		}
		file.Diagnostics = append(file.Diagnostics, notes...)
		file.Records = append(file.Records, rec)
	}
	return file, nil
}

// Parse reads an MT940 file into a statement. The account label is taken
// from the first record carrying one.
func (p *Parser) Parse(r io.Reader, opts model.ParseOptions) (*model.Statement, error) {
	file, err := ParseFile(r, opts)
	if err != nil {
		return nil, err
	}

	st := &model.Statement{Format: formatName, Encoding: file.Encoding, Diagnostics: file.Diagnostics}
	for i, rec := range file.Records {
		if st.Account.Label == "" && rec.AccountLabel != "" {
			st.Account.Label = strings.TrimSpace(rec.AccountLabel)
			st.Account.AccountID = st.Account.Label
		}
		if i == 0 && rec.Opening != nil {
			st.Start = rec.Opening.Date
			st.Currency = rec.Opening.Currency
		}
		if rec.Closing != nil {
			st.End = rec.Closing.Date
			st.LedgerBalance = &model.Balance{Amount: rec.Closing.Signed(), AsOf: rec.Closing.Date}
		}
		if rec.Available != nil {
			st.AvailBalance = &model.Balance{Amount: rec.Available.Signed(), AsOf: rec.Available.Date}
		}
		for _, e := range rec.Entries {
			if err := st.Add(e); err != nil {
				if err := st.Skip(err, opts.Strict); err != nil {
					return nil, err
				}
			}
		}
	}
	return st, nil
}

// splitRecords cuts the text at lines starting with '-'. A trailing record
// without a separator is kept; records with no content are dropped.
func splitRecords(text string) [][]line {
	var records [][]line
	var cur []line
	for i, l := range strings.Split(text, "\n") {
		l = strings.TrimRight(l, "\r")
		switch {
		case strings.HasPrefix(l, "-"):
			if len(cur) > 0 {
				records = append(records, cur)
			}
			cur = nil
		case strings.TrimSpace(l) == "":
		default:
			cur = append(cur, line{text: l, num: i + 1})
		}
	}
	if len(cur) > 0 {
		records = append(records, cur)
	}
	return records
}
