package mt940

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

var tagPattern = regexp.MustCompile(`^:(\d{2}[A-Za-z]?):`)

// mergeLines folds untagged lines into the tagged line above them. Lines
// before the first tag are header lines and stay on their own.
func mergeLines(lines []line) []line {
	var out []line
	var cur *line
	for _, l := range lines {
		if tagPattern.MatchString(l.text) {
			if cur != nil {
				out = append(out, *cur)
			}
			c := l
			cur = &c
			continue
		}
		if cur == nil {
			out = append(out, l)
			continue
		}
		cur.cont = append(cur.cont, l.text)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out
}

func splitTag(text string) (string, string, bool) {
	m := tagPattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return strings.ToUpper(m[1]), text[len(m[0]):], true
}

// parseRecord builds one record. An entry is open from its :61: line until
// the next :61: or the end of the record.
func parseRecord(lines []line) (model.Mt940Record, []model.Diagnostic, error) {
	var rec model.Mt940Record
	var notes []model.Diagnostic
	var cur *model.Mt940Entry

	flush := func() {
		if cur != nil {
			rec.Entries = append(rec.Entries, *cur)
			cur = nil
		}
	}
	balance := func(l line, tag string) *model.Mt940Balance {
		value := l.joined()[len(tag)+2:]
		b, err := parseBalance(value)
		if err != nil {
			notes = append(notes, model.Diagnostic{
				Line:    l.num,
				Kind:    model.KindUnparseableAmount,
				Message: fmt.Sprintf(":%s: balance %q: %v", tag, value, err),
			})
			return nil
		}
		return b
	}

	for _, l := range mergeLines(lines) {
		tag, value, ok := splitTag(l.text)
		if !ok {
			rec.Header = append(rec.Header, l.text)
			continue
		}
		switch tag {
		case "20":
			rec.Reference = strings.TrimSpace(value + strings.Join(l.cont, ""))
		case "25":
			rec.AccountLabel = value + strings.Join(l.cont, "")
		case "28", "28C":
			rec.StatementNumber = strings.TrimSpace(value)
		case "60F", "60M":
			if b := balance(l, tag); b != nil && rec.Opening == nil {
				rec.Opening = b
			}
		case "62F", "62M":
			if b := balance(l, tag); b != nil {
				rec.Closing = b
			}
		case "64":
			rec.Available = balance(l, tag)
		case "61":
			flush()
			e, err := parseStatementLine(value, l.num)
			if err != nil {
				return model.Mt940Record{}, nil, err
			}
			e.Supplementary = strings.TrimSpace(strings.Join(l.cont, ""))
			e.AccountLabel = rec.AccountLabel
			cur = &e
		case "86":
			text := value + strings.Join(l.cont, "")
			if cur != nil {
				cur.Narrative += text
			} else {
				rec.Information += text
			}
		}
	}
	flush()
	return rec, notes, nil
}

// parseStatementLine reads the positional fields of a :61: line:
// value date, optional booking date, mark, amount, type code, references.
func parseStatementLine(s string, num int) (model.Mt940Entry, error) {
	e := model.Mt940Entry{Line: num}
	fail := func(kind model.ErrorKind, value string, err error) (model.Mt940Entry, error) {
		return model.Mt940Entry{}, &model.ParseError{Kind: kind, Format: formatName, Line: num, Tag: "61", Value: value, Err: err}
	}

	if len(s) < 6 {
		return fail(model.KindUnparseableDate, s, fmt.Errorf("value date too short"))
	}
	valuta, err := time.Parse("060102", s[:6])
	if err != nil {
		return fail(model.KindUnparseableDate, s[:6], err)
	}
	e.ValutaDate = valuta
	rest := s[6:]

	// A leading digit is taken to be an MMDD booking date. Nothing else in
	// the format tells the two apart.
	if rest != "" && isDigit(rest[0]) {
		if len(rest) < 4 {
			return fail(model.KindIncompleteRecord, s, fmt.Errorf("truncated booking date"))
		}
		e.BookingDateGuessed = true
		if d, ok := bookingDate(rest[:4], valuta); ok {
			e.BookingDate = &d
		}
		rest = rest[4:]
	}

	switch {
	case strings.HasPrefix(rest, "D"):
		e.Mark = model.Debit
	case strings.HasPrefix(rest, "C"):
		e.Mark = model.Credit
	default:
		return fail(model.KindUnsupportedOperation, truncate(rest, 2), fmt.Errorf("debit/credit mark not supported"))
	}
	rest = rest[1:]

	end := strings.IndexAny(rest, "NF")
	if end < 0 {
		return fail(model.KindIncompleteRecord, rest, fmt.Errorf("no transaction type after amount"))
	}
	amount := cleanAmount(rest[:end])
	if amount == "" {
		return fail(model.KindIncompleteRecord, rest[:end], fmt.Errorf("empty amount"))
	}
	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return fail(model.KindUnparseableAmount, rest[:end], err)
	}
	rest = rest[end:]

	n := min(4, len(rest))
	e.TypeCode, rest = rest[:n], rest[n:]

	cust, bank, _ := strings.Cut(rest, "//")
	e.CustomerRef = strings.TrimSpace(cust)
	e.BankRef = strings.TrimSpace(bank)
	return e, nil
}

// cleanAmount keeps digits and decimal separators, so a funds code
// letter before the amount is dropped. A comma becomes a point.
func cleanAmount(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case isDigit(c), c == '.':
			b.WriteByte(c)
		case c == ',':
			b.WriteByte('.')
		}
	}
	return b.String()
}

// bookingDate resolves MMDD against the value date, allowing for a
// booking date across a year end.
func bookingDate(mmdd string, valuta time.Time) (time.Time, bool) {
	t, err := time.Parse("0102", mmdd)
	if err != nil {
		return time.Time{}, false
	}
	year := valuta.Year()
	switch {
	case valuta.Month() == time.December && t.Month() == time.January:
		year++
	case valuta.Month() == time.January && t.Month() == time.December:
		year--
	}
	d := model.Date(year, t.Month(), t.Day())
	if d.Day() != t.Day() {
		// 29 February outside a leap year.
		return time.Time{}, false
	}
	return d, true
}

// parseBalance reads "C250131EUR1234,56".
func parseBalance(s string) (*model.Mt940Balance, error) {
	s = strings.TrimSpace(s)
	if len(s) < 11 {
		return nil, fmt.Errorf("too short")
	}
	b := &model.Mt940Balance{}
	switch s[0] {
	case 'C':
		b.Mark = model.Credit
	case 'D':
		b.Mark = model.Debit
	default:
		return nil, fmt.Errorf("unknown mark %q", s[:1])
	}
	d, err := time.Parse("060102", s[1:7])
	if err != nil {
		return nil, err
	}
	b.Date = d
	b.Currency = s[7:10]
	amount, err := decimal.NewFromString(cleanAmount(s[10:]))
	if err != nil {
		return nil, err
	}
	b.Amount = amount
	return b, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
