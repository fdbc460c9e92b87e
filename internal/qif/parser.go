// Package qif reads Quicken Interchange Format files.
package qif

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cleared-dev/stmtimport/internal/charset"
	"github.com/cleared-dev/stmtimport/internal/model"
)

const (
	formatName = "qif"
	kindInvst  = "Invst"
)

var errNoAmount = errors.New("transaction has no amount")

// transactionKinds are the !Type: sections holding register transactions.
var transactionKinds = map[string]string{
	"bank":  "Bank",
	"cash":  "Cash",
	"ccard": "CCard",
	"invst": kindInvst,
	"oth a": "Oth A",
	"oth l": "Oth L",
}

type section int

const (
	sectionNone section = iota
	sectionTransactions
	sectionAccount
	sectionSkip
)

// Parser reads QIF register exports.
type Parser struct{}

// Format returns the parser name.
func (p *Parser) Format() string { return formatName }

// Detect reports whether head starts with a QIF header line.
func (p *Parser) Detect(head []byte) bool {
	_, head = charset.SniffBOM(head)
	head = bytes.TrimLeft(head, " \t\r\n")
	for _, prefix := range []string{"!type:", "!account", "!option:autoswitch"} {
		if len(head) >= len(prefix) && strings.EqualFold(string(head[:len(prefix)]), prefix) {
			return true
		}
	}
	return false
}

// Parse reads a QIF file. Dates are resolved after the whole file is read,
// since the day/month order can only be told from the full set of dates.
func (p *Parser) Parse(r io.Reader, opts model.ParseOptions) (*model.Statement, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading QIF: %w", err)
	}
	text, enc, err := charset.Decode(raw, opts.Encoding, opts.DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("decoding QIF: %w", err)
	}

	st := &model.Statement{Format: formatName, Encoding: enc}
	s := &scanner{st: st, opts: opts}
	for i, line := range strings.Split(text, "\n") {
		if err := s.line(i+1, strings.TrimRight(line, "\r")); err != nil {
			return nil, err
		}
	}
	if err := s.flush(); err != nil {
		return nil, err
	}

	raws := make([]string, 0, len(s.done))
	for _, q := range s.done {
		raws = append(raws, q.RawDate)
	}
	order := detectDateOrder(raws, opts.DateOrder)

	for _, q := range s.done {
		d, err := parseDate(q.RawDate, order)
		if err == nil {
			q.Date = d
			err = st.Add(q)
		} else {
			err = &model.ParseError{Kind: model.KindUnparseableDate, Format: formatName, Line: q.Line, Tag: "D", Value: q.RawDate, Err: err}
		}
		if err != nil {
			if err := st.Skip(err, opts.Strict); err != nil {
				return nil, err
			}
		}
	}
	return st, nil
}

// scanner is the line state machine.
type scanner struct {
	st   *model.Statement
	opts model.ParseOptions

	section section
	kind    string
	account string
	acct    model.StatementAccount
	cur     *builder
	done    []model.QifTransaction
}

func (s *scanner) line(n int, line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	if line[0] == '!' {
		if err := s.flush(); err != nil {
			return err
		}
		s.header(n, strings.TrimSpace(line))
		return nil
	}

	prefix, value := line[0], strings.TrimSpace(line[1:])
	switch s.section {
	case sectionNone:
		return &model.ParseError{
			Kind:   model.KindMalformedHeader,
			Format: formatName,
			Line:   n,
			Value:  line,
			Err:    errors.New("field before any !Type: header"),
		}
	case sectionSkip:
		return nil
	case sectionAccount:
		s.accountField(prefix, value)
		return nil
	}

	if prefix == '^' {
		return s.flush()
	}
	if s.cur == nil {
		s.cur = newBuilder(s.kind, s.account)
	}
	if !s.cur.field(prefix, value, n) {
		s.st.Note(n, model.KindUnknownField, fmt.Sprintf("unknown field %q", line))
	}
	return nil
}

func (s *scanner) header(n int, line string) {
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, "!type:"):
		name := strings.TrimSpace(line[len("!type:"):])
		if kind, ok := transactionKinds[strings.ToLower(name)]; ok {
			s.section = sectionTransactions
			s.kind = kind
			if s.st.Account.AccountType == "" {
				s.st.Account.AccountType = kind
			}
			return
		}
		s.section = sectionSkip
		s.st.Note(n, "", fmt.Sprintf("skipping !Type:%s section", name))
	case strings.HasPrefix(lower, "!account"):
		s.section = sectionAccount
		s.acct = model.StatementAccount{}
	case strings.HasPrefix(lower, "!option:autoswitch"), strings.HasPrefix(lower, "!clear:autoswitch"):
		// Account list markers; the !Account blocks carry the data.
	default:
		s.section = sectionSkip
		s.st.Note(n, "", fmt.Sprintf("skipping unknown header %q", line))
	}
}

func (s *scanner) accountField(prefix byte, value string) {
	switch prefix {
	case 'N':
		s.acct.AccountID = value
		s.acct.Label = value
	case 'T':
		s.acct.AccountType = value
	case '^':
		s.account = s.acct.Label
		if len(s.done) == 0 && s.cur == nil {
			s.st.Account = s.acct
		}
	}
}

// flush closes the transaction in progress, if any.
func (s *scanner) flush() error {
	b := s.cur
	s.cur = nil
	if b == nil || !b.started {
		return nil
	}
	txn, err := b.finish()
	if err != nil {
		return s.st.Skip(err, s.opts.Strict)
	}
	s.done = append(s.done, txn)
	return nil
}
