package ofx

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/charset"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// Parser reads OFX 1.x and 2.x bank, credit card and investment-cash
// statements.
type Parser struct{}

// Format returns the parser name.
func (p *Parser) Format() string { return formatName }

// Detect reports whether head looks like an OFX file of either version.
func (p *Parser) Detect(head []byte) bool { return IsV1(head) || IsV2(head) }

// Parse reads a whole OFX file. Version 1 input is converted to XML first.
func (p *Parser) Parse(r io.Reader, opts model.ParseOptions) (*model.Statement, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading OFX: %w", err)
	}

	if IsV1(raw) {
		conv, err := ConvertV1ToV2(raw, opts)
		if err != nil {
			return nil, err
		}
		st, err := ParseXML(strings.NewReader(conv.XML), opts)
		if err != nil {
			return nil, err
		}
		st.Encoding = conv.Encoding
		st.Version = conv.Header.Version
		return st, nil
	}

	bom, rest := charset.SniffBOM(raw)
	override := bom
	if override == "" {
		override = opts.Encoding
	}
	if override != "" {
		text, enc, err := charset.Decode(rest, override, "")
		if err != nil {
			return nil, fmt.Errorf("decoding OFX: %w", err)
		}
		st, err := parseXML(strings.NewReader(text), true, opts)
		if err != nil {
			return nil, err
		}
		st.Encoding = enc
		return st, nil
	}
	return parseXML(bytes.NewReader(rest), false, opts)
}

// ParseXML reads an OFX 2.x document, or the output of ConvertV1ToV2.
func ParseXML(r io.Reader, opts model.ParseOptions) (*model.Statement, error) {
	return parseXML(r, false, opts)
}

func parseXML(r io.Reader, decoded bool, opts model.ParseOptions) (*model.Statement, error) {
	doc, err := readTree(r, decoded)
	if err != nil {
		return nil, err
	}

	root := doc.root.child("OFX")
	if root == nil {
		return nil, missing("OFX", 0)
	}

	st := &model.Statement{Format: formatName, Version: doc.version, Encoding: charset.UTF8}
	readSignon(st, root.path("SIGNONMSGSRSV1", "SONRS"))

	stmts := statements(root)
	if len(stmts) == 0 {
		return nil, missing("STMTRS", root.line)
	}
	for _, extra := range stmts[1:] {
		st.Note(extra.line, "", fmt.Sprintf("additional <%s> ignored", extra.name))
	}

	if err := readStatement(st, root, stmts[0], opts); err != nil {
		return nil, err
	}
	return st, nil
}

func readSignon(st *model.Statement, sonrs *node) {
	if sonrs == nil {
		return
	}
	st.Status = readStatus(sonrs.child("STATUS"))
	st.Language = sonrs.value("LANGUAGE")
	fi := sonrs.child("FI")
	st.Institution = model.Institution{Org: fi.value("ORG"), FID: fi.value("FID")}
}

func readStatus(n *node) model.Status {
	return model.Status{
		Code:     n.value("CODE"),
		Severity: n.value("SEVERITY"),
		Message:  n.value("MESSAGE"),
	}
}

// statements collects every statement response in message-set order.
func statements(root *node) []*node {
	var out []*node
	for _, rs := range root.path("BANKMSGSRSV1").all("STMTTRNRS") {
		if s := rs.child("STMTRS"); s != nil {
			out = append(out, s)
		}
	}
	for _, rs := range root.path("CREDITCARDMSGSRSV1").all("CCSTMTTRNRS") {
		if s := rs.child("CCSTMTRS"); s != nil {
			out = append(out, s)
		}
	}
	for _, rs := range root.path("INVSTMTMSGSRSV1").all("INVSTMTTRNRS") {
		if s := rs.child("INVSTMTRS"); s != nil {
			out = append(out, s)
		}
	}
	return out
}

func readStatement(st *model.Statement, root, stmt *node, opts model.ParseOptions) error {
	st.Currency = stmt.value("CURDEF")
	readAccount(st, stmt)

	var recs []model.OfxTransaction
	add := func(txn model.OfxTransaction, err error) error {
		if err == nil {
			recs = append(recs, txn)
			return nil
		}
		return st.Skip(err, opts.Strict)
	}

	if stmt.name == "INVSTMTRS" {
		list := stmt.child("INVTRANLIST")
		readRange(st, list)
		secs := readSecurities(root)
		for _, c := range list.kids() {
			switch {
			case c.name == "DTSTART" || c.name == "DTEND":
			case c.name == "INVBANKTRAN":
				for _, n := range c.all("STMTTRN") {
					if err := add(readTransaction(st, n)); err != nil {
						return err
					}
				}
			case investmentActions[c.name]:
				if err := add(readInvestment(c, secs)); err != nil {
					return err
				}
			default:
				st.Note(c.line, "", fmt.Sprintf("investment transaction <%s> not imported", c.name))
			}
		}
		recs = collapseReinvested(recs)
	} else {
		list := stmt.child("BANKTRANLIST")
		readRange(st, list)
		for _, n := range list.all("STMTTRN") {
			if err := add(readTransaction(st, n)); err != nil {
				return err
			}
		}
	}

	st.LedgerBalance = readBalance(st, stmt.child("LEDGERBAL"))
	st.AvailBalance = readBalance(st, stmt.child("AVAILBAL"))

	for _, txn := range recs {
		if err := st.Add(txn); err != nil {
			if err := st.Skip(err, opts.Strict); err != nil {
				return err
			}
		}
	}
	return nil
}

func readAccount(st *model.Statement, stmt *node) {
	switch {
	case stmt.child("BANKACCTFROM") != nil:
		a := stmt.child("BANKACCTFROM")
		st.Account = model.StatementAccount{
			BankID:      a.value("BANKID"),
			BranchID:    a.value("BRANCHID"),
			AccountID:   a.value("ACCTID"),
			AccountType: a.value("ACCTTYPE"),
		}
		if t := st.Account.AccountType; t != "" {
			if _, err := ofxgo.NewAcctType(t); err != nil {
				st.Note(a.line, "", fmt.Sprintf("unknown ACCTTYPE %q", t))
			}
		}
	case stmt.child("CCACCTFROM") != nil:
		st.Account = model.StatementAccount{
			AccountID:   stmt.child("CCACCTFROM").value("ACCTID"),
			AccountType: "CREDITCARD",
		}
	case stmt.child("INVACCTFROM") != nil:
		a := stmt.child("INVACCTFROM")
		st.Account = model.StatementAccount{
			BankID:      a.value("BROKERID"),
			AccountID:   a.value("ACCTID"),
			AccountType: "INVESTMENT",
		}
	}
	st.Account.Label = st.Account.AccountID
}

func readRange(st *model.Statement, list *node) {
	if list == nil {
		return
	}
	if v := list.value("DTSTART"); v != "" {
		if d, err := parseDate(v); err == nil {
			st.Start = d
		} else {
			st.Note(list.line, model.KindUnparseableDate, fmt.Sprintf("DTSTART %q", v))
		}
	}
	if v := list.value("DTEND"); v != "" {
		if d, err := parseDate(v); err == nil {
			st.End = d
		} else {
			st.Note(list.line, model.KindUnparseableDate, fmt.Sprintf("DTEND %q", v))
		}
	}
}

func readBalance(st *model.Statement, n *node) *model.Balance {
	if n == nil {
		return nil
	}
	amt, err := parseAmount(n.value("BALAMT"))
	if err != nil {
		st.Note(n.line, model.KindUnparseableAmount, fmt.Sprintf("<%s> BALAMT %q", n.name, n.value("BALAMT")))
		return nil
	}
	b := &model.Balance{Amount: amt}
	if d, err := parseDate(n.value("DTASOF")); err == nil {
		b.AsOf = d
	}
	return b
}

func readTransaction(st *model.Statement, n *node) (model.OfxTransaction, error) {
	txn := model.OfxTransaction{
		TrnType:  n.value("TRNTYPE"),
		FITID:    n.value("FITID"),
		CheckNum: n.value("CHECKNUM"),
		Memo:     n.value("MEMO"),
		SIC:      n.value("SIC"),
		RefNum:   n.value("REFNUM"),
		PayeeID:  n.value("PAYEEID"),
		Line:     n.line,
	}
	if txn.TrnType != "" {
		if _, err := ofxgo.NewTrnType(txn.TrnType); err != nil {
			st.Note(n.line, "", fmt.Sprintf("unknown TRNTYPE %q", txn.TrnType))
		}
	}

	posted := n.value("DTPOSTED")
	if posted == "" {
		return txn, missing("DTPOSTED", n.line)
	}
	d, err := parseDate(posted)
	if err != nil {
		return txn, &model.ParseError{Kind: model.KindUnparseableDate, Format: formatName, Line: n.line, Tag: "DTPOSTED", Value: posted, Err: err}
	}
	txn.DatePosted = d

	for tag, dst := range map[string]**time.Time{"DTUSER": &txn.DateUser, "DTAVAIL": &txn.DateAvail} {
		v := n.value(tag)
		if v == "" {
			continue
		}
		d, err := parseDate(v)
		if err != nil {
			return txn, &model.ParseError{Kind: model.KindUnparseableDate, Format: formatName, Line: n.line, Tag: tag, Value: v, Err: err}
		}
		*dst = &d
	}

	amt := n.value("TRNAMT")
	if amt == "" {
		return txn, missing("TRNAMT", n.line)
	}
	txn.Amount, err = parseAmount(amt)
	if err != nil {
		return txn, &model.ParseError{Kind: model.KindUnparseableAmount, Format: formatName, Line: n.line, Tag: "TRNAMT", Value: amt, Err: err}
	}

	txn.Payee = collapseSpace(n.value("NAME"))
	if p := n.child("PAYEE"); p != nil {
		if name := p.value("NAME"); name != "" {
			txn.Payee = collapseSpace(name)
		} else if s := strings.TrimSpace(p.text); s != "" {
			txn.Payee = collapseSpace(s)
		}
	}

	for _, tag := range []string{"CURRENCY", "ORIGCURRENCY"} {
		if c := n.child(tag); c != nil {
			txn.Currency = c.value("CURSYM")
			if txn.Currency == "" {
				txn.Currency = strings.TrimSpace(c.text)
			}
		}
	}
	for _, tag := range []string{"BANKACCTTO", "CCACCTTO", "INVACCTTO"} {
		if c := n.child(tag); c != nil {
			txn.AccountTo = c.value("ACCTID")
		}
	}
	return txn, nil
}

func missing(tag string, line int) error {
	return &model.ParseError{Kind: model.KindMissingRequiredField, Format: formatName, Line: line, Tag: tag}
}

// parseAmount reads an OFX amount as an exact decimal. Some banks write
// French-style amounts ("1 234,56"), which are accepted as a fallback when
// the comma is the last separator.
func parseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}

	t := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f':
			return -1
		}
		return r
	}, s)
	if comma := strings.LastIndexByte(t, ','); comma >= 0 {
		if dot := strings.LastIndexByte(t, '.'); dot > comma || strings.Count(t, ",") > 1 {
			return decimal.Decimal{}, fmt.Errorf("parsing amount %q: ambiguous separators", s)
		}
		t = strings.ReplaceAll(t, ".", "")
		t = strings.Replace(t, ",", ".", 1)
	}
	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d, nil
}

// parseDate reads YYYYMMDD[HHMMSS[.XXX]][[gmt offset[:tz name]]] and keeps
// the calendar date only.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < 8 {
		return time.Time{}, fmt.Errorf("date %q too short", s)
	}
	d, err := time.Parse("20060102", s[:8])
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing date %q: %w", s, err)
	}

	rest := s[8:]
	if i := strings.IndexByte(rest, '['); i >= 0 {
		if !strings.HasSuffix(rest, "]") {
			return time.Time{}, fmt.Errorf("date %q: unterminated timezone", s)
		}
		rest = rest[:i]
	}
	clock, frac, _ := strings.Cut(rest, ".")
	if !allDigits(clock) || !allDigits(frac) || len(clock) > 6 {
		return time.Time{}, fmt.Errorf("date %q: bad time of day", s)
	}
	return model.DateOf(d), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
