package ofx

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// investmentActions are the INVTRANLIST aggregates imported as transactions.
var investmentActions = map[string]bool{
	"BUYSTOCK":  true,
	"BUYMF":     true,
	"BUYOTHER":  true,
	"SELLSTOCK": true,
	"SELLMF":    true,
	"SELLOTHER": true,
	"INCOME":    true,
	"REINVEST":  true,
}

type security struct {
	name   string
	ticker string
}

// readSecurities indexes SECLIST entries by UNIQUEID.
func readSecurities(root *node) map[string]security {
	secs := make(map[string]security)
	for _, info := range root.path("SECLISTMSGSRSV1", "SECLIST").kids() {
		si := info.child("SECINFO")
		id := si.path("SECID").value("UNIQUEID")
		if id == "" {
			continue
		}
		secs[id] = security{name: collapseSpace(si.value("SECNAME")), ticker: si.value("TICKER")}
	}
	return secs
}

// readInvestment maps a buy, sell or income aggregate. TOTAL is the cash
// amount, DTSETTLE the posted date and DTTRADE the user date.
func readInvestment(n *node, secs map[string]security) (model.OfxTransaction, error) {
	inv := n.find("INVTRAN")
	txn := model.OfxTransaction{
		TrnType: n.name,
		FITID:   inv.value("FITID"),
		Memo:    inv.value("MEMO"),
		Line:    n.line,
	}
	secID := n.find("SECID")
	info := &model.Investment{
		Action:       n.name,
		SecurityID:   secID.value("UNIQUEID"),
		SecurityType: secID.value("UNIQUEIDTYPE"),
		IncomeType:   n.findValue("INCOMETYPE"),
	}
	if s, ok := secs[info.SecurityID]; ok {
		info.SecurityName = s.name
		info.Ticker = s.ticker
	}
	txn.Investment = info

	trade, settle := inv.value("DTTRADE"), inv.value("DTSETTLE")
	if trade == "" && settle == "" {
		return txn, missing("DTTRADE", n.line)
	}
	if trade != "" {
		d, err := parseDate(trade)
		if err != nil {
			return txn, &model.ParseError{Kind: model.KindUnparseableDate, Format: formatName, Line: n.line, Tag: "DTTRADE", Value: trade, Err: err}
		}
		txn.DatePosted = d
		txn.DateUser = &d
	}
	if settle != "" {
		d, err := parseDate(settle)
		if err != nil {
			return txn, &model.ParseError{Kind: model.KindUnparseableDate, Format: formatName, Line: n.line, Tag: "DTSETTLE", Value: settle, Err: err}
		}
		txn.DatePosted = d
	}

	total := n.findValue("TOTAL")
	if total == "" {
		return txn, missing("TOTAL", n.line)
	}
	var err error
	if txn.Amount, err = parseAmount(total); err != nil {
		return txn, &model.ParseError{Kind: model.KindUnparseableAmount, Format: formatName, Line: n.line, Tag: "TOTAL", Value: total, Err: err}
	}

	for tag, dst := range map[string]*decimal.Decimal{
		"UNITS":      &info.Units,
		"UNITPRICE":  &info.UnitPrice,
		"COMMISSION": &info.Commission,
		"FEES":       &info.Fees,
	} {
		v := n.findValue(tag)
		if v == "" {
			continue
		}
		if *dst, err = parseAmount(v); err != nil {
			return txn, &model.ParseError{Kind: model.KindUnparseableAmount, Format: formatName, Line: n.line, Tag: tag, Value: v, Err: err}
		}
	}

	txn.Payee = firstOf(info.SecurityName, info.Ticker, txn.Memo)
	for _, tag := range []string{"CURRENCY", "ORIGCURRENCY"} {
		if c := n.find(tag); c != nil {
			txn.Currency = c.value("CURSYM")
		}
	}
	return txn, nil
}

// collapseReinvested drops the INCOME half of a reinvested dividend. Brokers
// report it twice, as INCOME and as REINVEST of the same security and total.
// The REINVEST is kept with a positive amount.
func collapseReinvested(recs []model.OfxTransaction) []model.OfxTransaction {
	drop := make(map[int]bool)
	for i, r := range recs {
		if r.Investment == nil || r.Investment.Action != "REINVEST" {
			continue
		}
		recs[i].Amount = r.Amount.Abs()
		for j, o := range recs {
			if drop[j] || o.Investment == nil || o.Investment.Action != "INCOME" {
				continue
			}
			if o.Investment.SecurityID == r.Investment.SecurityID && o.Amount.Abs().Equal(r.Amount.Abs()) {
				drop[j] = true
				break
			}
		}
	}
	if len(drop) == 0 {
		return recs
	}
	out := make([]model.OfxTransaction, 0, len(recs)-len(drop))
	for i, r := range recs {
		if !drop[i] {
			out = append(out, r)
		}
	}
	return out
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
