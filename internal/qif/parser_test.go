package qif

import (
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/stmtimport/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func parseFile(t *testing.T, path string, opts model.ParseOptions) (*model.Statement, error) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	return (&Parser{}).Parse(f, opts)
}

func TestParser_Coffee(t *testing.T) {
	st, err := parseFile(t, "../../testdata/qif/coffee.qif", model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)

	txn := st.Transactions[0]
	assert.Equal(t, model.Date(2020, 1, 2), txn.DatePosted)
	assert.True(t, dec("-25.00").Equal(txn.Amount))
	assert.Equal(t, "Coffee Shop", txn.Payee)
	assert.Equal(t, "Morning coffee", txn.Memo)
	assert.Equal(t, model.MatchNew, txn.MatchState)
	assert.False(t, txn.HasSplits())
	assert.Empty(t, st.Diagnostics)
	assert.Equal(t, "Bank", st.Account.AccountType)
}

func TestParser_TwoTransactionsInOrder(t *testing.T) {
	in := "!Type:Bank\nD01/02/2020\nT-1.00\nPFirst\nMone\nLFood\n^\nD01/03/2020\nT2.00\nPSecond\n^\n"
	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2)
	assert.Equal(t, "First", st.Transactions[0].Payee)
	assert.Equal(t, "one", st.Transactions[0].Memo)
	assert.Equal(t, "Food", st.Transactions[0].Category)
	assert.Equal(t, "Second", st.Transactions[1].Payee)
}

func TestParser_Checking(t *testing.T) {
	st, err := parseFile(t, "../../testdata/qif/checking.qif", model.ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Checking", st.Account.Label)
	assert.Equal(t, "Bank", st.Account.AccountType)
	require.Len(t, st.Transactions, 7)

	sub := st.Transactions[0]
	assert.Equal(t, model.Date(2025, 1, 3), sub.DatePosted)
	assert.Equal(t, "Software:Subscriptions", sub.Category)
	assert.Equal(t, "Checking", sub.AccountHint)
	assert.Empty(t, sub.CheckNumber)
	src, ok := sub.Source.(model.QifTransaction)
	require.True(t, ok)
	assert.Equal(t, "X", src.Cleared)
	assert.Equal(t, 13, src.Line)

	plumber := st.Transactions[1]
	assert.True(t, dec("-1250").Equal(plumber.Amount))
	assert.Equal(t, "1042", plumber.CheckNumber)
	assert.Equal(t, "Smith and Sons Plumbing", plumber.Payee, "last P line wins")
	src = plumber.Source.(model.QifTransaction)
	assert.Equal(t, []string{"12 Water Lane", "Springfield"}, src.Address)

	assert.True(t, dec("3500").Equal(st.Transactions[2].Amount))

	costco := st.Transactions[3]
	require.True(t, costco.HasSplits())
	require.Len(t, costco.Splits, 3)
	assert.Equal(t, "Groceries", costco.Splits[0].Category)
	assert.Equal(t, "Food", costco.Splits[0].Memo)
	assert.True(t, dec("-120").Equal(costco.Splits[0].Amount))
	assert.Equal(t, "Office Supplies", costco.Splits[1].Category)
	assert.True(t, dec("-50").Equal(costco.Splits[1].Amount))
	assert.Equal(t, "Household", costco.Splits[2].Category)
	assert.Empty(t, costco.Splits[2].Memo)

	xfer := st.Transactions[4]
	assert.Equal(t, "Savings", xfer.Category)
	assert.Equal(t, "Savings", xfer.AccountTo)

	assert.True(t, dec("-9.99").Equal(st.Transactions[5].Amount), "U used when T is missing")

	require.Len(t, st.Diagnostics, 1)
	assert.Equal(t, model.KindUnknownField, st.Diagnostics[0].Kind)
	assert.Contains(t, st.Diagnostics[0].Message, "XUNKNOWN")
}

func TestParser_BadUAmountDropsTransaction(t *testing.T) {
	in := "!Type:Bank\nD01/02/2020\nT-5.00\nUfive\nPBad U\n^\nD01/03/2020\nT-6.00\nU-6.00\nPGood\n^\n"
	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, "Good", st.Transactions[0].Payee)
	require.Len(t, st.Diagnostics, 1)
	assert.Equal(t, model.KindUnparseableAmount, st.Diagnostics[0].Kind)
	assert.Equal(t, 4, st.Diagnostics[0].Line)

	_, err = (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{Strict: true})
	var pe *model.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "U", pe.Tag)
}

func TestParser_SplitCountMatchesSBlocks(t *testing.T) {
	in := "!Type:Bank\nD01/02/2020\nT-30\nSA\n$-10\nSB\n$-10\nEmemo\nSC\n$-10\n^\n"
	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)
	txn := st.Transactions[0]
	assert.True(t, txn.HasSplits())
	assert.Len(t, txn.Splits, strings.Count(in, "\nS"))
	assert.Equal(t, "memo", txn.Splits[1].Memo)
}

func TestParser_SplitWithoutCategory(t *testing.T) {
	// A repeated $ starts a new split even without an S line.
	in := "!Type:Bank\nD01/02/2020\nT-3\n$-1\n$-2\n%50%\nPafter\n^\n"
	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	txn := st.Transactions[0]
	require.Len(t, txn.Splits, 2)
	assert.True(t, dec("-2").Equal(txn.Splits[1].Amount))
	assert.Equal(t, "50", txn.Splits[1].Percent)
	assert.Equal(t, "after", txn.Payee)
}

func TestParser_EUDates(t *testing.T) {
	st, err := parseFile(t, "../../testdata/qif/eu_dates.qif", model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, st.Transactions, 2)
	assert.Equal(t, model.Date(2020, 1, 2), st.Transactions[0].DatePosted)
	assert.Equal(t, model.Date(2020, 1, 25), st.Transactions[1].DatePosted)
	assert.True(t, dec("-10.50").Equal(st.Transactions[0].Amount))
}

func TestParser_DateOrderOption(t *testing.T) {
	in := "!Type:Bank\nD02/01/2020\nT1\n^\n"

	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	assert.Equal(t, model.Date(2020, 2, 1), st.Transactions[0].DatePosted)

	st, err = (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{DateOrder: model.DateOrderEU})
	require.NoError(t, err)
	assert.Equal(t, model.Date(2020, 1, 2), st.Transactions[0].DatePosted)
}

func TestParser_Broken(t *testing.T) {
	st, err := parseFile(t, "../../testdata/qif/broken.qif", model.ParseOptions{})
	require.NoError(t, err)

	require.Len(t, st.Transactions, 2)
	assert.Equal(t, "Good", st.Transactions[0].Payee)
	assert.Equal(t, "No terminator", st.Transactions[1].Payee, "EOF flushes the open transaction")

	require.Len(t, st.Diagnostics, 4)
	want := []struct {
		kind model.ErrorKind
		line int
	}{
		{model.KindUnparseableAmount, 3},
		{model.KindIncompleteRecord, 6},
		{model.KindMissingRequiredField, 9},
		{model.KindUnparseableDate, 12},
	}
	for i, w := range want {
		assert.Equal(t, w.kind, st.Diagnostics[i].Kind, "diagnostic %d", i)
		assert.Equal(t, w.line, st.Diagnostics[i].Line, "diagnostic %d", i)
	}
}

func TestParser_StrictStopsAtFirstError(t *testing.T) {
	st, err := parseFile(t, "../../testdata/qif/broken.qif", model.ParseOptions{Strict: true})
	assert.Nil(t, st)
	assert.True(t, model.IsKind(err, model.KindUnparseableAmount))
}

func TestParser_FieldBeforeHeader(t *testing.T) {
	_, err := (&Parser{}).Parse(strings.NewReader("\nD01/02/2020\nT1\n^\n"), model.ParseOptions{})
	var pe *model.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.KindMalformedHeader, pe.Kind)
	assert.Equal(t, 2, pe.Line)
}

func TestParser_SkipsListSections(t *testing.T) {
	in := "!Type:Cat\nNFood\nE\n^\n!Type:Class\nNWork\n^\n!type:bank\nD1/2/20\nT-5\n^\n"
	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)
	assert.Equal(t, model.Date(2020, 1, 2), st.Transactions[0].DatePosted)
	assert.Len(t, st.Diagnostics, 2)
}

func TestParser_Investment(t *testing.T) {
	in := "!Type:Invst\nD01/15/2025\nNBuy\nYACME\nI12.50\nQ10\nO1.00\nT126.00\n$126.00\n^\n"
	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, st.Transactions, 1)

	txn := st.Transactions[0]
	assert.False(t, txn.HasSplits())
	src := txn.Source.(model.QifTransaction)
	assert.Equal(t, "ACME", src.Security)
	assert.Equal(t, "12.50", src.Price)
	assert.Equal(t, "10", src.Quantity)
	assert.Equal(t, "1.00", src.Commission)
	assert.Equal(t, "126.00", src.TransferAmount)
}

func TestParser_Latin1(t *testing.T) {
	in := "!Type:Bank\nD01/02/2020\nT-1\nPCaf\xe9\n^\n"
	st, err := (&Parser{}).Parse(strings.NewReader(in), model.ParseOptions{DefaultEncoding: "ISO-8859-1"})
	require.NoError(t, err)
	assert.Equal(t, "Café", st.Transactions[0].Payee)
	assert.Equal(t, "ISO-8859-1", st.Encoding)
}

func TestParser_Detect(t *testing.T) {
	p := &Parser{}
	assert.Equal(t, "qif", p.Format())
	assert.True(t, p.Detect([]byte("!Type:Bank\n")))
	assert.True(t, p.Detect([]byte("\r\n!TYPE:CCard\n")))
	assert.True(t, p.Detect([]byte("!Account\nNChecking\n")))
	assert.True(t, p.Detect([]byte("!Option:AutoSwitch\n")))
	assert.False(t, p.Detect([]byte("OFXHEADER:100\n")))
	assert.False(t, p.Detect([]byte(":20:STARTUMS\n")))
}
