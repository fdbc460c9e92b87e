package mt940

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

func readFixture(t *testing.T) *model.Mt940File {
	t.Helper()
	f, err := os.Open("../../testdata/mt940/bank1.sta")
	require.NoError(t, err)
	defer f.Close()

	file, err := ParseFile(f, model.ParseOptions{})
	require.NoError(t, err)
	return file
}

func TestParseFile_EntryCount(t *testing.T) {
	file := readFixture(t)

	require.Len(t, file.Records, 2)
	assert.Len(t, file.Records[0].Entries, 3)
	assert.Len(t, file.Records[1].Entries, 2)
	assert.Len(t, file.Entries(), 5)
	assert.Equal(t, "ISO-8859-1", file.Encoding)
	assert.Empty(t, file.Diagnostics)
}

func TestParseFile_RecordFields(t *testing.T) {
	file := readFixture(t)

	first := file.Records[0]
	assert.Equal(t, []string{"{1:F01ABNANL2AXXXX0000000000}{2:I940ABNANL2AXXXXN3020}{4:"}, first.Header)
	assert.Equal(t, "ABN AMRO BANK NV", first.Reference)
	assert.Equal(t, "531848396", first.AccountLabel)
	assert.Equal(t, "19501/1", first.StatementNumber)
	require.NotNil(t, first.Opening)
	assert.Equal(t, model.Credit, first.Opening.Mark)
	assert.Equal(t, "EUR", first.Opening.Currency)
	assert.True(t, dec("1234.56").Equal(first.Opening.Amount))
	require.NotNil(t, first.Closing)
	assert.Equal(t, model.Date(2025, 1, 5), first.Closing.Date)

	second := file.Records[1]
	assert.Equal(t, "3xxxxxx.013EUR", strings.TrimSpace(second.AccountLabel))
	assert.Equal(t, "00001/001", second.StatementNumber)
	assert.Equal(t, "STATEMENT INFO", second.Information)
	require.NotNil(t, second.Available)
	assert.True(t, dec("1314.72").Equal(second.Available.Signed()))
}

func TestParseFile_Entries(t *testing.T) {
	entries := readFixture(t).Entries()

	coffee := entries[0]
	assert.Equal(t, model.Date(2025, 1, 2), coffee.ValutaDate)
	assert.Nil(t, coffee.BookingDate)
	assert.False(t, coffee.BookingDateGuessed)
	assert.Equal(t, model.Debit, coffee.Mark)
	assert.True(t, dec("50").Equal(coffee.Amount))
	assert.Equal(t, "N422", coffee.TypeCode)
	assert.Equal(t, "NONREF", coffee.CustomerRef)
	assert.Equal(t, "8327000090031789", coffee.BankRef)
	assert.Equal(t, "GIRO 1234567 COFFEE CORNER AMSTERDAM MORNING COFFEE", coffee.Narrative)
	assert.Equal(t, "531848396", coffee.AccountLabel)
	assert.Equal(t, 6, coffee.Line)

	salary := entries[1]
	assert.True(t, salary.BookingDateGuessed)
	require.NotNil(t, salary.BookingDate)
	assert.Equal(t, model.Date(2025, 1, 3), *salary.BookingDate)
	assert.Equal(t, model.Credit, salary.Mark)
	assert.Equal(t, "NTRF", salary.TypeCode)
	assert.Empty(t, salary.BankRef)

	insurance := entries[2]
	assert.Equal(t, "NDDT", insurance.TypeCode)
	assert.Equal(t, "REF123", insurance.CustomerRef)
	assert.Equal(t, "BANK999", insurance.BankRef)
	assert.Equal(t, "SUPPLEMENTARY INFO", insurance.Supplementary)

	refund := entries[3]
	assert.True(t, dec("100").Equal(refund.Amount), "funds code letter is dropped")
	assert.Equal(t, "N051", refund.TypeCode)
	assert.Equal(t, "REFUND ONLINE SHOP", refund.Narrative)

	fee := entries[4]
	assert.Equal(t, model.Date(2025, 12, 31), fee.ValutaDate)
	require.NotNil(t, fee.BookingDate)
	assert.Equal(t, model.Date(2026, 1, 1), *fee.BookingDate)
	assert.Equal(t, "FMSC", fee.TypeCode)
	assert.Equal(t, "B1", fee.BankRef)
}

func TestParser_Parse(t *testing.T) {
	f, err := os.Open("../../testdata/mt940/bank1.sta")
	require.NoError(t, err)
	defer f.Close()

	st, err := (&Parser{}).Parse(f, model.ParseOptions{})
	require.NoError(t, err)

	assert.Equal(t, "mt940", st.Format)
	assert.Equal(t, "531848396", st.Account.Label)
	assert.Equal(t, "EUR", st.Currency)
	assert.Equal(t, model.Date(2025, 1, 1), st.Start)
	require.NotNil(t, st.LedgerBalance)
	assert.True(t, dec("1314.72").Equal(st.LedgerBalance.Amount))

	require.Len(t, st.Transactions, 5)
	coffee := st.Transactions[0]
	assert.True(t, dec("-50.00").Equal(coffee.Amount))
	assert.Equal(t, model.Date(2025, 1, 2), coffee.DatePosted)
	assert.Equal(t, "GIRO 1234567 COFFEE CORNER AMSTERDAM MORNING COFFEE", coffee.Memo)
	assert.Equal(t, coffee.Memo, coffee.Payee)
	assert.Equal(t, "8327000090031789", coffee.ExternalID)
	assert.Equal(t, "531848396", coffee.AccountHint)
	assert.True(t, dec("50.00").Equal(st.Transactions[1].Amount))
	assert.Equal(t, "3xxxxxx.013EUR", st.Transactions[3].AccountHint)
}

func TestParseStatementLine_Sign(t *testing.T) {
	debit, err := parseStatementLine("200101D50,00NTRFNONREF", 1)
	require.NoError(t, err)
	credit, err := parseStatementLine("200101C50,00NTRFNONREF", 1)
	require.NoError(t, err)

	d, err := model.Normalize(debit)
	require.NoError(t, err)
	c, err := model.Normalize(credit)
	require.NoError(t, err)
	assert.Equal(t, "-50.00", d.Amount.StringFixed(2))
	assert.Equal(t, "50.00", c.Amount.StringFixed(2))
}

func TestParseStatementLine_Errors(t *testing.T) {
	tests := []struct {
		line string
		kind model.ErrorKind
	}{
		{"2001", model.KindUnparseableDate},
		{"201301D5,00NTRF", model.KindUnparseableDate},
		{"200101RD5,00NTRF", model.KindUnsupportedOperation},
		{"200101RC5,00NTRF", model.KindUnsupportedOperation},
		{"200101X5,00NTRF", model.KindUnsupportedOperation},
		{"200101D5,00", model.KindIncompleteRecord},
		{"200101DNTRF", model.KindIncompleteRecord},
		{"20010101", model.KindIncompleteRecord},
		{"200101D5.0.0NTRF", model.KindUnparseableAmount},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			_, err := parseStatementLine(tt.line, 7)
			var pe *model.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, 7, pe.Line)
			assert.Equal(t, "61", pe.Tag)
		})
	}
}

func TestParseFile_BadValueDateAbortsFile(t *testing.T) {
	in := ":20:A\n:25:1\n:61:200101D1,00NTRF\n-\n:20:B\n:25:2\n:61:20AB01D1,00NTRF\n"
	file, err := ParseFile(strings.NewReader(in), model.ParseOptions{})
	assert.Nil(t, file)

	var pe *model.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, model.KindUnparseableDate, pe.Kind)
	assert.Equal(t, 7, pe.Line)
}

func TestParseFile_TrailingRecordWithoutSeparator(t *testing.T) {
	in := ":20:A\n:61:200101D1,00NTRF\n-\n\n-\n:20:B\n:61:200102C2,00NTRF\n:61:200103C3,00NTRF"
	file, err := ParseFile(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	require.Len(t, file.Records, 2, "the empty record between separators is dropped")
	require.Len(t, file.Records[1].Entries, 2)
	assert.True(t, dec("3").Equal(file.Records[1].Entries[1].Amount))
}

func TestParseFile_BadBalanceIsDiagnostic(t *testing.T) {
	in := ":20:A\n:60F:C2001EUR\n:61:200101D1,00NTRF\n"
	file, err := ParseFile(strings.NewReader(in), model.ParseOptions{})
	require.NoError(t, err)
	assert.Nil(t, file.Records[0].Opening)
	require.Len(t, file.Diagnostics, 1)
	assert.Equal(t, 2, file.Diagnostics[0].Line)
}

func TestMergeLines(t *testing.T) {
	in := []line{
		{text: "HEADER ONE", num: 1},
		{text: "HEADER TWO", num: 2},
		{text: ":20:REF", num: 3},
		{text: ":86:first ", num: 4},
		{text: "second", num: 5},
		{text: ":NOT A TAG", num: 6},
		{text: ":61:200101D1,00NTRF", num: 7},
		{text: "tail", num: 8},
	}
	out := mergeLines(in)
	require.Len(t, out, 5)
	assert.Equal(t, "HEADER ONE", out[0].text)
	assert.Equal(t, "HEADER TWO", out[1].text)
	assert.Equal(t, ":86:first second:NOT A TAG", out[3].joined())
	assert.Equal(t, 4, out[3].num)
	assert.Equal(t, ":61:200101D1,00NTRFtail", out[4].joined(), "the last merged line is kept")
}

func TestParser_Detect(t *testing.T) {
	p := &Parser{}
	assert.Equal(t, "mt940", p.Format())
	assert.True(t, p.Detect([]byte(":20:STARTUMS\n:25:123\n")))
	assert.True(t, p.Detect([]byte("{1:F01}\n:20:X\n:28C:1\n")))
	assert.False(t, p.Detect([]byte("!Type:Bank\n")))
	assert.False(t, p.Detect([]byte("note :20: minutes")))
}
