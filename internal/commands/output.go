package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/cleared-dev/stmtimport/internal/model"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	faint  = color.New(color.Faint)
)

const dateLayout = "2006-01-02"

func printStatement(w io.Writer, path string, st *model.Statement) {
	fmt.Fprintf(w, "%s: %s, %s", path, st.Format, st.Encoding)
	if st.Version != "" {
		fmt.Fprintf(w, ", version %s", st.Version)
	}
	fmt.Fprintln(w)

	acct := st.Account
	if acct.AccountID != "" || acct.Label != "" {
		fmt.Fprintf(w, "account: %s", firstNonEmpty(acct.AccountID, acct.Label))
		if acct.AccountType != "" {
			fmt.Fprintf(w, " (%s)", acct.AccountType)
		}
		fmt.Fprintln(w)
	}
	if !st.Start.IsZero() || !st.End.IsZero() {
		fmt.Fprintf(w, "period: %s to %s\n", formatDate(st.Start), formatDate(st.End))
	}
	if st.LedgerBalance != nil {
		fmt.Fprintf(w, "balance: %s %s as of %s\n", st.LedgerBalance.Amount.StringFixed(2), st.Currency, formatDate(st.LedgerBalance.AsOf))
	}
}

// printTransactions writes one row per transaction. withState adds the
// match verdict column.
func printTransactions(w io.Writer, txns []model.ImportTransaction, withState bool) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, t := range txns {
		if withState {
			fmt.Fprintf(tw, "%s\t", stateLabel(t))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s",
			formatDate(t.DatePosted),
			t.Amount.StringFixed(2),
			t.CheckNumber,
			firstNonEmpty(t.Payee, t.Memo),
			firstNonEmpty(t.Category, t.AccountTo))
		if withState && t.MatchState == model.MatchEqual {
			faint.Fprintf(tw, "\t= %s (%s)", t.MatchedID, t.MatchReason)
		}
		fmt.Fprintln(tw)
	}
	tw.Flush()
}

func stateLabel(t model.ImportTransaction) string {
	if t.MatchState == model.MatchEqual {
		return yellow.Sprintf("%-5s", t.MatchState)
	}
	return green.Sprintf("%-5s", t.MatchState)
}

func printDiagnostics(w io.Writer, diags []model.Diagnostic) {
	for _, d := range diags {
		red.Fprint(w, "warning: ")
		fmt.Fprintln(w, d.String())
	}
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
