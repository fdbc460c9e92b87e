package journal

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/accounts"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// ErrZeroAmount is returned when asked to book a transaction of 0.00.
var ErrZeroAmount = errors.New("cannot book a zero amount")

// CategoryResolver maps a statement category name to a chart account.
type CategoryResolver interface {
	AccountChecker
	FindByName(name string) (model.Account, bool)
}

// Ledger exposes the month journals as a ledger the matcher can read and
// the import pipeline can write to. Accounts are chart account IDs.
type Ledger struct {
	svc      *Service
	accounts CategoryResolver
}

// NewLedger creates a journal-backed ledger rooted at repoRoot.
func NewLedger(repoRoot string, accts CategoryResolver) *Ledger {
	return &Ledger{svc: NewService(repoRoot, accts), accounts: accts}
}

// Transactions returns the legs booked to account within r, as seen from
// that account: debits are positive, credits negative.
func (l *Ledger) Transactions(ctx context.Context, account string, r model.DateRange) ([]model.LedgerTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acctID, err := parseAccount(account)
	if err != nil {
		return nil, err
	}

	legs, err := l.svc.ReadRange(r)
	if err != nil {
		return nil, err
	}

	var out []model.LedgerTransaction
	for _, leg := range legs {
		if leg.AccountID != acctID || leg.Status == model.StatusVoided {
			continue
		}
		out = append(out, model.LedgerTransaction{
			ID:          leg.EntryGroup(),
			Account:     account,
			Amount:      leg.SignedAmount(),
			Date:        leg.Date,
			CheckNumber: leg.CheckNumber,
			ExternalID:  leg.Reference,
		})
	}
	return out, nil
}

// Record books txn as one balanced entry: a leg on account for the
// statement amount, offset by one leg per split or a single category leg.
// Unknown categories fall back to the uncategorized income or expense
// account. Split amounts that do not add up leave the difference on the
// fallback account.
func (l *Ledger) Record(ctx context.Context, account string, txn model.ImportTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	acctID, err := parseAccount(account)
	if err != nil {
		return err
	}
	if txn.Amount.IsZero() {
		return fmt.Errorf("transaction %s: %w", txn.ID, ErrZeroAmount)
	}

	lines := []Line{{AccountID: acctID, Amount: txn.Amount, Memo: txn.Memo}}
	if txn.HasSplits() {
		rest := txn.Amount
		for _, sp := range txn.Splits {
			if sp.Amount.IsZero() {
				continue
			}
			lines = append(lines, Line{AccountID: l.category(sp.Category, sp.Amount), Amount: sp.Amount.Neg(), Memo: sp.Memo})
			rest = rest.Sub(sp.Amount)
		}
		if !rest.IsZero() {
			lines = append(lines, Line{AccountID: fallback(rest), Amount: rest.Neg(), Memo: "split remainder"})
		}
	} else {
		category := txn.Category
		if txn.AccountTo != "" && category == "" {
			category = txn.AccountTo
		}
		lines = append(lines, Line{AccountID: l.category(category, txn.Amount), Amount: txn.Amount.Neg()})
	}

	description := txn.Payee
	if description == "" {
		description = txn.Memo
	}
	_, err = l.svc.AddEntry(EntryParams{
		Date:         model.DateOf(txn.DatePosted),
		Description:  description,
		Counterparty: txn.Payee,
		Reference:    txn.ExternalID,
		CheckNumber:  txn.CheckNumber,
		ImportID:     txn.ID,
		Status:       model.StatusImported,
		Lines:        lines,
	})
	if err != nil {
		return fmt.Errorf("booking transaction %s: %w", txn.ID, err)
	}
	return nil
}

// category resolves a category name, falling back by the direction of the
// statement amount.
func (l *Ledger) category(name string, amount decimal.Decimal) int {
	if name != "" {
		if a, ok := l.accounts.FindByName(name); ok {
			return a.ID
		}
	}
	return fallback(amount)
}

func fallback(amount decimal.Decimal) int {
	if amount.IsPositive() {
		return accounts.UncategorizedIncome
	}
	return accounts.UncategorizedExpense
}

func parseAccount(account string) (int, error) {
	id, err := strconv.Atoi(account)
	if err != nil {
		return 0, fmt.Errorf("journal account must be a chart account ID, got %q", account)
	}
	return id, nil
}
