package journal

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// Rule names a journal consistency check.
type Rule string

const (
	RuleBalanced  Rule = "balanced"
	RuleOneSided  Rule = "one-sided"
	RuleAccount   Rule = "account"
	RuleMonth     Rule = "month"
	RuleSequence  Rule = "sequence"
	RulePrecision Rule = "precision"
)

// ValidationError describes a single rule violation.
type ValidationError struct {
	Rule        Rule
	EntryID     string
	Description string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Rule, e.EntryID, e.Description)
}

// AccountChecker tests whether an account ID exists in the chart of accounts.
type AccountChecker interface {
	Exists(id int) bool
}

var hundred = decimal.NewFromInt(100)

// ValidateLegs checks a month of journal legs: every entry balances, every
// leg is one-sided, references a known account, falls in the month and has
// at most two decimals, and entry sequences run 1..N without gaps.
func ValidateLegs(legs []model.Leg, accounts AccountChecker, year, month int) []ValidationError {
	var errs []ValidationError

	groups := make(map[string][]model.Leg)
	var groupOrder []string
	for _, leg := range legs {
		g := leg.EntryGroup()
		if _, seen := groups[g]; !seen {
			groupOrder = append(groupOrder, g)
		}
		groups[g] = append(groups[g], leg)
	}

	for _, g := range groupOrder {
		totalDebit := decimal.Zero
		totalCredit := decimal.Zero
		for _, leg := range groups[g] {
			totalDebit = totalDebit.Add(leg.Debit)
			totalCredit = totalCredit.Add(leg.Credit)
		}
		if !totalDebit.Equal(totalCredit) {
			errs = append(errs, ValidationError{
				Rule:        RuleBalanced,
				EntryID:     g,
				Description: fmt.Sprintf("debits (%s) != credits (%s)", totalDebit.StringFixed(2), totalCredit.StringFixed(2)),
			})
		}
	}

	for _, leg := range legs {
		if leg.Debit.IsZero() == leg.Credit.IsZero() {
			errs = append(errs, ValidationError{
				Rule:        RuleOneSided,
				EntryID:     leg.EntryID,
				Description: "leg must have exactly one of debit or credit",
			})
		}

		if !accounts.Exists(leg.AccountID) {
			errs = append(errs, ValidationError{
				Rule:        RuleAccount,
				EntryID:     leg.EntryID,
				Description: fmt.Sprintf("unknown account %d", leg.AccountID),
			})
		}

		if leg.Date.Year() != year || int(leg.Date.Month()) != month {
			errs = append(errs, ValidationError{
				Rule:        RuleMonth,
				EntryID:     leg.EntryID,
				Description: fmt.Sprintf("date %s not in %04d-%02d", leg.Date.Format(dateFormat), year, month),
			})
		}

		if !leg.Debit.Mul(hundred).IsInteger() {
			errs = append(errs, ValidationError{
				Rule:        RulePrecision,
				EntryID:     leg.EntryID,
				Description: fmt.Sprintf("debit %s has more than 2 decimal places", leg.Debit),
			})
		}
		if !leg.Credit.Mul(hundred).IsInteger() {
			errs = append(errs, ValidationError{
				Rule:        RulePrecision,
				EntryID:     leg.EntryID,
				Description: fmt.Sprintf("credit %s has more than 2 decimal places", leg.Credit),
			})
		}
	}

	// Legs of one entry share a sequence number.
	seqSeen := make(map[int]bool)
	for _, leg := range legs {
		_, _, seq, err := ParseEntryID(leg.EntryID)
		if err != nil {
			errs = append(errs, ValidationError{
				Rule:        RuleSequence,
				EntryID:     leg.EntryID,
				Description: fmt.Sprintf("invalid entry ID: %v", err),
			})
			continue
		}
		seqSeen[seq] = true
	}
	for i := 1; i <= len(seqSeen); i++ {
		if !seqSeen[i] {
			errs = append(errs, ValidationError{
				Rule:        RuleSequence,
				EntryID:     fmt.Sprintf("seq %d", i),
				Description: fmt.Sprintf("missing sequence %d in 1..%d", i, len(seqSeen)),
			})
		}
	}

	return errs
}
