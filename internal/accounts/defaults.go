package accounts

import "github.com/cleared-dev/stmtimport/internal/model"

// Fallback accounts for imported transactions whose category does not
// resolve to a chart entry.
const (
	UncategorizedIncome  = 4090
	UncategorizedExpense = 5090
)

// DefaultChart returns the default chart of accounts for a ledger kind.
func DefaultChart(kind string) []model.Account {
	switch kind {
	case "personal":
		return personalChart()
	default:
		return businessChart()
	}
}

func businessChart() []model.Account {
	return []model.Account{
		{ID: 1010, Name: "Checking", Type: model.AccountTypeAsset, Description: "Primary checking account"},
		{ID: 1020, Name: "Savings", Type: model.AccountTypeAsset, Description: "Savings account"},
		{ID: 2010, Name: "Credit Card", Type: model.AccountTypeLiability, Description: "Business credit card"},
		{ID: 3010, Name: "Owner's Equity", Type: model.AccountTypeEquity},
		{ID: 4010, Name: "Service Revenue", Type: model.AccountTypeRevenue},
		{ID: 4020, Name: "Interest Income", Type: model.AccountTypeRevenue},
		{ID: UncategorizedIncome, Name: "Uncategorized Income", Type: model.AccountTypeRevenue, Description: "Imported inflows without a category"},
		{ID: 5010, Name: "Software", Type: model.AccountTypeExpense, Description: "Software subscriptions"},
		{ID: 5020, Name: "Office Supplies", Type: model.AccountTypeExpense},
		{ID: 5030, Name: "Professional Services", Type: model.AccountTypeExpense, Description: "Legal, accounting, consulting"},
		{ID: 5040, Name: "Bank Fees", Type: model.AccountTypeExpense},
		{ID: UncategorizedExpense, Name: "Uncategorized Expense", Type: model.AccountTypeExpense, Description: "Imported outflows without a category"},
	}
}

func personalChart() []model.Account {
	return []model.Account{
		{ID: 1010, Name: "Checking", Type: model.AccountTypeAsset},
		{ID: 1020, Name: "Savings", Type: model.AccountTypeAsset},
		{ID: 1030, Name: "Cash", Type: model.AccountTypeAsset},
		{ID: 2010, Name: "Credit Card", Type: model.AccountTypeLiability},
		{ID: 3010, Name: "Opening Balances", Type: model.AccountTypeEquity},
		{ID: 4010, Name: "Salary", Type: model.AccountTypeRevenue},
		{ID: UncategorizedIncome, Name: "Uncategorized Income", Type: model.AccountTypeRevenue},
		{ID: 5010, Name: "Groceries", Type: model.AccountTypeExpense},
		{ID: 5020, Name: "Dining", Type: model.AccountTypeExpense},
		{ID: 5030, Name: "Utilities", Type: model.AccountTypeExpense},
		{ID: 5031, Name: "Utilities:Electric", Type: model.AccountTypeExpense, ParentID: 5030},
		{ID: UncategorizedExpense, Name: "Uncategorized Expense", Type: model.AccountTypeExpense},
	}
}
