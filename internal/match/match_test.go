package match

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cleared-dev/stmtimport/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func date(y int, m time.Month, d int) time.Time {
	return model.Date(y, m, d)
}

func imp(amount string, posted time.Time) model.ImportTransaction {
	return model.ImportTransaction{ID: "imp", Amount: dec(amount), DatePosted: posted, MatchState: model.MatchNew}
}

func newMatcher(t *testing.T) *Matcher {
	return New(DefaultConfig(), zaptest.NewLogger(t))
}

func matchOne(t *testing.T, m *Matcher, in model.ImportTransaction, existing ...model.LedgerTransaction) model.ImportTransaction {
	t.Helper()
	out, err := m.Match(context.Background(), []model.ImportTransaction{in}, existing)
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

var ten = model.LedgerTransaction{ID: "L1", Amount: dec("10.00"), Date: date(2020, 1, 5)}

func TestMatch_PostedDateWindow(t *testing.T) {
	m := newMatcher(t)

	got := matchOne(t, m, imp("10.00", date(2020, 1, 6)), ten)
	assert.Equal(t, model.MatchEqual, got.MatchState)
	assert.Equal(t, "L1", got.MatchedID)
	assert.Equal(t, model.ReasonDate, got.MatchReason)

	// Window edges are inclusive.
	assert.Equal(t, model.MatchEqual, matchOne(t, m, imp("10.00", date(2020, 1, 8)), ten).MatchState)
	assert.Equal(t, model.MatchEqual, matchOne(t, m, imp("10.00", date(2020, 1, 2)), ten).MatchState)
	assert.Equal(t, model.MatchNew, matchOne(t, m, imp("10.00", date(2020, 1, 9)), ten).MatchState)
}

func TestMatch_CheckNumberOutsideWindow(t *testing.T) {
	m := newMatcher(t)

	in := imp("10.00", date(2020, 1, 10))
	assert.Equal(t, model.MatchNew, matchOne(t, m, in, ten).MatchState)

	in.CheckNumber = "1042"
	withCheck := ten
	withCheck.CheckNumber = "1042"
	got := matchOne(t, m, in, withCheck)
	assert.Equal(t, model.MatchEqual, got.MatchState)
	assert.Equal(t, model.ReasonCheck, got.MatchReason)
}

func TestMatch_EmptyCheckNumbersNeverMatch(t *testing.T) {
	in := imp("10.00", date(2020, 3, 1))
	in.CheckNumber = " "
	assert.Equal(t, model.MatchNew, matchOne(t, newMatcher(t), in, ten).MatchState)
}

func TestMatch_ExternalID(t *testing.T) {
	in := imp("10.00", date(2021, 1, 1))
	in.ExternalID = "FIT-1"
	withID := ten
	withID.ExternalID = "FIT-1"

	got := matchOne(t, newMatcher(t), in, withID)
	assert.Equal(t, model.MatchEqual, got.MatchState)
	assert.Equal(t, model.ReasonExternalID, got.MatchReason)
}

func TestMatch_AmountGate(t *testing.T) {
	in := imp("9.99", date(2020, 1, 5))
	in.CheckNumber = "1"
	in.ExternalID = "X"
	e := ten
	e.CheckNumber = "1"
	e.ExternalID = "X"

	assert.Equal(t, model.MatchNew, matchOne(t, newMatcher(t), in, e).MatchState)
}

func TestMatch_AmountScaleIgnored(t *testing.T) {
	assert.Equal(t, model.MatchEqual, matchOne(t, newMatcher(t), imp("10", date(2020, 1, 5)), ten).MatchState)
}

func TestMatch_SignMatters(t *testing.T) {
	assert.Equal(t, model.MatchNew, matchOne(t, newMatcher(t), imp("-10.00", date(2020, 1, 5)), ten).MatchState)
}

func TestMatch_UserDateNarrowsWindow(t *testing.T) {
	m := newMatcher(t)

	in := imp("10.00", date(2020, 1, 5))
	user := date(2020, 1, 7)
	in.DateUser = &user
	assert.Equal(t, model.MatchNew, matchOne(t, m, in, ten).MatchState, "posted date is ignored when a user date exists")

	user = date(2020, 1, 6)
	assert.Equal(t, model.MatchEqual, matchOne(t, m, in, ten).MatchState)
}

func TestMatch_FirstCandidateWins(t *testing.T) {
	a := model.LedgerTransaction{ID: "A", Amount: dec("5"), Date: date(2020, 1, 1)}
	b := model.LedgerTransaction{ID: "B", Amount: dec("5"), Date: date(2020, 1, 2)}

	got := matchOne(t, newMatcher(t), imp("5", date(2020, 1, 2)), a, b)
	assert.Equal(t, "A", got.MatchedID)
}

func TestMatch_Idempotent(t *testing.T) {
	m := newMatcher(t)
	existing := []model.LedgerTransaction{ten}
	imports := []model.ImportTransaction{
		imp("10.00", date(2020, 1, 6)),
		imp("10.00", date(2020, 2, 6)),
		imp("11.00", date(2020, 1, 5)),
	}

	first, err := m.Match(context.Background(), imports, existing)
	require.NoError(t, err)
	second, err := m.Match(context.Background(), first, existing)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// A stale EQUAL tag is cleared when the ledger no longer backs it.
	third, err := m.Match(context.Background(), first, nil)
	require.NoError(t, err)
	for _, txn := range third {
		assert.Equal(t, model.MatchNew, txn.MatchState)
		assert.Empty(t, txn.MatchedID)
	}
}

func TestMatch_DoesNotMutateInput(t *testing.T) {
	imports := []model.ImportTransaction{imp("10.00", date(2020, 1, 6))}
	_, err := newMatcher(t).Match(context.Background(), imports, []model.LedgerTransaction{ten})
	require.NoError(t, err)
	assert.Equal(t, model.MatchNew, imports[0].MatchState)
}

func TestMatch_ManyImportsKeepOrder(t *testing.T) {
	var imports []model.ImportTransaction
	var existing []model.LedgerTransaction
	for i := 0; i < 200; i++ {
		in := imp(fmt.Sprintf("%d.00", i), date(2020, 1, 1).AddDate(0, 0, i))
		in.ID = fmt.Sprintf("imp-%d", i)
		imports = append(imports, in)
		if i%2 == 0 {
			existing = append(existing, model.LedgerTransaction{
				ID:     fmt.Sprintf("led-%d", i),
				Amount: dec(fmt.Sprintf("%d", i)),
				Date:   date(2020, 1, 1).AddDate(0, 0, i),
			})
		}
	}

	out, err := New(Config{UserDateWindowDays: 1, PostedDateWindowDays: 3, Workers: 8}, nil).
		Match(context.Background(), imports, existing)
	require.NoError(t, err)
	require.Len(t, out, 200)
	for i, txn := range out {
		assert.Equal(t, fmt.Sprintf("imp-%d", i), txn.ID)
		if i%2 == 0 {
			assert.Equal(t, fmt.Sprintf("led-%d", i), txn.MatchedID)
		} else {
			assert.Equal(t, model.MatchNew, txn.MatchState)
		}
	}
	newCount, equalCount := Summary(out)
	assert.Equal(t, 100, newCount)
	assert.Equal(t, 100, equalCount)
}

func TestMatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newMatcher(t).Match(ctx, []model.ImportTransaction{imp("1", date(2020, 1, 1))}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeLedger struct {
	txns    []model.LedgerTransaction
	err     error
	account string
	rng     model.DateRange
}

func (f *fakeLedger) Transactions(_ context.Context, account string, r model.DateRange) ([]model.LedgerTransaction, error) {
	f.account, f.rng = account, r
	return f.txns, f.err
}

func TestMatchAccount(t *testing.T) {
	ledger := &fakeLedger{txns: []model.LedgerTransaction{ten}}
	out, err := newMatcher(t).MatchAccount(context.Background(), ledger, "1010", []model.ImportTransaction{imp("10.00", date(2020, 1, 5))})
	require.NoError(t, err)
	assert.Equal(t, "1010", ledger.account)
	assert.True(t, ledger.rng.All())
	assert.Equal(t, model.MatchEqual, out[0].MatchState)

	ledger.err = errors.New("disk on fire")
	_, err = newMatcher(t).MatchAccount(context.Background(), ledger, "1010", nil)
	assert.ErrorContains(t, err, "disk on fire")
}

func TestNew_Defaults(t *testing.T) {
	m := New(Config{Workers: 0, UserDateWindowDays: -1}, nil)
	assert.Equal(t, 1, m.cfg.Workers)
	assert.Equal(t, 0, m.cfg.UserDateWindowDays)
	assert.NotNil(t, m.logger)
}
