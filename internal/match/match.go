// Package match decides whether imported transactions are already in the
// ledger.
package match

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// Config holds the matching windows, in calendar days.
type Config struct {
	UserDateWindowDays   int `yaml:"user_date_window_days" env:"USER_DATE_WINDOW_DAYS,overwrite"`
	PostedDateWindowDays int `yaml:"posted_date_window_days" env:"POSTED_DATE_WINDOW_DAYS,overwrite"`
	Workers              int `yaml:"workers" env:"WORKERS,overwrite"`
}

// DefaultConfig returns ±1 day around a user date, ±3 days around a posted
// date and four workers.
func DefaultConfig() Config {
	return Config{UserDateWindowDays: 1, PostedDateWindowDays: 3, Workers: 4}
}

// Ledger is the read side of an account ledger.
type Ledger interface {
	// Transactions returns an account's transactions in ledger order. The
	// zero DateRange returns all of them.
	Transactions(ctx context.Context, account string, r model.DateRange) ([]model.LedgerTransaction, error)
}

// Matcher tags imports as NEW or EQUAL.
type Matcher struct {
	cfg    Config
	logger *zap.Logger
}

// New creates a Matcher. A nil logger discards output.
func New(cfg Config, logger *zap.Logger) *Matcher {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	cfg.UserDateWindowDays = max(cfg.UserDateWindowDays, 0)
	cfg.PostedDateWindowDays = max(cfg.PostedDateWindowDays, 0)
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{cfg: cfg, logger: logger}
}

// Match returns a tagged copy of imports. Each import is checked against
// existing independently, so the work is spread over a worker pool; the
// inputs are only read. Prior tags are discarded, which makes the result
// depend on the ledger alone.
func (m *Matcher) Match(ctx context.Context, imports []model.ImportTransaction, existing []model.LedgerTransaction) ([]model.ImportTransaction, error) {
	out := make([]model.ImportTransaction, len(imports))

	p := pool.New().WithMaxGoroutines(m.cfg.Workers).WithContext(ctx)
	for i := range imports {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = m.matchOne(imports[i], existing)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("matching transactions: %w", err)
	}

	newCount, equalCount := Summary(out)
	m.logger.Debug("matched imports",
		zap.Int("imports", len(imports)),
		zap.Int("existing", len(existing)),
		zap.Int("new", newCount),
		zap.Int("equal", equalCount),
	)
	return out, nil
}

// MatchAccount reads every transaction of account from the ledger and
// matches imports against them.
func (m *Matcher) MatchAccount(ctx context.Context, ledger Ledger, account string, imports []model.ImportTransaction) ([]model.ImportTransaction, error) {
	existing, err := ledger.Transactions(ctx, account, model.DateRange{})
	if err != nil {
		return nil, fmt.Errorf("reading ledger account %s: %w", account, err)
	}
	return m.Match(ctx, imports, existing)
}

// matchOne scans the ledger in order; the first candidate with an equal
// amount and any one matching signal wins.
func (m *Matcher) matchOne(t model.ImportTransaction, existing []model.LedgerTransaction) model.ImportTransaction {
	t.MatchState = model.MatchNew
	t.MatchedID = ""
	t.MatchReason = model.ReasonNone

	for _, e := range existing {
		if !e.Amount.Equal(t.Amount) {
			continue
		}
		if reason := m.signal(t, e); reason != model.ReasonNone {
			t.MatchState = model.MatchEqual
			t.MatchedID = e.ID
			t.MatchReason = reason
			break
		}
	}
	return t
}

func (m *Matcher) signal(t model.ImportTransaction, e model.LedgerTransaction) model.MatchReason {
	window := m.cfg.PostedDateWindowDays
	if t.DateUser != nil {
		window = m.cfg.UserDateWindowDays
	}
	if withinDays(t.MatchDate(), e.Date, window) {
		return model.ReasonDate
	}

	if check := strings.TrimSpace(t.CheckNumber); check != "" && check == strings.TrimSpace(e.CheckNumber) {
		return model.ReasonCheck
	}
	if t.ExternalID != "" && t.ExternalID == e.ExternalID {
		return model.ReasonExternalID
	}
	return model.ReasonNone
}

// withinDays compares calendar dates, inclusive at both ends.
func withinDays(a, b time.Time, days int) bool {
	diff := model.DateOf(a).Sub(model.DateOf(b))
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(days)*24*time.Hour
}

// Summary counts NEW and EQUAL transactions.
func Summary(txns []model.ImportTransaction) (newCount, equalCount int) {
	for _, t := range txns {
		if t.MatchState == model.MatchEqual {
			equalCount++
		} else {
			newCount++
		}
	}
	return newCount, equalCount
}
