// Package ledgerdb is a SQLite-backed ledger of booked statement
// transactions.
package ledgerdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/cleared-dev/stmtimport/internal/model"
)

const (
	table      = "ledger_transactions"
	dateFormat = "2006-01-02"
)

var schema = []string{
	`create table if not exists ledger_transactions (
		id           text primary key,
		account      text not null,
		amount       text not null,
		date         text not null,
		check_number text not null default '',
		external_id  text not null default '',
		payee        text not null default '',
		memo         text not null default '',
		category     text not null default '',
		created_at   text not null
	)`,
	`create index if not exists ledger_transactions_account_date on ledger_transactions (account, date)`,
	`create unique index if not exists ledger_transactions_external_id
		on ledger_transactions (account, external_id) where external_id <> ''`,
}

// Store is a ledger kept in a SQLite database file.
type Store struct {
	db  *sql.DB
	log *zap.Logger
	now func() time.Time
}

// Open opens or creates the database at path. Call Migrate before use.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	// One writer at a time avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database %s: %w", path, err)
	}
	return &Store{db: db, log: log, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Transactions returns the transactions of account within r, oldest first.
func (s *Store) Transactions(ctx context.Context, account string, r model.DateRange) ([]model.LedgerTransaction, error) {
	query := sq.
		Select("id", "account", "amount", "date", "check_number", "external_id").
		From(table).
		Where(sq.Eq{"account": account}).
		OrderBy("date", "rowid")
	if !r.Start.IsZero() {
		query = query.Where(sq.GtOrEq{"date": r.Start.Format(dateFormat)})
	}
	if !r.End.IsZero() {
		query = query.Where(sq.LtOrEq{"date": r.End.Format(dateFormat)})
	}

	var out []model.LedgerTransaction
	err := s.selectRows(ctx, query, func(rows *sql.Rows) error {
		var (
			t            model.LedgerTransaction
			amount, date string
		)
		if err := rows.Scan(&t.ID, &t.Account, &amount, &date, &t.CheckNumber, &t.ExternalID); err != nil {
			return err
		}
		var err error
		if t.Amount, err = decimal.NewFromString(amount); err != nil {
			return fmt.Errorf("transaction %s amount %q: %w", t.ID, amount, err)
		}
		if t.Date, err = time.Parse(dateFormat, date); err != nil {
			return fmt.Errorf("transaction %s date %q: %w", t.ID, date, err)
		}
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("select transactions for %s: %w", account, err)
	}
	return out, nil
}

// Record books txn on account. A transaction whose id, or whose external
// id on the same account, is already stored is ignored.
func (s *Store) Record(ctx context.Context, account string, txn model.ImportTransaction) error {
	query := sq.
		Insert(table).
		Columns("id", "account", "amount", "date", "check_number", "external_id", "payee", "memo", "category", "created_at").
		Values(
			txn.ID,
			account,
			txn.Amount.String(),
			model.DateOf(txn.DatePosted).Format(dateFormat),
			txn.CheckNumber,
			txn.ExternalID,
			txn.Payee,
			txn.Memo,
			txn.Category,
			s.now().UTC().Format(time.RFC3339),
		).
		Suffix("on conflict do nothing")

	n, err := s.exec(ctx, query)
	if err != nil {
		return fmt.Errorf("insert transaction %s: %w", txn.ID, err)
	}
	if n == 0 {
		s.log.Debug("transaction already booked",
			zap.String("id", txn.ID),
			zap.String("account", account),
			zap.String("external_id", txn.ExternalID))
	}
	return nil
}

// Count returns how many transactions are booked on account.
func (s *Store) Count(ctx context.Context, account string) (int, error) {
	query := sq.Select("count(*)").From(table).Where(sq.Eq{"account": account})

	var n int
	err := s.selectRows(ctx, query, func(rows *sql.Rows) error {
		return rows.Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("count transactions for %s: %w", account, err)
	}
	return n, nil
}

func (s *Store) selectRows(ctx context.Context, query sq.SelectBuilder, handler func(rows *sql.Rows) error) error {
	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build select query: %w", err)
	}
	defer s.logQuery(time.Now(), stmt, args)

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("exec query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := handler(rows); err != nil {
			return fmt.Errorf("handle row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("reading query result: %w", err)
	}
	return nil
}

func (s *Store) exec(ctx context.Context, query sq.InsertBuilder) (int64, error) {
	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert query: %w", err)
	}
	defer s.logQuery(time.Now(), stmt, args)

	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("exec query: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) logQuery(start time.Time, stmt string, args []any) {
	s.log.Debug("db query",
		zap.String("sql", strings.Join(strings.Fields(stmt), " ")),
		zap.Any("args", args),
		zap.Duration("dur", time.Since(start)))
}
