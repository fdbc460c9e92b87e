package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/cleared-dev/stmtimport/internal/match"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// ErrUnknownFormat is returned when no parser can be chosen for a file.
var ErrUnknownFormat = errors.New("unknown statement format")

// LedgerWriter books a new transaction into a ledger.
type LedgerWriter interface {
	Record(ctx context.Context, account string, txn model.ImportTransaction) error
}

// Pipeline parses statement files and matches them against a ledger.
type Pipeline struct {
	registry *Registry
	matcher  *match.Matcher
	ledger   match.Ledger
	logger   *zap.Logger
}

// Result is the outcome of importing one file.
type Result struct {
	Path         string
	Format       string
	Account      string
	Statement    *model.Statement
	Transactions []model.ImportTransaction
	New          int
	Equal        int
}

// NewPipeline creates a pipeline. A nil logger disables logging.
func NewPipeline(registry *Registry, matcher *match.Matcher, ledger match.Ledger, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{registry: registry, matcher: matcher, ledger: ledger, logger: logger}
}

// ParseFile parses the file at path. An empty format is sniffed from the
// content, then guessed from the extension.
func (p *Pipeline) ParseFile(ctx context.Context, path, format string, opts model.ParseOptions) (*model.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	parser, err := p.choose(br, path, format)
	if err != nil {
		return nil, err
	}

	st, err := parser.Parse(br, opts)
	if err != nil {
		return nil, fmt.Errorf("parsing %s as %s: %w", filepath.Base(path), parser.Format(), err)
	}

	log := p.logger.With(zap.String("file", filepath.Base(path)), zap.String("format", st.Format))
	for _, d := range st.Diagnostics {
		log.Warn("statement diagnostic",
			zap.Int("line", d.Line),
			zap.String("kind", string(d.Kind)),
			zap.String("message", d.Message))
	}
	log.Info("parsed statement",
		zap.String("encoding", st.Encoding),
		zap.String("account", st.Account.AccountID),
		zap.Int("transactions", len(st.Transactions)),
		zap.Int("diagnostics", len(st.Diagnostics)))
	return st, nil
}

func (p *Pipeline) choose(br *bufio.Reader, path, format string) (Parser, error) {
	if format != "" {
		parser := p.registry.Get(format)
		if parser == nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
		}
		return parser, nil
	}

	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if parser := p.registry.Detect(head); parser != nil {
		return parser, nil
	}
	if parser := p.registry.Get(FormatForFile(path)); parser != nil {
		return parser, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, filepath.Base(path))
}

// Import parses path and tags every transaction NEW or EQUAL against the
// ledger's transactions for account.
func (p *Pipeline) Import(ctx context.Context, path, format, account string, opts model.ParseOptions) (*Result, error) {
	st, err := p.ParseFile(ctx, path, format, opts)
	if err != nil {
		return nil, err
	}
	return p.Match(ctx, path, st, account)
}

// Match tags the transactions of an already parsed statement against the
// ledger's transactions for account.
func (p *Pipeline) Match(ctx context.Context, path string, st *model.Statement, account string) (*Result, error) {
	txns, err := p.matcher.MatchAccount(ctx, p.ledger, account, st.Transactions)
	if err != nil {
		return nil, fmt.Errorf("matching %s: %w", filepath.Base(path), err)
	}

	res := &Result{
		Path:         path,
		Format:       st.Format,
		Account:      account,
		Statement:    st,
		Transactions: txns,
	}
	res.New, res.Equal = match.Summary(txns)
	return res, nil
}

// Commit writes the NEW transactions of res through w. It returns how many
// were written and how many NEW transactions were skipped because their
// amount is zero. EQUAL transactions are left alone.
func (p *Pipeline) Commit(ctx context.Context, w LedgerWriter, res *Result) (written, skipped int, err error) {
	log := p.logger.With(zap.String("file", filepath.Base(res.Path)), zap.String("account", res.Account))
	for _, txn := range res.Transactions {
		if txn.MatchState != model.MatchNew {
			continue
		}
		if err := ctx.Err(); err != nil {
			return written, skipped, err
		}
		if txn.Amount.IsZero() {
			log.Debug("skipping zero-amount transaction",
				zap.String("id", txn.ID),
				zap.Time("date", txn.DatePosted),
				zap.String("payee", txn.Payee))
			skipped++
			continue
		}
		if err := w.Record(ctx, res.Account, txn); err != nil {
			return written, skipped, fmt.Errorf("recording %s: %w", txn.ID, err)
		}
		written++
	}
	log.Info("committed import",
		zap.Int("written", written),
		zap.Int("zero_amount", skipped),
		zap.Int("equal", res.Equal))
	return written, skipped, nil
}
