package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/stmtimport/internal/accounts"
	"github.com/cleared-dev/stmtimport/internal/config"
	"github.com/cleared-dev/stmtimport/internal/importer"
	"github.com/cleared-dev/stmtimport/internal/journal"
	"github.com/cleared-dev/stmtimport/internal/ledgerdb"
	"github.com/cleared-dev/stmtimport/internal/logging"
	"github.com/cleared-dev/stmtimport/internal/match"
)

type globalOptions struct {
	repo    string
	debug   bool
	noColor bool
}

// env is what every repo-aware subcommand works with.
type env struct {
	repo   string
	cfg    *config.Config
	logger *zap.Logger
}

// ledger is a backend the importer can both match against and write to.
type ledger interface {
	match.Ledger
	importer.LedgerWriter
}

// loadEnv resolves the repo root, loads .env and stmtimport.yaml with
// environment overrides, and builds the logger. A repo without a config file
// runs on defaults.
func loadEnv(ctx context.Context, cmd *cobra.Command, opts *globalOptions) (*env, error) {
	repo, err := filepath.Abs(opts.repo)
	if err != nil {
		return nil, fmt.Errorf("resolving repo path: %w", err)
	}
	if err := config.LoadDotEnv(repo); err != nil {
		return nil, err
	}

	cfg, err := config.LoadWithEnv(ctx, filepath.Join(repo, config.FileName), envconfig.OsLookuper())
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = defaultConfig(ctx)
	}
	if err != nil {
		return nil, err
	}

	return &env{
		repo:   repo,
		cfg:    cfg,
		logger: logging.New(cmd.ErrOrStderr(), opts.debug),
	}, nil
}

func defaultConfig(ctx context.Context) (*config.Config, error) {
	cfg := config.Default("", "")
	if err := envconfig.ProcessWith(ctx, cfg, envconfig.PrefixLookuper(config.EnvPrefix, envconfig.OsLookuper())); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openLedger opens the configured ledger. The returned func releases it.
func (e *env) openLedger(ctx context.Context) (ledger, func(), error) {
	switch e.cfg.Ledger.Kind {
	case config.LedgerSQLite:
		path := e.cfg.Ledger.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(e.repo, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating ledger dir: %w", err)
		}
		store, err := ledgerdb.Open(path, e.logger)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	default:
		accts, err := accounts.Load(e.repo)
		if err != nil {
			return nil, nil, fmt.Errorf("loading chart of accounts: %w", err)
		}
		return journal.NewLedger(e.repo, accts), func() {}, nil
	}
}

func (e *env) pipeline(l match.Ledger) *importer.Pipeline {
	return importer.NewPipeline(
		importer.DefaultRegistry(),
		match.New(e.cfg.Match, e.logger),
		l,
		e.logger,
	)
}
