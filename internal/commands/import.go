package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cleared-dev/stmtimport/internal/gitops"
	"github.com/cleared-dev/stmtimport/internal/importer"
	"github.com/cleared-dev/stmtimport/internal/importlog"
)

// matchRun is a parsed and matched statement together with what produced it.
type matchRun struct {
	env    *env
	ledger ledger
	close  func()
	pipe   *importer.Pipeline
	result *importer.Result
}

func runMatch(cmd *cobra.Command, g *globalOptions, flags *parseFlags, path, account string) (*matchRun, error) {
	ctx := cmd.Context()
	e, err := loadEnv(ctx, cmd, g)
	if err != nil {
		return nil, err
	}

	opts, err := flags.options(cmd, e)
	if err != nil {
		return nil, err
	}

	l, closeLedger, err := e.openLedger(ctx)
	if err != nil {
		return nil, err
	}

	pipe := e.pipeline(l)
	st, err := pipe.ParseFile(ctx, path, flags.format, opts)
	if err != nil {
		closeLedger()
		return nil, err
	}

	if account == "" {
		var ok bool
		account, ok = e.cfg.AccountFor(st.Account)
		if !ok {
			closeLedger()
			return nil, fmt.Errorf("no ledger account for statement account %q: pass --account or add it to bank_accounts",
				firstNonEmpty(st.Account.AccountID, st.Account.Label))
		}
	}

	res, err := pipe.Match(ctx, path, st, account)
	if err != nil {
		closeLedger()
		return nil, err
	}
	return &matchRun{env: e, ledger: l, close: closeLedger, pipe: pipe, result: res}, nil
}

func (r *matchRun) print(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	printStatement(out, r.result.Path, r.result.Statement)
	printTransactions(out, r.result.Transactions, true)
	printDiagnostics(cmd.ErrOrStderr(), r.result.Statement.Diagnostics)
	fmt.Fprintf(out, "account %s: %s new, %s equal\n",
		r.result.Account,
		green.Sprint(r.result.New),
		yellow.Sprint(r.result.Equal))
}

func newMatchCommand(g *globalOptions) *cobra.Command {
	var flags parseFlags
	var account string

	cmd := &cobra.Command{
		Use:   "match <file>",
		Short: "Show which statement transactions are already in the ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := runMatch(cmd, g, &flags, args[0], account)
			if err != nil {
				return err
			}
			defer run.close()
			defer run.env.logger.Sync()

			run.print(cmd)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&account, "account", "", "ledger account (default: from bank_accounts)")

	return cmd
}

func newImportCommand(g *globalOptions) *cobra.Command {
	var flags parseFlags
	var account string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Book the new transactions of a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := runMatch(cmd, g, &flags, args[0], account)
			if err != nil {
				return err
			}
			defer run.close()
			defer run.env.logger.Sync()

			run.print(cmd)
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "dry run: nothing written")
				return nil
			}
			return runImport(cmd, run)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&account, "account", "", "ledger account (default: from bank_accounts)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "match only, write nothing")

	return cmd
}

func runImport(cmd *cobra.Command, run *matchRun) error {
	ctx := cmd.Context()
	e, res := run.env, run.result

	written, skipped, err := run.pipe.Commit(ctx, run.ledger, res)
	if err != nil {
		return fmt.Errorf("committing import: %w", err)
	}

	name := filepath.Base(res.Path)
	abs, err := filepath.Abs(res.Path)
	if err != nil {
		return fmt.Errorf("resolving path: %w", err)
	}
	if filepath.Dir(abs) == filepath.Join(e.repo, "import") {
		if err := importer.MarkProcessed(e.repo, name); err != nil {
			return err
		}
	}

	entry := importlog.Entry{
		Timestamp:    time.Now().UTC(),
		File:         name,
		Format:       res.Format,
		Encoding:     res.Statement.Encoding,
		Account:      res.Account,
		Transactions: len(res.Transactions),
		New:          res.New,
		Equal:        res.Equal,
		Written:      written,
		Diagnostics:  len(res.Statement.Diagnostics),
	}

	commit := e.cfg.Git.AutoCommit && gitops.IsRepo(e.repo)
	author := gitops.Author{Name: e.cfg.Git.AuthorName, Email: e.cfg.Git.AuthorEmail}
	if commit {
		// The import lands in its own commit so the log entry can name it.
		entry.CommitHash, err = gitops.CommitAll(ctx, e.repo, fmt.Sprintf("import: %s (%d new)", name, written), author)
		if err != nil {
			return fmt.Errorf("committing to git: %w", err)
		}
	}

	if err := importlog.Append(e.repo, []importlog.Entry{entry}); err != nil {
		return fmt.Errorf("writing import log: %w", err)
	}
	if commit {
		if _, err := gitops.CommitAll(ctx, e.repo, "log: import of "+name, author); err != nil {
			return fmt.Errorf("committing import log: %w", err)
		}
	}

	e.logger.Info("import finished",
		zap.String("file", name),
		zap.Int("written", written),
		zap.Int("zero_amount", skipped),
		zap.String("commit", entry.CommitHash))
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d transactions to %s\n", written, res.Account)
	if skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped %d zero-amount transactions\n", skipped)
	}
	return nil
}

func newScanCommand(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List statement files waiting in import/",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd.Context(), cmd, g)
			if err != nil {
				return err
			}

			files, err := importer.Scan(e.repo)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "no statements to import")
				return nil
			}
			for _, f := range files {
				fmt.Fprintf(out, "%-6s %8d  %s\n", f.Format, f.Size, f.Name)
			}
			return nil
		},
	}
}

