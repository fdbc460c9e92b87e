package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/stmtimport/internal/match"
	"github.com/cleared-dev/stmtimport/internal/model"
)

// FileName is the config file at the repo root.
const FileName = "stmtimport.yaml"

// EnvPrefix prefixes every environment override, e.g. STMTIMPORT_MATCH_WORKERS.
const EnvPrefix = "STMTIMPORT_"

// Ledger kinds.
const (
	LedgerJournal = "journal"
	LedgerSQLite  = "sqlite"
)

// Config represents the top-level stmtimport.yaml configuration.
type Config struct {
	Business     BusinessConfig `yaml:"business"`
	Import       ImportConfig   `yaml:"import" env:",prefix=IMPORT_"`
	Match        match.Config   `yaml:"match" env:",prefix=MATCH_"`
	Ledger       LedgerConfig   `yaml:"ledger" env:",prefix=LEDGER_"`
	BankAccounts []BankAccount  `yaml:"bank_accounts,omitempty"`
	Git          GitConfig      `yaml:"git" env:",prefix=GIT_"`
}

// BusinessConfig names the books and picks the default chart of accounts.
type BusinessConfig struct {
	Name  string `yaml:"name"`
	Chart string `yaml:"chart"` // "business" or "personal"
}

// ImportConfig holds the defaults passed to every parse.
type ImportConfig struct {
	Strict          bool   `yaml:"strict" env:"STRICT,overwrite"`
	DefaultEncoding string `yaml:"default_encoding,omitempty" env:"DEFAULT_ENCODING,overwrite"`
	DateOrder       string `yaml:"date_order" env:"DATE_ORDER,overwrite"` // auto, us or eu
}

// LedgerConfig selects where imports are matched against and booked.
type LedgerConfig struct {
	Kind string `yaml:"kind" env:"KIND,overwrite"`
	// Path is the SQLite file, relative to the repo root.
	Path string `yaml:"path,omitempty" env:"PATH,overwrite"`
}

// BankAccount maps statement account identifiers to a ledger account.
type BankAccount struct {
	Name       string `yaml:"name"`
	AccountID  string `yaml:"account_id"`
	OFXAcctID  string `yaml:"ofx_acct_id,omitempty"`
	MT940Label string `yaml:"mt940_label,omitempty"`
}

// GitConfig controls git integration.
type GitConfig struct {
	AutoCommit  bool   `yaml:"auto_commit" env:"AUTO_COMMIT,overwrite"`
	AuthorName  string `yaml:"author_name" env:"AUTHOR_NAME,overwrite"`
	AuthorEmail string `yaml:"author_email" env:"AUTHOR_EMAIL,overwrite"`
}

// ParseOptions converts the import section into per-parse options.
func (c ImportConfig) ParseOptions() model.ParseOptions {
	order := model.DateOrder(strings.ToLower(c.DateOrder))
	if order == "" {
		order = model.DateOrderAuto
	}
	return model.ParseOptions{
		Strict:          c.Strict,
		DefaultEncoding: c.DefaultEncoding,
		DateOrder:       order,
	}
}

// AccountFor returns the ledger account of the configured bank account the
// statement belongs to. OFX statements match on ACCTID, MT940 on the :25:
// label and QIF on the !Account name.
func (c *Config) AccountFor(acct model.StatementAccount) (string, bool) {
	id := strings.TrimSpace(acct.AccountID)
	label := strings.TrimSpace(acct.Label)
	for _, ba := range c.BankAccounts {
		switch {
		case ba.OFXAcctID != "" && ba.OFXAcctID == id,
			ba.MT940Label != "" && ba.MT940Label == label,
			ba.Name != "" && strings.EqualFold(ba.Name, label):
			return ba.AccountID, true
		}
	}
	return "", false
}

// Validate checks values that cannot be caught by YAML decoding.
func (c *Config) Validate() error {
	var errs []error
	switch c.Ledger.Kind {
	case LedgerJournal:
	case LedgerSQLite:
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("ledger.path is required for the sqlite ledger"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.kind %q: want %s or %s", c.Ledger.Kind, LedgerJournal, LedgerSQLite))
	}
	switch model.DateOrder(strings.ToLower(c.Import.DateOrder)) {
	case "", model.DateOrderAuto, model.DateOrderUS, model.DateOrderEU:
	default:
		errs = append(errs, fmt.Errorf("import.date_order %q: want auto, us or eu", c.Import.DateOrder))
	}
	if c.Match.UserDateWindowDays < 0 || c.Match.PostedDateWindowDays < 0 {
		errs = append(errs, errors.New("match windows must not be negative"))
	}
	for i, ba := range c.BankAccounts {
		if ba.AccountID == "" {
			errs = append(errs, fmt.Errorf("bank_accounts[%d] (%s): account_id is required", i, ba.Name))
		}
	}
	return errors.Join(errs...)
}

// Load reads a stmtimport.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default("", "")
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// LoadWithEnv reads path and applies STMTIMPORT_* overrides found by l.
func LoadWithEnv(ctx context.Context, path string, l envconfig.Lookuper) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := envconfig.ProcessWith(ctx, cfg, envconfig.PrefixLookuper(EnvPrefix, l)); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads dir/.env into the process environment if it exists.
// Variables already set are left alone.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default(name, chart string) *Config {
	if chart == "" {
		chart = "business"
	}
	return &Config{
		Business: BusinessConfig{
			Name:  name,
			Chart: chart,
		},
		Import: ImportConfig{
			DateOrder: string(model.DateOrderAuto),
		},
		Match: match.DefaultConfig(),
		Ledger: LedgerConfig{
			Kind: LedgerJournal,
		},
		Git: GitConfig{
			AutoCommit:  true,
			AuthorName:  "stmtimport",
			AuthorEmail: "stmtimport@localhost",
		},
	}
}
