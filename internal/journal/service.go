package journal

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

// Service reads and appends month journals under a repo root.
type Service struct {
	repoRoot string
	accounts AccountChecker
}

// NewService creates a journal Service.
func NewService(repoRoot string, accounts AccountChecker) *Service {
	return &Service{repoRoot: repoRoot, accounts: accounts}
}

// Line is one leg of a new entry. A positive amount debits the account, a
// negative amount credits it.
type Line struct {
	AccountID int
	Amount    decimal.Decimal
	Memo      string
}

// EntryParams holds parameters for creating a journal entry.
type EntryParams struct {
	Date         time.Time
	Description  string
	Counterparty string
	Reference    string
	CheckNumber  string
	ImportID     string
	Status       model.EntryStatus
	Lines        []Line
}

// AddEntry creates an entry with one leg per line, validates it together
// with the rest of its month, and appends it to the month's journal.csv.
// Returns the entry ID.
func (s *Service) AddEntry(params EntryParams) (string, error) {
	if len(params.Lines) < 2 {
		return "", fmt.Errorf("entry needs at least 2 lines, got %d", len(params.Lines))
	}

	year := params.Date.Year()
	month := int(params.Date.Month())

	existing, err := s.ReadMonth(year, month)
	if err != nil {
		return "", err
	}

	entryID := FormatEntryID(year, month, nextSeq(existing))
	newLegs := make([]model.Leg, 0, len(params.Lines))
	for i, line := range params.Lines {
		leg := model.Leg{
			EntryID:      FormatLegID(entryID, i),
			Date:         params.Date,
			AccountID:    line.AccountID,
			Description:  params.Description,
			Counterparty: params.Counterparty,
			Reference:    params.Reference,
			CheckNumber:  params.CheckNumber,
			ImportID:     params.ImportID,
			Status:       params.Status,
			Memo:         line.Memo,
		}
		if line.Amount.IsNegative() {
			leg.Credit = line.Amount.Neg()
		} else {
			leg.Debit = line.Amount
		}
		newLegs = append(newLegs, leg)
	}

	allLegs := append(existing, newLegs...)
	if verrs := ValidateLegs(allLegs, s.accounts, year, month); len(verrs) > 0 {
		msgs := make([]string, len(verrs))
		for i, ve := range verrs {
			msgs[i] = ve.Error()
		}
		return "", fmt.Errorf("validation failed: %s", strings.Join(msgs, "; "))
	}

	journalPath := s.monthPath(year, month)
	if err := os.MkdirAll(filepath.Dir(journalPath), 0o755); err != nil {
		return "", fmt.Errorf("creating journal dir: %w", err)
	}

	isNew := false
	if _, err := os.Stat(journalPath); errors.Is(err, fs.ErrNotExist) {
		isNew = true
	}

	f, err := os.OpenFile(journalPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("opening journal: %w", err)
	}
	defer f.Close()

	if isNew {
		if _, err := fmt.Fprintln(f, Header); err != nil {
			return "", fmt.Errorf("writing header: %w", err)
		}
	}

	if err := AppendLegs(f, newLegs); err != nil {
		return "", fmt.Errorf("appending legs: %w", err)
	}
	return entryID, nil
}

// ReadMonth reads all legs for a given year/month.
func (s *Service) ReadMonth(year, month int) ([]model.Leg, error) {
	path := s.monthPath(year, month)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening journal %s: %w", path, err)
	}
	defer f.Close()

	legs, err := ReadLegs(f)
	if err != nil {
		return nil, fmt.Errorf("reading journal %s: %w", path, err)
	}
	return legs, nil
}

// ReadRange reads the legs of every month journal that overlaps r, in
// month order. Legs outside r are dropped.
func (s *Service) ReadRange(r model.DateRange) ([]model.Leg, error) {
	months, err := s.Months()
	if err != nil {
		return nil, err
	}

	var legs []model.Leg
	for _, m := range months {
		first := model.Date(m.Year(), m.Month(), 1)
		last := first.AddDate(0, 1, -1)
		if !r.Start.IsZero() && last.Before(model.DateOf(r.Start)) {
			continue
		}
		if !r.End.IsZero() && first.After(model.DateOf(r.End)) {
			continue
		}
		month, err := s.ReadMonth(m.Year(), int(m.Month()))
		if err != nil {
			return nil, err
		}
		for _, leg := range month {
			if r.Contains(leg.Date) {
				legs = append(legs, leg)
			}
		}
	}
	return legs, nil
}

// Months lists the first day of every month that has a journal, oldest first.
func (s *Service) Months() ([]time.Time, error) {
	paths, err := filepath.Glob(filepath.Join(s.repoRoot, "[0-9][0-9][0-9][0-9]", "[0-9][0-9]", "journal.csv"))
	if err != nil {
		return nil, fmt.Errorf("listing journals: %w", err)
	}

	var months []time.Time
	for _, p := range paths {
		monthDir := filepath.Dir(p)
		year, _ := strconv.Atoi(filepath.Base(filepath.Dir(monthDir)))
		month, _ := strconv.Atoi(filepath.Base(monthDir))
		if month < 1 || month > 12 {
			continue
		}
		months = append(months, model.Date(year, time.Month(month), 1))
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months, nil
}

func nextSeq(legs []model.Leg) int {
	maxSeq := 0
	for _, leg := range legs {
		_, _, seq, err := ParseEntryID(leg.EntryID)
		if err != nil {
			continue
		}
		maxSeq = max(maxSeq, seq)
	}
	return maxSeq + 1
}

func (s *Service) monthPath(year, month int) string {
	return filepath.Join(s.repoRoot, fmt.Sprintf("%04d", year), fmt.Sprintf("%02d", month), "journal.csv")
}
