package qif

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cleared-dev/stmtimport/internal/model"
)

var (
	digitRun       = regexp.MustCompile(`\d+`)
	dateDelimiters = regexp.MustCompile(`[/'.-]`)
)

// parseMoney reads a QIF amount. Plain decimals are tried first. Otherwise
// a last digit group of one or two digits is the fraction, so "1,234.56",
// "1.234,56" and "12,50" all parse, and a last group of three digits makes
// every separator a thousands mark, so "1,234" is 1234.
func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if d, err := decimal.NewFromString(s); err == nil {
		return d, nil
	}

	locs := digitRun.FindAllStringIndex(s, -1)
	if len(locs) < 2 {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q", s)
	}
	groups := make([]string, len(locs))
	seps := make([]string, len(locs)-1)
	for i, loc := range locs {
		groups[i] = s[loc[0]:loc[1]]
		if i > 0 {
			seps[i-1] = s[locs[i-1][1]:loc[0]]
		}
	}

	var b strings.Builder
	if strings.HasPrefix(s, "-") {
		b.WriteByte('-')
	}
	last := groups[len(groups)-1]
	switch len(last) {
	case 1, 2:
		for _, g := range groups[:len(groups)-1] {
			b.WriteString(g)
		}
		b.WriteByte('.')
		b.WriteString(last)
	case 3:
		if len(groups[0]) > 3 {
			return decimal.Decimal{}, fmt.Errorf("parsing amount %q: bad digit grouping", s)
		}
		for i, g := range groups {
			if i > 0 && (len(g) != 3 || len(seps[i-1]) != 1 || seps[i-1] != seps[0]) {
				return decimal.Decimal{}, fmt.Errorf("parsing amount %q: bad digit grouping", s)
			}
			b.WriteString(g)
		}
	default:
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: bad digit grouping", s)
	}

	d, err := decimal.NewFromString(b.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return d, nil
}

// dateChunks splits a QIF date such as "1/ 2'20" or "2020-01-02".
func dateChunks(raw string) ([]string, error) {
	chunks := dateDelimiters.Split(strings.TrimSpace(raw), -1)
	if len(chunks) != 3 {
		return nil, fmt.Errorf("date %q: expected 3 fields", raw)
	}
	for i := range chunks {
		chunks[i] = strings.TrimSpace(chunks[i])
	}
	return chunks, nil
}

// detectDateOrder picks US or EU for a whole file. US is assumed unless a
// date has a first field above 12 and a second field of 12 or less.
func detectDateOrder(raws []string, order model.DateOrder) model.DateOrder {
	if order == model.DateOrderUS || order == model.DateOrderEU {
		return order
	}
	for _, raw := range raws {
		chunks, err := dateChunks(raw)
		if err != nil || len(chunks[0]) == 4 {
			continue
		}
		first, err1 := strconv.Atoi(chunks[0])
		second, err2 := strconv.Atoi(chunks[1])
		if err1 != nil || err2 != nil {
			continue
		}
		if first > 12 && second <= 12 {
			return model.DateOrderEU
		}
	}
	return model.DateOrderUS
}

// parseDate reads a QIF date in the given order. A four digit first field
// is always year-month-day. Two digit years below 29 are 20xx.
func parseDate(raw string, order model.DateOrder) (time.Time, error) {
	chunks, err := dateChunks(raw)
	if err != nil {
		return time.Time{}, err
	}
	n := make([]int, 3)
	for i, c := range chunks {
		if n[i], err = strconv.Atoi(c); err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", raw, err)
		}
	}

	var year, month, day int
	switch {
	case len(chunks[0]) == 4:
		year, month, day = n[0], n[1], n[2]
	case order == model.DateOrderEU:
		day, month, year = n[0], n[1], n[2]
	default:
		month, day, year = n[0], n[1], n[2]
	}
	if year < 100 {
		if year < 29 {
			year += 2000
		} else {
			year += 1900
		}
	}

	d := model.Date(year, time.Month(month), day)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, fmt.Errorf("date %q: no such calendar date", raw)
	}
	return d, nil
}

// splitCategory strips class tags ("Auto:Gas/Vacation" is "Auto:Gas") and
// reports whether the category names a transfer account ("[Savings]").
func splitCategory(s string) (string, bool) {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "/")
	if len(s) >= 2 && s[0] == '[' && s[len(s)-1] == ']' {
		return s[1 : len(s)-1], true
	}
	return s, false
}
